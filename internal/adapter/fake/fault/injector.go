// Package fault injects errors into fake adapters at named points.
package fault

import (
	"fmt"
	"strings"
	"sync"

	"n8nstack/internal/check"
)

// Hook inspects the arguments of a call and may fail it.
type Hook func(args ...any) error

type point struct {
	once   []error
	always error
	hook   Hook
	evals  int
}

// Injector holds the configured faults for one fake. The zero value is not
// usable; call NewInjector.
type Injector struct {
	mu     sync.Mutex
	points map[string]*point
}

func NewInjector() *Injector {
	return &Injector{points: make(map[string]*point)}
}

func (i *Injector) at(name string) *point {
	p, ok := i.points[name]
	if !ok {
		p = &point{}
		i.points[name] = p
	}
	return p
}

func validPoint(name string) bool {
	return strings.TrimSpace(name) != ""
}

// FailOnce queues err for the next evaluation of name. Queued errors are
// consumed in order.
func (i *Injector) FailOnce(name string, err error) {
	check.Assert(validPoint(name) && err != nil, "fault.Injector.FailOnce: point and err are required")
	if !validPoint(name) || err == nil {
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	p := i.at(name)
	p.once = append(p.once, err)
}

// FailAlways makes every evaluation of name fail with err until cleared.
func (i *Injector) FailAlways(name string, err error) {
	check.Assert(validPoint(name) && err != nil, "fault.Injector.FailAlways: point and err are required")
	if !validPoint(name) || err == nil {
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.at(name).always = err
}

// SetHook installs hook for name. It runs before queued or permanent errors.
func (i *Injector) SetHook(name string, hook Hook) {
	check.Assert(validPoint(name) && hook != nil, "fault.Injector.SetHook: point and hook are required")
	if !validPoint(name) || hook == nil {
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.at(name).hook = hook
}

// Clear drops every fault configured for name.
func (i *Injector) Clear(name string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.points, name)
}

// Reset drops all faults.
func (i *Injector) Reset() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.points = make(map[string]*point)
}

// Evals reports how many times name was evaluated.
func (i *Injector) Evals(name string) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	if p, ok := i.points[name]; ok {
		return p.evals
	}
	return 0
}

// Eval returns the fault for this call of name, if any.
// Precedence: hook, then once, then always.
func (i *Injector) Eval(name string, args ...any) error {
	check.Assert(validPoint(name), "fault.Injector.Eval: point must not be empty")
	i.mu.Lock()
	p := i.at(name)
	p.evals++
	hook := p.hook
	var once error
	if len(p.once) > 0 {
		once, p.once = p.once[0], p.once[1:]
	}
	always := p.always
	i.mu.Unlock()

	if hook != nil {
		if err := hook(args...); err != nil {
			return fmt.Errorf("fault %s (hook): %w", name, err)
		}
	}
	if once != nil {
		return fmt.Errorf("fault %s (once): %w", name, once)
	}
	if always != nil {
		return fmt.Errorf("fault %s (always): %w", name, always)
	}
	return nil
}
