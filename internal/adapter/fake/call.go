// Package fake holds in-memory implementations of the ports used by
// bootstrap and ownership, for tests. Every fake records its calls and
// accepts injected faults.
package fake

import (
	"sync"

	"n8nstack/internal/adapter/fake/fault"
)

// Call is one recorded method invocation.
type Call struct {
	Method string
	Args   []any
}

// CallRecorder tracks method calls for assertions.
type CallRecorder struct {
	mu    sync.Mutex
	calls []Call
}

func (r *CallRecorder) record(method string, args ...any) {
	r.mu.Lock()
	r.calls = append(r.calls, Call{Method: method, Args: args})
	r.mu.Unlock()
}

// Calls returns recorded calls of method, or all calls when method is "".
func (r *CallRecorder) Calls(method string) []Call {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Call
	for _, c := range r.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Count is len(Calls(method)).
func (r *CallRecorder) Count(method string) int {
	return len(r.Calls(method))
}

func (r *CallRecorder) Reset() {
	r.mu.Lock()
	r.calls = nil
	r.mu.Unlock()
}

// Faults is embedded by fakes that accept injected errors.
type Faults struct {
	once sync.Once
	inj  *fault.Injector
}

func (f *Faults) injector() *fault.Injector {
	f.once.Do(func() { f.inj = fault.NewInjector() })
	return f.inj
}

func (f *Faults) FailOnce(point string, err error)        { f.injector().FailOnce(point, err) }
func (f *Faults) FailAlways(point string, err error)      { f.injector().FailAlways(point, err) }
func (f *Faults) SetFaultHook(point string, h fault.Hook) { f.injector().SetHook(point, h) }
func (f *Faults) ClearFault(point string)                 { f.injector().Clear(point) }
func (f *Faults) ResetFaults()                            { f.injector().Reset() }

func (f *Faults) evalFault(point string, args ...any) error {
	return f.injector().Eval(point, args...)
}
