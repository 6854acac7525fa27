package fake

import (
	"context"
	"errors"

	"n8nstack/internal/bootstrap"
)

var _ bootstrap.LivenessProbe = (*Probe)(nil)

const FaultProbeAlive = "probe.alive"

// ErrNotReady is what an unready Probe returns.
var ErrNotReady = errors.New("fake: not ready")

// Probe becomes ready after ReadyAfter failed calls. Ready sets it
// immediately.
type Probe struct {
	CallRecorder
	Faults

	ReadyAfter int
	// OnAlive, if set, runs on every call before the readiness check.
	OnAlive func(call int)
}

func (p *Probe) Alive(ctx context.Context) error {
	p.record("Alive")
	n := p.Count("Alive")
	if p.OnAlive != nil {
		p.OnAlive(n)
	}
	if err := p.evalFault(FaultProbeAlive); err != nil {
		return err
	}
	if n <= p.ReadyAfter {
		return ErrNotReady
	}
	return nil
}
