package probe

import (
	"context"
	"fmt"

	"n8nstack/internal/adapter/docker"
)

// Inspector reports a container's engine-side state.
type Inspector interface {
	Health(ctx context.Context, name string) (docker.Health, error)
}

// HealthProbe is ready once the container runs and, when it defines a
// healthcheck, reports healthy.
type HealthProbe struct {
	Inspect   Inspector
	Container string
}

func (p HealthProbe) Alive(ctx context.Context) error {
	h, err := p.Inspect.Health(ctx, p.Container)
	if err != nil {
		return err
	}
	switch {
	case !h.Exists:
		return fmt.Errorf("container %q does not exist", p.Container)
	case !h.Running:
		return fmt.Errorf("container %q is not running", p.Container)
	case h.Status != "" && h.Status != "healthy":
		return fmt.Errorf("container %q is %s", p.Container, h.Status)
	}
	return nil
}
