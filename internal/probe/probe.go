// Package probe implements bootstrap.LivenessProbe for the services an n8n
// deployment depends on.
package probe

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"n8nstack/internal/bootstrap"
)

var (
	_ bootstrap.LivenessProbe = SQLProbe{}
	_ bootstrap.LivenessProbe = ContainerProbe{}
	_ bootstrap.LivenessProbe = (*RedisProbe)(nil)
	_ bootstrap.LivenessProbe = Multi{}
	_ bootstrap.LivenessProbe = HealthProbe{}
)

// SQLProbe pings the database pool.
type SQLProbe struct {
	DB *sql.DB
}

func (p SQLProbe) Alive(ctx context.Context) error {
	if err := p.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

// Execer runs a command inside a running container.
type Execer interface {
	Exec(ctx context.Context, container string, cmd ...string) ([]byte, error)
}

// ContainerProbe runs pg_isready inside the database container, so the wait
// works before the database port is published to the host.
type ContainerProbe struct {
	Exec      Execer
	Container string
	User      string
	Database  string
}

func (p ContainerProbe) Command() []string {
	cmd := []string{"pg_isready", "-h", "localhost"}
	if p.User != "" {
		cmd = append(cmd, "-U", p.User)
	}
	if p.Database != "" {
		cmd = append(cmd, "-d", p.Database)
	}
	return cmd
}

func (p ContainerProbe) Alive(ctx context.Context) error {
	out, err := p.Exec.Exec(ctx, p.Container, p.Command()...)
	if err != nil {
		return fmt.Errorf("pg_isready in %q: %w", p.Container, err)
	}
	if msg := strings.TrimSpace(string(out)); msg != "" && !strings.Contains(msg, "accepting connections") {
		return fmt.Errorf("pg_isready in %q: %s", p.Container, msg)
	}
	return nil
}

// Multi is ready when every probe is ready. Probes run in order and the
// first failure is returned.
type Multi []bootstrap.LivenessProbe

// All combines probes, skipping nil entries.
func All(probes ...bootstrap.LivenessProbe) Multi {
	out := make(Multi, 0, len(probes))
	for _, p := range probes {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

func (m Multi) Alive(ctx context.Context) error {
	if len(m) == 0 {
		return errors.New("no liveness probe configured")
	}
	for _, p := range m {
		if err := p.Alive(ctx); err != nil {
			return err
		}
	}
	return nil
}
