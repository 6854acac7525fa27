// Package compose reads the deployment's compose file: bind mounts that
// need ownership fixes and the container names of services to probe.
package compose

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/compose-spec/compose-go/v2/dotenv"
	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
)

// Load parses the compose file at path. Variables are interpolated from env
// layered over the .env file next to it, when present.
func Load(ctx context.Context, path string, env map[string]string) (*types.Project, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve compose path: %w", err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read compose file: %w", err)
	}
	dir := filepath.Dir(abs)

	merged := map[string]string{}
	dotEnvPath := filepath.Join(dir, ".env")
	if _, err := os.Stat(dotEnvPath); err == nil {
		fileEnv, err := dotenv.Read(dotEnvPath)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", dotEnvPath, err)
		}
		for k, v := range fileEnv {
			merged[k] = v
		}
	}
	for k, v := range env {
		merged[k] = v
	}

	details := types.ConfigDetails{
		WorkingDir:  dir,
		ConfigFiles: []types.ConfigFile{{Filename: abs, Content: data}},
		Environment: merged,
	}
	name := projectName(merged, dir)
	project, err := loader.LoadWithContext(ctx, details, func(o *loader.Options) {
		o.SetProjectName(name, false)
	})
	if err != nil {
		return nil, fmt.Errorf("parse compose file: %w", err)
	}
	if len(project.Services) == 0 {
		return nil, errors.New("compose file has no services")
	}
	return project, nil
}

func projectName(env map[string]string, dir string) string {
	if n := strings.TrimSpace(env["COMPOSE_PROJECT_NAME"]); n != "" {
		return n
	}
	return loader.NormalizeProjectName(filepath.Base(dir))
}

// Mount is a host directory bind-mounted into a service.
type Mount struct {
	Service  string
	Source   string
	Target   string
	ReadOnly bool
}

// BindMounts lists the bind mounts of the named services, or of every
// service when none are named. Mounts are sorted by service, then source.
func BindMounts(p *types.Project, services ...string) ([]Mount, error) {
	names := services
	if len(names) == 0 {
		names = p.ServiceNames()
	}

	var out []Mount
	for _, name := range names {
		svc, ok := p.Services[name]
		if !ok {
			return nil, fmt.Errorf("service %q not found in compose project %q", name, p.Name)
		}
		for _, v := range svc.Volumes {
			if v.Type != types.VolumeTypeBind || v.Source == "" {
				continue
			}
			src := v.Source
			if !filepath.IsAbs(src) {
				src = filepath.Join(p.WorkingDir, src)
			}
			out = append(out, Mount{Service: name, Source: filepath.Clean(src), Target: v.Target, ReadOnly: v.ReadOnly})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Service != out[j].Service {
			return out[i].Service < out[j].Service
		}
		return out[i].Source < out[j].Source
	})
	return out, nil
}

// ContainerName is the name the engine gives the first replica of service.
func ContainerName(p *types.Project, service string) (string, error) {
	svc, ok := p.Services[service]
	if !ok {
		return "", fmt.Errorf("service %q not found in compose project %q", service, p.Name)
	}
	if svc.ContainerName != "" {
		return svc.ContainerName, nil
	}
	return p.Name + "-" + service + "-1", nil
}
