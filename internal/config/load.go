package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/compose-spec/compose-go/v2/dotenv"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// Sources names where Load reads from. Empty file paths fall back to the
// defaults, which may be absent; explicitly named files must exist.
type Sources struct {
	File       string
	SecretFile string
	// Lookuper replaces the process environment, mainly for tests.
	Lookuper envconfig.Lookuper
}

// Load resolves a Config. The result is not validated; call Validate with
// the sections the command needs.
func Load(ctx context.Context, src Sources) (Config, error) {
	cfg := Default()

	if err := loadYAML(&cfg, src.File); err != nil {
		return Config{}, err
	}

	secrets, err := loadSecrets(src.SecretFile)
	if err != nil {
		return Config{}, err
	}

	env := src.Lookuper
	if env == nil {
		env = envconfig.OsLookuper()
	}
	if len(secrets) > 0 {
		env = envconfig.MultiLookuper(env, envconfig.MapLookuper(secrets))
	}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: env}); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	return cfg, nil
}

func loadYAML(cfg *Config, path string) error {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// loadSecrets reads the KEY=VALUE credentials file the deployment scripts
// write next to the compose file.
func loadSecrets(path string) (map[string]string, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultSecretFile
	}
	if _, err := os.Stat(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read secret file: %w", err)
	}
	values, err := dotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("parse secret file %s: %w", path, err)
	}
	return values, nil
}
