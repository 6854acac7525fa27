// Package apikey persists the n8n public API key on the shared config
// volume so other containers of the deployment can read it.
package apikey

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	FileName = "n8n_api_key.txt"
	fileMode = 0o600
	dirMode  = 0o755
)

// Source says where Load found the key.
type Source string

const (
	SourceFile Source = "file"
	SourceEnv  Source = "env"
	SourceNone Source = ""
)

var ErrEmptyKey = errors.New("api key is empty")

// Path returns the key file inside dir.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Save writes the trimmed key to dir, creating dir as needed, and leaves
// the file readable only by its owner.
func Save(dir, key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrEmptyKey
	}
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}

	path := Path(dir)
	tmp, err := os.CreateTemp(dir, "."+FileName+".*")
	if err != nil {
		return "", fmt.Errorf("create temp key file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(fileMode); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("chmod key file: %w", err)
	}
	if _, err := tmp.WriteString(key); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write key file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close key file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("install key file: %w", err)
	}
	return path, nil
}

// Load reads the key from dir and falls back to envKey when the file is
// missing, unreadable or empty.
func Load(dir, envKey string) (string, Source, error) {
	data, err := os.ReadFile(Path(dir))
	switch {
	case err == nil:
		if key := strings.TrimSpace(string(data)); key != "" {
			return key, SourceFile, nil
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		if envKey == "" {
			return "", SourceNone, fmt.Errorf("read key file: %w", err)
		}
	}

	if key := strings.TrimSpace(envKey); key != "" {
		return key, SourceEnv, nil
	}
	return "", SourceNone, ErrEmptyKey
}

// Mask hides all but the last four characters.
func Mask(key string) string {
	const visible = 4
	if len(key) <= visible {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-visible) + key[len(key)-visible:]
}
