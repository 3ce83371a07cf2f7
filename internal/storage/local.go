// Package storage manages the on-disk artifacts produced by acquisitions,
// and the public URLs they are served from.
package storage

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/hbomb79/Harvest/pkg/logger"
	"github.com/mitchellh/go-homedir"
)

var (
	log = logger.Get("Storage")

	ErrInvalidName = errors.New("artifact name is not valid")
	ErrNotFound    = errors.New("artifact does not exist")
)

type (
	Config struct {
		BasePath     string `yaml:"base_path" toml:"base_path" env:"STORAGE_BASE_PATH" env-default:"/tmp/video-downloads" validate:"required"`
		PublicPrefix string `yaml:"public_prefix" toml:"public_prefix" env:"STORAGE_PUBLIC_PREFIX" env-default:"/api/files" validate:"required,startswith=/"`
	}

	// Local stores artifacts as flat files inside of a single base
	// directory. Artifact names never contain path separators.
	Local struct {
		basePath     string
		publicPrefix string
	}
)

func New(config Config) (*Local, error) {
	base, err := homedir.Expand(config.BasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to expand storage base path %q: %w", config.BasePath, err)
	}

	base, err = filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage base path %q: %w", config.BasePath, err)
	}

	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", base, err)
	}

	log.Emit(logger.INFO, "Storing artifacts in %s\n", base)
	return &Local{basePath: base, publicPrefix: strings.TrimSuffix(config.PublicPrefix, "/")}, nil
}

// NameFor returns the artifact name used for the output of a task.
func NameFor(taskID string) string {
	return taskID + ".mp4"
}

func (store *Local) BasePath() string { return store.basePath }

// PathFor returns the absolute path the named artifact is (or will be)
// stored at. Any directory components in the name are discarded.
func (store *Local) PathFor(name string) string {
	return filepath.Join(store.basePath, filepath.Base(filepath.Clean("/"+name)))
}

// PublicURLFor returns the URL path the named artifact is served from.
func (store *Local) PublicURLFor(name string) string {
	return store.publicPrefix + "/" + url.PathEscape(name)
}

// Resolve validates a user supplied artifact name and returns the path of
// the artifact. ErrInvalidName is returned for names which attempt to
// escape the storage directory, and ErrNotFound if no such artifact
// exists.
func (store *Local) Resolve(name string) (string, os.FileInfo, error) {
	if !ValidName(name) {
		return "", nil, ErrInvalidName
	}

	path := store.PathFor(name)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil, ErrNotFound
		}

		return "", nil, fmt.Errorf("failed to stat artifact %s: %w", name, err)
	}
	if !info.Mode().IsRegular() {
		return "", nil, ErrNotFound
	}

	return path, info, nil
}

// Delete removes the named artifact. Deleting an artifact which does not
// exist is not an error.
func (store *Local) Delete(name string) error {
	if !ValidName(name) {
		return ErrInvalidName
	}

	path := store.PathFor(name)
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	} else if err != nil {
		return fmt.Errorf("failed to stat artifact %s: %w", name, err)
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete artifact %s: %w", name, err)
	}

	log.Emit(logger.REMOVE, "Deleted artifact %s (%s)\n", name, humanize.Bytes(uint64(info.Size())))
	return nil
}

// ValidName reports whether the name refers to a file directly inside of
// the storage directory.
func ValidName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return false
	}

	return !strings.HasPrefix(name, ".")
}
