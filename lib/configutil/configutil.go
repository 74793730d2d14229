package configutil

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

// localName derives the overlay filename next to a config file:
// config.json5 -> config.local.json5. the overlay holds per-machine
// values that never get committed.
func localName(name string) string {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + ".local" + ext
}

// readLayer unmarshals one json5 file into out, reporting whether the
// file existed at all.
func readLayer[T any](path string, out *T) (bool, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(raw) == 0 {
		return true, nil
	}
	return true, json5.Unmarshal(raw, out)
}

// ReadConfig loads a json5 configuration file and, when present, a
// `<name>.local.<ext>` overlay beside it. overlay values win. when
// neither file exists the error is os.ErrNotExist, so callers can
// treat a missing config as a distinct condition.
func ReadConfig[T any](name string) (T, error) {
	var out T

	baseFound, err := readLayer(name, &out)
	if err != nil {
		return out, err
	}

	overlayPath := localName(name)
	var overlay T
	overlayFound, err := readLayer(overlayPath, &overlay)
	if err != nil {
		return out, err
	}
	if overlayFound {
		err = mergo.Merge(&out, overlay, mergo.WithOverride)
		if err != nil {
			return out, err
		}
		slog.Info("applied local config overlay", "file", overlayPath)
	}

	if !baseFound && !overlayFound {
		return out, os.ErrNotExist
	}
	return out, nil
}

// ReadRecursively walks from the working directory up toward the
// filesystem root and reads the first directory containing name.
// lets tests and tools run from any subdirectory of the checkout.
func ReadRecursively[T any](name string) (T, error) {
	var zero T

	dir, err := os.Getwd()
	if err != nil {
		return zero, err
	}
	for {
		config, err := ReadConfig[T](filepath.Join(dir, name))
		if err == nil {
			return config, nil
		}
		if !os.IsNotExist(err) {
			return zero, err
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return zero, os.ErrNotExist
		}
		dir = parent
	}
}
