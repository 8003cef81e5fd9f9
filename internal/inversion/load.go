package inversion

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// DecodeFile reads path into v, as YAML for .yaml/.yml and JSON otherwise.
func DecodeFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "inversion: read %s", path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, v); err != nil {
			return eris.Wrapf(err, "inversion: decode yaml %s", path)
		}
	default:
		if err := json.Unmarshal(data, v); err != nil {
			return eris.Wrapf(err, "inversion: decode json %s", path)
		}
	}
	return nil
}

// LoadResult reads a raw inversion result and classifies it.
func LoadResult(path string) (Result, error) {
	var raw Raw
	if err := DecodeFile(path, &raw); err != nil {
		return nil, err
	}
	return Classify(&raw)
}

// LoadEvent reads the event description.
func LoadEvent(path string) (Event, error) {
	var ev Event
	if err := DecodeFile(path, &ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// FindInput returns the first of <dir>/<name>.json, .yaml or .yml that exists.
func FindInput(dir, name string) (string, error) {
	for _, ext := range []string{".json", ".yaml", ".yml"} {
		p := filepath.Join(dir, name+ext)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", eris.Errorf("inversion: no %s.{json,yaml,yml} in %s", name, dir)
}
