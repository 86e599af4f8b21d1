package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadFile decodes the YAML config at path over a copy of base. Keys absent
// from the file keep base's values; unknown keys are an error.
func LoadFile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read config %s: %w", path, err)
	}
	return decode(data, base, path)
}

func decode(data []byte, base Config, name string) (Config, error) {
	cfg := base
	// Maps decode by merging into the existing value; start from a copy so
	// base is not mutated.
	cfg.SkillScripts = make(map[string]string, len(base.SkillScripts))
	for k, v := range base.SkillScripts {
		cfg.SkillScripts[k] = v
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return base, fmt.Errorf("parse config %s: %w", name, err)
	}
	return cfg, nil
}

// FindFile returns the config file to load: explicit when set, else
// <inputDir>/courseforge.yaml if it exists, else "".
func FindFile(explicit, inputDir string) string {
	if explicit != "" {
		return explicit
	}
	if inputDir == "" {
		return ""
	}
	p := filepath.Join(inputDir, DefaultFileName)
	if fi, err := os.Stat(p); err == nil && fi.Mode().IsRegular() {
		return p
	}
	return ""
}
