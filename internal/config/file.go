package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ivlev/vconcat/internal/errs"
)

// LoadFile decodes a YAML config over the defaults table.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.New(errs.ErrConfig, "read "+path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errs.New(errs.ErrConfig, "parse "+path, err)
	}
	return cfg, nil
}
