package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate runs struct-tag validation over cfg and additional cross-field
// checks that don't express cleanly as tags.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.Limits.HotLimit > cfg.Limits.ProjectSizeLimit {
		return fmt.Errorf("hot_limit (%d) cannot exceed project_size_limit (%d)",
			cfg.Limits.HotLimit, cfg.Limits.ProjectSizeLimit)
	}

	return nil
}
