// Package app wires configuration and the generation stack for the
// CLI and server entry points.
package app

import (
	"time"

	"offload/internal/config"
	"offload/internal/openai"
	"offload/internal/proposal"
)

// Overrides are values that take precedence over offload.yml, usually
// sourced from flags or OFFLOAD_ environment variables.
type Overrides struct {
	AdminPassword string
	Model         string
	BaseURL       string
}

// ResolveConfig loads the workspace config, falling back to defaults
// when no offload.yml exists, and applies overrides.
func ResolveConfig(workspace string, ov Overrides) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if ov.AdminPassword != "" {
		cfg.Admin.Password = ov.AdminPassword
	}
	if ov.Model != "" {
		cfg.Generator.Model = ov.Model
	}
	if ov.BaseURL != "" {
		cfg.Generator.BaseURL = ov.BaseURL
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewGenerator builds the live proposal generator from config. It
// fails when OPENAI_API_KEY is unset.
func NewGenerator(cfg *config.Config) (proposal.Generator, error) {
	client, err := openai.NewClient(openai.Config{
		BaseURL: cfg.Generator.BaseURL,
		Model:   cfg.Generator.Model,
		Timeout: time.Duration(cfg.Generator.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return proposal.Generator{}, err
	}
	return proposal.Generator{
		Service: client,
		Model:   client.Model(),
		Anchor: proposal.Anchor{
			MinMultiple: cfg.Generator.Anchor.MinMultiple,
			MaxMultiple: cfg.Generator.Anchor.MaxMultiple,
		},
	}, nil
}
