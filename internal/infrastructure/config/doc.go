// Package config handles loading and validating academia-core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Loading a local .env file for development
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Signing secrets should be set via environment variables
//   - Access and refresh tokens use distinct secrets; configuring the same
//     value for both is rejected
//   - A missing secret prevents startup rather than failing per request
//
// Configuration is loaded once at startup and treated as immutable afterwards.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	tokens, err := auth.NewTokenService(cfg.TokenConfig())
package config
