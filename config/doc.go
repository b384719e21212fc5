// Package config provides configuration loading and validation for the OSS
// client and the ossctl command.
//
// The package handles YAML configuration files, environment variables, and CLI flags
// with automatic merging and validation using go-playground/validator.
//
// # Configuration Precedence
//
// Values are loaded in this order (later sources override earlier ones):
//
//  1. Default values
//  2. Configuration file(s) - multiple files merged left-to-right
//  3. Environment variables (OSS_ prefix)
//  4. CLI flags
//
// Without explicit files, oss.yaml is looked up in the working directory
// and then in $HOME/.oss.
//
// # Usage
//
//	cfg, err := config.Load([]string{"oss.yaml"}, cmd.Flags())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Store in context for subcommands
//	ctx = config.WithContext(ctx, cfg)
//
//	// Retrieve later
//	cfg, err = config.FromContext(ctx)
//
// # Environment Variables
//
// All config keys map to environment variables with OSS_ prefix:
//   - region → OSS_REGION
//   - retry.max_attempts → OSS_RETRY_MAX_ATTEMPTS
//   - checkpoint.dsn → OSS_CHECKPOINT_DSN
//
// # Validation
//
// Configuration is validated using struct tags:
//   - signature_version must be v1 or v4
//   - retry.backoff must be fixed, full_jitter or equal_jitter
//   - retry.max_backoff must not be below retry.base_delay
//   - checkpoint.type must be sqlite or postgres
//   - Log level must be debug, info, warn, or error
package config
