// Package config handles loading and validating Tuya relay configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// The loaded *Config is treated as immutable after Load returns. Components
// receive the sections they need (catalog, cloud, websocket) explicitly;
// nothing reads configuration from package-level state.
//
// Security Considerations:
//   - Tuya API secrets should be set via TUYARELAY_CLOUD_API_SECRET
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Address())
package config
