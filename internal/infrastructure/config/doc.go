// Package config handles loading and validating switchbridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Merging each accessory entry over the accessory defaults
//   - Overriding with environment variables
//   - Validation of required fields
//
// Security Considerations:
//   - MQTT passwords, the JWT secret and the InfluxDB token should be set
//     via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, acc := range cfg.Accessories {
//	    fmt.Println(acc.Name, acc.Topics.StatusSet)
//	}
package config
