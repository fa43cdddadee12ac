// Package config loads and validates Gray Logic Discovery configuration.
//
// Configuration is layered: hardcoded defaults, then a YAML file, then
// GRAYLOGIC_* environment variable overrides. Load returns a validated
// *Config or an error describing every problem found.
package config
