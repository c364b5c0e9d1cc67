// Package config handles loading and parsing of configuration from YAML files
// and environment variables. It defines the gateway configuration structure
// including server settings, the service catalog, the route table, health-check
// thresholds, circuit-breaker policy, and retry policy.
package config
