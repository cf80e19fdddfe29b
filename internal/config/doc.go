// Package config provides configuration loading and validation for the
// realtime translation service. It handles YAML-based configuration with
// per-section validation and sensible defaults for tunables left unset.
package config
