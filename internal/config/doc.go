// Package config provides configuration loading and validation for the voice
// transcription bot. It handles YAML-based configuration with struct validation
// and environment-variable overrides for secrets and endpoints.
package config
