// Package config loads and validates the streamer's YAML configuration.
//
// Configuration is read from a YAML file with ${VAR} environment variable
// expansion, then defaults are applied for any unset optional fields.
package config
