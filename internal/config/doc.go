// Package config provides configuration loading and validation for the
// speech-capture backend. It handles YAML-based configuration with struct
// validation and sensible defaults for every processing stage.
package config
