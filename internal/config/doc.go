// Package config provides configuration management for the brain decision engine.
//
// # Overview
//
// The config package uses Viper to load configuration from YAML files and
// environment variables. It provides a type-safe configuration structure with
// validation, default values, and automatic file creation.
//
// # Configuration File
//
// The configuration is stored at ~/.braind/config.yaml and is automatically
// created with sensible defaults on first use. The file structure mirrors
// the Go structs defined in this package.
//
// # Environment Variables
//
// All configuration values can be overridden using environment variables
// with the BRAIND_ prefix. Nested fields are separated by underscores.
//
// Examples:
//   - BRAIND_BRAIN_MODE=reflex
//   - BRAIND_BRAIN_ACTIONS_ESCALATE_HUMAN=true
//   - BRAIND_DREAM_ENABLED=false
//   - BRAIND_LOGGING_LEVEL=debug
//
// # Usage Example
//
//	package main
//
//	import (
//	    "log"
//	    "github.com/reservo/brain/internal/config"
//	)
//
//	func main() {
//	    cfg, err := config.Load()
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    if err := cfg.Validate(); err != nil {
//	        log.Fatal(err)
//	    }
//
//	    log.Printf("Brain mode: %s", cfg.Brain.Mode)
//	}
//
// # Security Best Practices
//
// API keys should be stored in environment variables rather than in the
// config file to prevent accidental exposure:
//
//	export BRAIND_ORACLE_PROVIDERS_OPENAI_API_KEY=sk-...
//
// # Configuration Sections
//
//   - Brain: operating mode and per-action toggles
//   - Dream: consolidation cycle parameters
//   - Oracle: inference backend configuration and confidence level mapping
//   - Data: database location
//   - Logging: log level and output file configuration
//
// # Path Expansion
//
// The package automatically expands ~ to the user's home directory in
// all path configurations, making config files portable across systems.
//
// # Thread Safety
//
// A Config is constructed once at process start and treated as immutable
// afterwards; components receive it by reference and never mutate it.
package config
