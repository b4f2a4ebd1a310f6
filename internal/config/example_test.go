package config_test

import (
	"fmt"
	"log"
	"os"

	"github.com/reservo/brain/internal/config"
)

// ExampleLoad demonstrates how to load configuration from the default location.
func ExampleLoad() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	fmt.Printf("Brain mode: %s\n", cfg.Brain.Mode)
	fmt.Printf("Database: %s\n", cfg.DatabasePath())
	fmt.Printf("Dream interval: %v\n", cfg.Dream.Interval)
}

// ExampleLoadFromPath demonstrates loading config from a specific path.
func ExampleLoadFromPath() {
	cfg, err := config.LoadFromPath("/tmp/test-braind/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	fmt.Printf("Loaded from custom path\n")
	fmt.Printf("Mode: %s\n", cfg.Brain.Mode)
}

// ExampleConfig_Save demonstrates saving configuration changes.
func ExampleConfig_Save() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Modify configuration
	cfg.Brain.Mode = "conscious"
	cfg.Brain.Actions.QAAnswer = true

	// Save changes
	if err := cfg.Save(); err != nil {
		log.Fatalf("Failed to save config: %v", err)
	}

	fmt.Println("Configuration saved successfully")
}

// ExampleConfig_Validate demonstrates configuration validation.
func ExampleConfig_Validate() {
	cfg := config.Default()

	// Validate default config
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	fmt.Println("Configuration is valid")

	// Try an invalid configuration
	cfg.Dream.HallucinationRatio = 2.0
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Validation error: %v\n", err)
	}
}

// ExampleDefault demonstrates creating a config with default values.
func ExampleDefault() {
	cfg := config.Default()

	fmt.Printf("Brain mode: %s\n", cfg.Brain.Mode)
	fmt.Printf("Ollama endpoint: %s\n", cfg.Oracle.Providers["ollama"].Endpoint)
	fmt.Printf("Dream enabled: %v\n", cfg.Dream.Enabled)
	fmt.Printf("Min conversations: %d\n", cfg.Dream.MinConversations)
}

// Example_environmentVariables demonstrates how environment variables override config.
func Example_environmentVariables() {
	// Set environment variables before loading config
	os.Setenv("BRAIND_BRAIN_MODE", "reflex")
	os.Setenv("BRAIND_DREAM_ENABLED", "false")
	defer func() {
		os.Unsetenv("BRAIND_BRAIN_MODE")
		os.Unsetenv("BRAIND_DREAM_ENABLED")
	}()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Environment variables override file values
	fmt.Printf("Mode (from env): %s\n", cfg.Brain.Mode)
	fmt.Printf("Dream enabled (from env): %v\n", cfg.Dream.Enabled)
}

// Example_actionToggles demonstrates working with the per-action toggles.
func Example_actionToggles() {
	cfg := config.Default()

	// Only a conservative set of actions is enabled out of the box.
	fmt.Printf("Template customize: %v\n", cfg.Brain.Actions.TemplateCustomize)
	fmt.Printf("Escalate to human: %v\n", cfg.Brain.Actions.EscalateHuman)

	// Enable additional actions before switching to conscious mode.
	cfg.Brain.Actions.DateConfirm = true
	cfg.Brain.Actions.AddonSuggest = true
	cfg.Brain.Mode = "conscious"

	fmt.Printf("Mode: %s\n", cfg.Brain.Mode)
}

// Example_fullWorkflow demonstrates a complete configuration workflow.
func Example_fullWorkflow() {
	// 1. Load existing config or create default
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Ensure all directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("Failed to create directories: %v", err)
	}

	// 3. Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// 4. Use configuration
	fmt.Printf("Using provider: %s\n", cfg.Oracle.DefaultProvider)

	provider := cfg.Oracle.Providers[cfg.Oracle.DefaultProvider]
	fmt.Printf("Model: %s\n", provider.Model)

	// 5. Save any changes
	if err := cfg.Save(); err != nil {
		log.Fatalf("Failed to save config: %v", err)
	}

	fmt.Println("Configuration workflow complete")
}
