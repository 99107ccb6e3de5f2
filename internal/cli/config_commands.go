// Package cli provides configuration management commands.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/lumapix/lumapix-cli/internal/api"
	"github.com/lumapix/lumapix-cli/internal/config"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage lumapix configuration",
		Long: `Configuration management commands for lumapix.

Commands:
  init    - Interactive configuration setup
  show    - Display current configuration
  set-key - Update the API key
  test    - Test API connection
  path    - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigSetKeyCmd())
	configCmd.AddCommand(newConfigTestCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

// readAPIKey prompts for an API key without echoing it. Falls back to a
// plain line read when stdin is not a terminal (piped input, tests).
func readAPIKey(prompt string) (string, error) {
	fmt.Print(prompt)
	if term.IsTerminal(int(syscall.Stdin)) {
		key, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("failed to read API key: %w", err)
		}
		return strings.TrimSpace(string(key)), nil
	}
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read API key: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long: `Interactive configuration setup for lumapix.

The configuration will be saved to ~/.config/lumapix/config

Use --force to overwrite existing configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := GetLogger()

			configPath := cfgFile
			if configPath == "" {
				var err error
				configPath, err = config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("failed to determine config path: %w", err)
				}
			}

			if !force {
				if _, err := os.Stat(configPath); err == nil {
					fmt.Printf("Configuration already exists at: %s\n", configPath)
					fmt.Println("Use --force to overwrite or run 'config show' to view current config.")
					return nil
				}
			}

			fmt.Println("Lumapix Configuration Setup")
			fmt.Println("===========================")
			fmt.Println()

			reader := bufio.NewReader(os.Stdin)

			// API Key (required)
			var apiKeyInput string
			for apiKeyInput == "" {
				key, err := readAPIKey("API Key (required): ")
				if err != nil {
					return err
				}
				apiKeyInput = key
				if apiKeyInput == "" {
					fmt.Println("  Error: API key is required")
				}
			}

			// API Base URL
			fmt.Print("API Base URL [https://app.lumapix.io]: ")
			apiURLInput, _ := reader.ReadString('\n')
			apiURLInput = strings.TrimSpace(apiURLInput)
			if apiURLInput == "" {
				apiURLInput = "https://app.lumapix.io"
			}

			// Analysis settings
			fmt.Println()
			fmt.Println("Analysis Settings (press Enter for defaults)")
			fmt.Println("--------------------------------------------")

			fmt.Print("AI provider [openai]: ")
			providerInput, _ := reader.ReadString('\n')
			providerInput = strings.TrimSpace(providerInput)
			if providerInput == "" {
				providerInput = "openai"
			}

			fmt.Print("Model (blank for provider default): ")
			modelInput, _ := reader.ReadString('\n')
			modelInput = strings.TrimSpace(modelInput)

			// Proxy settings
			fmt.Println()
			fmt.Print("Configure proxy? [y/N]: ")
			proxyInput, _ := reader.ReadString('\n')
			proxyInput = strings.TrimSpace(strings.ToLower(proxyInput))

			cfg := config.New()
			cfg.APIKey = apiKeyInput
			cfg.APIBaseURL = apiURLInput
			cfg.Analysis.Provider = providerInput
			cfg.Analysis.Model = modelInput

			if proxyInput == "y" || proxyInput == "yes" {
				fmt.Println()
				fmt.Println("Proxy Configuration")
				fmt.Println("-------------------")
				fmt.Println("Proxy modes: no-proxy, system, manual")
				fmt.Print("Proxy mode [system]: ")
				proxyModeInput, _ := reader.ReadString('\n')
				cfg.ProxyMode = strings.TrimSpace(proxyModeInput)
				if cfg.ProxyMode == "" {
					cfg.ProxyMode = "system"
				}

				if cfg.ProxyMode == "manual" {
					fmt.Print("Proxy URL (e.g. http://proxy.local:8080): ")
					proxyURLInput, _ := reader.ReadString('\n')
					cfg.ProxyURL = strings.TrimSpace(proxyURLInput)
				}
			}

			if err := config.Save(cfg, configPath); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			logger.Info().Str("path", configPath).Msg("Configuration saved")

			fmt.Println()
			fmt.Printf("✓ Configuration saved to: %s\n", configPath)
			fmt.Println()
			fmt.Println("Test your configuration with: lumapix config test")

			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")

	return cmd
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long: `Display the current configuration settings.

This command shows the merged configuration from:
  1. Configuration file (~/.config/lumapix/config)
  2. Environment variables (LUMAPIX_API_KEY, LUMAPIX_API_URL)
  3. Command-line flags (--api-key, --api-url)

Priority: flags > environment > config file > defaults`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			fmt.Println("Current Configuration")
			fmt.Println("=====================")
			fmt.Println()

			fmt.Println("API Settings:")
			fmt.Printf("  API Base URL: %s\n", cfg.APIBaseURL)
			if cfg.APIKey != "" {
				// Never print any portion of the key itself.
				fmt.Printf("  API Key:      <set (%d chars)>\n", len(cfg.APIKey))
			} else {
				fmt.Println("  API Key:      <not set>")
			}
			fmt.Println()

			fmt.Println("Analysis Settings:")
			fmt.Printf("  Provider:      %s\n", cfg.Analysis.Provider)
			if cfg.Analysis.Model != "" {
				fmt.Printf("  Model:         %s\n", cfg.Analysis.Model)
			} else {
				fmt.Println("  Model:         <provider default>")
			}
			fmt.Printf("  Poll Interval: %s\n", cfg.Analysis.PollInterval)
			fmt.Printf("  Initial Delay: %s\n", cfg.Analysis.InitialDelay)
			fmt.Printf("  Batch Timeout: %s\n", cfg.Analysis.Timeout)
			fmt.Println()

			fmt.Println("Proxy Settings:")
			fmt.Printf("  Proxy Mode: %s\n", cfg.ProxyMode)
			if cfg.ProxyURL != "" {
				fmt.Printf("  Proxy URL:  %s\n", cfg.ProxyURL)
			}
			fmt.Println()

			fmt.Println("Cache Settings:")
			fmt.Printf("  Path:        %s\n", cfg.Cache.Path)
			fmt.Printf("  Photos TTL:  %s\n", cfg.Cache.PhotosTTL)
			fmt.Printf("  Folders TTL: %s\n", cfg.Cache.FoldersTTL)
			fmt.Printf("  Status TTL:  %s\n", cfg.Cache.StatusTTL)
			fmt.Println()

			configPath := cfgFile
			if configPath == "" {
				configPath, _ = config.DefaultConfigPath()
			}
			fmt.Printf("Configuration file: %s\n", configPath)
			if _, err := os.Stat(configPath); os.IsNotExist(err) {
				fmt.Println("  (file does not exist - using defaults)")
			}

			return nil
		},
	}
}

// newConfigSetKeyCmd creates the 'config set-key' command.
func newConfigSetKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-key",
		Short: "Update the API key",
		Long: `Update the stored API key.

The key is prompted without echoing. Other settings in the configuration
file are preserved.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := cfgFile
			if configPath == "" {
				var err error
				configPath, err = config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("failed to determine config path: %w", err)
				}
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			key, err := readAPIKey("API Key: ")
			if err != nil {
				return err
			}
			if key == "" {
				return fmt.Errorf("API key cannot be empty")
			}

			cfg.APIKey = key
			if err := config.Save(cfg, configPath); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			fmt.Printf("✓ API key saved to: %s\n", configPath)
			return nil
		},
	}
}

// newConfigTestCmd creates the 'config test' command.
func newConfigTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Test API connection",
		Long: `Test the API connection with current configuration.

Use this to verify your API key and network connectivity.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := GetLogger()

			fmt.Println("Testing API Connection")
			fmt.Println("======================")
			fmt.Println()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			fmt.Printf("API URL: %s\n", cfg.APIBaseURL)
			fmt.Println("Testing connection...")
			fmt.Println()

			apiClient, err := api.NewClient(cfg)
			if err != nil {
				return fmt.Errorf("failed to create API client: %w", err)
			}

			ctx, cancel := context.WithTimeout(GetContext(), 10*time.Second)
			defer cancel()

			user, err := apiClient.GetUserProfile(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("Connection test failed")
				fmt.Println("✗ Connection FAILED")
				fmt.Printf("  Error: %v\n", err)
				return fmt.Errorf("connection test failed")
			}

			logger.Info().Msg("Connection test successful")

			fmt.Println("✓ Connection SUCCESSFUL")
			fmt.Println()
			fmt.Println("User Information:")
			fmt.Printf("  Email: %s\n", user.Email)
			fmt.Println()
			fmt.Println("Your API key is valid and the connection is working!")

			return nil
		},
	}
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Long:  `Display the path to the configuration file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := cfgFile
			if configPath == "" {
				var err error
				configPath, err = config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("failed to determine config path: %w", err)
				}
				fmt.Println("Default configuration path:")
			} else {
				fmt.Println("Configuration path (from --config flag):")
			}

			fmt.Printf("  %s\n", configPath)
			fmt.Println()

			if fileInfo, err := os.Stat(configPath); err == nil {
				fmt.Println("Status: ✓ File exists")
				fmt.Printf("Size:   %d bytes\n", fileInfo.Size())
				fmt.Printf("Modified: %s\n", fileInfo.ModTime().Format("2006-01-02 15:04:05"))
			} else {
				fmt.Println("Status: File does not exist")
				fmt.Println()
				fmt.Println("Create a configuration file with: lumapix config init")
			}

			return nil
		},
	}
}
