package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/strandlight/beamcast/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage beamcast configuration",
	Long:  `View and manage beamcast configuration settings.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current beamcast configuration.`,
	Example: `  # Show configuration as YAML (default)
  beamcast config show

  # Show configuration as JSON
  beamcast config show --format json`,
	RunE: runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set a configuration value",
	Long: `Set a specific configuration value.

Supported keys: server_port, log_level, engine.target_fps.
Outputs and looks are edited in the config file or over the API.`,
	Example: `  # Set API server port
  beamcast config set server_port 9090

  # Set log level
  beamcast config set log_level debug

  # Set the engine frame rate
  beamcast config set engine.target_fps 59.94`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Get a configuration value",
	Long:  `Get a specific configuration value.`,
	Example: `  # Get API server port
  beamcast config get server_port

  # Get the engine frame rate
  beamcast config get engine.target_fps`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigGet,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Long:  `Display the path to the configuration file.`,
	RunE:  runConfigPath,
}

var formatFlag string

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configPathCmd)

	configShowCmd.Flags().StringVarP(&formatFlag, "format", "f", "yaml", "output format (yaml or json)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cfg := configMgr.Get()

	switch formatFlag {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(cfg)
	case "yaml":
		encoder := yaml.NewEncoder(os.Stdout)
		encoder.SetIndent(2)
		return encoder.Encode(cfg)
	default:
		return fmt.Errorf("unsupported format: %s (use 'yaml' or 'json')", formatFlag)
	}
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	value := args[1]

	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch key {
	case "server_port":
		var port int
		if _, err := fmt.Sscanf(value, "%d", &port); err != nil {
			return fmt.Errorf("invalid port number: %s", value)
		}
		if err := configMgr.SetServerPort(port); err != nil {
			return err
		}
	case "log_level":
		validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
		if !validLevels[value] {
			return fmt.Errorf("invalid log level: %s (use: debug, info, warn, error)", value)
		}
		if err := configMgr.SetLogLevel(value); err != nil {
			return err
		}
	case "engine.target_fps":
		var fps float64
		if _, err := fmt.Sscanf(value, "%g", &fps); err != nil {
			return fmt.Errorf("invalid frame rate: %s", value)
		}
		if err := configMgr.SetTargetFPS(fps); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown configuration key: %s (use: server_port, log_level, engine.target_fps)", key)
	}

	fmt.Printf("Configuration updated: %s = %s\n", key, value)
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch key {
	case "server_port":
		fmt.Println(configMgr.ServerPort())
	case "log_level":
		fmt.Println(configMgr.LogLevel())
	case "engine.target_fps":
		fmt.Println(configMgr.Get().Engine.TargetFPS)
	default:
		return fmt.Errorf("unknown configuration key: %s (use: server_port, log_level, engine.target_fps)", key)
	}
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Println(configMgr.ConfigPath())
	return nil
}
