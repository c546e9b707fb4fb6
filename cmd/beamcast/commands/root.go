package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "beamcast",
		Short: "beamcast - multi-output frame engine",
		Long: `beamcast drives a set of video outputs from one frame stream. Every
tick the engine takes the newest frame and delivers it to each configured
output with that output's own crop, geometric correction, edge blend and
intensity applied.

Features:
  • Windowed or fullscreen display outputs
  • Network video outputs (MJPEG over HTTP)
  • Per-output crop, warp, lens and edge-blend correction
  • Cut, dissolve, wipe and dip transitions, timed or T-bar driven
  • Built-in test pattern source
  • REST API and WebSocket status events
  • Persistent configuration`,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/beamcast/config.yaml)")
	rootCmd.PersistentFlags().Int("port", 0, "API server port (default is 8089)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	// Bind flags to viper
	viper.BindPFlag("server_port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}
