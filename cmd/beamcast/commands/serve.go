package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/strandlight/beamcast/internal/api"
	"github.com/strandlight/beamcast/internal/config"
	"github.com/strandlight/beamcast/internal/display"
	"github.com/strandlight/beamcast/internal/engine"
	"github.com/strandlight/beamcast/internal/logger"
	"github.com/strandlight/beamcast/internal/network"
	"github.com/strandlight/beamcast/internal/platform"
	"github.com/strandlight/beamcast/internal/sink"
	"github.com/strandlight/beamcast/internal/source"
	"github.com/strandlight/beamcast/internal/vnet"
)

const shutdownTimeout = 3 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the beamcast engine",
	Long: `Start the frame engine with the configured outputs and the control API.

Outputs come from the config file. Each display output opens its window,
each network output starts its video sender, and the engine fans every
frame out to all of them until interrupted.`,
	Example: `  # Start with the default config
  beamcast serve

  # Start with the API on a custom port
  beamcast serve --port 9090

  # Start with a specific config file
  beamcast serve --config /path/to/config.yaml

  # Start with debug logging
  beamcast serve --log-level debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	fmt.Println("beamcast - multi-output frame engine")
	fmt.Println("====================================")

	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to initialize config manager: %w", err)
	}

	// Override port from flag if provided
	if viper.IsSet("server_port") {
		if port := viper.GetInt("server_port"); port > 0 {
			if err := configMgr.SetServerPort(port); err != nil {
				return err
			}
		}
	}

	// Override log level from flag if provided
	if viper.IsSet("log_level") {
		if level := viper.GetString("log_level"); level != "" {
			if err := configMgr.SetLogLevel(level); err != nil {
				return err
			}
		}
	}

	cfg := configMgr.Get()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Init(cfg.LogLevel, cfg.LogPretty)
	log := logger.WithComponent("serve")
	log.Info().Str("path", configMgr.ConfigPath()).Msg("Configuration loaded")

	eng := engine.New(cfg.Engine.RingCapacity, cfg.Engine.Width, cfg.Engine.Height)
	if err := eng.SetTargetFrameRate(cfg.Engine.TargetFPS); err != nil {
		return fmt.Errorf("invalid target frame rate: %w", err)
	}

	var registry *vnet.Registry
	for _, oc := range cfg.Outputs {
		o, err := buildOutput(oc, eng.OnStatus)
		if err != nil {
			return err
		}
		applyLook(o, oc)
		if err := eng.AddOutput(o); err != nil {
			return err
		}
		if oc.Kind == config.KindStream && registry == nil {
			if registry, err = vnet.Open(); err != nil {
				return fmt.Errorf("video network layer: %w", err)
			}
		}
	}

	if err := eng.StartAll(); err != nil {
		log.Warn().Err(err).Msg("Not all outputs started; continuing with the rest")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engineDone := make(chan error, 1)
	go func() {
		engineDone <- eng.Run(ctx)
	}()

	if cfg.Source.Enabled {
		pat, err := source.ParsePattern(cfg.Source.Pattern)
		if err != nil {
			return err
		}
		gen := source.NewGenerator(eng.Pool(), cfg.Engine.Width, cfg.Engine.Height, cfg.Source.FPS, pat, cfg.Source.Label)
		go runSource(ctx, eng, gen)
		log.Info().
			Str("pattern", pat.String()).
			Str("rate", gen.Rate().String()).
			Msg("Test pattern source started")
	}

	server := api.NewServer(eng, configMgr, registry)
	go func() {
		if err := server.Start(fmt.Sprintf(":%d", cfg.ServerPort)); err != nil {
			log.Error().Err(err).Msg("API server error")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	log.Info().
		Int("port", cfg.ServerPort).
		Int("outputs", len(cfg.Outputs)).
		Msg("beamcast is running, press Ctrl+C to stop")

	<-sigChan

	log.Info().Msg("Shutting down")
	cancel()
	<-engineDone

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("API shutdown incomplete")
	}

	eng.StopAll()
	if registry != nil {
		registry.Shutdown()
	}
	platform.Releases.Drain()
	return nil
}

// runSource pushes pattern frames at the generator's own rate until the
// context ends. The engine tick decides what actually goes out.
func runSource(ctx context.Context, eng *engine.Engine, gen *source.Generator) {
	ticker := time.NewTicker(gen.Rate().Interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			eng.Push(gen.Next(now))
		}
	}
}

func buildOutput(oc config.OutputConfig, onStatus sink.StatusFunc) (sink.Output, error) {
	switch oc.Kind {
	case config.KindDisplay:
		return display.NewDisplayOutput(oc.ID, display.Config{
			DisplayID:  oc.Display.DisplayID,
			Fullscreen: oc.Display.Fullscreen,
			VSync:      oc.Display.VSync,
			Label:      oc.Name,
			Width:      oc.Display.Width,
			Height:     oc.Display.Height,
		}, onStatus), nil
	case config.KindStream:
		clock := true
		if oc.Stream.ClockVideo != nil {
			clock = *oc.Stream.ClockVideo
		}
		return network.NewStreamOutput(oc.ID, network.Config{
			SourceName:       oc.Name,
			ListenAddr:       oc.Stream.Listen,
			NetworkInterface: oc.Stream.Interface,
			Groups:           strings.Join(oc.Stream.Groups, ","),
			ClockVideo:       clock,
			QueueDepth:       oc.Stream.QueueDepth,
			LegacyMode:       oc.Stream.Legacy,
			Width:            oc.Stream.Width,
			Height:           oc.Stream.Height,
		}, onStatus), nil
	default:
		return nil, fmt.Errorf("output %d: unknown kind %q", oc.ID, oc.Kind)
	}
}

// applyLook sets the configured startup look; unset fields keep the
// neutral defaults.
func applyLook(o sink.Output, oc config.OutputConfig) {
	if oc.Crop != nil {
		o.SetCrop(*oc.Crop)
	}
	if oc.Correction != nil {
		o.SetCorrection(*oc.Correction)
	}
	if oc.Intensity != nil {
		o.SetIntensity(*oc.Intensity)
	}
}
