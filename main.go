// ABOUTME: Entry point for the Anomaly client
// ABOUTME: Connects to a server (or finds one over mDNS) and runs the terminal or headless frontend
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anomaly-engine/anomaly/internal/app"
	"github.com/anomaly-engine/anomaly/internal/config"
	"github.com/anomaly-engine/anomaly/internal/logging"
	"github.com/anomaly-engine/anomaly/internal/transport"
	"github.com/anomaly-engine/anomaly/internal/ui"
	"github.com/anomaly-engine/anomaly/internal/version"
	"github.com/anomaly-engine/anomaly/pkg/audio/output"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const audioBuffer = 50 * time.Millisecond

var (
	configFile string
	serverAddr string
	touch      bool
	volume     int
	noAudio    bool
	noTUI      bool
	logLevel   string
	logFile    string
)

var rootCmd = &cobra.Command{
	Use:   "anomaly",
	Short: "Anomaly client",
	Long: `Connects to an Anomaly server and shows what it draws.

Without --server the client browses the local network over mDNS and joins
the first server it finds.`,
	Version:      version.Version,
	SilenceUsage: true,
	RunE:         runClient,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&configFile, "config", "c", "", "Config file (default: anomaly.yaml if present)")
	flags.StringVarP(&serverAddr, "server", "s", "", "Server address, host:port or ws:// URL (skip mDNS)")
	flags.BoolVar(&touch, "touch", false, "Report input as touch instead of pointer")
	flags.IntVar(&volume, "volume", 100, "Master volume 0-100")
	flags.BoolVar(&noAudio, "no-audio", false, "Disable sound output")
	flags.BoolVar(&noTUI, "no-tui", false, "Disable the terminal UI, use streaming logs instead")
	flags.StringVar(&logLevel, "log-level", "info", "Log level (trace|debug|info|warn|error)")
	flags.StringVar(&logFile, "log-file", "", "Log file path")

	rootCmd.SetVersionTemplate(fmt.Sprintf("%s\n", version.String()))
}

func applyFlags(cmd *cobra.Command, cfg *config.Client) {
	flags := cmd.Flags()
	if flags.Changed("server") {
		cfg.Server = serverAddr
	}
	if flags.Changed("touch") {
		cfg.Touch = touch
	}
	if flags.Changed("volume") {
		cfg.Volume = volume
	}
	if flags.Changed("no-audio") {
		cfg.Audio = !noAudio
	}
	if flags.Changed("no-tui") {
		cfg.TUI = !noTUI
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("log-file") {
		cfg.Log.File = logFile
	}
}

func runClient(cmd *cobra.Command, args []string) error {
	file, err := config.Load(configFile)
	if err != nil {
		return err
	}
	cfg := file.Client
	applyFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	// TUI mode: log only to file
	closer, err := logging.Setup(logging.Config{
		Level:   cfg.Log.Level,
		File:    cfg.Log.File,
		Console: !cfg.TUI,
		Pretty:  true,
		Output:  os.Stderr,
	})
	if err != nil {
		return err
	}
	defer closer.Close()

	var out output.Output
	if cfg.Audio {
		out = output.NewOto(audioBuffer)
	} else {
		// keeps the mixer draining at device rate so voices still finish
		out = output.NewNull()
	}
	out.SetVolume(cfg.Volume)

	var frontend app.Frontend
	var term *ui.Terminal
	if cfg.TUI {
		term = ui.NewTerminal(cfg.Volume, out.SetVolume)
		frontend = term
	} else {
		log.Info().Str("version", version.Version).Msg("starting Anomaly client")
		frontend = app.NewHeadless()
	}

	dial := transport.DefaultDialConfig()
	dial.Retries = cfg.Retries

	client := app.New(app.Config{
		ServerAddr:       cfg.Server,
		Touch:            cfg.Touch,
		FrameInterval:    cfg.FrameInterval,
		Dial:             dial,
		DiscoveryTimeout: cfg.Discovery,
		OnStateChange: func(s app.State) {
			if s.Connected {
				log.Info().Str("server", s.Server).Int("slot", s.Slot).Msg("connected")
			} else {
				log.Info().Str("server", s.Server).Msg("disconnected")
			}
			if term != nil {
				connected := s.Connected
				term.SetStatus(ui.StatusMsg{Connected: &connected, ServerName: s.Server, Slot: s.Slot})
			}
		},
	}, frontend, out)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if term == nil {
		return finish(client.Run(ctx))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	clientErr := make(chan error, 1)
	go func() {
		err := client.Run(ctx)
		term.Quit()
		clientErr <- err
	}()
	go statsUpdateLoop(ctx, client, term)

	if err := term.Run(); err != nil {
		log.Error().Err(err).Msg("terminal UI failed")
	}
	cancel()
	return finish(<-clientErr)
}

// finish turns a server-side disconnect into a clean exit with a message
func finish(err error) error {
	if errors.Is(err, app.ErrServerClosed) {
		fmt.Fprintln(os.Stderr, "server closed the connection")
		return nil
	}
	return err
}

// statsUpdateLoop periodically updates the TUI with receive statistics
func statsUpdateLoop(ctx context.Context, client *app.Client, term *ui.Terminal) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var lastDropped uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := client.Stats()
			if stats.Dropped != lastDropped {
				lastDropped = stats.Dropped
				term.SetStatus(ui.StatusMsg{Dropped: stats.Dropped})
			}
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
