// ABOUTME: Entry point for the Anomaly game server
// ABOUTME: Loads configuration, wires content, scripting and transport, and runs until signalled
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/anomaly-engine/anomaly/internal/config"
	"github.com/anomaly-engine/anomaly/internal/content"
	"github.com/anomaly-engine/anomaly/internal/logging"
	"github.com/anomaly-engine/anomaly/internal/script"
	"github.com/anomaly-engine/anomaly/internal/server"
	"github.com/anomaly-engine/anomaly/internal/version"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// Command line overrides; each is applied only when its flag was given
var (
	configFile string
	port       int
	name       string
	noMDNS     bool
	useTUI     bool
	logLevel   string
	logFile    string
	contentDir string
	scriptsDir string
)

var rootCmd = &cobra.Command{
	Use:   "anomaly-server",
	Short: "Anomaly game server",
	Long: `Anomaly runs Lua game logic on a fixed tick and streams sprites,
sounds and UI commands to every connected client.

Content is read from the Images, Fonts and Sounds directories and pushed to
clients when it changes. Press the reload key in any client to re-run the
script and rescan content.`,
	Version:      version.Version,
	SilenceUsage: true,
	RunE:         runServer,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&configFile, "config", "c", "", "Config file (default: anomaly.yaml if present)")
	flags.IntVarP(&port, "port", "p", 7777, "Port to listen on")
	flags.StringVar(&name, "name", "", "Server name advertised over mDNS")
	flags.BoolVar(&noMDNS, "no-mdns", false, "Disable mDNS advertisement")
	flags.BoolVar(&useTUI, "tui", false, "Show the status TUI")
	flags.StringVar(&logLevel, "log-level", "info", "Log level (trace|debug|info|warn|error)")
	flags.StringVar(&logFile, "log-file", "", "Log file path")
	flags.StringVar(&contentDir, "content", "", "Content directory holding Images, Fonts and Sounds")
	flags.StringVar(&scriptsDir, "scripts", "", "Directory holding main.lua")

	rootCmd.SetVersionTemplate(fmt.Sprintf("%s\n", version.String()))
}

// applyFlags layers explicitly given flags over the loaded configuration
func applyFlags(cmd *cobra.Command, cfg *config.Server) {
	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port = port
	}
	if flags.Changed("name") {
		cfg.Name = name
	}
	if flags.Changed("no-mdns") {
		cfg.MDNS = !noMDNS
	}
	if flags.Changed("tui") {
		cfg.TUI = useTUI
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("log-file") {
		cfg.Log.File = logFile
	}
	if flags.Changed("content") {
		cfg.Images = contentDir + "/Images"
		cfg.Fonts = contentDir + "/Fonts"
		cfg.Sounds = contentDir + "/Sounds"
	}
	if flags.Changed("scripts") {
		cfg.Scripts = scriptsDir
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	file, err := config.Load(configFile)
	if err != nil {
		return err
	}
	cfg := file.Server
	applyFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	// the TUI owns the terminal, so logs only go to the file
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

	reloadKey, _ := cfg.ReloadKeyCode()

	log.Info().
		Str("version", version.Version).
		Int("port", cfg.Port).
		Str("scripts", cfg.Scripts).
		Msg("starting Anomaly server")

	fsys := afero.NewOsFs()
	store := content.New(fsys, content.Roots{
		Images: cfg.Images,
		Fonts:  cfg.Fonts,
		Sounds: cfg.Sounds,
	})

	srv := server.New(server.Config{
		Port:      cfg.Port,
		Name:      cfg.Name,
		FrameTime: cfg.TickInterval,
		ReloadKey: reloadKey,
		Reloader: content.ReloaderConfig{
			Poll:  cfg.ContentPoll,
			Watch: cfg.WatchContent,
		},
		EnableMDNS: cfg.MDNS,
		UseTUI:     cfg.TUI,
	}, store)

	// a broken script is not fatal: the reload key retries it
	logic := script.NewLua(fsys, cfg.Scripts, srv)
	if err := logic.Load(); err != nil {
		log.Error().Err(err).Msg("script failed to load")
	}
	srv.SetCallbacks(logic)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info().Msg("server stopped")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
