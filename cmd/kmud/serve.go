package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/crystal-mush/kmud/pkg/archive"
	"github.com/crystal-mush/kmud/pkg/command"
	"github.com/crystal-mush/kmud/pkg/commands"
	"github.com/crystal-mush/kmud/pkg/server"
	"github.com/spf13/cobra"
)

var serveFlags struct {
	port        int
	webPort     int
	web         bool
	driver      string
	textDir     string
	restore     string
	debug       bool
	chainDepth  int
	closeGrace  time.Duration
	inputRate   float64
	archiveEach time.Duration
}

// serveCmd runs the server until interrupted.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the server",
	Long: `Run the telnet listeners, the optional web server and the delivery
loop until SIGINT or SIGTERM.

With --restore the store, text files and config are restored from an
archive before the server starts.`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.IntVarP(&serveFlags.port, "port", "p", 0, "telnet port")
	f.IntVar(&serveFlags.webPort, "web-port", 0, "web server port")
	f.BoolVar(&serveFlags.web, "web", false, "enable the web server")
	f.StringVar(&serveFlags.driver, "store", "", "store driver: bolt or sqlite")
	f.StringVar(&serveFlags.textDir, "textdir", "", "directory of connect.txt, motd.txt, quit.txt")
	f.StringVar(&serveFlags.restore, "restore", "", "restore from this archive before starting")
	f.BoolVar(&serveFlags.debug, "debug", false, "log every command")
	f.IntVar(&serveFlags.chainDepth, "chain-depth", 0, "chained commands followed per input line")
	f.DurationVar(&serveFlags.closeGrace, "close-grace", 0, "how long a close waits for queued output")
	f.Float64Var(&serveFlags.inputRate, "input-rate", 0, "input lines per second per connection (0 = unlimited)")
	f.DurationVar(&serveFlags.archiveEach, "archive-interval", 0, "take a backup this often (0 = never)")
	rootCmd.AddCommand(serveCmd)
}

// applyServeFlags overrides cfg with the flags the user actually set.
func applyServeFlags(cmd *cobra.Command, cfg *server.Config) {
	f := cmd.Flags()
	if f.Changed("port") {
		cfg.Port = serveFlags.port
	}
	if f.Changed("web-port") {
		cfg.WebPort = serveFlags.webPort
	}
	if f.Changed("web") {
		cfg.WebEnabled = serveFlags.web
	}
	if f.Changed("store") {
		cfg.StoreDriver = serveFlags.driver
	}
	if f.Changed("textdir") {
		cfg.TextDir = serveFlags.textDir
	}
	if f.Changed("debug") {
		cfg.Debug = serveFlags.debug
		server.SetDebug(cfg.Debug)
	}
	if f.Changed("chain-depth") {
		cfg.ChainDepth = serveFlags.chainDepth
	}
	if f.Changed("close-grace") {
		cfg.CloseGrace = serveFlags.closeGrace
	}
	if f.Changed("input-rate") {
		cfg.InputRate = serveFlags.inputRate
	}
	if f.Changed("archive-interval") {
		cfg.ArchiveInterval = serveFlags.archiveEach
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyServeFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	log.Printf("Welcome to %s", server.VersionString())

	// Broken specs are fatal before anything binds a port.
	reg, err := buildRegistry()
	if err != nil {
		return err
	}

	if serveFlags.restore != "" {
		if err := restoreArchive(cfg, serveFlags.restore, false); err != nil {
			return err
		}
	}

	st, err := server.OpenStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.NewServer(cfg, configPath, st, reg)
	if err := srv.Run(ctx); err != nil {
		return err
	}
	log.Printf("Shutdown complete")
	return nil
}

func restoreArchive(cfg server.Config, path string, overwrite bool) error {
	manifest, err := archive.ReadManifest(path)
	if err != nil {
		return err
	}
	dest := cfg.BoltPath
	if manifest.Driver == "sqlite" {
		dest = cfg.SQLitePath
	}
	log.Printf("Restoring from archive: %s (%s store, taken %s)", path, manifest.Driver, manifest.Timestamp)
	res, err := archive.Restore(archive.RestoreParams{
		ArchivePath: path,
		StoreDest:   dest,
		TextDest:    cfg.TextDir,
		ConfDest:    configPath,
		Overwrite:   overwrite,
	})
	if err != nil {
		return err
	}
	for _, w := range res.Warnings {
		log.Printf("WARNING: %s", w)
	}
	if manifest.Driver != cfg.StoreDriver {
		log.Printf("WARNING: archive holds a %s store but store_driver is %s", manifest.Driver, cfg.StoreDriver)
	}
	log.Printf("Restore complete: %d files restored", res.FilesRestored)
	return nil
}

// buildRegistry compiles every command spec, returning the first failure
// instead of panicking.
func buildRegistry() (*command.Registry, error) {
	reg := command.NewRegistry()
	for _, f := range commands.All() {
		if err := reg.Register(f); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
