package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	flag "github.com/spf13/pflag"

	"swarmcal/internal/config"
	"swarmcal/internal/foursquare"
	appLog "swarmcal/internal/log"
	"swarmcal/internal/pipeline"
)

const version = "0.1.0"

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	all        bool
	kind       string
	verbose    int
}

func main() {
	os.Exit(run())
}

func run() int {
	flags, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	kind, err := config.ParseKind(flags.kind)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	if flags.verbose > 0 {
		appLog.SetLevel(appLog.LevelDebug)
	}
	defer appLog.Sync()

	appLog.Debug("swarmcal starting", "version", version)

	conf, err := config.Load(flags.configPath)
	if err != nil {
		if errors.Is(err, config.ErrNewConfig) {
			appLog.Info("created default config; edit it and run again", "config_path", flags.configPath)
			return 1
		}
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		return 1
	}

	mode := foursquare.ModeRecent
	if flags.all {
		mode = foursquare.ModeAll
	}

	appLog.Debug("effective config",
		"config_path", flags.configPath,
		"kind", string(kind),
		"mode", string(mode),
		"base_url", conf.Foursquare.BaseURL,
		"page_size", conf.Foursquare.PageSize,
		"max_checkins", conf.Foursquare.MaxCheckins,
		"ics_path", conf.Local.ICSPath,
		"kml_path", conf.Local.KMLPath,
		"caldav_calendar", conf.CalDAV.CalendarName,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = pipeline.Run(ctx, conf, pipeline.Options{
		Mode:  mode,
		Kind:  kind,
		Trace: flags.verbose > 1,
	})
	if err != nil {
		appLog.Error("run failed", err, "kind", string(kind), "mode", string(mode))
		return 1
	}
	return 0
}

func parseFlags(args []string) (flagConfig, error) {
	var cfg flagConfig

	fs := flag.NewFlagSet("swarmcal", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Makes a calendar from your Foursquare/Swarm checkins.")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Usage: swarmcal [flags]")
		fs.PrintDefaults()
	}

	fs.StringVarP(&cfg.configPath, "config", "c", "config.yaml", "Path to config file")
	fs.BoolVar(&cfg.all, "all", false, "Fetch all checkins, not only the most recent")
	fs.StringVarP(&cfg.kind, "kind", "k", string(config.KindICS), "Output kind: "+kindList())
	fs.CountVarP(&cfg.verbose, "verbose", "v", "-v for debug output; -vv to also trace API requests")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if fs.NArg() > 0 {
		return cfg, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	return cfg, nil
}

func kindList() string {
	names := make([]string, len(config.Kinds))
	for i, k := range config.Kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}
