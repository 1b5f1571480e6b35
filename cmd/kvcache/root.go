package main

import (
	"context"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mattn/go-isatty"
	"github.com/shopmonkeyus/go-kvcache/config"
	"github.com/shopmonkeyus/go-kvcache/kv"
	"github.com/shopmonkeyus/go-kvcache/logger"
	"github.com/spf13/cobra"
)

type rootCommand struct {
	cmd    *cobra.Command
	cfg    *config.Config
	logger logger.Logger

	envFile    string
	storeURL   string
	mongoURL   string
	database   string
	collection string
	ttl        time.Duration
	logLevel   string
	json       bool
	flush      bool
}

func newRootCommand() *cobra.Command {
	root := &rootCommand{}
	root.cmd = &cobra.Command{
		Use:           "kvcache",
		Short:         "Instrumented key-value cache, fetch cache and document query tool",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return root.setup(cmd)
		},
	}
	flags := root.cmd.PersistentFlags()
	flags.StringVar(&root.envFile, "env-file", "", "load settings from an env file")
	flags.StringVar(&root.storeURL, "store", "", "store url: memory://, redis://host:port/db, memcache://host:port, nats://host:port/bucket")
	flags.StringVar(&root.mongoURL, "mongo", "", "mongo connection uri")
	flags.StringVar(&root.database, "database", "", "mongo database")
	flags.StringVar(&root.collection, "collection", "", "mongo collection")
	flags.DurationVar(&root.ttl, "ttl", 0, "lifetime of fetched pages")
	flags.StringVar(&root.logLevel, "log-level", "", "trace, debug, info, warn, error or none")
	flags.BoolVar(&root.json, "json", false, "log as json")
	flags.BoolVar(&root.flush, "flush", false, "empty the store before running")

	root.cmd.AddCommand(
		storeCommand(root),
		getCommand(root),
		replayCommand(root),
		callsCommand(root),
		fetchCommand(root),
		docsCommand(root),
		envCommand(root),
	)
	return root.cmd
}

// setup loads the configuration, applies flag overrides and creates the logger.
func (r *rootCommand) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(r.envFile)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("store") {
		cfg.StoreURL = r.storeURL
	}
	if flags.Changed("mongo") {
		cfg.MongoURL = r.mongoURL
	}
	if flags.Changed("database") {
		cfg.Database = r.database
	}
	if flags.Changed("collection") {
		cfg.Collection = r.collection
	}
	if flags.Changed("ttl") {
		if r.ttl <= 0 {
			return errors.Wrapf(kv.ErrInvalidTTL, "--ttl %v", r.ttl)
		}
		cfg.FetchTTL = r.ttl
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = r.logLevel
	}
	level, ok := logger.ParseLevel(cfg.LogLevel)
	if !ok {
		return errors.Newf("invalid log level %q", cfg.LogLevel)
	}
	switch {
	case r.json:
		r.logger = logger.NewJSONLogger(level)
	case isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()):
		r.logger = logger.NewConsoleLogger(level)
	default:
		r.logger = logger.NewPlainConsoleLogger(level)
	}
	r.cfg = cfg
	return nil
}

// openStore opens the configured store. The caller must close it.
func (r *rootCommand) openStore(ctx context.Context) (kv.Store, error) {
	return kv.Open(ctx, r.logger, r.cfg.StoreURL)
}
