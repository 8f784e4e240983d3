package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"pkt.systems/pslog"

	"pkt.systems/sift"
	"pkt.systems/sift/store"
	"pkt.systems/sift/store/memstore"
	"pkt.systems/sift/store/sqlstore"
)

const (
	defaultConfigDirName  = ".sift"
	defaultConfigFileName = "sift.yaml"
)

func submain(ctx context.Context) int {
	baseLogger := pslog.LoggerFromEnv(
		pslog.WithEnvPrefix("SIFT_LOG_"),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured, MinLevel: pslog.InfoLevel}),
		pslog.WithEnvWriter(os.Stderr),
	).With("app", "sift")
	cmd := newRootCommand(baseLogger)
	ctx = withSignalCancel(ctx)
	if err := cmd.ExecuteContext(ctx); err != nil {
		if err != context.Canceled {
			fmt.Fprintf(os.Stderr, "%s\n", err)
		}
		return 1
	}
	return 0
}

func withSignalCancel(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(signals)
	}()
	return ctx
}

func newRootCommand(baseLogger pslog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "sift",
		Short:         "sift routes filtered reads through a full-text index when the whole query is index-eligible, and to the primary store otherwise",
		SilenceErrors: true,
		Example: `
  # one-shot query against a SQLite store, building the index first
  sift query article --store articles.db --schema schema.yaml --index ./index.bleve --bootstrap --filter 'status==published age>10' --sort age:desc

  # rebuild the index from scratch
  sift reindex --store articles.db --schema schema.yaml --index ./index.bleve --force

  # serve the query API over HTTP with Prometheus metrics
  sift serve --store articles.db --schema schema.yaml --index ./index.bleve --listen :8462 --metrics-listen :9091
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	persistentFlags := cmd.PersistentFlags()
	persistentFlags.StringP("config", "c", "", "path to YAML config file (defaults to $HOME/"+defaultConfigDirName+"/"+defaultConfigFileName+")")
	persistentFlags.String("store", "mem://", "primary store (mem:// or a SQLite database path)")
	persistentFlags.String("schema", "", "path to the schema YAML declaring indexed entities and fields")
	persistentFlags.String("index", "mem://", "search index location (mem:// or a directory path)")
	persistentFlags.String("log-level", "info", "log level (trace, debug, info, warn, error)")

	bindFlag := func(name string) {
		flag := persistentFlags.Lookup(name)
		if flag == nil {
			panic(fmt.Sprintf("flag %q not found", name))
		}
		if err := viper.BindPFlag(name, flag); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("SIFT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	for _, name := range []string{"config", "store", "schema", "index", "log-level"} {
		bindFlag(name)
	}

	cmd.AddCommand(newQueryCommand(baseLogger))
	cmd.AddCommand(newReindexCommand(baseLogger))
	cmd.AddCommand(newStatsCommand(baseLogger))
	cmd.AddCommand(newSchemaCommand())
	cmd.AddCommand(newServeCommand(baseLogger))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// cliLogger applies the configured log level to the base logger.
func cliLogger(baseLogger pslog.Logger) pslog.Logger {
	levelName := strings.TrimSpace(viper.GetString("log-level"))
	if levelName == "" {
		return baseLogger
	}
	if level, ok := pslog.ParseLevel(levelName); ok {
		return baseLogger.LogLevel(level)
	}
	return baseLogger
}

func loadConfigFile() (string, error) {
	cfgPath := strings.TrimSpace(viper.GetString("config"))
	explicit := cfgPath != ""

	if cfgPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			candidate := filepath.Join(home, defaultConfigDirName, defaultConfigFileName)
			if _, err := os.Stat(candidate); err == nil {
				cfgPath = candidate
			}
		}
	}
	if cfgPath == "" {
		return "", nil
	}

	expanded, err := expandPath(cfgPath)
	if err != nil {
		return "", fmt.Errorf("expand config path %q: %w", cfgPath, err)
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return "", nil
		}
		return "", fmt.Errorf("config file %q: %w", expanded, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("config file %q is a directory", expanded)
	}

	viper.SetConfigFile(expanded)
	if err := viper.ReadInConfig(); err != nil {
		return "", fmt.Errorf("read config file %q: %w", expanded, err)
	}
	return expanded, nil
}

func expandPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if len(p) == 1 {
			p = home
		} else if p[1] == '/' || p[1] == '\\' {
			p = filepath.Join(home, p[2:])
		}
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return abs, nil
}

// openStore builds the primary store from the --store value: mem:// for an
// in-memory store, anything else is treated as a SQLite database path (a
// sqlite:// prefix is accepted and stripped).
func openStore(spec string) (store.Store, error) {
	spec = strings.TrimSpace(spec)
	switch {
	case spec == "" || spec == "mem://":
		return memstore.New(), nil
	case strings.HasPrefix(spec, "sqlite://"):
		spec = strings.TrimPrefix(spec, "sqlite://")
	}
	path, err := expandPath(spec)
	if err != nil {
		return nil, fmt.Errorf("expand store path %q: %w", spec, err)
	}
	return sqlstore.New(path)
}

// openSearchStore wires the primary store, schema, and index from the bound
// flags. The returned cleanup closes both the decorator and the store.
func openSearchStore(logger pslog.Logger, bootstrap bool) (*sift.SearchStore, func(), error) {
	if _, err := loadConfigFile(); err != nil {
		return nil, nil, err
	}
	primary, err := openStore(viper.GetString("store"))
	if err != nil {
		return nil, nil, err
	}

	cfg := sift.Config{
		Store:          primary,
		SchemaPath:     strings.TrimSpace(viper.GetString("schema")),
		IndexOnStartup: bootstrap,
	}
	indexSpec := strings.TrimSpace(viper.GetString("index"))
	if indexSpec == "" || indexSpec == "mem://" {
		cfg.IndexInMemory = true
	} else {
		cfg.IndexPath, err = expandPath(indexSpec)
		if err != nil {
			primary.Close()
			return nil, nil, fmt.Errorf("expand index path %q: %w", indexSpec, err)
		}
	}

	ss, err := sift.New(cfg, sift.WithLogger(logger))
	if err != nil {
		primary.Close()
		return nil, nil, err
	}
	cleanup := func() {
		ss.Close()
		primary.Close()
	}
	return ss, cleanup, nil
}

func humanizeBytes(n int64) string {
	return strings.ReplaceAll(humanize.Bytes(uint64(n)), " ", "")
}
