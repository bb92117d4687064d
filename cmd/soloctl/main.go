// Package main provides the soloctl binary, a command line front end for
// inspecting and editing singleton content.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/oriumgames/solo"
	"github.com/oriumgames/solo/content"
	"github.com/oriumgames/solo/store/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

const (
	BuildTime = "dev"
	appName   = "soloctl"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	contentDir string
	storePath  string
	logLevel   string
}

func rootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Manage singleton content",
		Long: `soloctl inspects and edits the singleton content of a project.

Every singleton type has at most one main instance. soloctl lists the
types and their mains, moves the main flag between documents, bakes the
mains into a table for packaging and follows content edits live.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load .env: %w", err)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file path (TOML)")
	cmd.PersistentFlags().StringVar(&opts.contentDir, "content", "", "Content directory (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.storePath, "store", "", "Authoring store path (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		typesCmd(&opts),
		mainsCmd(&opts),
		electCmd(&opts, true),
		electCmd(&opts, false),
		bakeCmd(&opts),
		resolveCmd(&opts),
		watchCmd(&opts),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, solo.Version, BuildTime)
			},
		},
	)
	return cmd
}

// session is an opened authoring environment.
type session struct {
	cfg      solo.Config
	logger   *slog.Logger
	store    *sqlite.Store
	manager  *solo.Manager
	dir      *content.Dir
	importer *content.Importer
	watcher  *content.Watcher
}

func loadConfig(opts *options) (solo.Config, *slog.Logger, error) {
	cfg, err := solo.LoadConfig(opts.configPath)
	if err != nil {
		return solo.Config{}, nil, err
	}
	if opts.contentDir != "" {
		cfg.ContentDir = opts.contentDir
	}
	if opts.storePath != "" {
		cfg.StorePath = opts.storePath
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return solo.Config{}, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// open builds an authoring session and imports all content.
func open(opts *options, watch bool) (*session, error) {
	cfg, logger, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	registry := solo.NewRegistry()
	if err := cfg.RegisterTypes(registry); err != nil {
		return nil, err
	}

	store, err := sqlite.Open(cfg.StorePath, logger)
	if err != nil {
		return nil, err
	}

	manager, err := solo.NewBuilder().
		Config(cfg).
		Phase(solo.Authoring).
		Registry(registry).
		Store(store).
		Logger(logger).
		Metrics(prometheus.NewRegistry(), cfg.MetricsNamespace).
		Init()
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	store.Bind(manager.Catalog())

	dir, err := content.NewDir(cfg.ContentDir, cfg.AssetPatterns, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	s := &session{cfg: cfg, logger: logger, store: store, manager: manager, dir: dir}
	if watch {
		s.watcher, err = content.NewWatcher(dir, cfg.Debounce(), logger)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
	}
	s.importer = content.NewImporter(dir, manager, s.watcher, logger)
	if _, err := s.importer.ImportAll(); err != nil {
		logger.Warn("solo: some documents failed to import", "error", err)
	}
	return s, nil
}

func (s *session) Close() {
	s.manager.Shutdown()
	if s.watcher != nil {
		_ = s.watcher.Stop()
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn("solo: failed to close store", "error", err)
	}
}

func typesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List registered singleton types",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(opts)
			if err != nil {
				return err
			}
			registry := solo.NewRegistry()
			if err := cfg.RegisterTypes(registry); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, category := range []solo.Category{solo.DataAsset, solo.LiveObject} {
				for _, d := range registry.Descriptors(category) {
					fmt.Fprintf(out, "%-5s %s include_unreferenced=%t persistent=%t\n",
						d.Category, d.Key, d.IncludeUnreferenced, d.Persistent)
				}
			}
			return nil
		},
	}
}

func mainsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "mains",
		Short: "List the main instance of every singleton type",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open(opts, false)
			if err != nil {
				return err
			}
			defer s.Close()

			out := cmd.OutOrStdout()
			for _, category := range []solo.Category{solo.DataAsset, solo.LiveObject} {
				for _, d := range s.manager.Registry().Descriptors(category) {
					main, _ := s.manager.Elector().Main(d)
					candidates := len(s.manager.Catalog().Candidates(d.Key))
					if main == nil {
						fmt.Fprintf(out, "%s\t-\t(%d candidates)\n", d.Key, candidates)
						continue
					}
					path, _ := s.dir.PathOf(main.ObjectID())
					fmt.Fprintf(out, "%s\t%s\t%s\t(%d candidates)\n", d.Key, main.ObjectID(), path, candidates)
				}
			}
			return nil
		},
	}
}

func electCmd(opts *options, makeMain bool) *cobra.Command {
	use, short := "elect <id>", "Make a document the main instance of its type"
	if !makeMain {
		use, short = "demote <id>", "Clear the main flag of a document"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open(opts, false)
			if err != nil {
				return err
			}
			defer s.Close()

			obj, ok := s.manager.Catalog().Resolve(args[0])
			if !ok {
				return fmt.Errorf("no document with id %q", args[0])
			}
			c, ok := obj.(solo.Candidate)
			if !ok {
				return fmt.Errorf("object %q is not a singleton candidate", args[0])
			}
			return s.manager.Elector().ElectObject(c, makeMain)
		},
	}
}

func bakeCmd(opts *options) *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "bake",
		Short: "Package the content with a baked singleton table",
		Long: `bake writes the baked table, forces it and the main data assets into the
shipped set, and copies the shipped documents and the table to the output
directory. The table and the shipped set additions are removed afterwards.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open(opts, false)
			if err != nil {
				return err
			}
			defer s.Close()

			manifest := content.NewManifest(filepath.Join(s.cfg.ContentDir, s.cfg.ShippedManifest))
			packager := s.manager.Packager(s.dir, manifest, solo.WithTableName(s.cfg.TableName))

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return packager.Run(ctx, func(ctx context.Context) error {
				return copyShipped(ctx, s, manifest, packager.Pending(), outDir)
			})
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", "build", "Output directory")
	return cmd
}

// copyShipped is the packaging step: it copies the baked table, the shipped
// documents and the templates the table references into outDir.
func copyShipped(ctx context.Context, s *session, manifest *content.Manifest, table, outDir string) error {
	ids, err := manifest.Objects()
	if err != nil {
		return err
	}
	out, err := content.NewDir(outDir, s.cfg.AssetPatterns, s.logger)
	if err != nil {
		return err
	}

	data, err := s.dir.Read(table)
	if err != nil {
		return fmt.Errorf("read baked table: %w", err)
	}
	if err := out.Write(s.cfg.TableName, data); err != nil {
		return err
	}
	baked, err := solo.ParseBakedTable(data)
	if err != nil {
		return err
	}
	for _, key := range baked.Keys() {
		ref, _ := baked.Lookup(key)
		ids = append(ids, ref.ID)
	}

	copied := 0
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, ok := s.dir.PathOf(id)
		if !ok {
			continue
		}
		data, err := s.dir.Read(rel)
		if err != nil {
			return err
		}
		if err := out.Write(rel, data); err != nil {
			return err
		}
		copied++
	}
	s.logger.Info("solo: content packaged", "out", outDir, "documents", copied, "table", table)
	return nil
}

func resolveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <dir> <key>",
		Short: "Resolve a singleton from packaged content",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(opts)
			if err != nil {
				return err
			}
			registry := solo.NewRegistry()
			if err := cfg.RegisterTypes(registry); err != nil {
				return err
			}
			dir, err := content.NewDir(args[0], cfg.AssetPatterns, logger)
			if err != nil {
				return err
			}
			data, err := dir.Read(cfg.TableName)
			if err != nil {
				return fmt.Errorf("read baked table: %w", err)
			}
			table, err := solo.ParseBakedTable(data)
			if err != nil {
				return err
			}

			manager, err := solo.NewBuilder().
				Config(cfg).
				Phase(solo.Packaged).
				Registry(registry).
				Table(table, nil).
				Logger(logger).
				Init()
			if err != nil {
				return err
			}
			defer manager.Shutdown()

			docs, err := dir.Scan()
			if err != nil {
				logger.Warn("solo: some documents failed to load", "error", err)
			}
			for _, doc := range docs {
				if err := manager.Load(doc); err != nil {
					logger.Warn("solo: failed to load document", "path", doc.Path(), "error", err)
				}
			}

			d, ok := registry.Lookup(args[1])
			if !ok {
				return fmt.Errorf("%w: %q", solo.ErrNotSingleton, args[1])
			}
			out := cmd.OutOrStdout()
			switch d.Category {
			case solo.DataAsset:
				c, ok := manager.Runtime().Asset(d)
				if !ok {
					fmt.Fprintf(out, "%s: no main\n", d.Key)
					return nil
				}
				fmt.Fprintf(out, "%s: %s\n", d.Key, c.ObjectID())
			default:
				lc, err := manager.Runtime().Live(d)
				if err != nil {
					return err
				}
				n := lc.Node()
				fmt.Fprintf(out, "%s: %s on node %q at %v\n", d.Key, lc.ObjectID(), n.Name(), n.Transform.Position)
			}
			return nil
		},
	}
}

func watchCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow content edits and keep main flags consistent",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open(opts, true)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if err := s.watcher.Start(ctx); err != nil {
				return err
			}
			if err := s.importer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
