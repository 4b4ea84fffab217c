package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/shadowstream/internal/compiler"
	"github.com/conneroisu/shadowstream/internal/render"
	"github.com/conneroisu/shadowstream/internal/server"
	"github.com/conneroisu/shadowstream/internal/source"
	"github.com/conneroisu/shadowstream/internal/watcher"
)

const watchDebounce = 100 * time.Millisecond

func (a *app) serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"s"},
		Short:   "Serve templates over HTTP with live reload",
		Long: `Serve the template directory over HTTP. Each request path names a
template ("/" is index), and the page streams to the browser as it
renders. With reload on, edits to templates or the data file reload open
pages.

Examples:
  shadowstream serve
  shadowstream serve --templates site --data site/data.yml --port 3000
  shadowstream serve --reload=false`,
		Args: cobra.NoArgs,
		RunE: a.runServe,
	}

	cmd.Flags().IntP("port", "p", 8080, "port to serve on")
	cmd.Flags().String("host", "localhost", "host to bind to")
	cmd.Flags().Bool("reload", true, "watch templates and reload browsers on change")
	a.bind("server.port", cmd.Flags().Lookup("port"))
	a.bind("server.host", cmd.Flags().Lookup("host"))
	a.bind("server.reload", cmd.Flags().Lookup("reload"))
	return cmd
}

func (a *app) runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := a.load(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	comp := compiler.New(nil, compiler.NewCache(cfg.Render.CacheEntries), logger)
	renderer := render.New(comp, nil, logger)
	loader := source.NewLoader(cfg.Templates.Dir, logger,
		source.WithExtension(cfg.Templates.Extension),
		source.WithForgetter(comp.Cache()),
	)
	if cfg.Templates.Data != "" {
		if err := loader.LoadData(cfg.Templates.Data); err != nil {
			return err
		}
	}

	srv := server.New(cfg, renderer, loader, logger)

	if cfg.Server.Reload {
		fw, err := watcher.NewFileWatcher(watchDebounce, logger)
		if err != nil {
			return err
		}
		defer fw.Stop()

		fw.AddFilter(watcher.NoHiddenFilter)
		fw.AddFilter(watcher.NoGitFilter)
		fw.AddFilter(watcher.ExtensionFilter(cfg.Templates.Extension, ".yml", ".yaml"))
		if err := fw.AddRecursive(cfg.Templates.Dir); err != nil {
			return fmt.Errorf("watch %s: %w", cfg.Templates.Dir, err)
		}
		if cfg.Templates.Data != "" && !within(cfg.Templates.Dir, cfg.Templates.Data) {
			if err := fw.AddPath(filepath.Dir(cfg.Templates.Data)); err != nil {
				return fmt.Errorf("watch %s: %w", cfg.Templates.Data, err)
			}
		}
		fw.AddHandler(srv.HandleChanges)
		fw.Start(ctx)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Serving %s at http://%s\n", cfg.Templates.Dir, cfg.Server.Address())
	return srv.Start(ctx)
}

func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && !strings.HasPrefix(rel, "..")
}
