package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/shadowstream/internal/build"
	"github.com/conneroisu/shadowstream/internal/compiler"
	"github.com/conneroisu/shadowstream/internal/render"
	"github.com/conneroisu/shadowstream/internal/source"
)

func (a *app) buildCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "build",
		Aliases: []string{"b"},
		Short:   "Export every template as a static HTML page",
		Long: `Render every template in the template directory to a static HTML
file under the output directory. Templates with a path segment starting
with "_" are partials and are only rendered through includes.

Examples:
  shadowstream build
  shadowstream build --templates site --data site/data.yml --out public
  shadowstream build --workers 4`,
		Args: cobra.NoArgs,
		RunE: a.runBuild,
	}

	cmd.Flags().StringP("out", "o", "dist", "output directory")
	cmd.Flags().IntP("workers", "w", 0, "concurrent renders (0 uses one per CPU)")
	a.bind("build.output", cmd.Flags().Lookup("out"))
	a.bind("build.workers", cmd.Flags().Lookup("workers"))
	return cmd
}

func (a *app) runBuild(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := a.load(cmd)
	if err != nil {
		return err
	}
	if cfg.Build.Output == "" {
		return fmt.Errorf("no output directory: set --out or build.output")
	}

	comp := compiler.New(nil, compiler.NewCache(cfg.Render.CacheEntries), logger)
	loader := source.NewLoader(cfg.Templates.Dir, logger,
		source.WithExtension(cfg.Templates.Extension),
		source.WithForgetter(comp.Cache()),
	)
	if cfg.Templates.Data != "" {
		if err := loader.LoadData(cfg.Templates.Data); err != nil {
			return err
		}
	}

	exporter := build.NewExporter(render.New(comp, nil, logger), loader, cfg.Build.Output, logger,
		build.WithWorkers(cfg.Build.Workers),
		build.WithRenderOptions(
			render.WithDeferHydration(cfg.Render.DeferHydration),
			render.WithMaxDepth(cfg.Render.MaxDepth),
		),
	)
	results, exportErr := exporter.Export(cmd.Context())

	out := cmd.OutOrStdout()
	for _, r := range results {
		switch {
		case r.Error != nil:
			fmt.Fprintf(out, "%s %s\n", errorText("✗"), r.Name)
		case len(r.Diagnostics) > 0:
			fmt.Fprintf(out, "%s %s %s\n", warnText("!"), r.Path, dimText(fmt.Sprintf("(%d diagnostics)", len(r.Diagnostics))))
			for _, d := range r.Diagnostics {
				fmt.Fprintf(out, "    %s\n", warnText(d.Error()))
			}
		default:
			fmt.Fprintf(out, "%s %s %s\n", kindText("✓"), r.Path, dimText(fmt.Sprintf("%d bytes", r.Bytes)))
		}
	}

	m := exporter.Metrics().Snapshot()
	fmt.Fprintf(out, "%s %d pages, %d failed, %d bytes in %s\n",
		headingText("Exported"), m.TotalPages, m.FailedPages, m.TotalBytes, m.TotalDuration)
	return exportErr
}
