package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conneroisu/shadowstream/internal/errors"
	"github.com/conneroisu/shadowstream/internal/logging"
	"github.com/conneroisu/shadowstream/internal/render"
	"github.com/conneroisu/shadowstream/internal/source"
	"github.com/conneroisu/shadowstream/internal/tpl"
)

func (a *app) renderCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render <file>",
		Short: "Render a template file to stdout",
		Long: `Render a template file and stream the result to stdout.

${path} placeholders resolve against the YAML data file, ${>name}
includes another template relative to the file's directory.

Examples:
  shadowstream render page.html
  shadowstream render page.html --data data.yml
  shadowstream render page.html --defer-hydration`,
		Args: cobra.ExactArgs(1),
		RunE: a.runRender,
	}

	cmd.Flags().Bool("defer-hydration", false, "mark top-level components defer-hydration")
	a.bind("render.defer_hydration", cmd.Flags().Lookup("defer-hydration"))
	return cmd
}

func (a *app) runRender(cmd *cobra.Command, args []string) error {
	cfg, logger, err := a.load(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	result, err := loadFile(cmd, args[0], cfg.Templates.Data, logger)
	if err != nil {
		return err
	}

	diagnostics := errors.NewCollector()
	stream := newRenderer(cfg, logger).Render(ctx, result, render.WithDiagnostics(diagnostics))
	defer stream.Close()

	op := logging.StartOperation(logger, "render")
	n, err := stream.WriteTo(cmd.OutOrStdout())
	if err != nil {
		op.EndWithError(ctx, err)
		return err
	}
	for _, d := range diagnostics.Diagnostics() {
		fmt.Fprintln(cmd.ErrOrStderr(), warnText(d.Error()))
	}
	op.End(ctx, "file", args[0], "bytes", n, "diagnostics", len(diagnostics.Diagnostics()))
	return nil
}

// loadFile reads one template file, with its directory as the template
// root, bound to the data file if one is given.
func loadFile(cmd *cobra.Command, file, dataFile string, logger logging.Logger) (tpl.Result, error) {
	ext := filepath.Ext(file)
	if ext == "" {
		return tpl.Result{}, fmt.Errorf("template file %s has no extension", file)
	}
	loader := source.NewLoader(filepath.Dir(file), logger, source.WithExtension(ext))
	if dataFile != "" {
		if err := loader.LoadData(dataFile); err != nil {
			return tpl.Result{}, err
		}
	}
	name := strings.TrimSuffix(filepath.Base(file), ext)
	return loader.Load(cmd.Context(), name)
}
