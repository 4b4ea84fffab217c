// Package cmd provides the shadowstream command-line interface.
//
// Configuration is read, from highest to lowest priority, from:
//  1. command-line flags (--templates, --port, ...)
//  2. environment variables with the SHADOWSTREAM_ prefix
//     (SHADOWSTREAM_SERVER_PORT, SHADOWSTREAM_RENDER_MAX_DEPTH, ...)
//  3. the config file: --config, else SHADOWSTREAM_CONFIG_FILE, else
//     .shadowstream.yml in the current directory
//  4. built-in defaults
package cmd

import (
	stderrors "errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/conneroisu/shadowstream/internal/compiler"
	"github.com/conneroisu/shadowstream/internal/config"
	"github.com/conneroisu/shadowstream/internal/logging"
	"github.com/conneroisu/shadowstream/internal/render"
)

// app carries the state shared by every command of one invocation.
type app struct {
	v       *viper.Viper
	cfgFile string
}

// NewRootCommand builds the command tree around v.
func NewRootCommand(v *viper.Viper) *cobra.Command {
	a := &app{v: v}

	root := &cobra.Command{
		Use:   "shadowstream",
		Short: "Stream server-rendered web components with hydration markers",
		Long: `shadowstream renders HTML templates on the server as a stream of
fragments. Custom elements render their shadow roots inline, and the output
carries the comment markers a client runtime needs to hydrate the page.

Quick Start:
  shadowstream render page.html --data data.yml   Render a template to stdout
  shadowstream compile page.html                  Show the compiled opcodes
  shadowstream serve                              Serve templates with live reload
  shadowstream build --out dist                   Export every page as static HTML`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.initConfig(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is .shadowstream.yml, can also use SHADOWSTREAM_CONFIG_FILE)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")
	flags.String("templates", "templates", "template directory")
	flags.StringP("data", "d", "", "YAML data file for template placeholders")
	a.bind("log.level", flags.Lookup("log-level"))
	a.bind("log.format", flags.Lookup("log-format"))
	a.bind("templates.dir", flags.Lookup("templates"))
	a.bind("templates.data", flags.Lookup("data"))

	root.AddCommand(
		a.renderCommand(),
		a.compileCommand(),
		a.serveCommand(),
		a.buildCommand(),
		versionCommand(),
	)
	return root
}

// Execute runs the CLI with the process arguments.
func Execute() error {
	err := NewRootCommand(config.New()).Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, errorText(err.Error()))
	}
	return err
}

func (a *app) bind(key string, flag *pflag.Flag) {
	// BindPFlag only fails on a nil flag
	_ = a.v.BindPFlag(key, flag)
}

func (a *app) initConfig(cmd *cobra.Command) error {
	explicit := true
	switch {
	case a.cfgFile != "":
		a.v.SetConfigFile(a.cfgFile)
	case os.Getenv("SHADOWSTREAM_CONFIG_FILE") != "":
		a.v.SetConfigFile(os.Getenv("SHADOWSTREAM_CONFIG_FILE"))
	default:
		explicit = false
		a.v.AddConfigPath(".")
		a.v.SetConfigType("yaml")
		a.v.SetConfigName(config.FileName)
	}

	err := a.v.ReadInConfig()
	if err == nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Using config file:", a.v.ConfigFileUsed())
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if !explicit && stderrors.As(err, &notFound) {
		return nil
	}
	return fmt.Errorf("read config: %w", err)
}

// load decodes the configuration and builds the logger it asks for.
func (a *app) load(cmd *cobra.Command) (*config.Config, logging.Logger, error) {
	cfg, err := config.Load(a.v)
	if err != nil {
		return nil, nil, err
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Log.Format,
		Output: cmd.ErrOrStderr(),
	})
	return cfg, logger, nil
}

func newRenderer(cfg *config.Config, logger logging.Logger) *render.Renderer {
	comp := compiler.New(nil, compiler.NewCache(cfg.Render.CacheEntries), logger)
	return render.New(comp, nil, logger,
		render.WithDeferHydration(cfg.Render.DeferHydration),
		render.WithMaxDepth(cfg.Render.MaxDepth),
	)
}
