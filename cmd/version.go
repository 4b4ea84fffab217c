package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/shadowstream/internal/version"
)

func versionCommand() *cobra.Command {
	var (
		format   string
		detailed bool
	)

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Example: `  shadowstream version
  shadowstream version --detailed
  shadowstream version --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.Get()
			out := cmd.OutOrStdout()

			switch format {
			case "text":
				if detailed {
					fmt.Fprintln(out, info.Detailed())
					return nil
				}
				fmt.Fprintln(out, "shadowstream", info.Short())
				return nil
			case "json", "yaml":
				return writeStructured(out, format, info)
			default:
				return fmt.Errorf("unsupported format: %s (supported: text, json, yaml)", format)
			}
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format (text, json, yaml)")
	cmd.Flags().BoolVar(&detailed, "detailed", false, "show detailed version information")
	return cmd
}
