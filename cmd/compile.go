package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conneroisu/shadowstream/internal/compiler"
)

func (a *app) compileCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "compile <file>",
		Short: "Show the opcode list a template file compiles to",
		Long: `Compile a template file and print its opcodes.

Includes are compiled separately when rendered, so only the file's own
shape is listed.

Examples:
  shadowstream compile page.html
  shadowstream compile page.html --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, logger, err := a.load(cmd)
			if err != nil {
				return err
			}
			result, err := loadFile(cmd, args[0], "", logger)
			if err != nil {
				return err
			}
			program, err := compiler.New(nil, nil, logger).Compile(result.Statics)
			if err != nil {
				return err
			}

			if strings.ToLower(output) == "table" {
				writeProgramTable(cmd.OutOrStdout(), program)
				return nil
			}
			return writeStructured(cmd.OutOrStdout(), output, program)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format (table, json, yaml)")
	_ = cmd.RegisterFlagCompletionFunc("output", cobra.FixedCompletions(outputFormats, cobra.ShellCompDirectiveNoFileComp))
	return cmd
}

func writeProgramTable(w io.Writer, p *compiler.Program) {
	fmt.Fprintf(w, "%s %s  %s %d\n", headingText("digest"), p.Digest, headingText("slots"), p.Slots)
	for i, op := range p.Ops {
		detail := strings.TrimSpace(strings.TrimPrefix(op.String(), op.Kind.String()))
		fmt.Fprintf(w, "%s  %s %s\n", dimText(fmt.Sprintf("%3d", i)), kindText(fmt.Sprintf("%-20s", op.Kind)), detail)
	}
}
