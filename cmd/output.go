package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"
)

var (
	errorText   = color.New(color.FgRed).SprintFunc()
	warnText    = color.New(color.FgYellow).SprintFunc()
	headingText = color.New(color.Bold).SprintFunc()
	kindText    = color.New(color.FgCyan).SprintFunc()
	dimText     = color.New(color.Faint).SprintFunc()
)

var outputFormats = []string{"table", "json", "yaml"}

// writeStructured writes v as indented JSON or YAML.
func writeStructured(w io.Writer, format string, v any) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported format: %s (supported: %s)", format, strings.Join(outputFormats, ", "))
	}
}
