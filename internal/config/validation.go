package config

import (
	"fmt"
	"net"
	"regexp"
	"slices"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/conneroisu/shadowstream/internal/errors"
	"github.com/conneroisu/shadowstream/internal/validation"
)

// ValidationError is one rejected or questionable setting, with hints
// for fixing it.
type ValidationError struct {
	Field       string
	Value       any
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult collects every issue found in one pass.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

func (vr *ValidationResult) fail(field string, value any, msg string, hints ...string) {
	vr.Errors = append(vr.Errors, ValidationError{Field: field, Value: value, Message: msg, Suggestions: hints})
}

func (vr *ValidationResult) warn(field string, value any, msg string, hints ...string) {
	vr.Warnings = append(vr.Warnings, ValidationError{Field: field, Value: value, Message: msg, Suggestions: hints})
}

func (vr *ValidationResult) HasErrors() bool   { return len(vr.Errors) > 0 }
func (vr *ValidationResult) HasWarnings() bool { return len(vr.Warnings) > 0 }

// String renders the issues as an indented report.
func (vr *ValidationResult) String() string {
	var b strings.Builder
	section := func(title string, issues []ValidationError) {
		if len(issues) == 0 {
			return
		}
		fmt.Fprintf(&b, "%s:\n", title)
		for _, issue := range issues {
			fmt.Fprintf(&b, "  - %s: %s\n", issue.Field, issue.Message)
			for _, hint := range issue.Suggestions {
				fmt.Fprintf(&b, "    hint: %s\n", hint)
			}
		}
	}
	section("Validation errors", vr.Errors)
	section("Validation warnings", vr.Warnings)
	return b.String()
}

// Err returns every validation error combined, or nil.
func (vr *ValidationResult) Err() error {
	var result *multierror.Error
	for i := range vr.Errors {
		result = multierror.Append(result, &vr.Errors[i])
	}
	if result == nil {
		return nil
	}
	result.ErrorFormat = func(es []error) string {
		msgs := make([]string, len(es))
		for i, e := range es {
			msgs[i] = e.Error()
		}
		return strings.Join(msgs, "; ")
	}
	return errors.NewConfigError(errors.ErrCodeConfigInvalid,
		fmt.Sprintf("%d invalid setting(s)", len(vr.Errors)), result)
}

// Validate returns all validation errors in config as one error.
func Validate(config *Config) error {
	return ValidateWithDetails(config).Err()
}

// ValidateWithDetails validates config and reports errors and warnings with
// suggestions.
func ValidateWithDetails(config *Config) *ValidationResult {
	result := &ValidationResult{}
	validateRender(&config.Render, result)
	validateTemplates(&config.Templates, result)
	validateServer(&config.Server, result)
	validateBuild(&config.Build, result)
	validateLog(&config.Log, result)
	return result
}

func validateRender(c *RenderConfig, r *ValidationResult) {
	switch {
	case c.MaxDepth < 1:
		r.fail("render.max_depth", c.MaxDepth, "must be at least 1", "The default of 64 suits most pages")
	case c.MaxDepth > 1024:
		r.warn("render.max_depth", c.MaxDepth, "very deep nesting allowed; runaway recursion will take long to fail")
	}
	if c.CacheEntries < 0 {
		r.fail("render.cache_entries", c.CacheEntries, "cannot be negative", "Use 0 for an unbounded cache")
	}
}

func validateTemplates(c *TemplatesConfig, r *ValidationResult) {
	if err := validation.ValidatePath(c.Dir); err != nil {
		r.fail("templates.dir", c.Dir, err.Error(), "Use a relative directory inside the project, such as 'templates'")
	}
	if c.Data != "" {
		if err := validation.ValidatePath(c.Data); err != nil {
			r.fail("templates.data", c.Data, err.Error())
		} else if validation.ValidateFileExtension(c.Data, []string{".yml", ".yaml"}) != nil {
			r.warn("templates.data", c.Data, "data file is parsed as YAML", "Rename it with a .yml or .yaml extension")
		}
	}
	if c.Extension == "" {
		r.fail("templates.extension", c.Extension, "cannot be empty", "Use '.html'")
	}
}

func validateBuild(c *BuildConfig, r *ValidationResult) {
	if c.Output != "" {
		if err := validation.ValidatePath(c.Output); err != nil {
			r.fail("build.output", c.Output, err.Error(), "Use a relative directory such as 'dist'")
		}
	}
	if c.Workers < 0 {
		r.fail("build.workers", c.Workers, "cannot be negative", "Use 0 for one worker per CPU")
	}
}

func validateServer(c *ServerConfig, r *ValidationResult) {
	switch {
	case c.Port < 0 || c.Port > 65535:
		r.fail("server.port", c.Port, fmt.Sprintf("port %d is outside 0-65535", c.Port),
			"Use a port above 1023 to avoid needing privileges",
			"Port 0 picks a free port")
	case c.Port > 0 && c.Port < 1024:
		r.warn("server.port", c.Port, "port below 1024 requires elevated privileges")
	}

	if c.Host == "" {
		return
	}
	if err := validateHostname(c.Host); err != nil {
		r.fail("server.host", c.Host, err.Error(),
			"Use 'localhost' for local development",
			"Use '0.0.0.0' to bind to all interfaces")
	}
}

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json"}
)

func validateLog(c *LogConfig, r *ValidationResult) {
	if !slices.Contains(logLevels, c.Level) {
		r.fail("log.level", c.Level, fmt.Sprintf("unknown level %q", c.Level),
			"Available levels: "+strings.Join(logLevels, ", "))
	}
	if !slices.Contains(logFormats, c.Format) {
		r.fail("log.format", c.Format, fmt.Sprintf("unknown format %q", c.Format),
			"Available formats: "+strings.Join(logFormats, ", "))
	}
}

var hostLabel = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)

// validateHostname accepts IP literals and dotted DNS names.
func validateHostname(host string) error {
	if i := strings.IndexAny(host, ";&|$`()<>\"'\\"); i >= 0 {
		return fmt.Errorf("contains dangerous character: %c", host[i])
	}
	if net.ParseIP(host) != nil {
		return nil
	}
	for _, label := range strings.Split(host, ".") {
		if !hostLabel.MatchString(label) {
			return fmt.Errorf("invalid hostname format")
		}
	}
	return nil
}
