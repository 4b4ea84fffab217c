// Package errors provides structured render errors and a collector for
// non-fatal render diagnostics.
package errors

import (
	"fmt"
	"sync"
	"time"
)

// Diagnostic is a recorded, non-fatal degradation observed during a render,
// such as a custom element that fell back to the inert renderer.
type Diagnostic struct {
	Tag       string
	Code      string
	Message   string
	Severity  ErrorSeverity
	Timestamp time.Time
}

// ErrorSeverity represents the severity of an error
type ErrorSeverity int

const (
	ErrorSeverityInfo ErrorSeverity = iota
	ErrorSeverityWarning
	ErrorSeverityError
	ErrorSeverityFatal
)

// String returns the string representation of the severity
func (s ErrorSeverity) String() string {
	switch s {
	case ErrorSeverityInfo:
		return "info"
	case ErrorSeverityWarning:
		return "warning"
	case ErrorSeverityError:
		return "error"
	case ErrorSeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error implements the error interface
func (d *Diagnostic) Error() string {
	return fmt.Sprintf("<%s>: %s: %s", d.Tag, d.Severity, d.Message)
}

// Collector collects diagnostics for one render.
type Collector struct {
	diagnostics []Diagnostic
	mutex       sync.RWMutex
}

// NewCollector creates a new diagnostics collector
func NewCollector() *Collector {
	return &Collector{
		diagnostics: make([]Diagnostic, 0),
	}
}

// Add records a diagnostic, stamping it with the current time.
func (c *Collector) Add(d Diagnostic) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	d.Timestamp = time.Now()
	c.diagnostics = append(c.diagnostics, d)
}

// Diagnostics returns a copy of the collected diagnostics.
func (c *Collector) Diagnostics() []Diagnostic {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	result := make([]Diagnostic, len(c.diagnostics))
	copy(result, c.diagnostics)
	return result
}

// HasDiagnostics returns true if anything was recorded
func (c *Collector) HasDiagnostics() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.diagnostics) > 0
}

// ByTag returns the diagnostics recorded for a specific element tag
func (c *Collector) ByTag(tag string) []Diagnostic {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	var out []Diagnostic
	for _, d := range c.diagnostics {
		if d.Tag == tag {
			out = append(out, d)
		}
	}
	return out
}

// Clear drops all recorded diagnostics
func (c *Collector) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.diagnostics = c.diagnostics[:0]
}
