package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeCompile  ErrorType = "compile"
	ErrorTypePromise  ErrorType = "promise"
	ErrorTypeElement  ErrorType = "element"
	ErrorTypeIO       ErrorType = "io"
	ErrorTypeConfig   ErrorType = "config"
	ErrorTypeInternal ErrorType = "internal"
)

// RenderError is a structured error type with context.
type RenderError struct {
	Type    ErrorType
	Code    string
	Message string
	Cause   error
	Context map[string]any
	// Tag is the custom element tag the error occurred under, if any.
	Tag string
	// Offset is the byte offset into the assembled template markup, or -1.
	Offset      int
	Recoverable bool
}

func (e *RenderError) Error() string {
	var b strings.Builder
	if e.Code != "" {
		fmt.Fprintf(&b, "[%s] ", e.Code)
	}
	if e.Tag != "" {
		fmt.Fprintf(&b, "element:%s ", e.Tag)
	}
	if e.Offset >= 0 {
		fmt.Fprintf(&b, "offset:%d ", e.Offset)
	}
	b.WriteString(e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying cause error.
func (e *RenderError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *RenderError) Is(target error) bool {
	var t *RenderError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext attaches a key/value pair for logging.
func (e *RenderError) WithContext(key string, value any) *RenderError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithOffset records the markup offset the error refers to.
func (e *RenderError) WithOffset(offset int) *RenderError {
	e.Offset = offset
	return e
}

// WithTag records the custom element the error occurred under.
func (e *RenderError) WithTag(tag string) *RenderError {
	e.Tag = tag
	return e
}

func newError(t ErrorType, code, message string, cause error) *RenderError {
	return &RenderError{Type: t, Code: code, Message: message, Cause: cause, Offset: -1}
}

// NewInternalError creates an internal error. Internal errors abort the
// enclosing render.
func NewInternalError(code, message string, cause error) *RenderError {
	return newError(ErrorTypeInternal, code, message, cause)
}

// NewCompileError creates a template compilation error.
func NewCompileError(code, message string) *RenderError {
	return newError(ErrorTypeCompile, code, message, nil)
}

// NewPromiseError wraps the rejection of an awaited slot value.
func NewPromiseError(cause error) *RenderError {
	return newError(ErrorTypePromise, ErrCodePromiseRejected, "awaited value rejected", cause)
}

// NewElementError creates a custom element definition or renderer error.
// Element errors are recoverable: the element degrades to a fallback.
func NewElementError(code, message string, cause error) *RenderError {
	e := newError(ErrorTypeElement, code, message, cause)
	e.Recoverable = true
	return e
}

func NewIOError(code, message string, cause error) *RenderError {
	return newError(ErrorTypeIO, code, message, cause)
}

func NewConfigError(code, message string, cause error) *RenderError {
	return newError(ErrorTypeConfig, code, message, cause)
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var re *RenderError
	if errors.As(err, &re) {
		return re.Recoverable
	}

	return false
}

// IsInternal reports whether err is an internal render failure.
func IsInternal(err error) bool {
	return hasType(err, ErrorTypeInternal)
}

// IsCompile reports whether err is a template compilation failure.
func IsCompile(err error) bool {
	return hasType(err, ErrorTypeCompile)
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code string) bool {
	var re *RenderError
	for err != nil {
		if errors.As(err, &re) {
			if re.Code == code {
				return true
			}
			err = re.Cause
			continue
		}
		return false
	}

	return false
}

func hasType(err error, t ErrorType) bool {
	var re *RenderError
	if errors.As(err, &re) {
		return re.Type == t
	}

	return false
}

// ErrorHandler provides centralized error handling.
type ErrorHandler struct {
	logger Logger
}

// Logger interface for error logging.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle logs an error at a level matching its type.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil || h.logger == nil {
		return
	}

	var re *RenderError
	if !errors.As(err, &re) {
		h.logger.Error(ctx, err, "Unhandled error occurred")
		return
	}

	switch re.Type {
	case ErrorTypeElement:
		h.logger.Warn(ctx, err, "Element degraded",
			"type", re.Type,
			"code", re.Code,
			"element", re.Tag)
	case ErrorTypeCompile:
		h.logger.Error(ctx, err, "Template compilation failed",
			"type", re.Type,
			"code", re.Code,
			"offset", re.Offset)
	default:
		h.logger.Error(ctx, err, "Render failed",
			"type", re.Type,
			"code", re.Code,
			"element", re.Tag)
	}
}

// Common error codes.
const (
	ErrCodeValueCount      = "ERR_VALUE_COUNT"
	ErrCodeNoInstance      = "ERR_NO_INSTANCE"
	ErrCodeUnknownOpcode   = "ERR_UNKNOWN_OPCODE"
	ErrCodeDepthExceeded   = "ERR_DEPTH_EXCEEDED"
	ErrCodePromiseRejected = "ERR_PROMISE_REJECTED"
	ErrCodeTemplateSyntax  = "ERR_TEMPLATE_SYNTAX"
	ErrCodeRawTextBinding  = "ERR_RAW_TEXT_BINDING"
	ErrCodeDynamicTag      = "ERR_DYNAMIC_TAG"
	ErrCodeNilTemplate     = "ERR_NIL_TEMPLATE"
	ErrCodeDefine          = "ERR_DEFINE"
	ErrCodeRendererCreate  = "ERR_RENDERER_CREATE"
	ErrCodeFallback        = "ERR_FALLBACK_RENDERER"
	ErrCodeConnect         = "ERR_CONNECT"
	ErrCodeBindingDecode   = "ERR_BINDING_DECODE"
	ErrCodeComponentRender = "ERR_COMPONENT_RENDER"
	ErrCodeConfigInvalid   = "ERR_CONFIG_INVALID"
	ErrCodeFileNotFound    = "ERR_FILE_NOT_FOUND"
	ErrCodeDataInvalid     = "ERR_DATA_INVALID"
	ErrCodeWriteFailed     = "ERR_WRITE_FAILED"
)

// ErrValueCount is a comparison target for value-count mismatches.
var ErrValueCount = &RenderError{Type: ErrorTypeInternal, Code: ErrCodeValueCount}

// ErrNoInstance is a comparison target for component opcodes outside a
// component context.
var ErrNoInstance = &RenderError{Type: ErrorTypeInternal, Code: ErrCodeNoInstance}

// ErrPromiseRejected is a comparison target for rejected awaited values.
var ErrPromiseRejected = &RenderError{Type: ErrorTypePromise, Code: ErrCodePromiseRejected}
