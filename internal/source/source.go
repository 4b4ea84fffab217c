// Package source loads file-backed templates. A template file is markup
// with ${path} placeholders; each file becomes one template shape, reused
// until the file's content changes, so its compiled program is cached like
// any shape written in Go.
//
// Placeholder paths resolve against YAML data by dotted key
// (${page.title}, ${items.0.name}). ${>name} includes another template
// file in place.
package source

import (
	"context"
	"fmt"
	"hash/crc32"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/shadowstream/internal/errors"
	"github.com/conneroisu/shadowstream/internal/logging"
	"github.com/conneroisu/shadowstream/internal/tpl"
)

// Forgetter drops compiled programs for shapes that no longer exist.
// *compiler.Cache implements it.
type Forgetter interface {
	Forget(s *tpl.Statics)
}

// Placeholder is one ${...} in a template file.
type Placeholder struct {
	Path    string
	Include bool
}

// maxIncludeDepth bounds ${>name} chains.
const maxIncludeDepth = 32

var placeholderRe = regexp.MustCompile(`\$\{\s*(>?)\s*([A-Za-z0-9_.\-/]+)\s*\}`)

// Parse splits template text into static parts and the placeholders
// between them.
func Parse(text string) ([]string, []Placeholder) {
	matches := placeholderRe.FindAllStringSubmatchIndex(text, -1)
	parts := make([]string, 0, len(matches)+1)
	holders := make([]Placeholder, 0, len(matches))

	last := 0
	for _, m := range matches {
		parts = append(parts, text[last:m[0]])
		holders = append(holders, Placeholder{
			Include: m[3] > m[2],
			Path:    text[m[4]:m[5]],
		})
		last = m[1]
	}
	parts = append(parts, text[last:])
	return parts, holders
}

type entry struct {
	checksum uint32
	statics  *tpl.Statics
	holders  []Placeholder
}

// Loader reads template files from a directory and binds them to data.
type Loader struct {
	fs        afero.Fs
	dir       string
	extension string
	forgetter Forgetter
	logger    logging.Logger

	mu      sync.RWMutex
	entries map[string]*entry
	data    map[string]any
}

// Option configures a Loader.
type Option func(*Loader)

// WithFs reads files from fsys instead of the OS file system.
func WithFs(fsys afero.Fs) Option {
	return func(l *Loader) { l.fs = fsys }
}

// WithExtension sets the template file extension. The default is ".html".
func WithExtension(ext string) Option {
	return func(l *Loader) {
		if ext != "" {
			l.extension = ext
		}
	}
}

// WithForgetter sets where replaced shapes are forgotten.
func WithForgetter(f Forgetter) Option {
	return func(l *Loader) { l.forgetter = f }
}

// NewLoader creates a loader for templates under dir.
func NewLoader(dir string, logger logging.Logger, opts ...Option) *Loader {
	if logger == nil {
		logger = logging.Nop()
	}
	l := &Loader{
		fs:        afero.NewOsFs(),
		dir:       dir,
		extension: ".html",
		logger:    logger.WithComponent("source"),
		entries:   make(map[string]*entry),
		data:      make(map[string]any),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Dir returns the template directory.
func (l *Loader) Dir() string { return l.dir }

// Extension returns the template file extension.
func (l *Loader) Extension() string { return l.extension }

// LoadData replaces the template data with the YAML document at path.
func (l *Loader) LoadData(path string) error {
	raw, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return errors.NewIOError(errors.ErrCodeFileNotFound, "read data file "+path, err)
	}
	var data map[string]any
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return errors.NewIOError(errors.ErrCodeDataInvalid, "parse data file "+path, err)
	}
	if data == nil {
		data = make(map[string]any)
	}
	l.SetData(data)
	return nil
}

// SetData replaces the template data.
func (l *Loader) SetData(data map[string]any) {
	l.mu.Lock()
	l.data = data
	l.mu.Unlock()
}

// Names lists the templates under the directory, without extension, sorted.
func (l *Loader) Names() ([]string, error) {
	var names []string
	err := afero.Walk(l.fs, l.dir, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || filepath.Ext(path) != l.extension {
			return nil
		}
		rel, err := filepath.Rel(l.dir, path)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(strings.TrimSuffix(rel, l.extension)))
		return nil
	})
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeFileNotFound, "list templates in "+l.dir, err)
	}
	sort.Strings(names)
	return names, nil
}

// Path returns the file path of the named template.
func (l *Loader) Path(name string) string {
	return filepath.Join(l.dir, filepath.FromSlash(name)+l.extension)
}

// Name returns the template name for a file path under the directory, or
// false if the path is not a template.
func (l *Loader) Name(path string) (string, bool) {
	if filepath.Ext(path) != l.extension {
		return "", false
	}
	rel, err := filepath.Rel(l.dir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(strings.TrimSuffix(rel, l.extension)), true
}

// Load returns the named template bound to the current data.
func (l *Loader) Load(ctx context.Context, name string) (tpl.Result, error) {
	l.mu.RLock()
	data := l.data
	l.mu.RUnlock()
	return l.load(ctx, name, data, nil)
}

func (l *Loader) load(ctx context.Context, name string, data map[string]any, chain []string) (tpl.Result, error) {
	for _, seen := range chain {
		if seen == name {
			return tpl.Result{}, errors.NewCompileError(errors.ErrCodeTemplateSyntax,
				"include cycle: "+strings.Join(append(chain, name), " > "))
		}
	}
	if len(chain) >= maxIncludeDepth {
		return tpl.Result{}, errors.NewCompileError(errors.ErrCodeDepthExceeded,
			fmt.Sprintf("includes nested deeper than %d", maxIncludeDepth))
	}

	e, err := l.shape(ctx, name)
	if err != nil {
		return tpl.Result{}, err
	}

	values := make([]any, len(e.holders))
	for i, h := range e.holders {
		if !h.Include {
			values[i] = Lookup(data, h.Path)
			continue
		}
		included, err := l.load(ctx, h.Path, data, append(chain, name))
		if err != nil {
			return tpl.Result{}, err
		}
		values[i] = included
	}
	return tpl.HTML(e.statics, values...), nil
}

// shape returns the cached shape for name, re-reading the file and
// replacing the shape when its content changed.
func (l *Loader) shape(ctx context.Context, name string) (*entry, error) {
	path := l.Path(name)
	raw, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeFileNotFound, "read template "+path, err)
	}
	checksum := crc32.ChecksumIEEE(raw)

	l.mu.RLock()
	cached, ok := l.entries[name]
	l.mu.RUnlock()
	if ok && cached.checksum == checksum {
		return cached, nil
	}

	parts, holders := Parse(string(raw))
	next := &entry{checksum: checksum, statics: tpl.New(parts...), holders: holders}

	l.mu.Lock()
	previous, replaced := l.entries[name]
	if replaced && previous.checksum == checksum {
		l.mu.Unlock()
		return previous, nil
	}
	l.entries[name] = next
	l.mu.Unlock()

	if replaced {
		l.forget(previous)
		l.logger.Debug(ctx, "Template changed", "name", name, "digest", next.statics.Digest())
	}
	return next, nil
}

// Forget drops the named template's shape so the next Load re-reads it.
func (l *Loader) Forget(name string) {
	l.mu.Lock()
	e, ok := l.entries[name]
	delete(l.entries, name)
	l.mu.Unlock()
	if ok {
		l.forget(e)
	}
}

func (l *Loader) forget(e *entry) {
	if l.forgetter != nil {
		l.forgetter.Forget(e.statics)
	}
}

// Lookup resolves a dotted path in data. Map keys and sequence indexes are
// both path segments. Missing paths resolve to tpl.Nothing.
func Lookup(data map[string]any, path string) any {
	var current any = data
	for _, key := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			v, ok := node[key]
			if !ok {
				return tpl.Nothing
			}
			current = v
		case []any:
			i, err := strconv.Atoi(key)
			if err != nil || i < 0 || i >= len(node) {
				return tpl.Nothing
			}
			current = node[i]
		default:
			return tpl.Nothing
		}
	}
	return current
}
