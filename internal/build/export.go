// Package build exports file-backed templates as static HTML pages,
// rendering them concurrently on a pool of workers. The exported pages keep
// their hydration markers, so a client runtime can hydrate them exactly as
// it would a streamed response.
package build

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"

	"github.com/conneroisu/shadowstream/internal/errors"
	"github.com/conneroisu/shadowstream/internal/logging"
	"github.com/conneroisu/shadowstream/internal/render"
	"github.com/conneroisu/shadowstream/internal/source"
)

// Result is the outcome of exporting one template.
type Result struct {
	Name        string
	Path        string
	Bytes       int64
	Diagnostics []errors.Diagnostic
	Duration    time.Duration
	Error       error
}

// Exporter renders every page template into an output directory.
type Exporter struct {
	renderer *render.Renderer
	loader   *source.Loader
	fs       afero.Fs
	output   string
	workers  int
	opts     []render.Option
	metrics  *Metrics
	logger   logging.Logger
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithFs writes pages to fsys instead of the OS file system.
func WithFs(fsys afero.Fs) Option {
	return func(e *Exporter) { e.fs = fsys }
}

// WithWorkers sets the number of concurrent renders. Non-positive values
// use one worker per CPU.
func WithWorkers(n int) Option {
	return func(e *Exporter) { e.workers = n }
}

// WithRenderOptions applies opts to every page render.
func WithRenderOptions(opts ...render.Option) Option {
	return func(e *Exporter) { e.opts = append(e.opts, opts...) }
}

// NewExporter creates an exporter writing under output.
func NewExporter(renderer *render.Renderer, loader *source.Loader, output string, logger logging.Logger, opts ...Option) *Exporter {
	if logger == nil {
		logger = logging.Nop()
	}
	e := &Exporter{
		renderer: renderer,
		loader:   loader,
		fs:       afero.NewOsFs(),
		output:   output,
		metrics:  NewMetrics(),
		logger:   logger.WithComponent("build"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.workers <= 0 {
		e.workers = runtime.NumCPU()
	}
	return e
}

// Metrics returns the exporter's metrics.
func (e *Exporter) Metrics() *Metrics { return e.metrics }

// IsPartial reports whether a template is only meant to be included. Any
// path segment starting with "_" marks a partial.
func IsPartial(name string) bool {
	for _, segment := range strings.Split(name, "/") {
		if strings.HasPrefix(segment, "_") {
			return true
		}
	}
	return false
}

// Export renders every non-partial template. Results are sorted by name;
// the error aggregates every failed page.
func (e *Exporter) Export(ctx context.Context) ([]Result, error) {
	names, err := e.loader.Names()
	if err != nil {
		return nil, err
	}
	pages := names[:0]
	for _, name := range names {
		if !IsPartial(name) {
			pages = append(pages, name)
		}
	}

	op := logging.StartOperation(e.logger, "export")
	tasks := make(chan string)
	results := make(chan Result, len(pages))

	var wg sync.WaitGroup
	for i := 0; i < min(e.workers, len(pages)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range tasks {
				results <- e.exportPage(ctx, name)
			}
		}()
	}

	go func() {
		defer close(tasks)
		for _, name := range pages {
			select {
			case tasks <- name:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	close(results)

	out := make([]Result, 0, len(pages))
	for r := range results {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	var result *multierror.Error
	for _, r := range out {
		if r.Error != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", r.Name, r.Error))
		}
	}
	if err := ctx.Err(); err != nil {
		result = multierror.Append(result, err)
	}

	snapshot := e.metrics.Snapshot()
	if err := result.ErrorOrNil(); err != nil {
		op.EndWithError(ctx, err)
		return out, err
	}
	op.End(ctx, "pages", snapshot.TotalPages, "bytes", snapshot.TotalBytes, "workers", e.workers)
	return out, nil
}

func (e *Exporter) exportPage(ctx context.Context, name string) (res Result) {
	start := time.Now()
	res = Result{Name: name, Path: filepath.Join(e.output, filepath.FromSlash(name)+".html")}
	defer func() {
		res.Duration = time.Since(start)
		e.metrics.RecordPage(res)
	}()

	page, err := e.loader.Load(ctx, name)
	if err != nil {
		res.Error = err
		return res
	}

	if err := e.fs.MkdirAll(filepath.Dir(res.Path), 0o755); err != nil {
		res.Error = errors.NewIOError(errors.ErrCodeWriteFailed, "create directory for "+res.Path, err)
		return res
	}
	f, err := e.fs.Create(res.Path)
	if err != nil {
		res.Error = errors.NewIOError(errors.ErrCodeWriteFailed, "create "+res.Path, err)
		return res
	}

	diagnostics := errors.NewCollector()
	opts := make([]render.Option, 0, len(e.opts)+1)
	opts = append(opts, e.opts...)
	opts = append(opts, render.WithDiagnostics(diagnostics))

	stream := e.renderer.Render(ctx, page, opts...)
	defer stream.Close()

	res.Bytes, err = stream.WriteTo(f)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = errors.NewIOError(errors.ErrCodeWriteFailed, "write "+res.Path, closeErr)
	}
	res.Diagnostics = diagnostics.Diagnostics()
	if err != nil {
		// no partial pages in the output
		_ = e.fs.Remove(res.Path)
		res.Error = err
		return res
	}

	e.logger.Debug(ctx, "Exported page", "name", name, "bytes", res.Bytes)
	return res
}
