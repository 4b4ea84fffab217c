package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/conneroisu/shadowstream/internal/errors"
	"github.com/conneroisu/shadowstream/internal/logging"
	"github.com/conneroisu/shadowstream/internal/render"
	"github.com/conneroisu/shadowstream/internal/validation"
)

// reloadScript reloads the page when the server reports a change.
const reloadScript = `<script>(()=>{const p=location.protocol==="https:"?"wss://":"ws://";` +
	`const ws=new WebSocket(p+location.host+"/ws");` +
	`ws.onmessage=e=>{if(JSON.parse(e.data).type==="reload")location.reload()}})()</script>`

// pageName maps a request path to a template name. "/" is "index".
func pageName(path string) (string, bool) {
	name := strings.Trim(path, "/")
	if name == "" {
		return "index", true
	}
	if validation.ValidateTemplateName(name) != nil {
		return "", false
	}
	return name, true
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := loggerFrom(ctx, s.logger)

	name, ok := pageName(chi.URLParam(r, "*"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	name = strings.TrimSuffix(name, s.loader.Extension())

	op := logging.StartOperation(logger, "render_page")
	result, err := s.loader.Load(ctx, name)
	if err == nil {
		// Compile up front so a malformed page fails before headers are sent.
		_, err = s.renderer.Compiler().Compile(result.Statics)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}

	diagnostics := errors.NewCollector()
	stream := s.renderer.Render(ctx, result,
		render.WithDeferHydration(s.cfg.Render.DeferHydration),
		render.WithMaxDepth(s.cfg.Render.MaxDepth),
		render.WithDiagnostics(diagnostics),
	)
	defer stream.Close()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	var fragments, written int
	for {
		fragment, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Headers are gone; the truncated page is all the client gets.
			op.EndWithError(ctx, err)
			return
		}
		n, err := io.WriteString(w, fragment)
		written += n
		fragments++
		if err != nil {
			op.EndWithError(ctx, err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	if s.cfg.Server.Reload {
		_, _ = io.WriteString(w, reloadScript)
	}

	for _, d := range diagnostics.Diagnostics() {
		logger.Warn(ctx, &d, "Render degraded", "tag", d.Tag, "code", d.Code)
	}
	op.End(ctx,
		"template", name,
		"fragments", fragments,
		"bytes", written,
		"diagnostics", len(diagnostics.Diagnostics()),
	)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	errors.NewErrorHandler(loggerFrom(r.Context(), s.logger)).Handle(r.Context(), err)
	if errors.HasCode(err, errors.ErrCodeFileNotFound) {
		http.NotFound(w, r)
		return
	}
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

type healthResponse struct {
	Status   string `json:"status"`
	Programs int    `json:"programs"`
	Clients  int    `json:"clients"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthResponse{
		Status:   "ok",
		Programs: s.renderer.Compiler().Cache().Len(),
		Clients:  s.hub.Len(),
	})
}
