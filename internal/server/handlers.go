package server

import (
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	apperrors "imgkv/internal/errors"
	"imgkv/internal/kv"
	"imgkv/internal/shared"
)

type API struct {
	KV     *kv.Service
	Logger *slog.Logger

	// Metrics and Gatherer are optional; nil disables instrumentation and
	// the /metrics route respectively.
	Metrics  *Metrics
	Gatherer prometheus.Gatherer

	AdminToken   string
	MaxBodyBytes int64
	Gzip         bool
	Diagnostics  bool
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, apperrors.HTTPStatus(err), shared.ErrorResponse{
		Error: apperrors.Message(err),
		Kind:  string(apperrors.KindOf(err)),
	})
}

// fail logs err and writes it. Server-side failures are logged at error
// level with full detail; client errors only at debug.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		a.Logger.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path,
			"status", status,
			"request_id", RequestIDFrom(r.Context()),
			"err", err,
		)
	} else {
		a.Logger.DebugContext(r.Context(), "request rejected",
			"path", r.URL.Path,
			"status", status,
			"err", err,
		)
	}
	writeError(w, err)
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	b, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindBadRequest, "failed to read request body", err)
	}
	return b, nil
}

// writePayload sends p with its ETag, or 304 when the client already holds
// it. With gzip enabled the client may hold the compressed variant's tag.
func (a *API) writePayload(w http.ResponseWriter, r *http.Request, p kv.Payload) {
	etag := shared.ContentETag(p.Body)
	w.Header().Set(shared.HeaderETag, etag)
	if p.ContentType != "" {
		w.Header().Set(shared.HeaderContentType, p.ContentType)
	}
	ifNoneMatch := r.Header.Get(shared.HeaderIfNoneMatch)
	if shared.ETagMatches(ifNoneMatch, etag) ||
		(a.Gzip && shared.ETagMatches(ifNoneMatch, shared.GzipETag(etag))) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(p.Body)
}

// Write stores the request body under {key}.
func (a *API) Write(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	contentType := r.Header.Get(shared.HeaderContentType)
	if err := a.KV.Write(r.Context(), r.PathValue("key"), contentType, body); err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set(shared.HeaderContentType, "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, shared.Ack)
}

// Read returns the value stored under {key}.
func (a *API) Read(w http.ResponseWriter, r *http.Request) {
	p, err := a.KV.Read(r.Context(), r.PathValue("key"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.writePayload(w, r, p)
}

// Grayscale returns the image under {key} converted to grayscale.
func (a *API) Grayscale(w http.ResponseWriter, r *http.Request) {
	p, err := a.KV.Grayscale(r.Context(), r.PathValue("key"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.writePayload(w, r, p)
}

// Delete removes {key}. Admin only.
func (a *API) Delete(w http.ResponseWriter, r *http.Request) {
	if err := a.KV.Delete(r.Context(), r.PathValue("key")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// DeleteAll empties the store. Admin only.
func (a *API) DeleteAll(w http.ResponseWriter, r *http.Request) {
	if err := a.KV.Clear(r.Context()); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Stats reports store counts. Admin only.
func (a *API) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := a.KV.Stats(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, shared.StatsResponse{
		Keys:     st.Total(),
		Raw:      st.Raw,
		Images:   st.Images,
		Poisoned: a.KV.Store.Poisoned(),
	})
}

// Poison deliberately fails a write while holding the store lock. Only
// routed when diagnostics are enabled.
func (a *API) Poison(w http.ResponseWriter, r *http.Request) {
	a.Logger.WarnContext(r.Context(), "poisoning store on request",
		"request_id", RequestIDFrom(r.Context()),
	)
	err := a.KV.Store.Poison(r.Context(), "poisoned via diagnostics endpoint")
	a.fail(w, r, err)
}

// Health is 200 while the store is usable and 503 once it is poisoned.
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	if a.KV.Store.Poisoned() {
		writeJSON(w, http.StatusServiceUnavailable, shared.ErrorResponse{
			Error: apperrors.ErrLockPoisoned.Message,
			Kind:  string(apperrors.KindLockPoisoned),
		})
		return
	}
	w.Header().Set(shared.HeaderContentType, "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok")
}

func (a *API) Index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(shared.HeaderContentType, "text/html; charset=utf-8")
	_, _ = io.WriteString(w, "<h1>Hello imgkv</h1>")
}

func (a *API) Hello(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(shared.HeaderContentType, "text/html; charset=utf-8")
	name := r.URL.Query().Get("name")
	if name == "" {
		_, _ = io.WriteString(w, "<h1>Hello Unknown Visitor</h1>")
		return
	}
	_, _ = fmt.Fprintf(w, "<h1>Hello %s</h1>", html.EscapeString(name))
}
