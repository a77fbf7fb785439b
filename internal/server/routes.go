package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"imgkv/internal/shared"
)

// stages returns the middleware for one operation, outermost first.
// The order of the last three is fixed: size limit, then admin auth,
// then logging around the handler.
func (a *API) stages(op string, admin, compress bool) []Middleware {
	mw := []Middleware{
		RecoverPanic(a.Logger),
		RequestID(),
		Trace(op),
		Instrument(a.Metrics, op),
	}
	if compress && a.Gzip {
		mw = append(mw, Compress())
	}
	mw = append(mw, LimitBody(a.MaxBodyBytes))
	if admin {
		mw = append(mw, RequireBearer(a.AdminToken))
	}
	return append(mw, Logger(a.Logger, op))
}

func (a *API) handle(mux *http.ServeMux, pattern, op string, h http.HandlerFunc, admin, compress bool) {
	mux.Handle(pattern, Chain(h, a.stages(op, admin, compress)...))
}

// Routes builds the HTTP handler for the whole service.
func (a *API) Routes() http.Handler {
	mux := http.NewServeMux()

	a.handle(mux, "POST "+shared.PathKV+"{key}", "write", a.Write, false, false)
	a.handle(mux, "GET "+shared.PathKV+"{key}", "read", a.Read, false, true)
	a.handle(mux, "GET "+shared.PathKV+"{key}/grayscale", "grayscale", a.Grayscale, false, true)

	a.handle(mux, "DELETE "+shared.PathAdminKV+"/{key}", "delete", a.Delete, true, false)
	a.handle(mux, "DELETE "+shared.PathAdminKV, "delete_all", a.DeleteAll, true, false)
	a.handle(mux, "GET "+shared.PathAdminStat, "stats", a.Stats, true, false)
	if a.Diagnostics {
		a.handle(mux, "POST "+shared.PathPoison, "poison", a.Poison, true, false)
	}

	a.handle(mux, "GET /{$}", "index", a.Index, false, false)
	a.handle(mux, "GET /hello", "hello", a.Hello, false, false)
	mux.Handle("GET "+shared.PathHealth, Chain(http.HandlerFunc(a.Health), RecoverPanic(a.Logger)))
	if a.Gatherer != nil {
		mux.Handle("GET "+shared.PathMetrics, promhttp.HandlerFor(a.Gatherer, promhttp.HandlerOpts{}))
	}

	return mux
}
