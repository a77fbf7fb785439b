package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "imgkv/internal/errors"
	"imgkv/internal/shared"
)

// Middleware wraps an HTTP handler. It may act before and after calling
// next, or not call next at all.
type Middleware func(http.Handler) http.Handler

// Chain applies middleware in declaration order: the first entry is the
// outermost stage and handler is the innermost. Nil entries are skipped.
func Chain(handler http.Handler, middleware ...Middleware) http.Handler {
	if handler == nil {
		handler = http.NotFoundHandler()
	}
	wrapped := handler
	for idx := len(middleware) - 1; idx >= 0; idx-- {
		if middleware[idx] == nil {
			continue
		}
		wrapped = middleware[idx](wrapped)
	}
	return wrapped
}

// statusRecorder remembers the status and size of a response.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.bytes += int64(n)
	return n, err
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

type requestIDKey struct{}

// RequestIDFrom returns the request id stored by RequestID, or "".
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestID accepts an incoming X-Request-ID or generates one, echoes it
// on the response and stores it in the request context.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(shared.HeaderRequestID)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(shared.HeaderRequestID, id)
			ctx := context.WithValue(r.Context(), requestIDKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RecoverPanic turns a handler panic into a 500 response.
func RecoverPanic(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if recovered := recover(); recovered != nil {
					if recovered == http.ErrAbortHandler {
						panic(recovered)
					}
					logger.ErrorContext(r.Context(), "panic recovered",
						"method", r.Method,
						"path", r.URL.Path,
						"request_id", RequestIDFrom(r.Context()),
						"panic", fmt.Sprint(recovered),
						"stack", string(debug.Stack()),
					)
					writeError(w, fmt.Errorf("panic: %v", recovered))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Trace starts a server span named after the operation.
func Trace(op string) Middleware {
	tracer := otel.Tracer("imgkv/server")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracer.Start(r.Context(), op,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.request.method", r.Method),
					attribute.String("url.path", r.URL.Path),
					attribute.String("kv.key", r.PathValue("key")),
				),
			)
			defer span.End()

			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r.WithContext(ctx))

			span.SetAttributes(attribute.Int("http.response.status_code", rec.status))
			if rec.status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(rec.status))
			}
		})
	}
}

// Instrument records request counts and latency for op. A nil Metrics
// disables the stage.
func Instrument(m *Metrics, op string) Middleware {
	if m == nil {
		return nil
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)
			m.RecordRequest(op, rec.status, time.Since(start))
		})
	}
}

// Compress gzips responses for clients that accept it. A compressed
// response gets its own ETag, shared.GzipETag of the identity one.
func Compress() Middleware {
	wrap, err := gzhttp.NewWrapper(gzhttp.SuffixETag(shared.GzipETagSuffix))
	if err != nil {
		// Only reachable with invalid options, and the options are fixed.
		panic(fmt.Sprintf("gzhttp wrapper: %v", err))
	}
	return func(next http.Handler) http.Handler {
		return wrap(next)
	}
}

// LimitBody rejects request bodies larger than limit bytes before any inner
// stage sees them. Accepted bodies are buffered, so the handler reads a
// complete payload or nothing.
func LimitBody(limit int64) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				writeError(w, tooLarge(limit))
				return
			}
			if r.Body == nil || r.Body == http.NoBody {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
			_ = r.Body.Close()
			if err != nil {
				writeError(w, apperrors.Wrap(apperrors.KindBadRequest, "failed to read request body", err))
				return
			}
			if int64(len(body)) > limit {
				writeError(w, tooLarge(limit))
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			r.ContentLength = int64(len(body))
			next.ServeHTTP(w, r)
		})
	}
}

func tooLarge(limit int64) error {
	return apperrors.E(apperrors.KindPayloadTooLarge, fmt.Sprintf("request body exceeds maximum size of %d bytes", limit))
}

// RequireBearer lets a request through only when it carries
// "Authorization: Bearer <token>" matching the configured secret.
func RequireBearer(token string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented, ok := shared.BearerToken(r.Header.Get(shared.HeaderAuthorization))
			if !ok || !shared.TokenEqual(presented, token) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="imgkv"`)
				writeError(w, apperrors.ErrUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Logger emits "processing" before next runs and "end processing" after it
// returns, whatever the outcome.
func Logger(logger *slog.Logger, op string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			target := r.Method + " " + r.URL.Path
			attrs := []any{
				"op", op,
				"key", r.PathValue("key"),
				"request_id", RequestIDFrom(r.Context()),
			}
			logger.InfoContext(r.Context(), "processing "+target, attrs...)

			start := time.Now()
			rec := newStatusRecorder(w)
			defer func() {
				logger.InfoContext(r.Context(), "end processing "+target, append(attrs,
					"status", rec.status,
					"bytes", rec.bytes,
					"duration", time.Since(start),
				)...)
			}()
			next.ServeHTTP(rec, r)
		})
	}
}
