package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/Markhorcapital/ledger-listener/pkg/logger"
)

// RequestObserver receives one call per finished request
type RequestObserver interface {
	ObserveRequest(route, method string, status int, d time.Duration)
}

// requestInfo is shared down the chain so inner middleware can annotate the access log
type requestInfo struct {
	client string
}

type requestInfoKey struct{}

func withRequestInfo(ctx context.Context) (context.Context, *requestInfo) {
	info := &requestInfo{}
	return context.WithValue(ctx, requestInfoKey{}, info), info
}

// annotateClient records the authenticated caller for the access log line
func annotateClient(ctx context.Context, client string) {
	if info, ok := ctx.Value(requestInfoKey{}).(*requestInfo); ok {
		info.client = client
	}
}

// errCapture keeps the body of error responses so the log line can carry the message
type errCapture struct {
	chimiddleware.WrapResponseWriter
	buf        bytes.Buffer
	statusCode int
}

func (e *errCapture) WriteHeader(code int) {
	e.statusCode = code
	e.WrapResponseWriter.WriteHeader(code)
}

func (e *errCapture) Write(b []byte) (int, error) {
	if e.statusCode >= 400 && e.buf.Len() < 4096 {
		e.buf.Write(b)
	}
	return e.WrapResponseWriter.Write(b)
}

func errorMessage(body []byte) string {
	var obj struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &obj) == nil {
		return obj.Error
	}
	return ""
}

// routePattern returns the matched chi pattern, falling back to the raw path for unmatched requests
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// Logger logs one line per request; 4xx at Warn and 5xx at Error with the response's error message.
// obs may be nil.
func Logger(log *logger.Logger, obs RequestObserver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ec := &errCapture{WrapResponseWriter: ww}
			start := time.Now()

			ctx, info := withRequestInfo(r.Context())
			reqID := chimiddleware.GetReqID(ctx)
			if reqID != "" {
				ctx = context.WithValue(ctx, logger.RequestIDKey, reqID)
			}
			r = r.WithContext(ctx)

			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				elapsed := time.Since(start)
				route := routePattern(r)

				if obs != nil {
					obs.ObserveRequest(route, r.Method, status, elapsed)
				}

				attrs := []any{
					"method", r.Method,
					"path", r.URL.Path,
					"route", route,
					"remote_addr", r.RemoteAddr,
					"status", status,
					"bytes", ww.BytesWritten(),
					"duration_ms", elapsed.Milliseconds(),
				}
				if reqID != "" {
					attrs = append(attrs, "request_id", reqID)
				}
				if info.client != "" {
					attrs = append(attrs, "client", info.client)
				}
				if status >= 400 {
					if msg := errorMessage(ec.buf.Bytes()); msg != "" {
						attrs = append(attrs, "error", msg)
					}
				}

				switch {
				case status >= 500:
					log.Error("HTTP request", attrs...)
				case status >= 400:
					log.Warn("HTTP request", attrs...)
				default:
					log.Info("HTTP request", attrs...)
				}
			}()

			next.ServeHTTP(ec, r)
		})
	}
}
