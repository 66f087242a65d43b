package httpapi

import (
	"expvar"
	"log"
	"net/http"
	"time"
)

var (
	requestsTotal  = expvar.NewInt("requests_total")
	requestsErrors = expvar.NewInt("requests_errors_total")
	ticketsIssued  = expvar.NewInt("tickets_issued_total")
)

// responseRecorder captures the status and body size a handler produced so
// the access log and counters see the final outcome.
type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *responseRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseRecorder) Write(p []byte) (int, error) {
	n, err := w.ResponseWriter.Write(p)
	w.bytes += n
	return n, err
}

// LoggingMiddleware emits one access-log line per request and keeps the
// expvar request counters. The actor is whoever the bearer token resolved
// to (kiosk, operator, admin), which is what matters when auditing who
// called or closed a ticket.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		requestsTotal.Add(1)
		if recorder.status >= http.StatusBadRequest {
			requestsErrors.Add(1)
		}
		log.Printf("http method=%s path=%s status=%d bytes=%d duration_ms=%d actor=%s",
			r.Method, r.URL.Path, recorder.status, recorder.bytes, time.Since(start).Milliseconds(), actorFromRequest(r))
	})
}
