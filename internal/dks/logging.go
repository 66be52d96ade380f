package dks

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// requestLogger logs every data key service request
type requestLogger struct {
	logger            *logrus.Entry
	logHealthRequests bool
}

func (l *requestLogger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		if !l.logHealthRequests && r.URL.Path == "/healthcheck" {
			return
		}

		entry := l.logger.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      wrapped.statusCode,
			"duration":    time.Since(start),
			"remote_addr": r.RemoteAddr,
		})
		if keyID := r.URL.Query().Get("keyId"); keyID != "" {
			entry = entry.WithField("keyId", keyID)
		}

		if wrapped.statusCode >= http.StatusBadRequest {
			entry.Warn("Data key request failed")
			return
		}
		entry.Info("Data key request processed")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
