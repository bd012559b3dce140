package imago

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

type statusCapturingWriter struct {
	http.ResponseWriter
	StatusCode int
	Bytes      int64
}

func (scw *statusCapturingWriter) WriteHeader(status int) {
	scw.StatusCode = status
	scw.ResponseWriter.WriteHeader(status)
}

func (scw *statusCapturingWriter) Write(b []byte) (int, error) {
	if scw.StatusCode == 0 {
		scw.StatusCode = http.StatusOK
	}
	n, err := scw.ResponseWriter.Write(b)
	scw.Bytes += int64(n)
	return n, err
}

// WithLogging logs every response served by handler with its status, size and
// duration in milliseconds.
func WithLogging(handler http.Handler, logger *zap.SugaredLogger) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, req *http.Request) {
		scw := statusCapturingWriter{ResponseWriter: writer}
		start := time.Now()

		handler.ServeHTTP(&scw, req)

		duration := time.Since(start).Milliseconds()
		logger.Infow("Responded",
			"req.URL", req.URL,
			"method", req.Method,
			"duration", duration,
			"status", scw.StatusCode,
			"bytes", scw.Bytes,
		)
	})
}
