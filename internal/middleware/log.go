package middleware

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const maxLoggedBody = 4 << 10

type responseData struct {
	status int
	size   int
}

type loggingResponseWriter struct {
	http.ResponseWriter
	data *responseData
}

func (w *loggingResponseWriter) Write(b []byte) (int, error) {
	size, err := w.ResponseWriter.Write(b)
	w.data.size += size
	return size, err
}

func (w *loggingResponseWriter) WriteHeader(statusCode int) {
	w.ResponseWriter.WriteHeader(statusCode)
	w.data.status = statusCode
}

func LogMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			body := "[empty]"
			if r.Body != nil && r.Body != http.NoBody {
				body = peekBody(r)
			}

			data := &responseData{status: http.StatusOK}
			lw := &loggingResponseWriter{ResponseWriter: w, data: data}

			next.ServeHTTP(lw, r)

			logger.Infof("method=%s uri=%s status=%d size=%d duration=%s body=%s outputheaders=%v",
				r.Method, r.RequestURI, data.status, data.size, time.Since(start), body, w.Header())
		})
	}
}

type replayBody struct {
	io.Reader
	io.Closer
}

// peekBody buffers at most maxLoggedBody+1 bytes and hands the handler the
// same stream back. Encoded, oversized and credential-carrying bodies are not
// logged.
func peekBody(r *http.Request) string {
	if r.Header.Get("Content-Encoding") != "" {
		return "[encoded]"
	}

	head, err := io.ReadAll(io.LimitReader(r.Body, maxLoggedBody+1))
	r.Body = replayBody{Reader: io.MultiReader(bytes.NewReader(head), r.Body), Closer: r.Body}
	if err != nil {
		return "[unreadable]"
	}

	return loggedBody(head)
}

func loggedBody(head []byte) string {
	if len(head) > maxLoggedBody {
		return "[too large]"
	}
	s := string(head)
	if strings.Contains(s, `"password"`) || strings.Contains(s, `"api_key"`) {
		return "[redacted]"
	}
	return s
}
