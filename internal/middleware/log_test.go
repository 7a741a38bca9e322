package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func bufferLogger(buf *bytes.Buffer) *zap.SugaredLogger {
	// кастомный логгер, пишет в буфер
	encoderCfg := zap.NewDevelopmentEncoderConfig()
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.AddSync(buf),
		zapcore.DebugLevel,
	)
	return zap.New(core).Sugar()
}

func TestLogMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := bufferLogger(&buf)

	body := `{"hello":"world"}`
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()

	handler := LogMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ := io.ReadAll(r.Body)
		if string(got) != body {
			t.Errorf("handler got body %q", got)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("response"))
	}))

	handler.ServeHTTP(rr, req)

	logOutput := buf.String()
	if !strings.Contains(logOutput, "method=POST") {
		t.Error("лог не содержит метод")
	}
	if !strings.Contains(logOutput, "status=201") {
		t.Error("лог не содержит статус")
	}
	if !strings.Contains(logOutput, `body={"hello":"world"}`) {
		t.Error("лог не содержит тело запроса")
	}
	if !strings.Contains(logOutput, "outputheaders=") {
		t.Error("лог не содержит заголовки ответа")
	}
}

func TestLogMiddlewareRedactsCredentials(t *testing.T) {
	var buf bytes.Buffer
	logger := bufferLogger(&buf)

	req := httptest.NewRequest(http.MethodPost, "/api/user/login", strings.NewReader(`{"email":"a@b.c","password":"hunter22"}`))
	rr := httptest.NewRecorder()

	LogMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rr, req)

	if strings.Contains(buf.String(), "hunter22") {
		t.Error("password leaked into log")
	}
	if !strings.Contains(buf.String(), "body=[redacted]") {
		t.Error("body not redacted")
	}
}

func gzipBody(t *testing.T, body string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	gz, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := gz.Write([]byte(body)); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf
}

func TestLogMiddlewareRedactsGzipCredentials(t *testing.T) {
	login := `{"email":"a@b.c","password":"hunter22"}`

	t.Run("decompressed first", func(t *testing.T) {
		var buf bytes.Buffer
		req := httptest.NewRequest(http.MethodPost, "/api/user/login", gzipBody(t, login))
		req.Header.Set("Content-Encoding", "gzip")
		rr := httptest.NewRecorder()

		var got string
		handler := DecompressMiddleware(LogMiddleware(bufferLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			data, _ := io.ReadAll(r.Body)
			got = string(data)
			w.WriteHeader(http.StatusOK)
		})))
		handler.ServeHTTP(rr, req)

		if got != login {
			t.Fatalf("handler got body %q", got)
		}
		if !strings.Contains(buf.String(), "body=[redacted]") {
			t.Errorf("body not redacted: %s", buf.String())
		}
	})

	t.Run("still encoded", func(t *testing.T) {
		var buf bytes.Buffer
		req := httptest.NewRequest(http.MethodPost, "/api/user/login", gzipBody(t, login))
		req.Header.Set("Content-Encoding", "gzip")
		rr := httptest.NewRecorder()

		LogMiddleware(bufferLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})).ServeHTTP(rr, req)

		if strings.Contains(buf.String(), "\x1f") || strings.Contains(buf.String(), "\x8b") {
			t.Error("gzip stream written to log")
		}
		if !strings.Contains(buf.String(), "body=[encoded]") {
			t.Errorf("encoded body not masked: %s", buf.String())
		}
	})
}

func TestLogMiddlewareLargeBodyPassesThrough(t *testing.T) {
	var buf bytes.Buffer
	body := `{"link":"` + strings.Repeat("a", 3*maxLoggedBody) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/user/orders", strings.NewReader(body))
	rr := httptest.NewRecorder()

	var got []byte
	LogMiddleware(bufferLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rr, req)

	if string(got) != body {
		t.Fatalf("handler got %d bytes, want %d", len(got), len(body))
	}
	if !strings.Contains(buf.String(), "body=[too large]") {
		t.Error("oversized body logged")
	}
}
