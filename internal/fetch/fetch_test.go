package fetch

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/John-Robertt/subsync-go/internal/syncdef"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

func TestFetchText_UnsupportedScheme(t *testing.T) {
	_, err := FetchText(context.Background(), KindSource, "file:///etc/passwd")
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %T: %v", err, err)
	}
	if fe.Status != http.StatusBadRequest {
		t.Fatalf("status=%d, want=%d", fe.Status, http.StatusBadRequest)
	}
	if fe.AppError.Code != "INVALID_ARGUMENT" {
		t.Fatalf("code=%q, want=%q", fe.AppError.Code, "INVALID_ARGUMENT")
	}
	if fe.AppError.Stage != "fetch_source" {
		t.Fatalf("stage=%q, want=%q", fe.AppError.Stage, "fetch_source")
	}
}

func TestFetchText_UserAgent(t *testing.T) {
	var gotUA, gotAE string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAE = r.Header.Get("Accept-Encoding")
		_, _ = w.Write([]byte("ok"))
	}))
	defer ts.Close()

	text, err := FetchText(context.Background(), KindMaster, ts.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "ok" {
		t.Fatalf("text=%q, want=%q", text, "ok")
	}
	if gotUA != DefaultUserAgent {
		t.Fatalf("user-agent=%q, want=%q", gotUA, DefaultUserAgent)
	}
	if !strings.Contains(gotAE, "gzip") || !strings.Contains(gotAE, "zstd") {
		t.Fatalf("accept-encoding=%q", gotAE)
	}
}

func TestFetchText_Compressed(t *testing.T) {
	const payload = "proxies:\n  - {name: a, type: ss}\n"

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	_, _ = zw.Write([]byte(payload))
	_ = zw.Close()

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatalf("zstd writer: %v", err)
	}
	zs := enc.EncodeAll([]byte(payload), nil)
	_ = enc.Close()

	tests := []struct {
		encoding string
		body     []byte
	}{
		{"gzip", gz.Bytes()},
		{"zstd", zs},
	}
	for _, tt := range tests {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Encoding", tt.encoding)
			_, _ = w.Write(tt.body)
		}))
		text, err := FetchText(context.Background(), KindSource, ts.URL)
		ts.Close()
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.encoding, err)
		}
		if text != payload {
			t.Fatalf("%s: text=%q, want=%q", tt.encoding, text, payload)
		}
	}
}

func TestFetchText_TooLarge(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", 32)))
	}))
	defer ts.Close()

	_, err := FetchTextWithOptions(context.Background(), KindMaster, ts.URL, Options{MaxBytes: 10})
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %T: %v", err, err)
	}
	if fe.Status != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d, want=%d", fe.Status, http.StatusUnprocessableEntity)
	}
	if fe.AppError.Code != "TOO_LARGE" {
		t.Fatalf("code=%q, want=%q", fe.AppError.Code, "TOO_LARGE")
	}
	if fe.AppError.Stage != "fetch_master" {
		t.Fatalf("stage=%q, want=%q", fe.AppError.Stage, "fetch_master")
	}
}

func TestFetchText_InvalidUTF8(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 0xff is always invalid in UTF-8.
		_, _ = w.Write([]byte{0xff, 0xfe, 0xfd})
	}))
	defer ts.Close()

	_, err := FetchText(context.Background(), KindSource, ts.URL)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %T: %v", err, err)
	}
	if fe.AppError.Code != "FETCH_INVALID_UTF8" {
		t.Fatalf("code=%q, want=%q", fe.AppError.Code, "FETCH_INVALID_UTF8")
	}
}

func TestFetchText_Non2xx(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer ts.Close()

	_, err := FetchText(context.Background(), KindSource, ts.URL)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %T: %v", err, err)
	}
	if fe.Status != http.StatusBadGateway || fe.AppError.Code != "FETCH_FAILED" {
		t.Fatalf("status/code=%d/%q", fe.Status, fe.AppError.Code)
	}
}

func TestFetchText_Timeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte("ok"))
	}))
	defer ts.Close()

	_, err := FetchTextWithOptions(context.Background(), KindSource, ts.URL, Options{Timeout: 50 * time.Millisecond})
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %T: %v", err, err)
	}
	if fe.Status != http.StatusGatewayTimeout {
		t.Fatalf("status=%d, want=%d", fe.Status, http.StatusGatewayTimeout)
	}
	if fe.AppError.Code != "FETCH_TIMEOUT" {
		t.Fatalf("code=%q, want=%q", fe.AppError.Code, "FETCH_TIMEOUT")
	}
}

func TestFetchText_TooManyRedirects(t *testing.T) {
	var ts *httptest.Server
	ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, ts.URL, http.StatusFound)
	}))
	defer ts.Close()

	_, err := FetchTextWithOptions(context.Background(), KindSource, ts.URL, Options{MaxRedirects: 2})
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %T: %v", err, err)
	}
	if fe.Status != http.StatusBadGateway {
		t.Fatalf("status=%d, want=%d", fe.Status, http.StatusBadGateway)
	}
	if fe.AppError.Code != "FETCH_FAILED" {
		t.Fatalf("code=%q, want=%q", fe.AppError.Code, "FETCH_FAILED")
	}
}

func TestFetchText_RedirectToNonHTTP(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "file:///etc/passwd", http.StatusFound)
	}))
	defer ts.Close()

	_, err := FetchTextWithOptions(context.Background(), KindSource, ts.URL, Options{MaxRedirects: 5})
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %T: %v", err, err)
	}
	if fe.Status != http.StatusBadRequest {
		t.Fatalf("status=%d, want=%d", fe.Status, http.StatusBadRequest)
	}
	if fe.AppError.Code != "INVALID_ARGUMENT" {
		t.Fatalf("code=%q, want=%q", fe.AppError.Code, "INVALID_ARGUMENT")
	}
}

func TestReadLocal(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "master.json"), []byte(`{"outbounds":[]}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	text, err := ReadLocal(KindMaster, "master.json", Options{BaseDir: dir})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != `{"outbounds":[]}` {
		t.Fatalf("text=%q", text)
	}

	_, err = ReadLocal(KindMaster, "missing.json", Options{BaseDir: dir})
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %T: %v", err, err)
	}
	if fe.AppError.Code != "FILE_NOT_FOUND" || fe.AppError.Stage != "fetch_master" {
		t.Fatalf("code/stage=%q/%q", fe.AppError.Code, fe.AppError.Stage)
	}
}

func TestLoader_Load(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("remote"))
	}))
	defer ts.Close()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("local"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	l := &Loader{Options: Options{BaseDir: dir}}
	got, err := l.Load(context.Background(), KindSource, syncdef.Location{Source: syncdef.SourceURL, URL: ts.URL})
	if err != nil || got != "remote" {
		t.Fatalf("url load=%q, %v", got, err)
	}
	got, err = l.Load(context.Background(), KindSource, syncdef.Location{Source: syncdef.SourceLocal, Path: "a.yaml"})
	if err != nil || got != "local" {
		t.Fatalf("local load=%q, %v", got, err)
	}
	if hits.Load() != 1 {
		t.Fatalf("hits=%d, want=1", hits.Load())
	}
}
