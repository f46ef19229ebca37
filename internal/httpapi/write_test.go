package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/John-Robertt/subsync-go/internal/model"
	"github.com/John-Robertt/subsync-go/internal/render"
)

func TestWriteError_JSONShapeAndHeaders(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, http.StatusUnprocessableEntity, model.AppError{
		Code:    "SYNC_CONFIG_INVALID",
		Message: "同步配置无效",
		Stage:   "load_sync",
		URL:     "https://example.com/sync.yaml",
		Line:    7,
		Snippet: "sync_mode: sometimes",
		Hint:    "expected: mapped_only, selective, all",
	})

	if got, want := rr.Code, http.StatusUnprocessableEntity; got != want {
		t.Fatalf("status=%d, want=%d", got, want)
	}
	if got, want := rr.Header().Get("Content-Type"), "application/json; charset=utf-8"; got != want {
		t.Fatalf("Content-Type=%q, want=%q", got, want)
	}

	var resp model.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nbody=%q", err, rr.Body.String())
	}
	if resp.Error.Code != "SYNC_CONFIG_INVALID" {
		t.Fatalf("code=%q, want=%q", resp.Error.Code, "SYNC_CONFIG_INVALID")
	}
	if resp.Error.Stage != "load_sync" {
		t.Fatalf("stage=%q, want=%q", resp.Error.Stage, "load_sync")
	}
	if resp.Error.Line != 7 {
		t.Fatalf("line=%d, want=%d", resp.Error.Line, 7)
	}
}

func TestOutputFileName(t *testing.T) {
	cases := []struct {
		base    string
		f       render.Format
		want    string
		wantErr bool
	}{
		{base: "", want: "config.json"},
		{base: "", f: render.FormatYAML, want: "config.yaml"},
		{base: "lvory", want: "lvory.json"},
		{base: "lvory.conf", f: render.FormatYAML, want: "lvory.conf"},
		{base: "a/b", wantErr: true},
		{base: "a\nb", wantErr: true},
	}
	for _, tc := range cases {
		got, err := outputFileName(tc.base, tc.f)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("base=%q: expected error, got %q", tc.base, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("base=%q: unexpected error: %v", tc.base, err)
		}
		if got != tc.want {
			t.Fatalf("base=%q: name=%q, want=%q", tc.base, got, tc.want)
		}
	}
}

func TestContentDispositionAttachment(t *testing.T) {
	got := contentDispositionAttachment(`my "conf".json`)
	want := `attachment; filename="my \"conf\".json"; filename*=UTF-8''my%20%22conf%22.json`
	if got != want {
		t.Fatalf("header=%q, want=%q", got, want)
	}
}
