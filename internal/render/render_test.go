package render

import (
	"errors"
	"strings"
	"testing"

	"github.com/John-Robertt/subsync-go/internal/model"
)

func sampleTree() map[string]any {
	return map[string]any{
		"outbounds": []any{
			map[string]any{"type": "shadowsocks", "tag": "n1", "server": "example.com", "server_port": 8388, "password": "123"},
		},
		"log": map[string]any{"level": "info"},
		"route": map[string]any{"final": "<proxy>"},
	}
}

func TestEncode_JSON(t *testing.T) {
	b, err := Encode(sampleTree(), FormatJSON)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := string(b)
	if !strings.HasPrefix(out, "{\n  \"log\"") {
		t.Fatalf("keys should be sorted with 2-space indent, got:\n%s", out)
	}
	if !strings.Contains(out, `"final": "<proxy>"`) {
		t.Fatalf("HTML should not be escaped, got:\n%s", out)
	}
	if !strings.HasSuffix(out, "}\n") {
		t.Fatalf("missing trailing newline")
	}
}

func TestEncode_YAML_PasswordQuoted(t *testing.T) {
	b, err := Encode(sampleTree(), FormatYAML)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := string(b)
	if !strings.Contains(out, `password: "123"`) {
		t.Fatalf("numeric-looking password should be quoted, got:\n%s", out)
	}
	if !strings.Contains(out, "\n  - ") && !strings.Contains(out, "outbounds:\n  - ") {
		t.Fatalf("expected 2-space indent, got:\n%s", out)
	}
}

func TestEncode_Unsupported(t *testing.T) {
	_, err := Encode(sampleTree(), Format("toml"))
	var re *RenderError
	if !errors.As(err, &re) {
		t.Fatalf("expected *RenderError, got %T: %v", err, err)
	}
	if re.AppError.Code != "UNSUPPORTED_FORMAT" {
		t.Fatalf("code=%q, want=%q", re.AppError.Code, "UNSUPPORTED_FORMAT")
	}
}

func TestFormats(t *testing.T) {
	if FormatFor(model.ConfigClash) != FormatYAML || FormatFor(model.ConfigSingBox) != FormatJSON {
		t.Fatalf("FormatFor mismatch")
	}
	for in, want := range map[string]Format{"": FormatJSON, "JSON": FormatJSON, "yml": FormatYAML} {
		if got, ok := ParseFormat(in); !ok || got != want {
			t.Fatalf("ParseFormat(%q)=%q, want=%q", in, got, want)
		}
	}
	if _, ok := ParseFormat("toml"); ok {
		t.Fatalf("ParseFormat(toml) should fail")
	}
}
