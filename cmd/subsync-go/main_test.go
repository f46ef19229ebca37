package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDeriveHealthzURL_FromListenAddr(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"127.0.0.1:25500", "http://127.0.0.1:25500/healthz"},
		{"0.0.0.0:25500", "http://127.0.0.1:25500/healthz"},
		{":25500", "http://127.0.0.1:25500/healthz"},
		{"25500", "http://127.0.0.1:25500/healthz"},
		{"[::]:25500", "http://127.0.0.1:25500/healthz"},
		{"http://127.0.0.1:25500", "http://127.0.0.1:25500/healthz"},
	}
	for _, tt := range tests {
		got, err := deriveHealthzURL(tt.in)
		if err != nil {
			t.Fatalf("deriveHealthzURL(%q) unexpected err: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("deriveHealthzURL(%q)=%q, want=%q", tt.in, got, tt.want)
		}
	}
}

func TestDeriveHealthzURL_Invalid(t *testing.T) {
	for _, in := range []string{"", "localhost", "http://"} {
		if got, err := deriveHealthzURL(in); err == nil {
			t.Fatalf("deriveHealthzURL(%q)=%q, want error", in, got)
		}
	}
}

func TestRunHealthcheck_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}))
	defer ts.Close()

	if err := runHealthcheck(ts.URL+"/healthz", 200*time.Millisecond); err != nil {
		t.Fatalf("runHealthcheck unexpected err: %v", err)
	}
}

func TestRunHealthcheck_StatusNotOK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	err := runHealthcheck(ts.URL, 200*time.Millisecond)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "unexpected status") {
		t.Fatalf("err=%q, want contains %q", err.Error(), "unexpected status")
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestRunSync_LocalFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "master.json", `{"outbounds":[{"type":"trojan","tag":"HK","server":"old.example.com"},{"type":"direct","tag":"direct"}]}`)
	writeFile(t, dir, "clash.yaml", `
proxies:
  - {name: "HK 01", type: trojan, server: hk.example.com, port: 443, password: p}
  - {name: "JP 01", type: trojan, server: jp.example.com, port: 443, password: p}
`)
	config := writeFile(t, dir, "sync.yaml", `
lvory_sync:
  version: 1
  master_config: {source: local, path: master.json}
  secondary_sources:
    - name: clash
      source: local
      path: clash.yaml
      sync_mode: mapped_only
      node_maps: {HK: HK 01}
`)
	out := filepath.Join(dir, "out", "config.json")
	report := filepath.Join(dir, "report.json")

	if err := runSync([]string{"-config", config, "-out", out, "-report", report}, &bytes.Buffer{}); err != nil {
		t.Fatalf("runSync: %v", err)
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	got := string(b)
	if !strings.Contains(got, `"hk.example.com"`) || strings.Contains(got, "old.example.com") {
		t.Fatalf("output=%s", got)
	}
	if strings.Contains(got, "jp.example.com") {
		t.Fatalf("mapped_only added an unmapped node: %s", got)
	}
	rb, err := os.ReadFile(report)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !strings.Contains(string(rb), `"updated": 1`) {
		t.Fatalf("report=%s", rb)
	}
}

func TestRunSync_YAMLToStdout(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "master.json", `{"outbounds":[{"type":"direct","tag":"direct"}]}`)
	config := writeFile(t, dir, "sync.yaml", "lvory_sync:\n  version: 1\n  master_config: {path: master.json}\n")

	var stdout bytes.Buffer
	if err := runSync([]string{"-config", config, "-format", "yaml"}, &stdout); err != nil {
		t.Fatalf("runSync: %v", err)
	}
	if !strings.Contains(stdout.String(), "tag: direct") {
		t.Fatalf("stdout=%q", stdout.String())
	}
}

func TestRunSync_Errors(t *testing.T) {
	dir := t.TempDir()
	bad := writeFile(t, dir, "bad.yaml", "lvory_sync:\n  version: 1\n")
	cases := [][]string{
		{},
		{"-config", filepath.Join(dir, "missing.yaml")},
		{"-config", bad},
		{"-config", bad, "-format", "toml"},
	}
	for _, args := range cases {
		if err := runSync(args, &bytes.Buffer{}); err == nil {
			t.Fatalf("args=%q: expected error", args)
		}
	}
}

func TestRunMap_DefaultRules(t *testing.T) {
	dir := t.TempDir()
	settings := writeFile(t, dir, "settings.yaml", "allow_lan: true\nproxy_port: 7891\n")
	target := writeFile(t, dir, "config.json", `{"inbounds":[{"type":"mixed","listen":"127.0.0.1","listen_port":7890}]}`)

	var stdout bytes.Buffer
	if err := runMap([]string{"-settings", settings, "-target", target}, &stdout); err != nil {
		t.Fatalf("runMap: %v", err)
	}
	got := stdout.String()
	for _, want := range []string{`"listen": "0.0.0.0"`, `"listen_port": 7891`, `"external_controller": "127.0.0.1:9090"`} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
}

func TestRunMap_PersistsDefaultMappings(t *testing.T) {
	dir := t.TempDir()
	settings := writeFile(t, dir, "settings.json", `{"proxy_port": 1080}`)
	target := writeFile(t, dir, "config.json", `{"inbounds":[{"type":"mixed"}]}`)
	mappings := filepath.Join(dir, "mappings.json")
	out := filepath.Join(dir, "mapped.json")

	if err := runMap([]string{"-settings", settings, "-target", target, "-mappings", mappings, "-out", out}, &bytes.Buffer{}); err != nil {
		t.Fatalf("runMap: %v", err)
	}
	if _, err := os.Stat(mappings); err != nil {
		t.Fatalf("mapping side-file not written: %v", err)
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !strings.Contains(string(b), `"listen_port": 1080`) {
		t.Fatalf("output=%s", b)
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	if err := run("frobnicate", nil, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected error")
	}
}
