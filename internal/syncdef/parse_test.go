package syncdef

import (
	"errors"
	"reflect"
	"testing"

	"github.com/John-Robertt/subsync-go/internal/model"
)

func TestParse_OK(t *testing.T) {
	yml := `
lvory_sync:
  version: "1.0"
  master_config:
    source: local
    path: ./master.json
    config_type: singbox
  secondary_sources:
    - name: provider-a
      source: url
      url: https://sub.example.com/a
      sync_mode: mapped_only
      node_maps:
        HK: HK-01
        JP: /^jp/
      priority: 2
    - name: provider-b
      url: https://sub.example.com/b
      config_type: clash
      node_scope:
        include_patterns: ["香港", "HK"]
        exclude_patterns: "expire"
        max_nodes: 2
        node_selection: priority
      filter:
        include_types: [vmess, trojan]
    - name: off
      path: ./c.yaml
      enabled: false
`
	def, err := Parse("file://sync.yaml", yml)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if def.Version != "1.0" {
		t.Fatalf("version=%q, want=%q", def.Version, "1.0")
	}
	want := Location{Source: SourceLocal, Path: "./master.json", ConfigType: model.ConfigSingBox}
	if def.Master != want {
		t.Fatalf("master=%+v, want=%+v", def.Master, want)
	}
	if def.Master.Target() != "./master.json" {
		t.Fatalf("target=%q", def.Master.Target())
	}
	if len(def.Sources) != 3 {
		t.Fatalf("sources=%d, want=3", len(def.Sources))
	}

	a := def.Sources[0]
	if a.SyncMode != ModeMappedOnly || a.Priority != 2 || !a.Enabled {
		t.Fatalf("source a=%+v", a)
	}
	if !reflect.DeepEqual(a.NodeMaps, map[string]string{"HK": "HK-01", "JP": "/^jp/"}) {
		t.Fatalf("node_maps=%v", a.NodeMaps)
	}
	if a.ConfigType != model.ConfigAuto {
		t.Fatalf("config_type=%q, want=auto", a.ConfigType)
	}

	b := def.Sources[1]
	if b.Source != SourceURL || b.SyncMode != ModeSelective || b.ConfigType != model.ConfigClash {
		t.Fatalf("source b=%+v", b)
	}
	wantScope := NodeScope{
		IncludePatterns: []string{"香港", "HK"},
		ExcludePatterns: []string{"expire"},
		MaxNodes:        2,
		NodeSelection:   SelectPriority,
	}
	if !reflect.DeepEqual(b.NodeScope, wantScope) {
		t.Fatalf("scope=%+v, want=%+v", b.NodeScope, wantScope)
	}
	if !reflect.DeepEqual(b.Filter.IncludeTypes, []string{"vmess", "trojan"}) {
		t.Fatalf("filter=%+v", b.Filter)
	}

	c := def.Sources[2]
	if c.Enabled || c.Source != SourceLocal || c.NodeScope.NodeSelection != SelectFirst {
		t.Fatalf("source c=%+v", c)
	}
}

func TestParse_CamelCaseKeys(t *testing.T) {
	js := `{"lvory_sync":{"version":1,"masterConfig":{"source":"url","url":"https://m.example.com","configType":"clash"},
"secondarySources":[{"url":"https://s.example.com","syncMode":"all","nodeScope":{"maxNodes":3,"targetTags":["a","b"]}}]}}`
	def, err := Parse("", js)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if def.Version != "1" || def.Master.URL != "https://m.example.com" || def.Master.ConfigType != model.ConfigClash {
		t.Fatalf("def=%+v", def)
	}
	s := def.Sources[0]
	if s.Name != "source-1" || s.SyncMode != ModeAll || s.NodeScope.MaxNodes != 3 {
		t.Fatalf("source=%+v", s)
	}
	if !reflect.DeepEqual(s.NodeScope.TargetTags, []string{"a", "b"}) {
		t.Fatalf("target_tags=%v", s.NodeScope.TargetTags)
	}
}

func TestParse_MissingMasterConfig(t *testing.T) {
	yml := `
lvory_sync:
  version: 1
  secondary_sources:
    - url: https://sub.example.com/a
`
	_, err := Parse("file://sync.yaml", yml)
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *ConfigError, got %T: %v", err, err)
	}
	if ce.AppError.Code != "SYNC_CONFIG_INVALID" || ce.AppError.Stage != "load_sync" {
		t.Fatalf("code/stage=%q/%q", ce.AppError.Code, ce.AppError.Stage)
	}
	if ce.AppError.URL != "file://sync.yaml" {
		t.Fatalf("url=%q", ce.AppError.URL)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yml  string
		code string
	}{
		{"empty", "", "SYNC_CONFIG_INVALID"},
		{"no root", "foo: 1\n", "SYNC_CONFIG_INVALID"},
		{"missing version", "lvory_sync:\n  master_config: {path: a.json}\n", "SYNC_CONFIG_INVALID"},
		{"master without location", "lvory_sync:\n  version: 1\n  master_config: {source: url}\n", "SYNC_CONFIG_INVALID"},
		{"bad master source", "lvory_sync:\n  version: 1\n  master_config: {source: ftp, url: x}\n", "SYNC_CONFIG_INVALID"},
		{"bad config type", "lvory_sync:\n  version: 1\n  master_config: {path: a, config_type: surge}\n", "SYNC_CONFIG_INVALID"},
		{"bad yaml", "lvory_sync: [", "SYNC_CONFIG_PARSE_ERROR"},
		{"multi document", "a: 1\n---\nb: 2\n", "SYNC_CONFIG_PARSE_ERROR"},
	}
	for _, tt := range tests {
		_, err := Parse("", tt.yml)
		var ce *ConfigError
		if !errors.As(err, &ce) {
			t.Fatalf("%s: expected *ConfigError, got %T: %v", tt.name, err, err)
		}
		if ce.AppError.Code != tt.code {
			t.Fatalf("%s: code=%q, want=%q", tt.name, ce.AppError.Code, tt.code)
		}
	}
}

func TestParse_InvalidSourceKept(t *testing.T) {
	tests := []struct {
		name string
		item string
	}{
		{"bad sync mode", "{url: u, sync_mode: some}"},
		{"mapped_only without maps", "{url: u, sync_mode: mapped_only}"},
		{"negative max_nodes", "{url: u, node_scope: {max_nodes: -1}}"},
		{"bad selection", "{url: u, node_scope: {node_selection: best}}"},
		{"not an object", "u"},
	}
	for _, tt := range tests {
		yml := "lvory_sync:\n  version: 1\n  master_config: {path: a}\n  secondary_sources:\n    - " + tt.item + "\n    - {name: ok, url: v}\n"
		def, err := Parse("sync.yaml", yml)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.name, err)
		}
		if len(def.Sources) != 2 {
			t.Fatalf("%s: sources=%d, want=2", tt.name, len(def.Sources))
		}
		bad, ok := def.Sources[0], def.Sources[1]
		if bad.Err == nil {
			t.Fatalf("%s: expected source error", tt.name)
		}
		if bad.Err.AppError.Code != "SYNC_CONFIG_INVALID" || bad.Err.AppError.URL != "sync.yaml" {
			t.Fatalf("%s: err=%+v", tt.name, bad.Err.AppError)
		}
		if bad.Name != "source-1" {
			t.Fatalf("%s: name=%q, want=source-1", tt.name, bad.Name)
		}
		if ok.Err != nil || ok.Name != "ok" {
			t.Fatalf("%s: valid source=%+v", tt.name, ok)
		}
	}
}
