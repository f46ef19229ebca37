// Package syncdef loads the sync definition document: the master config
// location plus the secondary subscription sources merged into it.
package syncdef

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/John-Robertt/subsync-go/internal/model"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

type SourceKind string

const (
	SourceLocal SourceKind = "local"
	SourceURL   SourceKind = "url"
)

type SyncMode string

const (
	ModeMappedOnly SyncMode = "mapped_only"
	ModeSelective  SyncMode = "selective"
	ModeAll        SyncMode = "all"
)

type Selection string

const (
	SelectFirst    Selection = "first"
	SelectLast     Selection = "last"
	SelectRandom   Selection = "random"
	SelectPriority Selection = "priority"
)

type Definition struct {
	Version string
	Master  Location
	Sources []Source
}

// Location points at a local file or an HTTP(S) URL.
type Location struct {
	Source     SourceKind
	Path       string
	URL        string
	ConfigType model.ConfigType
}

// Target returns the path or URL, whichever Source selects.
func (l Location) Target() string {
	if l.Source == SourceLocal {
		return l.Path
	}
	return l.URL
}

type Source struct {
	Location

	Name     string
	Enabled  bool
	SyncMode SyncMode
	Priority int

	// NodeMaps maps a master outbound tag to a source tag, or to a
	// /regex/ matched against source tags.
	NodeMaps  map[string]string
	NodeScope NodeScope
	Filter    Filter

	// Err is set when the entry could not be decoded. Such a source is
	// never fetched; the run reports it as failed and carries on.
	Err *ConfigError
}

type NodeScope struct {
	IncludePatterns []string
	ExcludePatterns []string
	TargetTags      []string
	MaxNodes        int // 0 means unlimited
	NodeSelection   Selection
}

type Filter struct {
	IncludeTypes []string
	ExcludeTypes []string
}

type ConfigError struct {
	AppError model.AppError
	Cause    error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *ConfigError) Unwrap() error { return e.Cause }

// Parse reads a sync definition written as YAML or JSON.
func Parse(sourceURL, content string) (*Definition, error) {
	var tree any
	if err := yamlDecodeSingle(content, &tree); err != nil {
		return nil, &ConfigError{
			AppError: model.AppError{
				Code:    "SYNC_CONFIG_PARSE_ERROR",
				Message: "同步配置解析失败",
				Stage:   "load_sync",
				URL:     sourceURL,
				Snippet: truncateSnippet(content, 200),
			},
			Cause: err,
		}
	}
	def, err := FromTree(tree)
	if err != nil {
		var ce *ConfigError
		if errors.As(err, &ce) {
			ce.AppError.URL = sourceURL
		}
		return nil, err
	}
	for _, src := range def.Sources {
		if src.Err != nil {
			src.Err.AppError.URL = sourceURL
		}
	}
	return def, nil
}

// FromTree builds a Definition from a decoded document rooted at lvory_sync.
// Keys are accepted in snake_case or camelCase; unknown keys are ignored.
func FromTree(tree any) (*Definition, error) {
	root, _ := tree.(map[string]any)
	sync, ok := field(root, "lvory_sync").(map[string]any)
	if !ok {
		return nil, invalid("缺少 lvory_sync", "", nil)
	}

	version := field(sync, "version")
	if version == nil || strings.TrimSpace(fmt.Sprint(version)) == "" {
		return nil, invalid("缺少 lvory_sync.version", "", nil)
	}
	def := &Definition{Version: strings.TrimSpace(fmt.Sprint(version))}

	master, ok := field(sync, "master_config").(map[string]any)
	if !ok {
		return nil, invalid("缺少 lvory_sync.master_config", "expected: master_config: {source: local|url, path|url: ...}", nil)
	}
	loc, err := decodeLocation(master)
	if err != nil {
		return nil, invalid("master_config 不合法", "", err)
	}
	def.Master = loc

	raw := field(sync, "secondary_sources")
	if raw == nil {
		return def, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, invalid("secondary_sources 必须是数组", "", fmt.Errorf("got %T", raw))
	}
	for i, item := range list {
		var src Source
		if m, ok := item.(map[string]any); ok {
			if src, err = decodeSource(m); err != nil {
				src.Err = invalid(fmt.Sprintf("secondary_sources[%d] 不合法", i), "", err)
			}
		} else {
			src.Err = invalid(fmt.Sprintf("secondary_sources[%d] 必须是对象", i), "", fmt.Errorf("got %T", item))
		}
		if src.Name == "" {
			src.Name = fmt.Sprintf("source-%d", i+1)
		}
		def.Sources = append(def.Sources, src)
	}
	return def, nil
}

func invalid(msg, hint string, cause error) *ConfigError {
	return &ConfigError{
		AppError: model.AppError{
			Code:    "SYNC_CONFIG_INVALID",
			Message: msg,
			Stage:   "load_sync",
			Hint:    hint,
		},
		Cause: cause,
	}
}

func decodeLocation(m map[string]any) (Location, error) {
	var loc Location
	kind, err := stringField(m, "source")
	if err != nil {
		return loc, err
	}
	if loc.Path, err = stringField(m, "path"); err != nil {
		return loc, err
	}
	if loc.URL, err = stringField(m, "url"); err != nil {
		return loc, err
	}

	switch SourceKind(kind) {
	case SourceLocal, SourceURL:
		loc.Source = SourceKind(kind)
	case "":
		// Inferred from whichever location is present.
		switch {
		case loc.URL != "":
			loc.Source = SourceURL
		case loc.Path != "":
			loc.Source = SourceLocal
		}
	default:
		return loc, fmt.Errorf("source must be local or url, got %q", kind)
	}
	if loc.Source == "" || loc.Target() == "" {
		return loc, errors.New("path or url is required")
	}

	ct, err := stringField(m, "config_type")
	if err != nil {
		return loc, err
	}
	t, ok := model.ParseConfigType(strings.ToLower(ct))
	if !ok {
		return loc, fmt.Errorf("unsupported config_type %q", ct)
	}
	loc.ConfigType = t
	return loc, nil
}

func decodeSource(m map[string]any) (Source, error) {
	src := Source{Enabled: true, SyncMode: ModeSelective}
	var err error
	if src.Name, err = stringField(m, "name"); err != nil {
		return src, err
	}
	src.Location, err = decodeLocation(m)
	if err != nil {
		return src, err
	}

	if v := field(m, "enabled"); v != nil {
		b, ok := v.(bool)
		if !ok {
			return src, fmt.Errorf("enabled must be a boolean, got %T", v)
		}
		src.Enabled = b
	}
	mode, err := stringField(m, "sync_mode")
	if err != nil {
		return src, err
	}
	switch SyncMode(mode) {
	case "":
	case ModeMappedOnly, ModeSelective, ModeAll:
		src.SyncMode = SyncMode(mode)
	default:
		return src, fmt.Errorf("unsupported sync_mode %q", mode)
	}
	if src.Priority, err = intField(m, "priority"); err != nil {
		return src, err
	}

	if v := field(m, "node_maps"); v != nil {
		nm, ok := v.(map[string]any)
		if !ok {
			return src, fmt.Errorf("node_maps must be an object, got %T", v)
		}
		src.NodeMaps = make(map[string]string, len(nm))
		for k, v := range nm {
			s, ok := v.(string)
			if !ok || strings.TrimSpace(s) == "" {
				return src, fmt.Errorf("node_maps.%s must be a non-empty string", k)
			}
			src.NodeMaps[k] = strings.TrimSpace(s)
		}
	}
	if src.SyncMode == ModeMappedOnly && len(src.NodeMaps) == 0 {
		return src, errors.New("mapped_only requires node_maps")
	}

	if v := field(m, "node_scope"); v != nil {
		sm, ok := v.(map[string]any)
		if !ok {
			return src, fmt.Errorf("node_scope must be an object, got %T", v)
		}
		if src.NodeScope, err = decodeScope(sm); err != nil {
			return src, err
		}
	}
	if src.NodeScope.NodeSelection == "" {
		src.NodeScope.NodeSelection = SelectFirst
	}

	if v := field(m, "filter"); v != nil {
		fm, ok := v.(map[string]any)
		if !ok {
			return src, fmt.Errorf("filter must be an object, got %T", v)
		}
		if src.Filter.IncludeTypes, err = stringList(fm, "include_types"); err != nil {
			return src, err
		}
		if src.Filter.ExcludeTypes, err = stringList(fm, "exclude_types"); err != nil {
			return src, err
		}
	}
	return src, nil
}

func decodeScope(m map[string]any) (NodeScope, error) {
	var s NodeScope
	var err error
	if s.IncludePatterns, err = stringList(m, "include_patterns"); err != nil {
		return s, err
	}
	if s.ExcludePatterns, err = stringList(m, "exclude_patterns"); err != nil {
		return s, err
	}
	if s.TargetTags, err = stringList(m, "target_tags"); err != nil {
		return s, err
	}
	if s.MaxNodes, err = intField(m, "max_nodes"); err != nil {
		return s, err
	}
	if s.MaxNodes < 0 {
		return s, fmt.Errorf("max_nodes must not be negative, got %d", s.MaxNodes)
	}
	sel, err := stringField(m, "node_selection")
	if err != nil {
		return s, err
	}
	switch Selection(sel) {
	case "", SelectFirst, SelectLast, SelectRandom, SelectPriority:
		s.NodeSelection = Selection(sel)
	default:
		return s, fmt.Errorf("unsupported node_selection %q", sel)
	}
	return s, nil
}

// normKey folds "node_maps" and "nodeMaps" to the same key.
func normKey(k string) string {
	return strings.ToLower(strings.ReplaceAll(k, "_", ""))
}

func field(m map[string]any, key string) any {
	if m == nil {
		return nil
	}
	if v, ok := m[key]; ok {
		return v
	}
	want := normKey(key)
	for k, v := range m {
		if normKey(k) == want {
			return v
		}
	}
	return nil
}

func stringField(m map[string]any, key string) (string, error) {
	v := field(m, key)
	if v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string, got %T", key, v)
	}
	return strings.TrimSpace(s), nil
}

func intField(m map[string]any, key string) (int, error) {
	switch n := field(m, key).(type) {
	case nil:
		return 0, nil
	case int:
		return n, nil
	case float64:
		if n == float64(int(n)) {
			return int(n), nil
		}
	}
	return 0, fmt.Errorf("%s must be an integer", key)
}

// stringList accepts a list or a single string.
func stringList(m map[string]any, key string) ([]string, error) {
	switch v := field(m, key).(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		return []string{strings.TrimSpace(v)}, nil
	case []any:
		out := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d] must be a string, got %T", key, i, item)
			}
			out = append(out, strings.TrimSpace(s))
		}
		return lo.Compact(out), nil
	default:
		return nil, fmt.Errorf("%s must be a list of strings, got %T", key, v)
	}
}

func yamlDecodeSingle(content string, out any) error {
	dec := yaml.NewDecoder(strings.NewReader(content))
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	var extra any
	if err := dec.Decode(&extra); err == nil {
		return errors.New("multiple YAML documents are not allowed")
	} else if !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func truncateSnippet(s string, max int) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	return s[:max]
}
