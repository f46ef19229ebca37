// Package normalize classifies proxy configuration text (sing-box, Clash,
// V2Ray/Xray, Hysteria, ss:// lists) and extracts its endpoints as
// sing-box outbound nodes.
package normalize

import (
	"fmt"
	"strings"

	"github.com/John-Robertt/subsync-go/internal/model"
	"github.com/John-Robertt/subsync-go/internal/sub/ss"
	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Probe is text parsed once for detection. Doc is the top-level object when
// the text is a JSON object (JSON is true) or a YAML mapping.
type Probe struct {
	Text string
	JSON bool
	Doc  map[string]any
}

func NewProbe(text string) *Probe {
	p := &Probe{Text: text}
	trimmed := strings.TrimSpace(strings.TrimPrefix(text, "\uFEFF"))
	if strings.HasPrefix(trimmed, "{") {
		var m map[string]any
		if err := json.UnmarshalFromString(trimmed, &m); err == nil && m != nil {
			p.JSON, p.Doc = true, m
			return p
		}
	}
	var v any
	if err := yaml.Unmarshal([]byte(trimmed), &v); err == nil {
		if m, ok := v.(map[string]any); ok {
			p.Doc = m
		}
	}
	return p
}

func (p *Probe) has(keys ...string) bool {
	return hasAny(p.Doc, keys...)
}

// Normalizer handles one configuration dialect.
type Normalizer interface {
	Type() model.ConfigType
	Detect(p *Probe) bool
	Extract(doc *Document) []model.Node
}

// registry is tried in order by DetectConfigType.
var registry = []Normalizer{
	singBoxNormalizer{},
	v2rayNormalizer{},
	clashNormalizer{},
	hysteriaNormalizer{},
	linksNormalizer{},
}

func lookup(t model.ConfigType) Normalizer {
	if t == model.ConfigXray {
		t = model.ConfigV2Ray
	}
	for _, n := range registry {
		if n.Type() == t {
			return n
		}
	}
	return nil
}

// DetectConfigType classifies text. Unrecognized YAML mappings fall back to
// Clash; text that is neither JSON nor a YAML mapping falls back to sing-box.
func DetectConfigType(text string) model.ConfigType {
	return detect(NewProbe(text))
}

func detect(p *Probe) model.ConfigType {
	for _, n := range registry {
		if n.Detect(p) {
			return n.Type()
		}
	}
	if p.Doc != nil {
		return model.ConfigClash
	}
	return model.ConfigSingBox
}

// Document is parsed configuration text of a known type.
type Document struct {
	Type model.ConfigType
	Tree map[string]any
	Text string

	// Skipped lists lines of a share-link list that could not be parsed.
	Skipped []error

	links []model.Node
}

// Parse classifies text (unless hint names a type) and parses it.
func Parse(sourceURL, text string, hint model.ConfigType) (*Document, error) {
	if strings.TrimSpace(text) == "" {
		return nil, newParseError(sourceURL, "", "CONFIG_EMPTY", "配置内容为空", nil)
	}
	p := NewProbe(text)
	t := hint
	if t == "" || t == model.ConfigAuto {
		t = detect(p)
	}
	if lookup(t) == nil {
		return nil, newParseError(sourceURL, "", "CONFIG_TYPE_UNSUPPORTED", fmt.Sprintf("不支持的配置类型：%s", hint), nil)
	}

	doc := &Document{Type: t, Text: text}
	if t == model.ConfigLinks {
		nodes, skipped, err := ss.ParseSubscriptionText(sourceURL, text)
		if err != nil {
			return nil, err
		}
		doc.links = nodes
		for _, s := range skipped {
			doc.Skipped = append(doc.Skipped, s)
		}
		return doc, nil
	}
	if p.Doc == nil {
		return nil, newParseError(sourceURL, truncateSnippet(text, 200), "CONFIG_PARSE_ERROR", fmt.Sprintf("%s 配置解析失败", t), nil)
	}
	doc.Tree = p.Doc
	return doc, nil
}

// Nodes extracts doc's nodes and stamps them with source and priority. A
// document without nodes yields an empty slice.
func Nodes(doc *Document, source string, priority int) []model.Node {
	n := lookup(doc.Type)
	if n == nil {
		return nil
	}
	nodes := n.Extract(doc)
	for i := range nodes {
		nodes[i].Source = source
		nodes[i].Priority = priority
	}
	return nodes
}

type ParseError struct {
	AppError model.AppError
	Cause    error
}

func (e *ParseError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

func newParseError(sourceURL, snippet, code, message string, cause error) *ParseError {
	return &ParseError{
		AppError: model.AppError{
			Code:    code,
			Message: message,
			Stage:   "parse_config",
			URL:     sourceURL,
			Snippet: snippet,
		},
		Cause: cause,
	}
}

func truncateSnippet(s string, max int) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	if len(s) <= max {
		return s
	}
	return s[:max]
}
