// Package render encodes a finished configuration tree.
package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/John-Robertt/subsync-go/internal/model"
	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts "json", "yaml" and "yml". Empty input means JSON.
func ParseFormat(s string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, true
	case "yaml", "yml":
		return FormatYAML, true
	default:
		return "", false
	}
}

// FormatFor is the native encoding of a config dialect.
func FormatFor(t model.ConfigType) Format {
	switch t {
	case model.ConfigClash, model.ConfigHysteria:
		return FormatYAML
	default:
		return FormatJSON
	}
}

func (f Format) ContentType() string {
	if f == FormatYAML {
		return "application/yaml; charset=utf-8"
	}
	return "application/json; charset=utf-8"
}

var jsonAPI = jsoniter.Config{
	EscapeHTML:             false,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()

type RenderError struct {
	AppError model.AppError
	Cause    error
}

func (e *RenderError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *RenderError) Unwrap() error { return e.Cause }

// Encode renders tree as 2-space indented JSON or YAML, ending in a newline.
func Encode(tree any, f Format) ([]byte, error) {
	switch f {
	case FormatJSON:
		b, err := jsonAPI.MarshalIndent(tree, "", "  ")
		if err != nil {
			return nil, renderError("JSON 编码失败", err)
		}
		return append(b, '\n'), nil
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(tree); err != nil {
			return nil, renderError("YAML 编码失败", err)
		}
		if err := enc.Close(); err != nil {
			return nil, renderError("YAML 编码失败", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, &RenderError{
			AppError: model.AppError{
				Code:    "UNSUPPORTED_FORMAT",
				Message: fmt.Sprintf("不支持的输出格式：%s", f),
				Stage:   "render",
			},
		}
	}
}

func renderError(msg string, cause error) *RenderError {
	return &RenderError{
		AppError: model.AppError{
			Code:    "RENDER_ERROR",
			Message: msg,
			Stage:   "render",
		},
		Cause: cause,
	}
}
