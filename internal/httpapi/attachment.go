package httpapi

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/John-Robertt/subsync-go/internal/render"
)

// setAttachmentHeaders marks a rendered config as a download named after
// the filename query parameter (default "config" plus the format extension).
func setAttachmentHeaders(w http.ResponseWriter, base string, f render.Format) error {
	filename, err := outputFileName(base, f)
	if err != nil {
		return err
	}
	// Add both filename and filename* for better UTF-8 compatibility.
	w.Header().Set("Content-Disposition", contentDispositionAttachment(filename))
	return nil
}

func outputFileName(base string, f render.Format) (string, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		base = "config"
	}
	if strings.ContainsAny(base, "\r\n\x00") {
		return "", requestError("INVALID_ARGUMENT", "filename 含有非法控制字符", "")
	}
	if strings.Contains(base, "/") || strings.Contains(base, "\\") {
		return "", requestError("INVALID_ARGUMENT", "filename 不允许包含路径分隔符", "")
	}
	if len(base) > 200 {
		return "", requestError("INVALID_ARGUMENT", "filename 过长", "max=200 bytes")
	}
	if hasExt(base) {
		return base, nil
	}
	return base + defaultExt(f), nil
}

func hasExt(name string) bool {
	i := strings.LastIndexByte(name, '.')
	return i > 0 && i < len(name)-1
}

func defaultExt(f render.Format) string {
	if f == render.FormatYAML {
		return ".yaml"
	}
	return ".json"
}

func contentDispositionAttachment(filename string) string {
	// RFC 6266 + RFC 5987.
	escaped := strings.ReplaceAll(filename, "\\", "\\\\")
	escaped = strings.ReplaceAll(escaped, "\"", "\\\"")

	// Space is encoded as %20, not "+".
	return fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", escaped, pctEncode(filename))
}

func pctEncode(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
