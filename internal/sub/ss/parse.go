package ss

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/John-Robertt/subsync-go/internal/model"
)

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

// link is one decoded ss:// line before it becomes a sing-box outbound.
type link struct {
	name     string
	server   string
	port     int
	method   string
	password string

	plugin     string
	pluginOpts []string // "k=v", order preserved
}

// LooksLikeList reports whether content is a raw or base64 ss:// list.
func LooksLikeList(content string) bool {
	s := strings.TrimSpace(stripUTF8BOM(content))
	if s == "" {
		return false
	}
	if strings.Contains(s, "ss://") {
		return true
	}
	decoded, err := decodeSubscriptionBase64(s)
	return err == nil && strings.Contains(decoded, "ss://")
}

// ParseSubscriptionText parses a raw or base64 encoded list of ss:// links into
// sing-box shadowsocks nodes.
//
// Lines that are not ss:// links or do not parse are skipped and returned in
// skipped; they never fail the whole list. err is only set when a base64 list
// cannot be decoded. An empty list yields no nodes and no error.
func ParseSubscriptionText(sourceURL string, content string) (nodes []model.Node, skipped []*ParseError, err error) {
	s := strings.TrimSpace(stripUTF8BOM(content))
	if s == "" {
		return nil, nil, nil
	}

	// A list containing "ss://" is raw; anything else must be base64.
	if !strings.Contains(s, "ss://") {
		decoded, derr := decodeSubscriptionBase64(s)
		if derr != nil {
			return nil, nil, newParseError(sourceURL, 0, truncateSnippet(s, 200), "SUB_BASE64_DECODE_ERROR", "订阅 base64 解码失败", "", derr)
		}
		s = strings.TrimSpace(stripUTF8BOM(decoded))
	}
	nodes, skipped = parseRawList(sourceURL, s)
	return nodes, skipped, nil
}

func parseRawList(sourceURL, raw string) ([]model.Node, []*ParseError) {
	lines := strings.Split(raw, "\n")
	out := make([]model.Node, 0, len(lines))
	var skipped []*ParseError
	for i, line := range lines {
		orig := line
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.HasPrefix(line, "ss://") {
			skipped = append(skipped, newParseError(sourceURL, i+1, truncateSnippet(orig, 200), "SUB_UNSUPPORTED_SCHEME", "仅支持 ss:// 协议", "expected: ss://...", nil))
			continue
		}
		l, err := parseSSURI(sourceURL, i+1, line)
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		out = append(out, l.node())
	}
	return out, skipped
}

func (l link) node() model.Node {
	tag := l.name
	if tag == "" {
		tag = net.JoinHostPort(l.server, strconv.Itoa(l.port))
	}
	cfg := map[string]any{
		"type":        "shadowsocks",
		"tag":         tag,
		"server":      l.server,
		"server_port": l.port,
		"method":      l.method,
		"password":    l.password,
	}
	if l.plugin != "" {
		cfg["plugin"] = singBoxPlugin(l.plugin)
		if len(l.pluginOpts) > 0 {
			cfg["plugin_opts"] = strings.Join(l.pluginOpts, ";")
		}
	}
	return model.Node{
		Tag:    tag,
		Type:   "shadowsocks",
		Server: l.server,
		Port:   l.port,
		Config: cfg,
	}
}

// singBoxPlugin maps SIP002 plugin names to the names sing-box accepts.
func singBoxPlugin(name string) string {
	switch name {
	case "simple-obfs", "obfs":
		return "obfs-local"
	}
	return name
}

func parseSSURI(sourceURL string, lineNo int, s string) (link, *ParseError) {
	fail := func(msg string, cause error) (link, *ParseError) {
		return link{}, newParseError(sourceURL, lineNo, truncateSnippet(s, 200), "SUB_PARSE_ERROR", msg, "", cause)
	}

	withoutFrag, frag, hasFrag := strings.Cut(s, "#")
	name := ""
	if hasFrag {
		decoded, err := url.PathUnescape(frag)
		if err != nil {
			decoded = frag
		}
		name = strings.TrimSpace(decoded)
		if strings.ContainsAny(name, "\r\n\x00") {
			return fail("节点名称包含非法控制字符", nil)
		}
	}

	withoutQuery, query, hasQuery := strings.Cut(withoutFrag, "?")
	plugin, pluginOpts, err := parseQueryPlugin(query, hasQuery)
	if err != nil {
		return fail("plugin 参数不合法", err)
	}

	rest := strings.TrimPrefix(withoutQuery, "ss://")
	if rest == "" {
		return fail("ss:// 后缺少内容", nil)
	}

	l := link{name: name, plugin: plugin, pluginOpts: pluginOpts}

	// SIP002: <b64(method:password)>@<host>:<port>[/]
	if userInfo, hostPart, ok := strings.Cut(rest, "@"); ok {
		if userInfo == "" || hostPart == "" {
			return fail("ss uri 格式不合法", nil)
		}
		hostPart = strings.TrimSuffix(hostPart, "/")
		method, password, err := decodeMethodPassword(userInfo)
		if err != nil {
			return fail("ss userinfo 解码失败", err)
		}
		server, port, err := parseHostPort(hostPart)
		if err != nil {
			return fail("服务器地址或端口不合法", err)
		}
		l.method, l.password, l.server, l.port = method, password, server, port
		return l, nil
	}

	// Legacy: ss://<b64(method:password@host:port)>
	decoded, err := decodeB64ToString(strings.TrimSuffix(rest, "/"))
	if err != nil {
		return fail("ss base64 解码失败", err)
	}
	if !utf8.ValidString(decoded) {
		return fail("ss base64 解码结果不是合法 UTF-8", nil)
	}
	at := strings.LastIndex(decoded, "@")
	if at < 0 {
		return fail("ss base64 解码结果缺少 @ 分隔符", nil)
	}
	method, password, err := splitMethodPassword(decoded[:at])
	if err != nil {
		return fail("ss base64 解码结果缺少 cipher:password", err)
	}
	server, port, err := parseHostPort(decoded[at+1:])
	if err != nil {
		return fail("服务器地址或端口不合法", err)
	}
	l.method, l.password, l.server, l.port = method, password, server, port
	return l, nil
}

// parseQueryPlugin extracts the SIP002 plugin parameter. Other parameters are
// ignored. net/url.ParseQuery is not used because plugin values carry raw
// semicolons.
func parseQueryPlugin(query string, hasQuery bool) (string, []string, error) {
	if !hasQuery || query == "" {
		return "", nil, nil
	}
	var pluginValue string
	for _, part := range strings.Split(query, "&") {
		kRaw, vRaw, _ := strings.Cut(part, "=")
		k, err := url.QueryUnescape(kRaw)
		if err != nil || k != "plugin" {
			continue
		}
		v, err := url.PathUnescape(vRaw)
		if err != nil {
			return "", nil, err
		}
		pluginValue = v
	}
	if strings.TrimSpace(pluginValue) == "" {
		return "", nil, nil
	}

	segs := strings.Split(pluginValue, ";")
	name := strings.TrimSpace(segs[0])
	if name == "" {
		return "", nil, errors.New("empty plugin name")
	}
	opts := make([]string, 0, len(segs)-1)
	for _, seg := range segs[1:] {
		if seg == "" {
			continue
		}
		k, v, ok := strings.Cut(seg, "=")
		k = strings.TrimSpace(k)
		if k == "" {
			return "", nil, errors.New("empty plugin option key")
		}
		if !ok {
			// Flags such as "tls" in v2ray-plugin options carry no value.
			opts = append(opts, k)
			continue
		}
		opts = append(opts, k+"="+v)
	}
	return name, opts, nil
}

func parseHostPort(s string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(strings.TrimSpace(s))
	if err != nil {
		return "", 0, err
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return "", 0, errors.New("empty host")
	}
	port, err := strconv.Atoi(strings.TrimSpace(portStr))
	if err != nil {
		return "", 0, err
	}
	if port < 1 || port > 65535 {
		return "", 0, errors.New("port out of range")
	}
	return host, port, nil
}

// decodeMethodPassword accepts base64 userinfo and, as some providers emit,
// percent-encoded plain "method:password" (required for 2022 ciphers).
func decodeMethodPassword(userInfo string) (string, string, error) {
	if decoded, err := decodeB64ToString(userInfo); err == nil && utf8.ValidString(decoded) && strings.Contains(decoded, ":") {
		return splitMethodPassword(decoded)
	}
	plain, err := url.PathUnescape(userInfo)
	if err != nil {
		return "", "", err
	}
	return splitMethodPassword(plain)
}

func splitMethodPassword(s string) (string, string, error) {
	colon := strings.IndexByte(s, ':')
	if colon <= 0 {
		return "", "", errors.New("missing ':'")
	}
	method := strings.TrimSpace(s[:colon])
	password := strings.TrimSpace(s[colon+1:])
	if method == "" || password == "" {
		return "", "", errors.New("empty method or password")
	}
	if strings.ContainsAny(method, "\r\n\x00") || strings.ContainsAny(password, "\r\n\x00") {
		return "", "", errors.New("control chars in method/password")
	}
	return method, password, nil
}

func decodeSubscriptionBase64(s string) (string, error) {
	b, err := decodeB64ToBytes(removeSpaceTabCRLF(s))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", errors.New("decoded subscription is not valid utf-8")
	}
	return string(b), nil
}

func decodeB64ToString(s string) (string, error) {
	b, err := decodeB64ToBytes(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeB64ToBytes(s string) ([]byte, error) {
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.RawURLEncoding,
	}
	var lastErr error
	for _, enc := range encodings {
		b, err := enc.DecodeString(s)
		if err == nil {
			return b, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func removeSpaceTabCRLF(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\r', '\n':
			continue
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func stripUTF8BOM(s string) string {
	return strings.TrimPrefix(s, "\uFEFF")
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

func newParseError(sourceURL string, lineNo int, snippet string, code string, message string, hint string, cause error) *ParseError {
	return &ParseError{
		AppError: model.AppError{
			Code:    code,
			Message: message,
			Stage:   "parse_sub",
			URL:     sourceURL,
			Line:    lineNo,
			Snippet: snippet,
			Hint:    hint,
		},
		Cause: cause,
	}
}
