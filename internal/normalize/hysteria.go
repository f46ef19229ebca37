package normalize

import (
	"strconv"
	"strings"

	"github.com/John-Robertt/subsync-go/internal/model"
)

type hysteriaNormalizer struct{}

func (hysteriaNormalizer) Type() model.ConfigType { return model.ConfigHysteria }

func (hysteriaNormalizer) Detect(p *Probe) bool {
	_, ok := p.Doc["server"].(string)
	return ok && p.has("auth_str", "auth", "up_mbps", "down_mbps", "obfs")
}

// Extract reads the single endpoint of a Hysteria client config. A Hysteria 2
// client config (auth with no auth_str or v1 bandwidth keys) becomes a
// hysteria2 outbound.
func (hysteriaNormalizer) Extract(doc *Document) []model.Node {
	server, port := splitServer(str(doc.Tree, "server"))
	if server == "" {
		return nil
	}
	tag := fallbackTag(str(doc.Tree, "name"), server, port)
	var ob map[string]any
	if isHysteria2(doc.Tree) {
		ob = hysteria2Outbound(doc.Tree, tag, server, port)
	} else {
		ob = hysteria1Outbound(doc.Tree, tag, server, port)
	}
	return []model.Node{{
		Tag:    str(ob, "tag"),
		Type:   str(ob, "type"),
		Server: server,
		Port:   port,
		Config: ob,
	}}
}

func isHysteria2(tree map[string]any) bool {
	if hasAny(tree, "auth_str", "up_mbps", "down_mbps") {
		return false
	}
	_, auth := tree["auth"].(string)
	return auth || mapField(tree, "tls") != nil || mapField(tree, "bandwidth") != nil || mapField(tree, "obfs") != nil
}

func hysteria1Outbound(tree map[string]any, tag, server string, port int) map[string]any {
	ob := baseOutbound("hysteria", tag, server, port)
	putString(ob, "auth_str", str(tree, "auth_str", "auth"))
	if up, ok := intField(tree, "up_mbps"); ok {
		ob["up_mbps"] = up
	}
	if down, ok := intField(tree, "down_mbps"); ok {
		ob["down_mbps"] = down
	}
	putString(ob, "obfs", str(tree, "obfs"))

	tls := map[string]any{"enabled": true}
	putString(tls, "server_name", str(tree, "server_name"))
	if insecure, ok := boolField(tree, "insecure"); ok {
		tls["insecure"] = insecure
	}
	if alpn := stringList(tree["alpn"]); len(alpn) > 0 {
		tls["alpn"] = alpn
	}
	ob["tls"] = tls
	return ob
}

func hysteria2Outbound(tree map[string]any, tag, server string, port int) map[string]any {
	ob := baseOutbound("hysteria2", tag, server, port)
	putString(ob, "password", str(tree, "auth"))
	if bw := mapField(tree, "bandwidth"); bw != nil {
		if up, ok := bandwidthMbps(bw["up"]); ok {
			ob["up_mbps"] = up
		}
		if down, ok := bandwidthMbps(bw["down"]); ok {
			ob["down_mbps"] = down
		}
	}
	if obfs := mapField(tree, "obfs"); obfs != nil {
		typ := str(obfs, "type")
		o := map[string]any{}
		putString(o, "type", typ)
		putString(o, "password", str(mapField(obfs, typ), "password"))
		putMap(ob, "obfs", o)
	}

	tls := map[string]any{"enabled": true}
	if t := mapField(tree, "tls"); t != nil {
		putString(tls, "server_name", str(t, "sni"))
		if insecure, ok := boolField(t, "insecure"); ok {
			tls["insecure"] = insecure
		}
	}
	ob["tls"] = tls
	return ob
}

// bandwidthMbps reads a Hysteria 2 bandwidth such as "100 mbps" or "1 gbps".
// A bare number is taken as Mbps.
func bandwidthMbps(v any) (int, bool) {
	if n, ok := toInt(v); ok {
		return n, n > 0
	}
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	s = strings.ToLower(strings.ReplaceAll(s, " ", ""))
	i := strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' })
	if i <= 0 {
		return 0, false
	}
	n, err := strconv.Atoi(s[:i])
	if err != nil {
		return 0, false
	}
	switch s[i:] {
	case "m", "mbps":
	case "g", "gbps":
		n *= 1000
	case "k", "kbps":
		n /= 1000
	default:
		return 0, false
	}
	return n, n > 0
}

// splitServer splits "host:port" on the last colon. The port defaults to 443
// when it is missing or not a single number (e.g. a port-hopping range).
func splitServer(s string) (string, int) {
	s = strings.TrimSpace(s)
	host, portStr := s, ""
	if i := strings.LastIndex(s, ":"); i >= 0 && !strings.HasSuffix(s, "]") {
		host, portStr = s[:i], s[i+1:]
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		port = 443
	}
	return host, port
}
