package normalize

import (
	"github.com/John-Robertt/subsync-go/internal/model"
)

type v2rayNormalizer struct{}

func (v2rayNormalizer) Type() model.ConfigType { return model.ConfigV2Ray }

func (v2rayNormalizer) Detect(p *Probe) bool {
	return p.JSON && p.has("inbounds", "outbounds", "routing")
}

var v2rayBuiltin = map[string]struct{}{"freedom": {}, "blackhole": {}, "dns": {}}

func (v2rayNormalizer) Extract(doc *Document) []model.Node {
	list, _ := doc.Tree["outbounds"].([]any)
	nodes := make([]model.Node, 0, len(list))
	for _, item := range list {
		ob, ok := item.(map[string]any)
		if !ok {
			continue
		}
		protocol := str(ob, "protocol")
		if _, builtin := v2rayBuiltin[protocol]; builtin || protocol == "" {
			continue
		}
		cfg := convertV2RayOutbound(ob, protocol)
		port, _ := toInt(cfg["server_port"])
		nodes = append(nodes, model.Node{
			Tag:    str(cfg, "tag"),
			Type:   str(cfg, "type"),
			Server: str(cfg, "server"),
			Port:   port,
			Config: cfg,
		})
	}
	return nodes
}

func convertV2RayOutbound(ob map[string]any, protocol string) map[string]any {
	settings := mapField(ob, "settings")
	stream := mapField(ob, "streamSettings")

	// vnext carries user-based protocols; servers carries address-only forms.
	target := firstMap(settings, "vnext")
	if target == nil {
		target = firstMap(settings, "servers")
	}
	server := str(target, "address")
	port, _ := intField(target, "port")
	tag := fallbackTag(str(ob, "tag"), server, port)
	user := firstMap(target, "users")

	var out map[string]any
	switch protocol {
	case "vmess":
		out = baseOutbound("vmess", tag, server, port)
		out["uuid"] = canonicalUUID(str(user, "id"))
		aid, _ := intField(user, "alterId")
		out["alter_id"] = aid
		security := str(user, "security")
		if security == "" {
			security = "auto"
		}
		out["security"] = security
	case "vless":
		out = baseOutbound("vless", tag, server, port)
		out["uuid"] = canonicalUUID(str(user, "id"))
		putString(out, "flow", str(user, "flow"))
	case "trojan":
		out = baseOutbound("trojan", tag, server, port)
		out["password"] = str(target, "password")
	case "shadowsocks":
		out = baseOutbound("shadowsocks", tag, server, port)
		out["method"] = str(target, "method")
		out["password"] = str(target, "password")
	case "socks":
		out = baseOutbound("socks", tag, server, port)
		putString(out, "username", str(user, "user"))
		putString(out, "password", str(user, "pass"))
	case "http":
		out = baseOutbound("http", tag, server, port)
		putString(out, "username", str(user, "user"))
		putString(out, "password", str(user, "pass"))
	default:
		out = baseOutbound(protocol, tag, server, port)
	}

	if stream != nil {
		putMap(out, "tls", v2rayTLS(stream))
		putMap(out, "transport", v2rayTransport(stream))
	}
	return out
}

func v2rayTLS(stream map[string]any) map[string]any {
	switch str(stream, "security") {
	case "tls":
		s := mapField(stream, "tlsSettings")
		tls := map[string]any{"enabled": true}
		putString(tls, "server_name", str(s, "serverName"))
		if insecure, ok := boolField(s, "allowInsecure"); ok {
			tls["insecure"] = insecure
		}
		if alpn := stringList(s["alpn"]); len(alpn) > 0 {
			tls["alpn"] = alpn
		}
		if fp := str(s, "fingerprint"); fp != "" {
			tls["utls"] = map[string]any{"enabled": true, "fingerprint": fp}
		}
		return tls
	case "reality":
		s := mapField(stream, "realitySettings")
		tls := map[string]any{"enabled": true}
		putString(tls, "server_name", str(s, "serverName"))
		r := map[string]any{"enabled": true}
		putString(r, "public_key", str(s, "publicKey"))
		putString(r, "short_id", str(s, "shortId"))
		tls["reality"] = r
		if fp := str(s, "fingerprint"); fp != "" {
			tls["utls"] = map[string]any{"enabled": true, "fingerprint": fp}
		}
		return tls
	}
	return nil
}

func v2rayTransport(stream map[string]any) map[string]any {
	switch str(stream, "network") {
	case "ws":
		s := mapField(stream, "wsSettings")
		t := map[string]any{"type": "ws"}
		putString(t, "path", str(s, "path"))
		if headers := mapField(s, "headers"); len(headers) > 0 {
			t["headers"] = headers
		}
		return t
	case "grpc":
		s := mapField(stream, "grpcSettings")
		t := map[string]any{"type": "grpc"}
		putString(t, "service_name", str(s, "serviceName"))
		return t
	case "httpupgrade":
		s := mapField(stream, "httpupgradeSettings")
		t := map[string]any{"type": "httpupgrade"}
		putString(t, "path", str(s, "path"))
		putString(t, "host", str(s, "host"))
		return t
	case "h2", "http":
		s := mapField(stream, "httpSettings")
		t := map[string]any{"type": "http"}
		if hosts := stringList(s["host"]); len(hosts) > 0 {
			t["host"] = hosts
		}
		putString(t, "path", str(s, "path"))
		return t
	}
	return nil
}
