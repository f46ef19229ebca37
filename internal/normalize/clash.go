package normalize

import (
	"fmt"
	"strings"

	"github.com/John-Robertt/subsync-go/internal/model"
)

type clashNormalizer struct{}

func (clashNormalizer) Type() model.ConfigType { return model.ConfigClash }

func (clashNormalizer) Detect(p *Probe) bool {
	return p.has("proxies", "proxy-groups", "rules")
}

func (clashNormalizer) Extract(doc *Document) []model.Node {
	list, _ := doc.Tree["proxies"].([]any)
	nodes := make([]model.Node, 0, len(list))
	for _, item := range list {
		proxy, ok := item.(map[string]any)
		if !ok {
			continue
		}
		cfg := convertClashProxy(proxy)
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

// convertClashProxy turns one Clash proxy entry into a sing-box outbound.
// Unknown types keep only the base fields.
func convertClashProxy(proxy map[string]any) map[string]any {
	server := str(proxy, "server")
	port, _ := intField(proxy, "port")
	name := str(proxy, "name")
	typ := str(proxy, "type")

	switch typ {
	case "ss":
		ob := baseOutbound("shadowsocks", name, server, port)
		ob["method"] = str(proxy, "cipher")
		ob["password"] = str(proxy, "password")
		clashSSPlugin(proxy, ob)
		return ob

	case "vmess":
		ob := baseOutbound("vmess", name, server, port)
		ob["uuid"] = canonicalUUID(str(proxy, "uuid"))
		aid, _ := intField(proxy, "alterId", "alter-id")
		ob["alter_id"] = aid
		security := str(proxy, "cipher")
		if security == "" {
			security = "auto"
		}
		ob["security"] = security
		putMap(ob, "tls", clashTLS(proxy, false))
		putMap(ob, "transport", clashTransport(proxy))
		return ob

	case "vless":
		ob := baseOutbound("vless", name, server, port)
		ob["uuid"] = canonicalUUID(str(proxy, "uuid"))
		putString(ob, "flow", str(proxy, "flow"))
		putMap(ob, "tls", clashTLS(proxy, false))
		putMap(ob, "transport", clashTransport(proxy))
		return ob

	case "trojan":
		ob := baseOutbound("trojan", name, server, port)
		ob["password"] = str(proxy, "password")
		tls := clashTLS(proxy, true)
		if _, ok := tls["server_name"]; !ok {
			tls["server_name"] = server
		}
		ob["tls"] = tls
		putMap(ob, "transport", clashTransport(proxy))
		return ob

	case "hysteria2", "hy2":
		ob := baseOutbound("hysteria2", name, server, port)
		ob["password"] = str(proxy, "password", "auth")
		if up, ok := intField(proxy, "up"); ok {
			ob["up_mbps"] = up
		}
		if down, ok := intField(proxy, "down"); ok {
			ob["down_mbps"] = down
		}
		if obfs := str(proxy, "obfs"); obfs != "" {
			ob["obfs"] = map[string]any{"type": obfs, "password": str(proxy, "obfs-password")}
		}
		tls := clashTLS(proxy, true)
		if _, ok := tls["server_name"]; !ok {
			tls["server_name"] = server
		}
		ob["tls"] = tls
		return ob

	case "hysteria":
		ob := baseOutbound("hysteria", name, server, port)
		putString(ob, "auth_str", str(proxy, "auth-str", "auth_str"))
		putString(ob, "obfs", str(proxy, "obfs"))
		putBandwidth(ob, "up", proxy["up"])
		putBandwidth(ob, "down", proxy["down"])
		ob["tls"] = clashTLS(proxy, true)
		return ob

	case "socks5":
		ob := baseOutbound("socks", name, server, port)
		ob["version"] = "5"
		putString(ob, "username", str(proxy, "username"))
		putString(ob, "password", str(proxy, "password"))
		return ob

	case "http":
		ob := baseOutbound("http", name, server, port)
		putString(ob, "username", str(proxy, "username"))
		putString(ob, "password", str(proxy, "password"))
		putMap(ob, "tls", clashTLS(proxy, false))
		return ob
	}
	return baseOutbound(typ, name, server, port)
}

// clashTLS builds a sing-box TLS block. It returns nil when TLS is not in use
// unless force is set.
func clashTLS(proxy map[string]any, force bool) map[string]any {
	tls := map[string]any{}
	enabled := force
	if on, ok := boolField(proxy, "tls"); ok && on {
		enabled = true
	}
	if insecure, ok := boolField(proxy, "skip-cert-verify"); ok {
		enabled = true
		tls["insecure"] = insecure
	}
	if sni := str(proxy, "servername", "sni", "peer"); sni != "" {
		tls["server_name"] = sni
	}
	if alpn := stringList(proxy["alpn"]); len(alpn) > 0 {
		tls["alpn"] = alpn
	}
	if fp := str(proxy, "client-fingerprint"); fp != "" {
		enabled = true
		tls["utls"] = map[string]any{"enabled": true, "fingerprint": fp}
	}
	if reality := mapField(proxy, "reality-opts"); reality != nil {
		enabled = true
		r := map[string]any{"enabled": true}
		putString(r, "public_key", str(reality, "public-key"))
		putString(r, "short_id", str(reality, "short-id"))
		tls["reality"] = r
	}
	if !enabled {
		return nil
	}
	tls["enabled"] = true
	return tls
}

func clashTransport(proxy map[string]any) map[string]any {
	switch str(proxy, "network") {
	case "ws":
		t := map[string]any{"type": "ws"}
		opts := mapField(proxy, "ws-opts")
		putString(t, "path", str(opts, "path"))
		if headers := mapField(opts, "headers"); len(headers) > 0 {
			t["headers"] = headers
		}
		if ed, ok := intField(opts, "max-early-data"); ok {
			t["max_early_data"] = ed
			putString(t, "early_data_header_name", str(opts, "early-data-header-name"))
		}
		return t
	case "grpc":
		t := map[string]any{"type": "grpc"}
		putString(t, "service_name", str(mapField(proxy, "grpc-opts"), "grpc-service-name"))
		return t
	case "http", "h2":
		t := map[string]any{"type": "http"}
		opts := mapField(proxy, "h2-opts")
		if opts == nil {
			opts = mapField(proxy, "http-opts")
		}
		if hosts := stringList(opts["host"]); len(hosts) > 0 {
			t["host"] = hosts
		}
		if paths := stringList(opts["path"]); len(paths) > 0 {
			t["path"] = paths[0]
		}
		return t
	}
	return nil
}

func clashSSPlugin(proxy, ob map[string]any) {
	opts := mapField(proxy, "plugin-opts")
	switch str(proxy, "plugin") {
	case "obfs":
		ob["plugin"] = "obfs-local"
		parts := []string{}
		if mode := str(opts, "mode"); mode != "" {
			parts = append(parts, "obfs="+mode)
		}
		if host := str(opts, "host"); host != "" {
			parts = append(parts, "obfs-host="+host)
		}
		ob["plugin_opts"] = strings.Join(parts, ";")
	case "v2ray-plugin":
		ob["plugin"] = "v2ray-plugin"
		parts := []string{}
		if mode := str(opts, "mode"); mode != "" {
			parts = append(parts, "mode="+mode)
		}
		if on, _ := boolField(opts, "tls"); on {
			parts = append(parts, "tls")
		}
		if host := str(opts, "host"); host != "" {
			parts = append(parts, "host="+host)
		}
		if path := str(opts, "path"); path != "" {
			parts = append(parts, "path="+path)
		}
		ob["plugin_opts"] = strings.Join(parts, ";")
	}
}

// putBandwidth writes "100" as up_mbps and "100 Mbps" as the string form.
func putBandwidth(ob map[string]any, key string, v any) {
	if v == nil {
		return
	}
	if n, ok := toInt(v); ok {
		ob[key+"_mbps"] = n
		return
	}
	if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
		ob[key] = s
	}
}
