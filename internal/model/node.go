package model

// ConfigType names a proxy-config dialect.
type ConfigType string

const (
	ConfigAuto     ConfigType = "auto"
	ConfigSingBox  ConfigType = "singbox"
	ConfigClash    ConfigType = "clash"
	ConfigV2Ray    ConfigType = "v2ray"
	ConfigXray     ConfigType = "xray"
	ConfigHysteria ConfigType = "hysteria"
	ConfigLinks    ConfigType = "ss" // raw or base64 list of ss:// share links
)

// ParseConfigType maps user input to a ConfigType. Empty input means auto.
func ParseConfigType(s string) (ConfigType, bool) {
	switch ConfigType(s) {
	case "", ConfigAuto:
		return ConfigAuto, true
	case ConfigSingBox, "sing-box":
		return ConfigSingBox, true
	case ConfigClash, ConfigV2Ray, ConfigXray, ConfigHysteria, ConfigLinks:
		return ConfigType(s), true
	default:
		return "", false
	}
}

// Node is the format-agnostic representation of one proxy endpoint.
//
// Config holds the fully formed sing-box outbound object. It is never mutated
// after creation; callers that need to rename a node deep-copy Config first.
type Node struct {
	Tag    string
	Type   string
	Server string
	Port   int

	Config map[string]any

	Source   string
	Priority int
}
