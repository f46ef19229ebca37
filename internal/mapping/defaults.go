package mapping

// Settings keys read by the default rules.
const (
	KeyAllowLAN       = "allow_lan"
	KeyProxyPort      = "proxy_port"
	KeyAPIAddress     = "api_address"
	KeyLogEnabled     = "log_enabled"
	KeyLogLevel       = "log_level"
	KeyLogOutput      = "log_output"
	KeyLogTimestamp   = "log_timestamp"
	KeyTunMode        = "tun_mode"
	KeyTunAutoRoute   = "tun_auto_route"
	KeyTunStrictRoute = "tun_strict_route"
	KeyTunStack       = "tun_stack"
)

func boolPtr(b bool) *bool { return &b }

// DefaultDefinition is used when no mapping side-file exists yet. It covers
// the mixed inbound (LAN toggle, port), the Clash API controller, the log
// block and a TUN inbound.
func DefaultDefinition() *Definition {
	return &Definition{Mappings: []Rule{
		{
			UserPath:    KeyAllowLAN,
			TargetPath:  "inbounds.[type=mixed].listen",
			Description: "listen on all interfaces when LAN access is allowed",
			Type:        TypeBoolean,
			Default:     false,
			Transform:   TransformConditional,
			TrueValue:   "0.0.0.0",
			FalseValue:  "127.0.0.1",
			Dependencies: []Dependency{
				{TargetPath: "inbounds.[type=mixed].tag", Value: "mixed-in", OverrideIfExists: boolPtr(false)},
			},
		},
		{
			UserPath:    KeyProxyPort,
			TargetPath:  "inbounds.[type=mixed].listen_port",
			Description: "local proxy port",
			Type:        TypeNumber,
			Default:     7890,
		},
		{
			UserPath:    KeyAPIAddress,
			TargetPath:  "experimental.clash_api.external_controller",
			Description: "Clash API controller address",
			Type:        TypeString,
			Default:     "127.0.0.1:9090",
			Dependencies: []Dependency{
				{TargetPath: "experimental.clash_api.default_mode", Value: "rule", OverrideIfExists: boolPtr(false)},
			},
		},
		{
			UserPath:    KeyLogEnabled,
			TargetPath:  "log",
			Description: "log block; rebuilt from settings, removed when logging is disabled",
			Type:        TypeBoolean,
			Default:     true,
			Transform:   TransformConditional,
			TrueValue:   map[string]any{"disabled": false},
			FalseAction: FalseActionRemove,
		},
		{
			UserPath:         KeyLogLevel,
			TargetPath:       "log.level",
			Type:             TypeString,
			Default:          "info",
			Transform:        TransformConditional,
			Condition:        KeyLogEnabled,
			ConditionDefault: true,
			FalseAction:      FalseActionRemove,
		},
		{
			UserPath:         KeyLogOutput,
			TargetPath:       "log.output",
			Type:             TypeString,
			Transform:        TransformConditional,
			Condition:        KeyLogEnabled,
			ConditionDefault: true,
			FalseAction:      FalseActionRemove,
		},
		{
			UserPath:         KeyLogTimestamp,
			TargetPath:       "log.timestamp",
			Type:             TypeBoolean,
			Default:          true,
			Transform:        TransformConditional,
			Condition:        KeyLogEnabled,
			ConditionDefault: true,
			FalseAction:      FalseActionRemove,
		},
		{
			UserPath:    KeyTunMode,
			TargetPath:  "inbounds.[type=tun]",
			Description: "TUN inbound; removed when TUN mode is off",
			Type:        TypeBoolean,
			Default:     false,
			Transform:   TransformConditional,
			TrueValue: map[string]any{
				"type":         "tun",
				"tag":          "tun-in",
				"address":      []any{"172.19.0.1/30", "fdfe:dcba:9876::1/126"},
				"auto_route":   true,
				"strict_route": true,
				"stack":        "system",
				"platform": map[string]any{
					"http_proxy": map[string]any{
						"enabled":     true,
						"server":      "127.0.0.1",
						"server_port": 7890,
					},
				},
			},
			FalseAction:      FalseActionRemove,
			ConflictStrategy: "merge",
		},
		{
			UserPath:    KeyProxyPort,
			TargetPath:  "inbounds.[type=tun].platform.http_proxy.server_port",
			Description: "platform HTTP proxy follows the local proxy port",
			Type:        TypeNumber,
			Transform:   TransformConditional,
			Condition:   KeyTunMode,
			FalseAction: FalseActionRemove,
		},
		{
			UserPath:    KeyTunAutoRoute,
			TargetPath:  "inbounds.[type=tun].auto_route",
			Type:        TypeBoolean,
			Transform:   TransformConditional,
			Condition:   KeyTunMode,
			FalseAction: FalseActionRemove,
		},
		{
			UserPath:    KeyTunStrictRoute,
			TargetPath:  "inbounds.[type=tun].strict_route",
			Type:        TypeBoolean,
			Transform:   TransformConditional,
			Condition:   KeyTunMode,
			FalseAction: FalseActionRemove,
		},
		{
			UserPath:    KeyTunStack,
			TargetPath:  "inbounds.[type=tun].stack",
			Type:        TypeString,
			Transform:   TransformConditional,
			Condition:   KeyTunMode,
			FalseAction: FalseActionRemove,
		},
	}}
}
