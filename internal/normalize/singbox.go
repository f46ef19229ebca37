package normalize

import (
	"github.com/John-Robertt/subsync-go/internal/model"
	"github.com/mohae/deepcopy"
)

type singBoxNormalizer struct{}

func (singBoxNormalizer) Type() model.ConfigType { return model.ConfigSingBox }

func (singBoxNormalizer) Detect(p *Probe) bool {
	return p.JSON && p.has("inbounds", "outbounds", "route") && !v2rayStyleOutbounds(p.Doc)
}

var singBoxBuiltin = map[string]struct{}{"direct": {}, "block": {}, "dns": {}}

func (singBoxNormalizer) Extract(doc *Document) []model.Node {
	list, _ := doc.Tree["outbounds"].([]any)
	nodes := make([]model.Node, 0, len(list))
	for _, item := range list {
		ob, ok := item.(map[string]any)
		if !ok {
			continue
		}
		typ := str(ob, "type")
		if _, builtin := singBoxBuiltin[typ]; builtin || typ == "" {
			continue
		}
		cfg := deepcopy.Copy(ob).(map[string]any)
		port, _ := intField(ob, "server_port")
		nodes = append(nodes, model.Node{
			Tag:    str(ob, "tag"),
			Type:   typ,
			Server: str(ob, "server"),
			Port:   port,
			Config: cfg,
		})
	}
	return nodes
}

// v2rayStyleOutbounds reports outbounds keyed by "protocol" instead of "type".
func v2rayStyleOutbounds(doc map[string]any) bool {
	list, _ := doc["outbounds"].([]any)
	seen := false
	for _, item := range list {
		ob, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if _, ok := ob["type"]; ok {
			return false
		}
		if _, ok := ob["protocol"]; ok {
			seen = true
		}
	}
	return seen
}
