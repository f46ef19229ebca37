package normalize

import (
	"github.com/John-Robertt/subsync-go/internal/model"
	"github.com/John-Robertt/subsync-go/internal/sub/ss"
	"github.com/mohae/deepcopy"
)

type linksNormalizer struct{}

func (linksNormalizer) Type() model.ConfigType { return model.ConfigLinks }

func (linksNormalizer) Detect(p *Probe) bool {
	return !p.JSON && ss.LooksLikeList(p.Text)
}

func (linksNormalizer) Extract(doc *Document) []model.Node {
	nodes := doc.links
	if nodes == nil {
		nodes, _, _ = ss.ParseSubscriptionText("", doc.Text)
	}
	out := make([]model.Node, len(nodes))
	for i, n := range nodes {
		n.Config = deepcopy.Copy(n.Config).(map[string]any)
		out[i] = n
	}
	return out
}
