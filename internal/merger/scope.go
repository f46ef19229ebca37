package merger

import (
	"math/rand/v2"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/John-Robertt/subsync-go/internal/model"
	"github.com/John-Robertt/subsync-go/internal/syncdef"
	"github.com/dlclark/regexp2"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

const patternTimeout = 200 * time.Millisecond

// Permuter picks the order for random node selection. *rand.Rand from
// math/rand and math/rand/v2 both satisfy it.
type Permuter interface {
	Perm(n int) []int
}

type globalRand struct{}

func (globalRand) Perm(n int) []int { return rand.Perm(n) }

// pattern is a scope pattern. Patterns that do not compile as ECMAScript
// regular expressions match as case-insensitive substrings.
type pattern struct {
	raw string
	re  *regexp2.Regexp
}

func compilePattern(raw string, opts regexp2.RegexOptions) (*regexp2.Regexp, error) {
	re, err := regexp2.Compile(raw, opts)
	if err != nil {
		return nil, err
	}
	re.MatchTimeout = patternTimeout
	return re, nil
}

func compilePatterns(raw []string, log logrus.FieldLogger, source string) []pattern {
	out := make([]pattern, 0, len(raw))
	for _, r := range raw {
		re, err := compilePattern(r, regexp2.ECMAScript|regexp2.IgnoreCase)
		if err != nil {
			log.WithFields(logrus.Fields{"source": source, "pattern": r}).
				WithError(err).Warn("invalid scope pattern, matching as substring")
		}
		out = append(out, pattern{raw: r, re: re})
	}
	return out
}

func (p pattern) match(s string) bool {
	if p.re == nil {
		return strings.Contains(strings.ToLower(s), strings.ToLower(p.raw))
	}
	ok, err := p.re.MatchString(s)
	return err == nil && ok
}

func matchAny(ps []pattern, s string) bool {
	return lo.SomeBy(ps, func(p pattern) bool { return p.match(s) })
}

var typeAliases = map[string]string{
	"ss":     "shadowsocks",
	"socks5": "socks",
	"hy2":    "hysteria2",
}

func canonicalType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if a, ok := typeAliases[t]; ok {
		return a
	}
	return t
}

// filterTypes keeps nodes whose type is included (when IncludeTypes is set)
// and not excluded.
func filterTypes(nodes []model.Node, f syncdef.Filter) []model.Node {
	include := lo.Map(f.IncludeTypes, func(t string, _ int) string { return canonicalType(t) })
	exclude := lo.Map(f.ExcludeTypes, func(t string, _ int) string { return canonicalType(t) })
	return lo.Filter(nodes, func(n model.Node, _ int) bool {
		t := canonicalType(n.Type)
		if len(include) > 0 && !lo.Contains(include, t) {
			return false
		}
		return !lo.Contains(exclude, t)
	})
}

// applyScope narrows nodes by tag patterns and target tags, then applies the
// max_nodes selection to what is left.
func applyScope(nodes []model.Node, s syncdef.NodeScope, rnd Permuter, log logrus.FieldLogger, source string) []model.Node {
	include := compilePatterns(s.IncludePatterns, log, source)
	exclude := compilePatterns(s.ExcludePatterns, log, source)
	out := lo.Filter(nodes, func(n model.Node, _ int) bool {
		if len(include) > 0 && !matchAny(include, n.Tag) {
			return false
		}
		if matchAny(exclude, n.Tag) {
			return false
		}
		return len(s.TargetTags) == 0 || lo.Contains(s.TargetTags, n.Tag)
	})
	return selectNodes(out, s.MaxNodes, s.NodeSelection, rnd)
}

func selectNodes(nodes []model.Node, max int, sel syncdef.Selection, rnd Permuter) []model.Node {
	if max <= 0 || len(nodes) <= max {
		return nodes
	}
	switch sel {
	case syncdef.SelectLast:
		return nodes[len(nodes)-max:]
	case syncdef.SelectRandom:
		if rnd == nil {
			rnd = globalRand{}
		}
		picked := rnd.Perm(len(nodes))[:max]
		sort.Ints(picked)
		out := make([]model.Node, 0, max)
		for _, i := range picked {
			out = append(out, nodes[i])
		}
		return out
	case syncdef.SelectPriority:
		sorted := slices.Clone(nodes)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })
		return sorted[:max]
	default:
		return nodes[:max]
	}
}
