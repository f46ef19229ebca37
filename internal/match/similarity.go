package match

import (
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	DefaultThreshold         = 0.6
	DefaultJaccardWeight     = 0.4
	DefaultLevenshteinWeight = 0.4
	DefaultContainsWeight    = 0.2
)

// DefaultAliases rewrites common region spellings to one short code so
// "hongkong", "hong kong" and "香港" all compare as "hk". A Latin alias only
// matches a whole word: "busan" and "japanese" are left alone.
var DefaultAliases = map[string]string{
	"hong kong": "hk", "hongkong": "hk", "香港": "hk",
	"taiwan": "tw", "台湾": "tw", "台灣": "tw",
	"japan": "jp", "日本": "jp",
	"singapore": "sg", "新加坡": "sg", "狮城": "sg",
	"united states": "us", "usa": "us", "美国": "us",
	"korea": "kr", "韩国": "kr",
	"united kingdom": "uk", "英国": "uk",
	"germany": "de", "德国": "de",
	"france": "fr", "法国": "fr",
	"russia": "ru", "俄罗斯": "ru",
	"canada": "ca", "加拿大": "ca",
	"australia": "au", "澳大利亚": "au",
	"netherlands": "nl", "荷兰": "nl",
	"turkey": "tr", "土耳其": "tr",
}

// Options tunes scoring. The zero value means the defaults above.
type Options struct {
	Threshold float64

	JaccardWeight     float64
	LevenshteinWeight float64
	ContainsWeight    float64

	// Aliases replaces DefaultAliases when non-nil. An empty, non-nil map
	// disables alias rewriting.
	Aliases map[string]string
}

func (o Options) withDefaults() Options {
	if o.Threshold <= 0 {
		o.Threshold = DefaultThreshold
	}
	if o.JaccardWeight == 0 && o.LevenshteinWeight == 0 && o.ContainsWeight == 0 {
		o.JaccardWeight = DefaultJaccardWeight
		o.LevenshteinWeight = DefaultLevenshteinWeight
		o.ContainsWeight = DefaultContainsWeight
	}
	if o.Aliases == nil {
		o.Aliases = DefaultAliases
	}
	return o
}

// Matcher holds resolved Options. It is immutable and safe for concurrent use.
type Matcher struct {
	opt     Options
	aliases []alias
}

func New(opt Options) *Matcher {
	opt = opt.withDefaults()
	return &Matcher{opt: opt, aliases: sortAliases(opt.Aliases)}
}

var defaultMatcher = New(Options{})

// Similarity scores a and b with the default options.
func Similarity(a, b string) float64 { return defaultMatcher.Similarity(a, b) }

func (m *Matcher) Threshold() float64 { return m.opt.Threshold }

// Similarity returns a score in [0,1]. Equal inputs score exactly 1 and the
// score is symmetric in its arguments.
func (m *Matcher) Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	a, b = m.canonical(a), m.canonical(b)
	if a == b {
		return 1
	}
	s := m.opt.JaccardWeight*Jaccard(a, b) +
		m.opt.LevenshteinWeight*LevenshteinSim(a, b) +
		m.opt.ContainsWeight*ContainsSim(a, b)
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	}
	return s
}

func (m *Matcher) canonical(s string) string {
	s = strings.ToLower(s)
	if len(m.aliases) == 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if a, ok := m.aliasAt(s, i); ok {
			b.WriteString(a.to)
			i += len(a.from)
			continue
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		b.WriteString(s[i : i+size])
		i += size
	}
	return b.String()
}

type alias struct{ from, to string }

// aliasAt returns the longest alias starting at s[i]. An alias edge that is a
// Latin letter must not touch another Latin letter in s.
func (m *Matcher) aliasAt(s string, i int) (alias, bool) {
	for _, a := range m.aliases {
		if !strings.HasPrefix(s[i:], a.from) {
			continue
		}
		end := i + len(a.from)
		if isLatin(a.from[0]) && i > 0 && isLatin(s[i-1]) {
			continue
		}
		if isLatin(a.from[len(a.from)-1]) && end < len(s) && isLatin(s[end]) {
			continue
		}
		return a, true
	}
	return alias{}, false
}

func isLatin(c byte) bool { return c >= 'a' && c <= 'z' }

func sortAliases(aliases map[string]string) []alias {
	list := make([]alias, 0, len(aliases))
	for k, v := range aliases {
		if k != "" {
			list = append(list, alias{strings.ToLower(k), strings.ToLower(v)})
		}
	}
	// Longest first so "hong kong" wins over any shorter prefix.
	sort.Slice(list, func(i, j int) bool {
		if len(list[i].from) != len(list[j].from) {
			return len(list[i].from) > len(list[j].from)
		}
		return list[i].from < list[j].from
	})
	return list
}

// Jaccard is |A∩B| / |A∪B| over rune bigram sets. A string shorter than two
// runes is a single gram.
func Jaccard(a, b string) float64 {
	ga, gb := bigrams(a), bigrams(b)
	inter := 0
	for g := range ga {
		if _, ok := gb[g]; ok {
			inter++
		}
	}
	union := len(ga) + len(gb) - inter
	if union == 0 {
		return 1
	}
	return float64(inter) / float64(union)
}

func bigrams(s string) map[string]struct{} {
	rs := []rune(s)
	if len(rs) < 2 {
		return map[string]struct{}{s: {}}
	}
	out := make(map[string]struct{}, len(rs)-1)
	for i := 0; i+1 < len(rs); i++ {
		out[string(rs[i:i+2])] = struct{}{}
	}
	return out
}

// LevenshteinSim is 1 - distance/max(len(a), len(b)) counted in runes.
func LevenshteinSim(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := max(la, lb)
	if longest == 0 {
		return 1
	}
	return 1 - float64(Levenshtein(a, b))/float64(longest)
}

// Levenshtein is the classic edit distance over runes.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

// ContainsSim is the fraction of words (longer than one rune) of the side
// with fewer words that contain, or are contained in, a word of the other
// side. With equal word counts both directions are scored and the higher wins.
func ContainsSim(a, b string) float64 {
	wa, wb := words(a), words(b)
	switch {
	case len(wa) < len(wb):
		return containsFrac(wa, wb)
	case len(wb) < len(wa):
		return containsFrac(wb, wa)
	}
	return max(containsFrac(wa, wb), containsFrac(wb, wa))
}

func words(s string) []string {
	var out []string
	for _, w := range strings.Fields(s) {
		if utf8.RuneCountInString(w) > 1 {
			out = append(out, w)
		}
	}
	return out
}

func containsFrac(short, long []string) float64 {
	if len(short) == 0 {
		return 0
	}
	hit := 0
	for _, w := range short {
		for _, o := range long {
			if strings.Contains(o, w) || strings.Contains(w, o) {
				hit++
				break
			}
		}
	}
	return float64(hit) / float64(len(short))
}
