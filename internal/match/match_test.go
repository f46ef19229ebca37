package match

import (
	"testing"
)

func TestCleanName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"🇭🇰 HK [Premium]", "hk premium"},
		{"【香港】 HK-01 (IPLC)", "香港 hk-01 iplc"},
		{"  A\tB  ", "a b"},
		{"🇯🇵Japan 01 ✈️", "japan 01"},
		{"「US」<02>", "us 02"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CleanName(tt.in); got != tt.want {
			t.Fatalf("CleanName(%q)=%q, want=%q", tt.in, got, tt.want)
		}
	}
}

func TestSimilarity_RegionAliasAndSharedWords(t *testing.T) {
	got := Similarity("hk premium node", "hongkong premium")
	if got <= DefaultThreshold {
		t.Fatalf("similarity=%v, want > %v", got, DefaultThreshold)
	}

	plain := New(Options{Aliases: map[string]string{}}).Similarity("hk premium node", "hongkong premium")
	if plain >= got {
		t.Fatalf("without aliases=%v, want < %v", plain, got)
	}
}

func TestCanonical_AliasesMatchWholeWords(t *testing.T) {
	m := New(Options{})
	tests := []struct{ in, want string }{
		{"Busan 01", "busan 01"},
		{"Japanese Premium", "japanese premium"},
		{"Hong Kong 01", "hk 01"},
		{"HongKong-IPLC", "hk-iplc"},
		{"Japan01", "jp01"},
		{"USA West", "us west"},
		{"香港01", "hk01"},
		{"🇯🇵 日本 iplc", "🇯🇵 jp iplc"},
	}
	for _, tt := range tests {
		if got := m.canonical(tt.in); got != tt.want {
			t.Fatalf("canonical(%q)=%q, want=%q", tt.in, got, tt.want)
		}
	}
	if got := Similarity("busan 01", "bn 01"); got == 1 {
		t.Fatalf("busan and bn compare equal")
	}
}

func TestSimilarity_IdentitySymmetryBounds(t *testing.T) {
	names := []string{
		"", "a", "hk", "HK 01", "hk premium node", "hongkong premium",
		"香港 01", "日本 iplc", "US-West 02", "🇸🇬 SG", "x y z",
	}
	for _, a := range names {
		if got := Similarity(a, a); got != 1 {
			t.Fatalf("Similarity(%q,%q)=%v, want=1", a, a, got)
		}
		for _, b := range names {
			ab, ba := Similarity(a, b), Similarity(b, a)
			if ab != ba {
				t.Fatalf("Similarity(%q,%q)=%v but reversed=%v", a, b, ab, ba)
			}
			if ab < 0 || ab > 1 {
				t.Fatalf("Similarity(%q,%q)=%v out of [0,1]", a, b, ab)
			}
		}
	}
}

func TestSubMetrics(t *testing.T) {
	if got := Levenshtein("kitten", "sitting"); got != 3 {
		t.Fatalf("Levenshtein=%d, want=3", got)
	}
	if got := Levenshtein("", "abc"); got != 3 {
		t.Fatalf("Levenshtein empty=%d, want=3", got)
	}
	if got := Jaccard("ab", "ab"); got != 1 {
		t.Fatalf("Jaccard identical=%v, want=1", got)
	}
	if got := Jaccard("a", "b"); got != 0 {
		t.Fatalf("Jaccard single grams=%v, want=0", got)
	}
	if got := Jaccard("abc", "abd"); got != 1.0/3.0 {
		t.Fatalf("Jaccard=%v, want=1/3", got)
	}
	if got := ContainsSim("hk premium", "hk premium node"); got != 1 {
		t.Fatalf("ContainsSim=%v, want=1", got)
	}
	if got := ContainsSim("a b", "c d"); got != 0 {
		t.Fatalf("ContainsSim single-rune words=%v, want=0", got)
	}
	if got := LevenshteinSim("", ""); got != 1 {
		t.Fatalf("LevenshteinSim empty=%v, want=1", got)
	}
}

func TestFindBestMatch(t *testing.T) {
	candidates := []string{"🇯🇵 JP 01", "🇭🇰 HongKong Premium", "US 02"}

	m, ok := FindBestMatch("hk premium node", candidates, Options{})
	if !ok {
		t.Fatalf("expected a match")
	}
	if m.Index != 1 || m.Candidate != candidates[1] {
		t.Fatalf("match=%+v, want index 1", m)
	}

	if _, ok := FindBestMatch("zzz", []string{"HK 01"}, Options{}); ok {
		t.Fatalf("expected no match")
	}
	if _, ok := FindBestMatch("hk 01", nil, Options{}); ok {
		t.Fatalf("expected no match on empty candidates")
	}
}

func TestFindBestMatch_TieKeepsFirst(t *testing.T) {
	m, ok := FindBestMatch("hk 01", []string{"HK 01", "【HK】 01"}, Options{})
	if !ok {
		t.Fatalf("expected a match")
	}
	if m.Index != 0 || m.Score != 1 {
		t.Fatalf("match=%+v, want first candidate with score 1", m)
	}
}

func TestFindBestMatch_ThresholdMonotonic(t *testing.T) {
	candidates := []string{"HK 01", "HK Premium 02", "Japan IPLC", "SG 03", "US West", "香港 高速"}
	targets := []string{"hk 1", "hongkong premium", "jp iplc", "singapore 3", "us east", "hk fast", "zz"}

	prev := len(targets) + 1
	for th := 0.05; th <= 1.0; th += 0.05 {
		accepted := 0
		for _, target := range targets {
			if _, ok := FindBestMatch(target, candidates, Options{Threshold: th}); ok {
				accepted++
			}
		}
		if accepted > prev {
			t.Fatalf("threshold=%v accepted=%d, previous=%d", th, accepted, prev)
		}
		prev = accepted
	}
}

func TestOptionsDefaults(t *testing.T) {
	m := New(Options{})
	if m.Threshold() != DefaultThreshold {
		t.Fatalf("threshold=%v, want=%v", m.Threshold(), DefaultThreshold)
	}
	m = New(Options{Threshold: 0.9, ContainsWeight: 1})
	if m.Threshold() != 0.9 {
		t.Fatalf("threshold=%v, want=0.9", m.Threshold())
	}
	if got := m.Similarity("hk premium", "hk premium node"); got != 1 {
		t.Fatalf("contains-only similarity=%v, want=1", got)
	}
}

func FuzzSimilarity(f *testing.F) {
	f.Add("hk premium node", "hongkong premium")
	f.Add("", "x")
	f.Add("🇭🇰 HK", "香港")
	f.Fuzz(func(t *testing.T, a, b string) {
		ab := Similarity(a, b)
		if ab < 0 || ab > 1 {
			t.Fatalf("Similarity(%q,%q)=%v out of range", a, b, ab)
		}
		if ba := Similarity(b, a); ab != ba {
			t.Fatalf("asymmetric: %v vs %v", ab, ba)
		}
		if Similarity(a, a) != 1 {
			t.Fatalf("Similarity(%q,%q) != 1", a, a)
		}
	})
}
