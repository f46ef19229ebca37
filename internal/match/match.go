package match

// Match is the winning candidate of FindBestMatch.
type Match struct {
	Candidate string
	Index     int
	Score     float64
}

// FindBestMatch scores every candidate against target (both cleaned with
// CleanName) and returns the strictly highest score at or above the
// threshold. Ties keep the earlier candidate.
func FindBestMatch(target string, candidates []string, opt Options) (Match, bool) {
	return New(opt).FindBestMatch(target, candidates)
}

func (m *Matcher) FindBestMatch(target string, candidates []string) (Match, bool) {
	ct := CleanName(target)
	best := Match{Index: -1}
	for i, c := range candidates {
		score := m.Similarity(ct, CleanName(c))
		if score < m.opt.Threshold || score <= best.Score {
			continue
		}
		best = Match{Candidate: c, Index: i, Score: score}
	}
	if best.Index < 0 {
		return Match{}, false
	}
	return best, true
}
