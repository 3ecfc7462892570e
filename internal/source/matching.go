package source

import (
	"strings"
	"unicode"
)

// MatchValidatedThreshold is the match quality above which a cross-venue
// market match is treated as confirmed rather than fuzzy
const MatchValidatedThreshold = 0.75

// noiseWords are tokens that carry no identity when comparing market
// questions across venues
var noiseWords = map[string]struct{}{
	"will": {}, "the": {}, "a": {}, "an": {}, "to": {}, "in": {}, "at": {},
	"vs": {}, "v": {}, "win": {}, "beat": {}, "defeat": {}, "game": {},
	"match": {}, "on": {}, "of": {}, "by": {},
}

// teamAliases maps common short forms to canonical team names so venue
// listings that abbreviate still match
var teamAliases = map[string]string{
	"la lakers":     "los angeles lakers",
	"lal":           "los angeles lakers",
	"la clippers":   "los angeles clippers",
	"ny knicks":     "new york knicks",
	"ny rangers":    "new york rangers",
	"ny yankees":    "new york yankees",
	"gs warriors":   "golden state warriors",
	"gsw":           "golden state warriors",
	"ne patriots":   "new england patriots",
	"kc chiefs":     "kansas city chiefs",
	"tb buccaneers": "tampa bay buccaneers",
	"sf 49ers":      "san francisco 49ers",
	"man utd":       "manchester united",
	"man city":      "manchester city",
	"spurs":         "tottenham hotspur",
}

// NormalizeLabel lowercases, strips punctuation and collapses whitespace so
// labels from different venues compare on content alone
func NormalizeLabel(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case !lastSpace:
			b.WriteRune(' ')
			lastSpace = true
		}
	}
	out := strings.TrimSpace(b.String())
	if canonical, ok := teamAliases[out]; ok {
		return canonical
	}
	return out
}

// tokens splits a normalized label into identity-bearing tokens
func tokens(normalized string) []string {
	fields := strings.Fields(normalized)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, noise := noiseWords[f]; noise {
			continue
		}
		out = append(out, f)
	}
	return out
}

// MatchQuality scores how likely two labels identify the same market, in
// [0,1]. Token containment over the shorter label, so "Lakers to win" still
// matches "Will the Los Angeles Lakers win on Friday" strongly.
func MatchQuality(a, b string) float64 {
	ta := tokens(NormalizeLabel(a))
	tb := tokens(NormalizeLabel(b))
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	if len(tb) < len(ta) {
		ta, tb = tb, ta
	}

	set := make(map[string]struct{}, len(tb))
	for _, t := range tb {
		set[t] = struct{}{}
	}
	hits := 0
	for _, t := range ta {
		if _, ok := set[t]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(ta))
}

// subjectCutWords end the subject span of a binary venue question: the
// words between the interrogative prefix and the first cut word name the
// entity the Yes outcome is about
var subjectCutWords = map[string]struct{}{
	"beat": {}, "defeat": {}, "win": {}, "vs": {}, "v": {}, "against": {},
}

// QuestionSubject extracts the entity a venue question prices with its Yes
// outcome, e.g. "Will the Celtics beat the Heat?" yields "Celtics". Returns
// "" when the question has no recognizable subject span.
func QuestionSubject(question string) string {
	words := strings.Fields(question)

	start := 0
	for start < len(words) {
		switch NormalizeLabel(words[start]) {
		case "will", "the", "a", "an":
			start++
			continue
		}
		break
	}

	end := start
	for end < len(words) {
		if _, cut := subjectCutWords[NormalizeLabel(words[end])]; cut {
			break
		}
		end++
	}
	if start >= end || end == len(words) {
		return ""
	}
	return strings.Trim(strings.Join(words[start:end], " "), " ?!.,:;")
}

// BestMatch finds the candidate label with the highest match quality against
// the target. Returns -1 when no candidate scores above zero.
func BestMatch(target string, candidates []string) (int, float64) {
	bestIdx := -1
	bestQuality := 0.0
	for i, c := range candidates {
		q := MatchQuality(target, c)
		if q > bestQuality {
			bestIdx = i
			bestQuality = q
		}
	}
	return bestIdx, bestQuality
}
