package models

import (
	"strconv"
	"strings"
	"time"
)

// EventResult is the final score of one event as reported by the results
// feed. Settlement is computed per pick label so picks on different lines of
// the same event settle independently.
type EventResult struct {
	EventID   string    `json:"event_id"`
	Sport     Sport     `json:"sport"`
	Completed bool      `json:"completed"`
	HomeTeam  string    `json:"home_team"`
	AwayTeam  string    `json:"away_team"`
	HomeScore float64   `json:"home_score"`
	AwayScore float64   `json:"away_score"`
	SettledAt time.Time `json:"settled_at"`
}

// ResultFor settles one pick against this event's final score. Incomplete
// events leave the leg pending. Lines landing exactly push.
func (r *EventResult) ResultFor(betType BetType, pick string) LegResult {
	if r == nil || !r.Completed {
		return LegResultPending
	}

	switch betType {
	case BetTypeMoneyline:
		return r.moneylineResult(pick)
	case BetTypeTotal:
		return r.totalResult(pick)
	case BetTypeSpread:
		return r.spreadResult(pick)
	default:
		return LegResultPending
	}
}

func (r *EventResult) moneylineResult(pick string) LegResult {
	if r.HomeScore == r.AwayScore {
		if pick == "Draw" {
			return LegResultWon
		}
		// Soccer moneylines are three-way, so a level score beats both
		// team picks; elsewhere a tie voids the leg.
		if r.Sport == SportSoccer {
			return LegResultLost
		}
		return LegResultPush
	}
	winner := r.HomeTeam
	if r.AwayScore > r.HomeScore {
		winner = r.AwayTeam
	}
	if pick == winner {
		return LegResultWon
	}
	return LegResultLost
}

func (r *EventResult) totalResult(pick string) LegResult {
	side, line, ok := totalPick(pick)
	if !ok {
		return LegResultPending
	}
	total := r.HomeScore + r.AwayScore
	if total == line {
		return LegResultPush
	}
	if (total > line) == (side == "Over") {
		return LegResultWon
	}
	return LegResultLost
}

func (r *EventResult) spreadResult(pick string) LegResult {
	team, handicap, ok := spreadPick(pick)
	if !ok {
		return LegResultPending
	}

	var teamScore, oppScore float64
	switch team {
	case r.HomeTeam:
		teamScore, oppScore = r.HomeScore, r.AwayScore
	case r.AwayTeam:
		teamScore, oppScore = r.AwayScore, r.HomeScore
	default:
		return LegResultPending
	}

	adjusted := teamScore + handicap
	if adjusted == oppScore {
		return LegResultPush
	}
	if adjusted > oppScore {
		return LegResultWon
	}
	return LegResultLost
}

// totalPick splits "Over 210.5" into its side and line
func totalPick(pick string) (string, float64, bool) {
	for _, side := range []string{"Over", "Under"} {
		if rest, ok := strings.CutPrefix(pick, side+" "); ok {
			line, err := strconv.ParseFloat(rest, 64)
			if err != nil {
				return "", 0, false
			}
			return side, line, true
		}
	}
	return "", 0, false
}

// spreadPick splits "Boston Celtics -3.5" into the team and its handicap
func spreadPick(pick string) (string, float64, bool) {
	i := strings.LastIndex(pick, " ")
	if i <= 0 {
		return "", 0, false
	}
	tail := pick[i+1:]
	if len(tail) < 2 || (tail[0] != '+' && tail[0] != '-') {
		return "", 0, false
	}
	handicap, err := strconv.ParseFloat(tail, 64)
	if err != nil {
		return "", 0, false
	}
	return pick[:i], handicap, true
}
