package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func nbaResult(homeScore, awayScore float64) *EventResult {
	return &EventResult{
		EventID:   "evt-1",
		Sport:     SportNBA,
		Completed: true,
		HomeTeam:  "Boston Celtics",
		AwayTeam:  "Miami Heat",
		HomeScore: homeScore,
		AwayScore: awayScore,
		SettledAt: time.Date(2026, 8, 25, 4, 0, 0, 0, time.UTC),
	}
}

func TestResultForMoneyline(t *testing.T) {
	tests := []struct {
		name   string
		result *EventResult
		pick   string
		want   LegResult
	}{
		{"home win", nbaResult(112, 104), "Boston Celtics", LegResultWon},
		{"away win", nbaResult(104, 112), "Miami Heat", LegResultWon},
		{"pick on loser", nbaResult(112, 104), "Miami Heat", LegResultLost},
		{"tie pushes two-way moneyline", nbaResult(100, 100), "Boston Celtics", LegResultPush},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.result.ResultFor(BetTypeMoneyline, tt.pick))
		})
	}
}

func TestResultForSoccerDraw(t *testing.T) {
	result := &EventResult{
		EventID:   "evt-2",
		Sport:     SportSoccer,
		Completed: true,
		HomeTeam:  "Arsenal",
		AwayTeam:  "Chelsea",
		HomeScore: 1,
		AwayScore: 1,
	}

	// Three-way market: the draw wins and both team picks lose
	assert.Equal(t, LegResultWon, result.ResultFor(BetTypeMoneyline, "Draw"))
	assert.Equal(t, LegResultLost, result.ResultFor(BetTypeMoneyline, "Arsenal"))
	assert.Equal(t, LegResultLost, result.ResultFor(BetTypeMoneyline, "Chelsea"))
}

func TestResultForTotal(t *testing.T) {
	result := nbaResult(112, 104) // total 216

	tests := []struct {
		pick string
		want LegResult
	}{
		{"Over 210.5", LegResultWon},
		{"Under 210.5", LegResultLost},
		{"Over 220.5", LegResultLost},
		{"Under 220.5", LegResultWon},
		{"Over 216", LegResultPush},
		{"Under 216", LegResultPush},
	}
	for _, tt := range tests {
		t.Run(tt.pick, func(t *testing.T) {
			assert.Equal(t, tt.want, result.ResultFor(BetTypeTotal, tt.pick))
		})
	}
}

func TestResultForSpread(t *testing.T) {
	result := nbaResult(112, 104) // Celtics by 8

	tests := []struct {
		pick string
		want LegResult
	}{
		{"Boston Celtics -3.5", LegResultWon},
		{"Boston Celtics -10.5", LegResultLost},
		{"Miami Heat +10.5", LegResultWon},
		{"Miami Heat +3.5", LegResultLost},
		{"Boston Celtics -8", LegResultPush},
		{"Miami Heat +8", LegResultPush},
	}
	for _, tt := range tests {
		t.Run(tt.pick, func(t *testing.T) {
			assert.Equal(t, tt.want, result.ResultFor(BetTypeSpread, tt.pick))
		})
	}
}

func TestResultForPendingCases(t *testing.T) {
	var missing *EventResult
	assert.Equal(t, LegResultPending, missing.ResultFor(BetTypeMoneyline, "Boston Celtics"))

	incomplete := nbaResult(58, 51)
	incomplete.Completed = false
	assert.Equal(t, LegResultPending, incomplete.ResultFor(BetTypeMoneyline, "Boston Celtics"))

	done := nbaResult(112, 104)
	// Labels the grammar cannot place stay pending rather than guessing
	assert.Equal(t, LegResultPending, done.ResultFor(BetTypeTotal, "Somewhere 210.5"))
	assert.Equal(t, LegResultPending, done.ResultFor(BetTypeSpread, "Chicago Bulls -3.5"))
	assert.Equal(t, LegResultPending, done.ResultFor(BetTypeSpread, "Boston Celtics"))
}
