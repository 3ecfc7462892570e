package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeplaymaker/marketplaymaker-sub000/internal/models"
)

const scoresFixture = `[
  {
    "id": "evt-final",
    "sport_key": "basketball_nba",
    "commence_time": "2026-08-24T23:10:00Z",
    "completed": true,
    "home_team": "Boston Celtics",
    "away_team": "Miami Heat",
    "scores": [
      {"name": "Boston Celtics", "score": "112"},
      {"name": "Miami Heat", "score": "104"}
    ],
    "last_update": "2026-08-25T02:30:00Z"
  },
  {
    "id": "evt-live",
    "sport_key": "basketball_nba",
    "commence_time": "2026-08-25T00:10:00Z",
    "completed": false,
    "home_team": "Denver Nuggets",
    "away_team": "Phoenix Suns",
    "scores": [
      {"name": "Denver Nuggets", "score": "58"},
      {"name": "Phoenix Suns", "score": "51"}
    ]
  },
  {
    "id": "evt-upcoming",
    "sport_key": "basketball_nba",
    "commence_time": "2026-08-26T00:10:00Z",
    "completed": false,
    "home_team": "New York Knicks",
    "away_team": "Chicago Bulls",
    "scores": null
  }
]`

func TestSportsOddsResults(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		assert.Equal(t, "/v4/sports/basketball_nba/scores", r.URL.Path)
		assert.Equal(t, "3", r.URL.Query().Get("daysFrom"))
		assert.Equal(t, "test-key", r.URL.Query().Get("apiKey"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(scoresFixture))
	}))
	defer server.Close()

	client := newTestSportsOddsClient(t, server.URL)

	results, err := client.Results(context.Background(),
		[]models.Sport{models.SportNBA},
		[]string{"evt-final", "evt-live", "evt-upcoming", "evt-elsewhere"})
	require.NoError(t, err)
	assert.Equal(t, 1, requests)

	// Only the completed event with parseable scores settles
	require.Len(t, results, 1)
	final := results["evt-final"]
	require.NotNil(t, final)
	assert.Equal(t, models.SportNBA, final.Sport)
	assert.True(t, final.Completed)
	assert.Equal(t, "Boston Celtics", final.HomeTeam)
	assert.Equal(t, "Miami Heat", final.AwayTeam)
	assert.Equal(t, 112.0, final.HomeScore)
	assert.Equal(t, 104.0, final.AwayScore)
	assert.Equal(t, time.Date(2026, 8, 25, 2, 30, 0, 0, time.UTC), final.SettledAt)
}

func TestSportsOddsResultsSkipsUnwantedEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(scoresFixture))
	}))
	defer server.Close()

	client := newTestSportsOddsClient(t, server.URL)

	results, err := client.Results(context.Background(),
		[]models.Sport{models.SportNBA}, []string{"evt-elsewhere"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSportsOddsResultsDedupesSports(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := newTestSportsOddsClient(t, server.URL)

	_, err := client.Results(context.Background(),
		[]models.Sport{models.SportNBA, models.SportNBA}, []string{"evt-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, requests)
}

func TestSportsOddsResultsDisabled(t *testing.T) {
	client := newTestSportsOddsClient(t, "")

	_, err := client.Results(context.Background(),
		[]models.Sport{models.SportNBA}, []string{"evt-1"})
	require.Error(t, err)

	var serr *SourceError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, ErrCodeUnavailable, serr.Code)
}

func TestResultFromScores(t *testing.T) {
	var events []scoreEvent
	require.NoError(t, json.Unmarshal([]byte(scoresFixture), &events))

	final, ok := resultFromScores(&events[0], models.SportNBA)
	require.True(t, ok)
	assert.Equal(t, "evt-final", final.EventID)
	assert.Equal(t, 112.0, final.HomeScore)

	_, ok = resultFromScores(&events[1], models.SportNBA)
	assert.False(t, ok, "in-progress events must not settle")

	_, ok = resultFromScores(&events[2], models.SportNBA)
	assert.False(t, ok, "events without scores must not settle")
}
