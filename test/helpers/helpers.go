package helpers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// SetupTestRedis connects to the Redis instance named by TEST_REDIS_ADDR.
// Tests calling it are skipped when the variable is unset.
func SetupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set, skipping redis test")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("TEST_REDIS_PASSWORD"),
		DB:       15, // keep test keys away from any local working set
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.Ping(ctx).Err(), "failed to ping test redis")

	return client
}

// TeardownTestRedis removes keys under the given prefix and closes the client.
func TeardownTestRedis(t *testing.T, client *redis.Client, prefix string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	keys, err := client.Keys(ctx, prefix+"*").Result()
	if err == nil && len(keys) > 0 {
		if err := client.Del(ctx, keys...).Err(); err != nil {
			t.Logf("warning: failed to delete test keys: %v", err)
		}
	}

	require.NoError(t, client.Close(), "failed to close redis connection")
}

// CreateTestContext creates a context with a timeout for testing.
func CreateTestContext(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)

	return ctx
}

// WaitForCondition waits for a condition to become true or times out.
func WaitForCondition(t *testing.T, timeout time.Duration, condition func() bool, message string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}

	require.Fail(t, "condition not met within timeout", message)
}

// GetEnvOrDefault returns environment variable value or a default.
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// VenueMarket is one listing served by MockVenueServer, in the venue API's
// wire shape.
func VenueMarket(conditionID, question, sport, eventID string, yesPrice float64, start time.Time) map[string]interface{} {
	return map[string]interface{}{
		"conditionId": conditionID,
		"question":    question,
		"sport":       sport,
		"eventId":     eventID,
		"eventStart":  start.Format(time.RFC3339),
		"endDate":     start.Add(4 * time.Hour).Format(time.RFC3339),
		"yesPrice":    fmt.Sprintf("%.4f", yesPrice),
		"liquidity":   25000.0,
		"volume":      120000.0,
		"closed":      false,
	}
}

// MockVenueServer serves the venue market feed endpoint.
func MockVenueServer(t *testing.T, listings []map[string]interface{}) *httptest.Server {
	t.Helper()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/markets" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(listings)
	})

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

// BookOutcome is one priced outcome inside a bookmaker market.
func BookOutcome(name string, price float64) map[string]interface{} {
	return map[string]interface{}{
		"name":  name,
		"price": price,
	}
}

// BookQuote is one bookmaker's h2h market over the given outcomes.
func BookQuote(bookmaker string, lastUpdate time.Time, outcomes ...map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"key":         strings.ToLower(strings.ReplaceAll(bookmaker, " ", "")),
		"title":       bookmaker,
		"last_update": lastUpdate.Format(time.RFC3339),
		"markets": []map[string]interface{}{
			{"key": "h2h", "outcomes": outcomes},
		},
	}
}

// OddsEvent is one event from the odds API with its bookmaker quotes.
func OddsEvent(eventID, sportKey, homeTeam, awayTeam string, start time.Time, bookmakers ...map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"id":            eventID,
		"sport_key":     sportKey,
		"commence_time": start.Format(time.RFC3339),
		"home_team":     homeTeam,
		"away_team":     awayTeam,
		"bookmakers":    bookmakers,
	}
}

// ScoreEvent is one completed event from the scores API.
func ScoreEvent(eventID, sportKey, homeTeam, awayTeam string, homeScore, awayScore int) map[string]interface{} {
	return map[string]interface{}{
		"id":            eventID,
		"sport_key":     sportKey,
		"commence_time": time.Now().UTC().Add(-3 * time.Hour).Format(time.RFC3339),
		"completed":     true,
		"home_team":     homeTeam,
		"away_team":     awayTeam,
		"scores": []map[string]interface{}{
			{"name": homeTeam, "score": fmt.Sprintf("%d", homeScore)},
			{"name": awayTeam, "score": fmt.Sprintf("%d", awayScore)},
		},
		"last_update": time.Now().UTC().Format(time.RFC3339),
	}
}

// MockOddsServer serves the odds API's per-sport odds, per-event odds and
// scores endpoints. Events and scores are keyed by the API sport key
// ("basketball_nba", ...); sports without an entry get an empty list,
// matching the real API.
func MockOddsServer(t *testing.T, events map[string][]map[string]interface{}, scores map[string][]map[string]interface{}) *httptest.Server {
	t.Helper()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

		// /v4/sports/{sport_key}/events/{event_id}/odds
		if len(parts) == 6 && parts[0] == "v4" && parts[1] == "sports" && parts[3] == "events" && parts[5] == "odds" {
			w.WriteHeader(http.StatusOK)
			for _, ev := range events[parts[2]] {
				if ev["id"] == parts[4] {
					json.NewEncoder(w).Encode(ev)
					return
				}
			}
			json.NewEncoder(w).Encode(map[string]interface{}{})
			return
		}

		// /v4/sports/{sport_key}/odds or /v4/sports/{sport_key}/scores
		if len(parts) != 4 || parts[0] != "v4" || parts[1] != "sports" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		sportKey := parts[2]

		w.WriteHeader(http.StatusOK)
		switch parts[3] {
		case "odds":
			payload := events[sportKey]
			if payload == nil {
				payload = []map[string]interface{}{}
			}
			json.NewEncoder(w).Encode(payload)
		case "scores":
			payload := scores[sportKey]
			if payload == nil {
				payload = []map[string]interface{}{}
			}
			json.NewEncoder(w).Encode(payload)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

// MockCrowdServer serves the forecasting-crowd questions endpoint, echoing
// the searched question back with one fixed community forecast so the title
// match always succeeds.
func MockCrowdServer(t *testing.T, median float64, forecasters int) *httptest.Server {
	t.Helper()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/questions" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]interface{}{
				{
					"id":       "q-77001",
					"title":    r.URL.Query().Get("search"),
					"platform": "mock-crowd",
					"resolved": false,
					"communityPrediction": map[string]interface{}{
						"median":          median,
						"forecasterCount": forecasters,
						"updatedAt":       time.Now().UTC().Format(time.RFC3339),
					},
				},
			},
		})
	})

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}
