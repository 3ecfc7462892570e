package source

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/codeplaymaker/marketplaymaker-sub000/internal/models"
)

// scoresDaysFrom bounds how far back the scores endpoint looks. The API caps
// this at three days; anything older is settled by then anyway.
const scoresDaysFrom = 3

// scoreEvent is one event from the scores API
type scoreEvent struct {
	ID           string       `json:"id"`
	SportKey     string       `json:"sport_key"`
	CommenceTime string       `json:"commence_time"`
	Completed    bool         `json:"completed"`
	HomeTeam     string       `json:"home_team"`
	AwayTeam     string       `json:"away_team"`
	Scores       []scoreEntry `json:"scores"`
	LastUpdate   string       `json:"last_update"`
}

// scoreEntry is one side's final score, quoted as a string on the wire
type scoreEntry struct {
	Name  string `json:"name"`
	Score string `json:"score"`
}

// Results fetches final scores for the requested events, keyed by event id.
// Events the feed has not completed yet are simply absent from the map; the
// resolver leaves their legs pending.
func (c *SportsOddsClient) Results(ctx context.Context, sports []models.Sport, eventIDs []string) (map[string]*models.EventResult, error) {
	if !c.enabled {
		return nil, NewSourceError(c.Key(), ErrCodeUnavailable, "provider disabled", nil)
	}

	wanted := make(map[string]struct{}, len(eventIDs))
	for _, id := range eventIDs {
		wanted[id] = struct{}{}
	}

	out := make(map[string]*models.EventResult)
	for _, sport := range dedupeSports(sports) {
		events, err := c.fetchScores(ctx, sport)
		if err != nil {
			return nil, err
		}
		for _, ev := range events {
			if _, ok := wanted[ev.ID]; !ok {
				continue
			}
			result, ok := resultFromScores(&ev, sport)
			if !ok {
				continue
			}
			out[ev.ID] = result
		}
	}

	c.log.WithFields(logrus.Fields{
		"source":  c.Key(),
		"wanted":  len(eventIDs),
		"settled": len(out),
	}).Debug("Event results fetched")
	return out, nil
}

// fetchScores retrieves recent scores for one sport
func (c *SportsOddsClient) fetchScores(ctx context.Context, sport models.Sport) ([]scoreEvent, error) {
	key, ok := sportKeys[sport]
	if !ok {
		return nil, nil
	}
	endpoint := fmt.Sprintf("%s/v4/sports/%s/scores?daysFrom=%d&apiKey=%s",
		c.baseURL, key, scoresDaysFrom, c.apiKey)

	resp, err := c.httpClient.Get(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var events []scoreEvent
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return nil, NewSourceError(c.Key(), ErrCodeParse, "failed to parse scores response", err)
	}
	return events, nil
}

// resultFromScores converts a completed score event into an EventResult.
// Events missing either side's score are unusable.
func resultFromScores(ev *scoreEvent, sport models.Sport) (*models.EventResult, bool) {
	if !ev.Completed {
		return nil, false
	}

	var homeScore, awayScore float64
	var homeOK, awayOK bool
	for _, s := range ev.Scores {
		score, err := strconv.ParseFloat(s.Score, 64)
		if err != nil {
			continue
		}
		switch s.Name {
		case ev.HomeTeam:
			homeScore, homeOK = score, true
		case ev.AwayTeam:
			awayScore, awayOK = score, true
		}
	}
	if !homeOK || !awayOK {
		return nil, false
	}

	settledAt := time.Now()
	if at, err := time.Parse(time.RFC3339, ev.LastUpdate); err == nil {
		settledAt = at
	}

	return &models.EventResult{
		EventID:   ev.ID,
		Sport:     sport,
		Completed: true,
		HomeTeam:  ev.HomeTeam,
		AwayTeam:  ev.AwayTeam,
		HomeScore: homeScore,
		AwayScore: awayScore,
		SettledAt: settledAt,
	}, true
}

func dedupeSports(sports []models.Sport) []models.Sport {
	seen := make(map[models.Sport]struct{}, len(sports))
	out := make([]models.Sport, 0, len(sports))
	for _, s := range sports {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
