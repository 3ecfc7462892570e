package source

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/codeplaymaker/marketplaymaker-sub000/internal/config"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/models"
)

// VenueFeedKey attributes feed failures in build metadata. The feed is not a
// probability source; unlike provider degradation, a feed failure means the
// build has nothing to scan.
const VenueFeedKey models.SourceKey = "venueFeed"

const defaultFeedLimit = 100

// VenueFeedClient lists the primary venue's active binary markets. Every
// build starts from this listing; the six providers then estimate each
// question independently.
type VenueFeedClient struct {
	httpClient *RateLimitedHTTPClient
	baseURL    string
	apiKey     string
	limit      int
	log        *logrus.Logger
}

// venueListing is one market from the venue API. Prices are probabilities
// for the Yes outcome.
type venueListing struct {
	ConditionID string      `json:"conditionId"`
	Question    string      `json:"question"`
	Sport       string      `json:"sport"`
	EventID     string      `json:"eventId"`
	EventStart  string      `json:"eventStart"`
	EndDate     string      `json:"endDate"`
	YesPrice    json.Number `json:"yesPrice"`
	Liquidity   float64     `json:"liquidity"`
	Volume      float64     `json:"volume"`
	Closed      bool        `json:"closed"`
}

// NewVenueFeedClient creates the venue market feed
func NewVenueFeedClient(httpClient *RateLimitedHTTPClient, cfg config.FeedConfig, log *logrus.Logger) *VenueFeedClient {
	limit := cfg.Limit
	if limit <= 0 {
		limit = defaultFeedLimit
	}
	return &VenueFeedClient{
		httpClient: httpClient,
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		limit:      limit,
		log:        log,
	}
}

// Markets fetches the venue's current market listings. Closed listings and
// listings without a usable price are dropped.
func (c *VenueFeedClient) Markets(ctx context.Context) ([]models.Market, error) {
	endpoint := fmt.Sprintf("%s/api/markets?limit=%d", c.baseURL, c.limit)
	headers := map[string]string{}
	if c.apiKey != "" {
		headers["Authorization"] = "Bearer " + c.apiKey
	}

	resp, err := c.httpClient.Get(ctx, endpoint, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var listings []venueListing
	if err := json.NewDecoder(resp.Body).Decode(&listings); err != nil {
		return nil, NewSourceError(VenueFeedKey, ErrCodeParse, "failed to parse market listings", err)
	}

	now := time.Now().UTC()
	markets := make([]models.Market, 0, len(listings))
	dropped := 0
	for _, l := range listings {
		market, ok := c.convert(l, now)
		if !ok {
			dropped++
			continue
		}
		markets = append(markets, market)
	}

	c.log.WithFields(logrus.Fields{
		"listings": len(listings),
		"markets":  len(markets),
		"dropped":  dropped,
	}).Debug("Venue markets fetched")
	return markets, nil
}

func (c *VenueFeedClient) convert(l venueListing, now time.Time) (models.Market, bool) {
	if l.Closed || l.ConditionID == "" || l.Question == "" {
		return models.Market{}, false
	}
	price, err := l.YesPrice.Float64()
	if err != nil || price <= 0 || price >= 1 {
		return models.Market{}, false
	}

	sport := models.Sport(l.Sport)
	if sport == "" {
		sport = inferSport(l.Question)
	}

	// Providers match the quoted outcome against team-named labels, so the
	// Yes outcome is carried under the question's subject when one parses
	outcome := QuestionSubject(l.Question)
	if outcome == "" {
		outcome = "Yes"
	}

	return models.Market{
		ID:         l.ConditionID,
		Question:   l.Question,
		Sport:      sport,
		EventID:    l.EventID,
		EventStart: parseVenueTime(l.EventStart),
		EndDate:    parseVenueTime(l.EndDate),
		Quote: models.MarketQuote{
			MarketID:           l.ConditionID,
			OutcomeLabel:       outcome,
			ImpliedProbability: price,
			Liquidity:          l.Liquidity,
			Volume:             l.Volume,
			ObservedAt:         now,
		},
	}, true
}

func parseVenueTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// sportKeywords maps question phrasing to the sports taxonomy when the venue
// does not tag a listing explicitly
var sportKeywords = []struct {
	sport models.Sport
	words []string
}{
	{models.SportNBA, []string{"nba"}},
	{models.SportNFL, []string{"nfl", "super bowl"}},
	{models.SportNHL, []string{"nhl", "stanley cup"}},
	{models.SportMLB, []string{"mlb", "world series"}},
	{models.SportUFC, []string{"ufc"}},
	{models.SportSoccer, []string{"premier league", "champions league"}},
}

func inferSport(question string) models.Sport {
	q := strings.ToLower(question)
	for _, entry := range sportKeywords {
		for _, w := range entry.words {
			if strings.Contains(q, w) {
				return entry.sport
			}
		}
	}
	return ""
}
