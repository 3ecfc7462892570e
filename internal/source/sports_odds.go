package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/codeplaymaker/marketplaymaker-sub000/internal/config"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/devig"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/metrics"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/models"
)

// sportKeys maps our sport taxonomy to the odds API's sport keys
var sportKeys = map[models.Sport]string{
	models.SportNBA:    "basketball_nba",
	models.SportNFL:    "americanfootball_nfl",
	models.SportNHL:    "icehockey_nhl",
	models.SportMLB:    "baseball_mlb",
	models.SportUFC:    "mma_mixed_martial_arts",
	models.SportSoccer: "soccer_epl",
}

// sharpnessRanks orders books by historical pricing accuracy. Unlisted books
// rank 1; the devigger prefers the highest rank as its primary fair price.
var sharpnessRanks = map[string]int{
	"pinnacle":   10,
	"circa":      9,
	"betonline":  8,
	"bookmaker":  7,
	"bet365":     6,
	"caesars":    5,
	"draftkings": 4,
	"fanduel":    4,
	"betmgm":     3,
}

// legQualityBookRef is the book count at which a leg's data quality score
// reaches 100
const legQualityBookRef = 6.0

// SportsOddsClient reads multi-book odds and devigs them into fair prices.
// It is both a probability provider for the edge aggregator and the leg
// source for the accumulator builder.
type SportsOddsClient struct {
	httpClient *RateLimitedHTTPClient
	estimates  *EstimateCache
	quotes     *QuoteCache
	devigger   *devig.Devigger
	baseURL    string
	apiKey     string
	enabled    bool
	cacheTTL   time.Duration
	sports     []models.Sport
	log        *logrus.Logger
}

// oddsEvent is one event from the odds API
type oddsEvent struct {
	ID           string          `json:"id"`
	SportKey     string          `json:"sport_key"`
	CommenceTime string          `json:"commence_time"`
	HomeTeam     string          `json:"home_team"`
	AwayTeam     string          `json:"away_team"`
	Bookmakers   []oddsBookmaker `json:"bookmakers"`
}

type oddsBookmaker struct {
	Key        string       `json:"key"`
	Title      string       `json:"title"`
	LastUpdate string       `json:"last_update"`
	Markets    []oddsMarket `json:"markets"`
}

type oddsMarket struct {
	Key      string        `json:"key"`
	Outcomes []oddsOutcome `json:"outcomes"`
}

type oddsOutcome struct {
	Name  string      `json:"name"`
	Price json.Number `json:"price"`
	Point *float64    `json:"point,omitempty"`
}

// NewSportsOddsClient creates a sports odds adapter
func NewSportsOddsClient(httpClient *RateLimitedHTTPClient, estimates *EstimateCache, quotes *QuoteCache, devigger *devig.Devigger, cfg config.SourceConfig, log *logrus.Logger) *SportsOddsClient {
	sports := make([]models.Sport, 0, len(cfg.Sports))
	for _, s := range cfg.Sports {
		sports = append(sports, models.Sport(s))
	}
	return &SportsOddsClient{
		httpClient: httpClient,
		estimates:  estimates,
		quotes:     quotes,
		devigger:   devigger,
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		enabled:    cfg.Enabled,
		cacheTTL:   cfg.CacheTTL(),
		sports:     sports,
		log:        log,
	}
}

// Key returns the provider's source key
func (c *SportsOddsClient) Key() models.SourceKey {
	return models.SourceSportsOdds
}

// Enabled returns whether this provider is enabled
func (c *SportsOddsClient) Enabled() bool {
	return c.enabled
}

// QuoteUpsert returns the callback the live stream uses to push single book
// quotes into the cache between polls
func (c *SportsOddsClient) QuoteUpsert() func(models.BookQuote) {
	return c.quotes.UpsertQuote
}

// Estimates devigs the market's event and reports the fair probability of
// the market's outcome. The fair price comes from the sharpest qualifying
// book, so the estimate is independent of the venue's own vig.
func (c *SportsOddsClient) Estimates(ctx context.Context, market models.Market) ([]models.SourceEstimate, error) {
	if !c.enabled {
		return nil, NewSourceError(c.Key(), ErrCodeUnavailable, "provider disabled", nil)
	}
	if market.EventID == "" {
		return nil, nil
	}
	if cached, ok := c.estimates.Get(c.Key(), market.ID); ok {
		return cached, nil
	}

	quotes, ok := c.quotes.Quotes(market.EventID)
	if !ok {
		fetched, err := c.fetchEventOdds(ctx, market.Sport, market.EventID)
		if err != nil {
			return nil, err
		}
		quotes = fetched
		c.quotes.SetQuotes(market.EventID, quotes)
	}
	if len(quotes) == 0 {
		return nil, nil
	}

	est, ok, err := c.estimateFromQuotes(market, quotes)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	out := []models.SourceEstimate{est}
	c.estimates.Set(c.Key(), market.ID, out, c.cacheTTL)
	return out, nil
}

// estimateFromQuotes devigs the group containing the market's outcome and
// extracts its fair probability
func (c *SportsOddsClient) estimateFromQuotes(market models.Market, quotes []models.BookQuote) (models.SourceEstimate, bool, error) {
	for _, group := range partitionQuotes(quotes) {
		labels := groupLabels(group.quotes)
		idx, quality := BestMatch(market.Quote.OutcomeLabel, labels)
		if idx < 0 || quality < MatchValidatedThreshold {
			continue
		}

		result, err := c.devigger.Devig(group.quotes)
		if err != nil {
			if errors.Is(err, models.ErrInsufficientData) {
				continue
			}
			return models.SourceEstimate{}, false, NewSourceError(c.Key(), ErrCodeParse, "devig failed", err)
		}

		var price *models.FairPrice
		for i := range result.Prices {
			if result.Prices[i].OutcomeLabel == labels[idx] {
				price = &result.Prices[i]
				break
			}
		}
		if price == nil {
			continue
		}

		metrics.RecordSourceMatchQuality(string(c.Key()), quality)
		return models.SourceEstimate{
			MarketID:    market.ID,
			SourceKey:   c.Key(),
			Probability: price.FairProbability,
			Weight:      1,
			ObservedAt:  latestObservation(group.quotes),
			Detail: models.SourceDetail{
				Books: &models.BooksDetail{
					BookCount: result.BookCount,
					BestBook:  price.BookmakerName,
					AvgVig:    result.AvgVig,
				},
			},
			MatchQuality:   quality,
			MatchValidated: quality >= MatchValidatedThreshold,
		}, true, nil
	}
	return models.SourceEstimate{}, false, nil
}

// Legs fetches odds for every configured sport present in the scan and
// devigs each event's lines into candidate accumulator legs
func (c *SportsOddsClient) Legs(ctx context.Context, markets []models.Market, now time.Time) ([]models.AccaLeg, error) {
	if !c.enabled {
		return nil, NewSourceError(c.Key(), ErrCodeUnavailable, "provider disabled", nil)
	}

	wanted := make(map[models.Sport]struct{})
	for _, m := range markets {
		if m.Sport != "" {
			wanted[m.Sport] = struct{}{}
		}
	}

	var legs []models.AccaLeg
	for _, sport := range c.sports {
		if len(wanted) > 0 {
			if _, ok := wanted[sport]; !ok {
				continue
			}
		}
		events, err := c.fetchSportOdds(ctx, sport)
		if err != nil {
			return legs, err
		}
		for _, ev := range events {
			quotes := quotesFromEvent(&ev)
			if len(quotes) == 0 {
				continue
			}
			c.quotes.SetQuotes(ev.ID, quotes)
			legs = append(legs, c.legsFromEvent(&ev, sport, quotes)...)
		}
	}

	c.log.WithFields(logrus.Fields{
		"source": c.Key(),
		"legs":   len(legs),
	}).Debug("Candidate legs assembled from book odds")
	return legs, nil
}

// legsFromEvent devigs each line group and emits one candidate leg per
// outcome. A leg pairs the sharp fair probability with the best price any
// book offers on that outcome: value appears where a soft book hangs a
// number above the sharp book's fair odds, never from a book's own
// vig-inclusive price. The builder applies EV and freshness filtering.
func (c *SportsOddsClient) legsFromEvent(ev *oddsEvent, sport models.Sport, quotes []models.BookQuote) []models.AccaLeg {
	eventStart, err := time.Parse(time.RFC3339, ev.CommenceTime)
	if err != nil {
		return nil
	}

	var legs []models.AccaLeg
	for _, group := range partitionQuotes(quotes) {
		result, err := c.devigger.Devig(group.quotes)
		if err != nil {
			continue
		}

		sigmas := outcomeSigmas(group.quotes)
		quality := legQuality(result.BookCount)
		quotedAt := latestObservation(group.quotes)
		offers := bestOffers(group.quotes)

		for _, price := range result.Prices {
			odds, book := price.DecimalOdds, price.BookmakerName
			if offer, ok := offers[price.OutcomeLabel]; ok && offer.DecimalOdds > odds {
				odds, book = offer.DecimalOdds, offer.BookmakerName
			}
			legs = append(legs, models.AccaLeg{
				EventID:          ev.ID,
				Sport:            sport,
				Pick:             price.OutcomeLabel,
				BetType:          group.betType,
				DecimalOdds:      odds,
				FairProbability:  price.FairProbability,
				BookmakerName:    book,
				ProbabilitySigma: sigmas[price.OutcomeLabel],
				QualityScore:     quality,
				EventStart:       eventStart,
				QuotedAt:         quotedAt,
			})
		}
	}
	return legs
}

// bestOffers finds the highest price offered per outcome across all books,
// including books that quote only one side of the line
func bestOffers(quotes []models.BookQuote) map[string]models.BookQuote {
	out := make(map[string]models.BookQuote, 4)
	for _, q := range quotes {
		if best, ok := out[q.OutcomeLabel]; !ok || q.DecimalOdds > best.DecimalOdds {
			out[q.OutcomeLabel] = q
		}
	}
	return out
}

// fetchSportOdds retrieves current odds for all upcoming events of a sport
func (c *SportsOddsClient) fetchSportOdds(ctx context.Context, sport models.Sport) ([]oddsEvent, error) {
	key, ok := sportKeys[sport]
	if !ok {
		return nil, nil
	}
	endpoint := fmt.Sprintf("%s/v4/sports/%s/odds?markets=h2h,spreads,totals&oddsFormat=decimal&apiKey=%s",
		c.baseURL, key, c.apiKey)

	resp, err := c.httpClient.Get(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var events []oddsEvent
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return nil, NewSourceError(c.Key(), ErrCodeParse, "failed to parse odds response", err)
	}
	return events, nil
}

// fetchEventOdds retrieves current odds for one event
func (c *SportsOddsClient) fetchEventOdds(ctx context.Context, sport models.Sport, eventID string) ([]models.BookQuote, error) {
	key, ok := sportKeys[sport]
	if !ok {
		return nil, nil
	}
	endpoint := fmt.Sprintf("%s/v4/sports/%s/events/%s/odds?markets=h2h,spreads,totals&oddsFormat=decimal&apiKey=%s",
		c.baseURL, key, eventID, c.apiKey)

	resp, err := c.httpClient.Get(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var ev oddsEvent
	if err := json.NewDecoder(resp.Body).Decode(&ev); err != nil {
		return nil, NewSourceError(c.Key(), ErrCodeParse, "failed to parse event odds response", err)
	}
	return quotesFromEvent(&ev), nil
}

// quotesFromEvent flattens an event's bookmaker lines into book quotes.
// Prices arrive as JSON numbers and are parsed through decimal to avoid
// float artifacts ("1.909999") in odds handling.
func quotesFromEvent(ev *oddsEvent) []models.BookQuote {
	var quotes []models.BookQuote
	for _, book := range ev.Bookmakers {
		observedAt := time.Now()
		if at, err := time.Parse(time.RFC3339, book.LastUpdate); err == nil {
			observedAt = at
		}
		for _, market := range book.Markets {
			for _, outcome := range market.Outcomes {
				odds, err := parseDecimalOdds(outcome.Price)
				if err != nil {
					continue
				}
				quotes = append(quotes, models.BookQuote{
					EventID:       ev.ID,
					OutcomeLabel:  outcomeLabel(market.Key, outcome),
					BookmakerName: book.Key,
					DecimalOdds:   odds,
					SharpnessRank: sharpnessRanks[book.Key],
					ObservedAt:    observedAt,
				})
			}
		}
	}
	return quotes
}

// parseDecimalOdds parses a quoted decimal price, rejecting odds at or
// below even money's floor of 1.0
func parseDecimalOdds(price json.Number) (float64, error) {
	d, err := decimal.NewFromString(price.String())
	if err != nil {
		return 0, err
	}
	odds := d.InexactFloat64()
	if odds <= 1 {
		return 0, fmt.Errorf("odds %s out of range", price.String())
	}
	return odds, nil
}

// outcomeLabel renders an outcome with its line so different points stay
// distinct devig groups: "Over 210.5", "Boston Celtics -3.5"
func outcomeLabel(marketKey string, outcome oddsOutcome) string {
	if outcome.Point == nil {
		return outcome.Name
	}
	switch marketKey {
	case "totals":
		return fmt.Sprintf("%s %s", outcome.Name, trimPoint(*outcome.Point))
	case "spreads":
		if *outcome.Point >= 0 {
			return fmt.Sprintf("%s +%s", outcome.Name, trimPoint(*outcome.Point))
		}
		return fmt.Sprintf("%s %s", outcome.Name, trimPoint(*outcome.Point))
	default:
		return outcome.Name
	}
}

func trimPoint(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

// quoteGroup is one devig input: every book's quotes for a single line
type quoteGroup struct {
	betType models.BetType
	quotes  []models.BookQuote
}

// partitionQuotes splits an event's quotes into independent devig groups:
// moneyline outcomes together, each total line together, each spread line
// together. Devigging across different lines would be nonsense.
func partitionQuotes(quotes []models.BookQuote) []quoteGroup {
	groups := make(map[string]*quoteGroup)
	order := make([]string, 0, 4)
	for _, q := range quotes {
		betType, line := classifyLabel(q.OutcomeLabel)
		key := string(betType) + "|" + line
		g, ok := groups[key]
		if !ok {
			g = &quoteGroup{betType: betType}
			groups[key] = g
			order = append(order, key)
		}
		g.quotes = append(g.quotes, q)
	}

	out := make([]quoteGroup, 0, len(order))
	for _, key := range order {
		out = append(out, *groups[key])
	}
	return out
}

// classifyLabel derives the bet type and line from an outcome label. Totals
// start with Over/Under; spreads end in a signed point; everything else is
// a moneyline.
func classifyLabel(label string) (models.BetType, string) {
	if rest, ok := strings.CutPrefix(label, "Over "); ok {
		return models.BetTypeTotal, rest
	}
	if rest, ok := strings.CutPrefix(label, "Under "); ok {
		return models.BetTypeTotal, rest
	}
	if i := strings.LastIndex(label, " "); i > 0 {
		tail := label[i+1:]
		if len(tail) > 1 && (tail[0] == '+' || tail[0] == '-') {
			if _, err := strconv.ParseFloat(tail, 64); err == nil {
				return models.BetTypeSpread, tail[1:]
			}
		}
	}
	return models.BetTypeMoneyline, ""
}

func groupLabels(quotes []models.BookQuote) []string {
	seen := make(map[string]struct{})
	labels := make([]string, 0, 4)
	for _, q := range quotes {
		if _, ok := seen[q.OutcomeLabel]; ok {
			continue
		}
		seen[q.OutcomeLabel] = struct{}{}
		labels = append(labels, q.OutcomeLabel)
	}
	return labels
}

// outcomeSigmas measures cross-book disagreement per outcome as the standard
// deviation of implied probabilities. Feeds the Monte Carlo EV interval.
func outcomeSigmas(quotes []models.BookQuote) map[string]float64 {
	probs := make(map[string][]float64)
	for _, q := range quotes {
		probs[q.OutcomeLabel] = append(probs[q.OutcomeLabel], q.ImpliedProbability())
	}

	sigmas := make(map[string]float64, len(probs))
	for label, ps := range probs {
		if len(ps) < 2 {
			sigmas[label] = 0
			continue
		}
		mean := 0.0
		for _, p := range ps {
			mean += p
		}
		mean /= float64(len(ps))
		variance := 0.0
		for _, p := range ps {
			variance += (p - mean) * (p - mean)
		}
		variance /= float64(len(ps) - 1)
		sigmas[label] = math.Sqrt(variance)
	}
	return sigmas
}

func legQuality(bookCount int) float64 {
	score := float64(bookCount) / legQualityBookRef * 100
	if score > 100 {
		score = 100
	}
	return score
}

func latestObservation(quotes []models.BookQuote) time.Time {
	var latest time.Time
	for _, q := range quotes {
		if q.ObservedAt.After(latest) {
			latest = q.ObservedAt
		}
	}
	if latest.IsZero() {
		return time.Now()
	}
	return latest
}
