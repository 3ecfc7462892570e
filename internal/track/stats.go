// Package track aggregates resolved picks into performance statistics. The
// engine serves these read-only; nothing here mutates pick history.
package track

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	applogger "github.com/codeplaymaker/marketplaymaker-sub000/internal/logger"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/models"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/repository"
)

// Breakdown is the settled performance of one slice of the record.
type Breakdown struct {
	Picks   int     `json:"picks"`
	Won     int     `json:"won"`
	Lost    int     `json:"lost"`
	Pushed  int     `json:"pushed"`
	WinRate float64 `json:"win_rate"`
	Staked  float64 `json:"staked"`
	PnL     float64 `json:"pnl"`
	ROI     float64 `json:"roi"`
}

// Record is the aggregate track record over one period. Win rate counts only
// decisive picks (pushes return the stake and say nothing about accuracy).
// ProfitFactor is gross wins over gross losses and stays 0 until the record
// contains at least one losing pick. CurrentStreak is positive for
// consecutive wins and negative for consecutive losses, in settlement order.
type Record struct {
	PeriodStart   time.Time `json:"period_start"`
	PeriodEnd     time.Time `json:"period_end"`
	TotalPicks    int       `json:"total_picks"`
	Won           int       `json:"won"`
	Lost          int       `json:"lost"`
	Pushed        int       `json:"pushed"`
	WinRate       float64   `json:"win_rate"`
	TotalStaked   float64   `json:"total_staked"`
	TotalPnL      float64   `json:"total_pnl"`
	ROI           float64   `json:"roi"`
	ProfitFactor  float64   `json:"profit_factor"`
	AverageStake  float64   `json:"average_stake"`
	LargestWin    float64   `json:"largest_win"`
	LargestLoss   float64   `json:"largest_loss"`
	CurrentStreak int       `json:"current_streak"`
	BestStreak    int       `json:"best_streak"`
	WorstStreak   int       `json:"worst_streak"`

	ByGrade map[models.AccaGrade]*Breakdown `json:"by_grade"`
	BySport map[string]*Breakdown           `json:"by_sport"`

	GeneratedAt time.Time `json:"generated_at"`
}

// MixedSportKey buckets picks whose legs span more than one sport.
const MixedSportKey = "mixed"

// Tracker computes track records on demand from the pick store.
type Tracker struct {
	picks    repository.PickRepository
	learnLog *applogger.LearningLogger
}

func New(picks repository.PickRepository, log *logrus.Logger) *Tracker {
	return &Tracker{picks: picks, learnLog: applogger.NewLearningLogger(log)}
}

// Record aggregates every pick resolved inside [start, end].
func (t *Tracker) Record(ctx context.Context, start, end time.Time) (*Record, error) {
	resolved, err := t.picks.GetResolved(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch resolved picks: %w", err)
	}

	// Streaks depend on settlement order
	sort.Slice(resolved, func(i, j int) bool {
		return settleTime(resolved[i]).Before(settleTime(resolved[j]))
	})

	rec := &Record{
		PeriodStart: start,
		PeriodEnd:   end,
		ByGrade:     make(map[models.AccaGrade]*Breakdown),
		BySport:     make(map[string]*Breakdown),
		GeneratedAt: time.Now().UTC(),
	}

	var grossWins, grossLosses float64
	streak := 0
	for _, pick := range resolved {
		if !pick.IsResolved() || pick.PnL == nil {
			continue
		}
		pnl := *pick.PnL

		rec.TotalPicks++
		rec.TotalStaked += pick.Stake
		rec.TotalPnL += pnl

		switch pick.OverallResult {
		case models.LegResultWon:
			rec.Won++
			grossWins += pnl
			if pnl > rec.LargestWin {
				rec.LargestWin = pnl
			}
			if streak > 0 {
				streak++
			} else {
				streak = 1
			}
			if streak > rec.BestStreak {
				rec.BestStreak = streak
			}
		case models.LegResultLost:
			rec.Lost++
			grossLosses += -pnl
			if pnl < rec.LargestLoss {
				rec.LargestLoss = pnl
			}
			if streak < 0 {
				streak--
			} else {
				streak = -1
			}
			if streak < rec.WorstStreak {
				rec.WorstStreak = streak
			}
		case models.LegResultPush:
			rec.Pushed++
		}

		rec.gradeBreakdown(pick.Grade).add(pick, pnl)
		rec.sportBreakdown(sportKey(pick)).add(pick, pnl)
	}
	rec.CurrentStreak = streak

	if decisive := rec.Won + rec.Lost; decisive > 0 {
		rec.WinRate = float64(rec.Won) / float64(decisive)
	}
	if rec.TotalStaked > 0 {
		rec.ROI = rec.TotalPnL / rec.TotalStaked
	}
	if rec.TotalPicks > 0 {
		rec.AverageStake = rec.TotalStaked / float64(rec.TotalPicks)
	}
	if grossLosses > 0 {
		rec.ProfitFactor = grossWins / grossLosses
	}
	for _, b := range rec.ByGrade {
		b.finish()
	}
	for _, b := range rec.BySport {
		b.finish()
	}

	t.learnLog.LogTrackRecordUpdate(rec.TotalPicks, rec.Won, rec.Lost, rec.ROI, rec.ProfitFactor)
	return rec, nil
}

func settleTime(p *models.ResolvedPick) time.Time {
	if p.ResolvedAt != nil {
		return *p.ResolvedAt
	}
	return p.SavedAt
}

// sportKey names the sport bucket for one pick. Cross-sport accumulators get
// their own bucket rather than counting toward every sport they touch.
func sportKey(p *models.ResolvedPick) string {
	if len(p.Legs) == 0 {
		return MixedSportKey
	}
	first := p.Legs[0].Leg.Sport
	for _, l := range p.Legs[1:] {
		if l.Leg.Sport != first {
			return MixedSportKey
		}
	}
	return string(first)
}

func (r *Record) gradeBreakdown(grade models.AccaGrade) *Breakdown {
	b, ok := r.ByGrade[grade]
	if !ok {
		b = &Breakdown{}
		r.ByGrade[grade] = b
	}
	return b
}

func (r *Record) sportBreakdown(sport string) *Breakdown {
	b, ok := r.BySport[sport]
	if !ok {
		b = &Breakdown{}
		r.BySport[sport] = b
	}
	return b
}

func (b *Breakdown) add(pick *models.ResolvedPick, pnl float64) {
	b.Picks++
	b.Staked += pick.Stake
	b.PnL += pnl
	switch pick.OverallResult {
	case models.LegResultWon:
		b.Won++
	case models.LegResultLost:
		b.Lost++
	case models.LegResultPush:
		b.Pushed++
	}
}

func (b *Breakdown) finish() {
	if decisive := b.Won + b.Lost; decisive > 0 {
		b.WinRate = float64(b.Won) / float64(decisive)
	}
	if b.Staked > 0 {
		b.ROI = b.PnL / b.Staked
	}
}
