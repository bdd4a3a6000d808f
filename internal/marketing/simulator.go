// Package marketing simulates campaign lifecycles, ad impressions, and
// purchase attribution windows.
//
// Campaigns and impressions are planned one day at a time from the
// orchestrator's sequential planning phase. The attribution index built
// during planning is read concurrently by store-hour workers through
// Primed, so the write/read phases must not overlap within a day.
package marketing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/openmart/retailgen/internal/config"
	"github.com/openmart/retailgen/internal/model"
	"github.com/openmart/retailgen/internal/rng"
)

// Campaign duration bounds in days.
const (
	minDurationDays = 3
	maxDurationDays = 14
)

// device multipliers applied to the channel's base cost-per-impression.
var (
	devices     = []string{"phone", "tablet", "desktop"}
	deviceMults = []float64{1.0, 1.2, 1.5}
	deviceProbs = []float64{0.60, 0.15, 0.25}
)

var adjectives = []string{"spring", "fresh", "daily", "smart", "prime", "local", "bright", "value"}
var themes = []string{"savings", "essentials", "picks", "deals", "bundle", "favorites"}

// window is one customer's attribution exposure: a purchase at ts is
// attributable when impressedAt < ts <= until.
type window struct {
	campaignID  string
	impressedAt time.Time
	until       time.Time
}

// campaignState is one running campaign.
type campaignState struct {
	id      string
	name    string
	channel config.Channel
	start   time.Time
	end     time.Time
	// dailyVolume is drawn once at start and held for the campaign's
	// life; the configured floor guarantees a minimum daily spend.
	dailyVolume int
}

// Simulator owns campaign state and the attribution index.
type Simulator struct {
	ref *model.ReferenceData
	cfg config.Marketing

	active  []*campaignState
	windows map[int64][]window
	seq     int
}

// NewSimulator builds an idle marketing simulator. Campaigns only come
// into being through PlanDay draws.
func NewSimulator(ref *model.ReferenceData, cfg config.Marketing) *Simulator {
	return &Simulator{
		ref:     ref,
		cfg:     cfg,
		windows: make(map[int64][]window),
	}
}

// ActiveCampaigns returns the number of currently running campaigns.
func (s *Simulator) ActiveCampaigns() int { return len(s.active) }

// PlanDay ends expired campaigns, possibly starts a new one, and emits
// the day's impressions hour by hour. All randomness comes from st,
// derived from (seed, "marketing", date).
func (s *Simulator) PlanDay(st *rng.Stream, day time.Time) model.FactBatch {
	var batch model.FactBatch
	s.pruneWindows(day)
	s.endExpired(&batch, day)
	s.maybeStart(st, &batch, day)

	for _, c := range s.active {
		s.emitImpressions(st, &batch, c, day)
	}
	return batch
}

// pruneWindows drops attribution windows that can no longer match any
// purchase, keeping the index bounded over long runs.
func (s *Simulator) pruneWindows(day time.Time) {
	for id, ws := range s.windows {
		kept := ws[:0]
		for _, w := range ws {
			if w.until.After(day) {
				kept = append(kept, w)
			}
		}
		if len(kept) == 0 {
			delete(s.windows, id)
		} else {
			s.windows[id] = kept
		}
	}
}

func (s *Simulator) endExpired(batch *model.FactBatch, day time.Time) {
	kept := s.active[:0]
	for _, c := range s.active {
		if !c.end.After(day) {
			batch.Campaigns = append(batch.Campaigns, model.Campaign{
				TraceID:   model.TraceIDf(model.TableCampaigns, "%s:ended", c.id),
				ID:        c.id,
				Name:      c.name,
				Channel:   c.channel.Name,
				Status:    model.CampaignEnded,
				Start:     c.start,
				End:       c.end,
				EventTime: c.end,
			})
			continue
		}
		kept = append(kept, c)
	}
	s.active = kept
}

func (s *Simulator) maybeStart(st *rng.Stream, batch *model.FactBatch, day time.Time) {
	if len(s.active) >= s.cfg.MaxActive || !st.Chance(s.cfg.StartProbability) {
		return
	}
	s.seq++
	channel := s.cfg.Channels[st.IntBetween(0, len(s.cfg.Channels)-1)]
	duration := st.IntBetween(minDurationDays, maxDurationDays)
	floor := s.cfg.MinDailyImpressions
	c := &campaignState{
		id:          fmt.Sprintf("CMP-%04d", s.seq),
		name:        fmt.Sprintf("%s-%s", adjectives[st.IntBetween(0, len(adjectives)-1)], themes[st.IntBetween(0, len(themes)-1)]),
		channel:     channel,
		start:       day,
		end:         day.AddDate(0, 0, duration),
		dailyVolume: st.IntBetween(floor, floor*6),
	}
	s.active = append(s.active, c)
	batch.Campaigns = append(batch.Campaigns, model.Campaign{
		TraceID:   model.TraceIDf(model.TableCampaigns, "%s:started", c.id),
		ID:        c.id,
		Name:      c.name,
		Channel:   channel.Name,
		Status:    model.CampaignActive,
		Start:     c.start,
		End:       c.end,
		EventTime: c.start,
	})
}

// emitImpressions spreads one campaign's daily volume across the day's
// 24 hours. Resolved impressions open an attribution window for the
// matched customer.
func (s *Simulator) emitImpressions(st *rng.Stream, batch *model.FactBatch, c *campaignState, day time.Time) {
	hourly := float64(c.dailyVolume) / 24.0
	n := 0
	for h := 0; h < 24; h++ {
		hourStart := day.Add(time.Duration(h) * time.Hour)
		count := st.Poisson(hourly)
		for i := 0; i < count; i++ {
			n++
			at := hourStart.Add(time.Duration(st.IntBetween(0, 59)) * time.Minute)
			di := st.WeightedIndex(deviceProbs)
			cost := st.Uniform(c.channel.CostMin, c.channel.CostMax) * deviceMults[di]

			imp := model.Impression{
				TraceID:    model.TraceIDf(model.TableImpressions, "%s:%s:%d", c.id, day.Format("20060102"), n),
				CampaignID: c.id,
				Channel:    c.channel.Name,
				Device:     devices[di],
				Cost:       decimal.NewFromFloat(cost).Round(4),
				EventTime:  at,
			}
			if st.Chance(s.cfg.ResolvedFraction) && len(s.ref.Customers) > 0 {
				cust := s.ref.Customers[st.IntBetween(0, len(s.ref.Customers)-1)]
				imp.CustomerID = cust.ID
				lag := st.IntBetween(s.cfg.AttributionMinHours, s.cfg.AttributionMaxHours)
				s.windows[cust.ID] = append(s.windows[cust.ID], window{
					campaignID:  c.id,
					impressedAt: at,
					until:       at.Add(time.Duration(lag) * time.Hour),
				})
			}
			batch.Impressions = append(batch.Impressions, imp)
		}
	}
}

// Primed reports whether a purchase by the customer at ts falls inside
// an attribution window. When several windows cover ts, the earliest
// impression wins. Safe for concurrent reads; the index is only
// mutated by PlanDay.
func (s *Simulator) Primed(customerID int64, ts time.Time) (string, bool) {
	var (
		best   string
		bestAt time.Time
		found  bool
	)
	for _, w := range s.windows[customerID] {
		if w.impressedAt.Before(ts) && !ts.After(w.until) {
			if !found || w.impressedAt.Before(bestAt) {
				best, bestAt, found = w.campaignID, w.impressedAt, true
			}
		}
	}
	return best, found
}
