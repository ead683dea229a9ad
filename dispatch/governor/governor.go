package governor

import (
	"math/rand"
	"sync"
	"time"

	"github.com/AzielCF/az-prospector/pkg/timeutils"
)

// Config is the admission policy: business window, quotas and jittered delay.
type Config struct {
	HourlyLimit int
	DailyLimit  int
	MinDelay    time.Duration
	MaxDelay    time.Duration
	Days        []time.Weekday
	StartHour   int // inclusive
	EndHour     int // exclusive
	Location    *time.Location
}

// RateGovernor answers "may we send now?".
//
// Counters live in process memory and start at zero on every restart: a crash in the
// middle of an hour relaxes the hourly cap for the rest of that hour. Periods are local
// calendar hours and days in Config.Location, not sliding windows.
type RateGovernor struct {
	mu  sync.Mutex
	cfg Config
	now func() time.Time
	rng *rand.Rand

	hourlySent int
	dailySent  int
	hourStart  time.Time
	dayStart   time.Time
}

type Option func(*RateGovernor)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(g *RateGovernor) { g.now = now }
}

// WithRand makes NextDelay deterministic.
func WithRand(rng *rand.Rand) Option {
	return func(g *RateGovernor) { g.rng = rng }
}

func New(cfg Config, opts ...Option) *RateGovernor {
	g := &RateGovernor{
		now: time.Now,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.cfg = normalize(cfg)
	return g
}

// Configure swaps the policy (limits, window) while keeping the counters.
func (g *RateGovernor) Configure(cfg Config) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cfg = normalize(cfg)
}

// Now returns the governor clock.
func (g *RateGovernor) Now() time.Time {
	return g.now()
}

// WithinBusinessWindow reports whether t falls on an allowed weekday inside [StartHour, EndHour).
func (g *RateGovernor) WithinBusinessWindow(t time.Time) bool {
	g.mu.Lock()
	cfg := g.cfg
	g.mu.Unlock()

	local := t.In(cfg.Location)
	allowed := false
	for _, d := range cfg.Days {
		if d == local.Weekday() {
			allowed = true
			break
		}
	}
	return allowed && local.Hour() >= cfg.StartHour && local.Hour() < cfg.EndHour
}

// HasQuota is true while both the hourly and the daily counters are under their limits.
func (g *RateGovernor) HasQuota() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollover()
	return g.hourlySent < g.cfg.HourlyLimit && g.dailySent < g.cfg.DailyLimit
}

// RecordSend counts one delivered message in both periods.
func (g *RateGovernor) RecordSend() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollover()
	g.hourlySent++
	g.dailySent++
}

// NextDelay returns a random pause in [MinDelay, MaxDelay].
func (g *RateGovernor) NextDelay() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	span := g.cfg.MaxDelay - g.cfg.MinDelay
	if span <= 0 {
		return g.cfg.MinDelay
	}
	return g.cfg.MinDelay + time.Duration(g.rng.Int63n(int64(span)+1))
}

// Status is a point-in-time view for operators.
type Status struct {
	WindowOpen   bool      `json:"window_open"`
	NextOpening  time.Time `json:"next_opening,omitempty"`
	HourlySent   int       `json:"hourly_sent"`
	HourlyLimit  int       `json:"hourly_limit"`
	DailySent    int       `json:"daily_sent"`
	DailyLimit   int       `json:"daily_limit"`
	HasQuota     bool      `json:"has_quota"`
	PeriodHour   time.Time `json:"period_hour"`
	PeriodDay    time.Time `json:"period_day"`
	CountersNote string    `json:"counters_note"`
}

func (g *RateGovernor) Status() Status {
	now := g.now()
	open := g.WithinBusinessWindow(now)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollover()

	st := Status{
		WindowOpen:   open,
		HourlySent:   g.hourlySent,
		HourlyLimit:  g.cfg.HourlyLimit,
		DailySent:    g.dailySent,
		DailyLimit:   g.cfg.DailyLimit,
		HasQuota:     g.hourlySent < g.cfg.HourlyLimit && g.dailySent < g.cfg.DailyLimit,
		PeriodHour:   g.hourStart,
		PeriodDay:    g.dayStart,
		CountersNote: "process-local, reset on restart",
	}
	if !open {
		if next, err := timeutils.NextWindowOpening(now, g.cfg.Days, g.cfg.StartHour, g.cfg.EndHour, g.cfg.Location); err == nil {
			st.NextOpening = next
		}
	}
	return st
}

// rollover zeroes a counter when the local hour/day it belongs to has passed. Caller holds mu.
func (g *RateGovernor) rollover() {
	local := g.now().In(g.cfg.Location)
	hour := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, g.cfg.Location)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, g.cfg.Location)

	if !hour.Equal(g.hourStart) {
		g.hourStart = hour
		g.hourlySent = 0
	}
	if !day.Equal(g.dayStart) {
		g.dayStart = day
		g.dailySent = 0
	}
}

func normalize(cfg Config) Config {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	if cfg.EndHour == 0 {
		cfg.EndHour = 24
	}
	return cfg
}
