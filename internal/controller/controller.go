// Package controller holds the single-user weather interaction state: the search field,
// unit preference, last result, and the state machine idle → loading → success/error.
package controller

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-desk/internal/apperr"
	"github.com/kjstillabower/weather-desk/internal/display"
	"github.com/kjstillabower/weather-desk/internal/models"
	"github.com/kjstillabower/weather-desk/internal/observability"
	"github.com/kjstillabower/weather-desk/internal/validation"
)

// State is the visible phase of the controller.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateSuccess State = "success"
	StateError   State = "error"
)

// MessageNoLocation is shown when the location resolver yields nothing.
const MessageNoLocation = "Could not detect your location"

const (
	actionSearch   = "search"
	actionLocation = "location"
	actionToggle   = "toggle"
	actionHistory  = "history"
)

// WeatherFetcher fetches current conditions and forecast samples. Errors should be apperr
// tagged; untagged errors are shown with a generic message.
type WeatherFetcher interface {
	GetCurrent(ctx context.Context, city string, unit models.Unit) (models.WeatherRecord, error)
	GetForecast(ctx context.Context, city string, unit models.Unit) ([]models.ForecastSample, error)
}

// HistoryStore records successful searches.
type HistoryStore interface {
	Add(city string) error
	Suggestions(n int) []string
}

// LocationResolver yields the caller's city, or false.
type LocationResolver interface {
	ResolveCity(ctx context.Context) (string, bool)
}

// Options configures a Controller. Zero values select defaults.
type Options struct {
	Unit            models.Unit
	MaxCityLength   int
	SuggestionCount int
	Logger          *zap.Logger
}

// View is a snapshot of everything the user sees.
type View struct {
	State      State                   `json:"state"`
	Query      string                  `json:"query"`
	Unit       models.Unit             `json:"unit"`
	Error      string                  `json:"error,omitempty"`
	Current    *display.CurrentSummary `json:"current,omitempty"`
	Forecast   []display.DaySummary    `json:"forecast"`
	History    []string                `json:"history"`
	Generation uint64                  `json:"generation"`
	// Superseded is set on a task's view when a newer fetch started before it finished
	// and its result was discarded.
	Superseded bool `json:"superseded,omitempty"`
}

// Controller serializes state changes from concurrent actions. A fetch sequence that is
// overtaken by a newer one is discarded when it completes.
type Controller struct {
	fetcher  WeatherFetcher
	history  HistoryStore
	resolver LocationResolver
	logger   *zap.Logger

	maxCityLength   int
	suggestionCount int

	mu         sync.Mutex
	state      State
	query      string
	unit       models.Unit
	errMsg     string
	generation uint64

	// record is the last current-conditions result and survives failed fetches so a
	// toggle can re-fetch it. shown says whether record and forecast are on screen.
	record     *models.WeatherRecord
	recordUnit models.Unit
	forecast   []models.ForecastSample
	shown      bool

	wg sync.WaitGroup
}

// New creates a Controller in the idle state.
func New(fetcher WeatherFetcher, history HistoryStore, resolver LocationResolver, opts Options) *Controller {
	unit := opts.Unit
	if !unit.Valid() {
		unit = models.UnitMetric
	}
	if opts.SuggestionCount <= 0 {
		opts.SuggestionCount = 5
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Controller{
		fetcher:         fetcher,
		history:         history,
		resolver:        resolver,
		logger:          opts.Logger,
		maxCityLength:   opts.MaxCityLength,
		suggestionCount: opts.SuggestionCount,
		state:           StateIdle,
		unit:            unit,
	}
}

// View returns the current snapshot.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// Unit returns the current unit preference.
func (c *Controller) Unit() models.Unit {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unit
}

// Search looks up city. An empty or invalid city goes straight to the error state
// without calling the fetcher.
func (c *Controller) Search(ctx context.Context, city string) *Task {
	return c.search(ctx, city, actionSearch)
}

// SelectHistory fills the search field with a history entry and searches it. An empty
// selection does nothing.
func (c *Controller) SelectHistory(ctx context.Context, city string) *Task {
	if strings.TrimSpace(city) == "" {
		c.mu.Lock()
		defer c.mu.Unlock()
		observability.RecordSearch(actionHistory, "noop", "")
		return completedTask(c.viewLocked(), nil)
	}
	return c.search(ctx, city, actionHistory)
}

func (c *Controller) search(ctx context.Context, city, action string) *Task {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.query = city
	trimmed, err := validation.ValidateCity(city, c.maxCityLength)
	if err != nil {
		c.state = StateError
		c.errMsg = apperr.Message(err)
		observability.RecordSearch(action, "invalid", "")
		return completedTask(c.viewLocked(), err)
	}

	t := newTask()
	gen := c.beginLocked()
	unit := c.unit
	c.spawn(ctx, func(ctx context.Context) {
		c.runFetch(ctx, t, gen, action, trimmed, unit, true)
	})
	return t
}

// UseLocation resolves the caller's city and searches it. Any resolver failure shows
// MessageNoLocation.
func (c *Controller) UseLocation(ctx context.Context) *Task {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := newTask()
	gen := c.beginLocked()
	unit := c.unit
	c.spawn(ctx, func(ctx context.Context) {
		var (
			city string
			ok   bool
		)
		if c.resolver != nil {
			city, ok = c.resolver.ResolveCity(ctx)
		}

		c.mu.Lock()
		if gen != c.generation {
			c.discardLocked(t, actionLocation)
			c.mu.Unlock()
			return
		}
		if !ok {
			c.state = StateError
			c.errMsg = MessageNoLocation
			view := c.viewLocked()
			c.mu.Unlock()
			observability.RecordSearch(actionLocation, "error", "")
			t.finish(view, apperr.New(apperr.KindNetwork, MessageNoLocation))
			return
		}
		c.query = city
		trimmed, err := validation.ValidateCity(city, c.maxCityLength)
		if err != nil {
			c.state = StateError
			c.errMsg = apperr.Message(err)
			view := c.viewLocked()
			c.mu.Unlock()
			observability.RecordSearch(actionLocation, "invalid", "")
			t.finish(view, err)
			return
		}
		c.mu.Unlock()

		c.runFetch(ctx, t, gen, actionLocation, trimmed, unit, true)
	})
	return t
}

// ToggleUnit flips the unit and re-fetches the last fetched location under it. The
// location is kept through failed searches. Before any successful fetch it does nothing.
func (c *Controller) ToggleUnit(ctx context.Context) *Task {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.record == nil {
		observability.RecordSearch(actionToggle, "noop", "")
		return completedTask(c.viewLocked(), nil)
	}

	c.unit = c.unit.Toggle()
	city := c.record.Location
	unit := c.unit

	t := newTask()
	gen := c.beginLocked()
	c.spawn(ctx, func(ctx context.Context) {
		c.runFetch(ctx, t, gen, actionToggle, city, unit, false)
	})
	return t
}

// Wait blocks until every spawned action has finished or ctx is done.
func (c *Controller) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// beginLocked starts a fetch sequence: bumps the generation, enters loading, and hides
// the previous result and error. The last record is kept for ToggleUnit.
func (c *Controller) beginLocked() uint64 {
	c.generation++
	c.state = StateLoading
	c.errMsg = ""
	c.shown = false
	return c.generation
}

// spawn runs fn in its own goroutine. Request cancellation does not reach fn; values such
// as the correlation ID do.
func (c *Controller) spawn(ctx context.Context, fn func(ctx context.Context)) {
	ctx = context.WithoutCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn(ctx)
	}()
}

func (c *Controller) runFetch(ctx context.Context, t *Task, gen uint64, action, city string, unit models.Unit, recordHistory bool) {
	logger := observability.LoggerFromContext(ctx, c.logger)

	rec, err := c.fetcher.GetCurrent(ctx, city, unit)
	gotCurrent := err == nil
	var samples []models.ForecastSample
	if gotCurrent {
		samples, err = c.fetcher.GetForecast(ctx, city, unit)
	}

	c.mu.Lock()
	if gen != c.generation {
		c.discardLocked(t, action)
		c.mu.Unlock()
		logger.Debug("discarded stale weather result", zap.String("city", city), zap.Uint64("generation", gen))
		return
	}

	if gotCurrent {
		c.record = &rec
		c.recordUnit = unit
	}
	if err != nil {
		c.forecast = nil
		c.state = StateError
		c.errMsg = apperr.Message(err)
		view := c.viewLocked()
		c.mu.Unlock()
		observability.RecordSearch(action, "error", city)
		logger.Info("weather action failed", zap.String("action", action), zap.String("city", city), zap.Error(err))
		t.finish(view, err)
		return
	}

	c.forecast = samples
	c.shown = true
	c.state = StateSuccess

	if recordHistory && c.history != nil {
		if herr := c.history.Add(city); herr != nil {
			err = apperr.Wrap(apperr.KindPersistence, "Could not save search history", herr)
			c.state = StateError
			c.errMsg = apperr.Message(err)
		}
	}
	view := c.viewLocked()
	c.mu.Unlock()

	if err != nil {
		observability.RecordSearch(action, "error", city)
		logger.Warn("search history write failed", zap.String("city", city), zap.Error(err))
	} else {
		observability.RecordSearch(action, "success", city)
		logger.Debug("weather action complete", zap.String("action", action), zap.String("city", city), zap.String("unit", string(unit)))
	}
	t.finish(view, err)
}

func (c *Controller) discardLocked(t *Task, action string) {
	observability.StaleResultsDiscardedTotal.Inc()
	observability.RecordSearch(action, "superseded", "")
	view := c.viewLocked()
	view.Superseded = true
	t.finish(view, nil)
}

func (c *Controller) viewLocked() View {
	v := View{
		State:      c.state,
		Query:      c.query,
		Unit:       c.unit,
		Error:      c.errMsg,
		Forecast:   []display.DaySummary{},
		Generation: c.generation,
	}
	if c.shown && c.record != nil {
		s := display.Summarize(*c.record, c.recordUnit)
		v.Current = &s
		v.Forecast = display.SelectDailyForecast(c.forecast)
	}
	if c.history != nil {
		v.History = c.history.Suggestions(c.suggestionCount)
	}
	if v.History == nil {
		v.History = []string{}
	}
	return v
}
