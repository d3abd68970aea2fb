// Package ambient resolves the user's surroundings for the landing view: an
// IP-based geolocation lookup, a ticking local-clock display in the resolved
// timezone, and a coordinate-based weather lookup. Each stage is independently
// fallible and independently bounded; a failed stage degrades only its own
// slice of the snapshot.
package ambient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	defaultStageTimeout  = 5 * time.Second
	defaultClockInterval = time.Second
	defaultGeoURL        = "https://ipapi.co/json/"
	defaultWeatherURL    = "https://api.openweathermap.org/data/2.5/weather"
)

// Location describes where the user appears to be, derived from their IP.
type Location struct {
	City      string  `json:"city"`
	Country   string  `json:"country"`
	Timezone  string  `json:"timezone"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Weather is the current condition at the resolved coordinates.
type Weather struct {
	TempC     float64 `json:"tempC"`
	Condition string  `json:"condition"`
	Glyph     string  `json:"glyph"`
}

// Snapshot is the merged view state. For each stage at most one of the data
// field or its error is set; both absent means the stage has not completed.
type Snapshot struct {
	Location      *Location `json:"location,omitempty"`
	Weather       *Weather  `json:"weather,omitempty"`
	CurrentTime   string    `json:"currentTime,omitempty"`
	LocationError string    `json:"locationError,omitempty"`
	WeatherError  string    `json:"weatherError,omitempty"`
}

// Config controls the orchestrator's endpoints and timing.
type Config struct {
	GeoURL        string
	WeatherURL    string
	WeatherAPIKey string
	StageTimeout  time.Duration
	ClockInterval time.Duration
}

// Orchestrator runs the location → clock → weather pipeline and owns every
// timer and in-flight request it starts. Close tears all of them down; no
// snapshot mutation happens after Close returns the pipeline to rest.
type Orchestrator struct {
	cfg    Config
	client *http.Client
	logger *log.Logger
	now    func() time.Time

	mu   sync.Mutex
	snap Snapshot

	// lifecycleMu serializes Start, Refresh and Close so a restart never
	// races another caller's teardown.
	lifecycleMu sync.Mutex
	baseCtx     context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// New creates an Orchestrator. A nil client falls back to http.DefaultClient;
// zero durations fall back to the reference values (5s stage timeout, 1s
// clock).
func New(cfg Config, client *http.Client, logger *log.Logger) *Orchestrator {
	if cfg.GeoURL == "" {
		cfg.GeoURL = defaultGeoURL
	}
	if cfg.WeatherURL == "" {
		cfg.WeatherURL = defaultWeatherURL
	}
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = defaultStageTimeout
	}
	if cfg.ClockInterval <= 0 {
		cfg.ClockInterval = defaultClockInterval
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Orchestrator{cfg: cfg, client: client, logger: logger, now: time.Now}
}

// Start launches the pipeline. It returns immediately; progress lands in the
// snapshot as stages complete. Calling Start twice restarts the pipeline.
func (o *Orchestrator) Start(ctx context.Context) {
	o.lifecycleMu.Lock()
	defer o.lifecycleMu.Unlock()
	o.baseCtx = ctx
	o.restart()
}

// Refresh re-runs the pipeline from a fresh snapshot. There are no automatic
// retries; this is the re-activation path for stale or failed fetches.
func (o *Orchestrator) Refresh() {
	o.lifecycleMu.Lock()
	defer o.lifecycleMu.Unlock()
	if o.baseCtx == nil {
		return
	}
	o.restart()
}

// Close cancels all pending timers and in-flight requests and waits for the
// pipeline goroutines to drain.
func (o *Orchestrator) Close() {
	o.lifecycleMu.Lock()
	defer o.lifecycleMu.Unlock()
	o.stop()
}

func (o *Orchestrator) restart() {
	o.stop()

	runCtx, cancel := context.WithCancel(o.baseCtx)
	o.cancel = cancel

	o.mu.Lock()
	o.snap = Snapshot{}
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.run(runCtx)
	}()
}

func (o *Orchestrator) stop() {
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.wg.Wait()
}

// Snapshot returns the current merged view state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snap
}

func (o *Orchestrator) run(ctx context.Context) {
	loc, err := o.fetchLocation(ctx)
	if err != nil {
		o.logger.WithError(err).Warn("location fetch failed")
		o.update(ctx, func(s *Snapshot) {
			s.LocationError = "Could not fetch location data"
		})
		return
	}
	o.update(ctx, func(s *Snapshot) { s.Location = &loc })

	tz, tzErr := time.LoadLocation(loc.Timezone)
	if tzErr != nil {
		o.logger.WithError(tzErr).WithField("timezone", loc.Timezone).Warn("unknown timezone, clock uses UTC")
		tz = time.UTC
	}
	o.update(ctx, func(s *Snapshot) { s.CurrentTime = formatClock(o.now(), tz) })
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.runClock(ctx, tz)
	}()

	if loc.Latitude == 0 && loc.Longitude == 0 {
		return
	}
	weather, err := o.fetchWeather(ctx, loc.Latitude, loc.Longitude)
	if err != nil {
		o.logger.WithError(err).Warn("weather fetch failed")
		o.update(ctx, func(s *Snapshot) {
			s.WeatherError = "Could not fetch weather data"
		})
		return
	}
	o.update(ctx, func(s *Snapshot) { s.Weather = &weather })
}

// update applies fn to the snapshot unless the pipeline was already torn
// down. This is the stale-callback guard.
func (o *Orchestrator) update(ctx context.Context, fn func(*Snapshot)) {
	if ctx.Err() != nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	fn(&o.snap)
}

func (o *Orchestrator) runClock(ctx context.Context, tz *time.Location) {
	ticker := time.NewTicker(o.cfg.ClockInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.update(ctx, func(s *Snapshot) { s.CurrentTime = formatClock(o.now(), tz) })
		}
	}
}

func formatClock(now time.Time, tz *time.Location) string {
	return now.In(tz).Format("03:04:05 PM")
}

type geoResponse struct {
	City        string  `json:"city"`
	CountryName string  `json:"country_name"`
	Timezone    string  `json:"timezone"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

func (o *Orchestrator) fetchLocation(ctx context.Context) (Location, error) {
	reqCtx, cancel := context.WithTimeout(ctx, o.cfg.StageTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, o.cfg.GeoURL, nil)
	if err != nil {
		return Location{}, err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return Location{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Location{}, fmt.Errorf("geolocation endpoint returned %d", resp.StatusCode)
	}

	var body geoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Location{}, err
	}
	return Location{
		City:      body.City,
		Country:   body.CountryName,
		Timezone:  body.Timezone,
		Latitude:  body.Latitude,
		Longitude: body.Longitude,
	}, nil
}

type weatherResponse struct {
	Weather []struct {
		Main string `json:"main"`
	} `json:"weather"`
	Main struct {
		Temp float64 `json:"temp"`
	} `json:"main"`
}

func (o *Orchestrator) fetchWeather(ctx context.Context, lat, lon float64) (Weather, error) {
	reqCtx, cancel := context.WithTimeout(ctx, o.cfg.StageTimeout)
	defer cancel()

	url := fmt.Sprintf("%s?lat=%f&lon=%f&appid=%s&units=metric", o.cfg.WeatherURL, lat, lon, o.cfg.WeatherAPIKey)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return Weather{}, err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return Weather{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Weather{}, fmt.Errorf("weather endpoint returned %d", resp.StatusCode)
	}

	var body weatherResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Weather{}, err
	}
	condition := ""
	if len(body.Weather) > 0 {
		condition = body.Weather[0].Main
	}
	return Weather{
		TempC:     body.Main.Temp,
		Condition: condition,
		Glyph:     Glyph(condition),
	}, nil
}
