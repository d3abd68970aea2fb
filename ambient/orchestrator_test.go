package ambient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
)

const geoBody = `{"city":"Pune","country_name":"India","timezone":"UTC","latitude":18.52,"longitude":73.86}`

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func newOrchestrator(t *testing.T, cfg Config) *Orchestrator {
	t.Helper()
	logger, _ := test.NewNullLogger()
	o := New(cfg, http.DefaultClient, logger)
	t.Cleanup(o.Close)
	return o
}

func TestOrchestratorMergesLocationAndWeather(t *testing.T) {
	geo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(geoBody))
	}))
	t.Cleanup(geo.Close)

	weather := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("lat") == "" || r.URL.Query().Get("appid") != "test-key" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Write([]byte(`{"weather":[{"main":"Clear"}],"main":{"temp":21.5}}`))
	}))
	t.Cleanup(weather.Close)

	o := newOrchestrator(t, Config{
		GeoURL:        geo.URL,
		WeatherURL:    weather.URL,
		WeatherAPIKey: "test-key",
		StageTimeout:  time.Second,
	})
	o.Start(context.Background())

	waitFor(t, 2*time.Second, func() bool { return o.Snapshot().Weather != nil })

	snap := o.Snapshot()
	if snap.LocationError != "" || snap.WeatherError != "" {
		t.Fatalf("unexpected errors: %+v", snap)
	}
	if snap.Location == nil || snap.Location.City != "Pune" || snap.Location.Country != "India" {
		t.Fatalf("unexpected location: %+v", snap.Location)
	}
	if snap.Weather.TempC != 21.5 || snap.Weather.Condition != "Clear" || snap.Weather.Glyph != "sun" {
		t.Fatalf("unexpected weather: %+v", snap.Weather)
	}
	if snap.CurrentTime == "" {
		t.Fatal("expected current time to be set")
	}
}

func TestOrchestratorLocationTimeoutSkipsWeather(t *testing.T) {
	release := make(chan struct{})
	geo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(geo.Close)
	t.Cleanup(func() { close(release) })

	var weatherHits atomic.Int32
	weather := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		weatherHits.Add(1)
		w.Write([]byte(`{"weather":[{"main":"Clear"}],"main":{"temp":30}}`))
	}))
	t.Cleanup(weather.Close)

	o := newOrchestrator(t, Config{
		GeoURL:       geo.URL,
		WeatherURL:   weather.URL,
		StageTimeout: 50 * time.Millisecond,
	})
	o.Start(context.Background())

	waitFor(t, 2*time.Second, func() bool { return o.Snapshot().LocationError != "" })

	snap := o.Snapshot()
	if snap.LocationError != "Could not fetch location data" {
		t.Fatalf("unexpected location error: %q", snap.LocationError)
	}
	if snap.Location != nil || snap.Weather != nil || snap.WeatherError != "" {
		t.Fatalf("expected weather to stay absent: %+v", snap)
	}
	if weatherHits.Load() != 0 {
		t.Fatal("weather endpoint must not be called when location fails")
	}
}

func TestOrchestratorWeatherFailureKeepsLocation(t *testing.T) {
	geo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(geoBody))
	}))
	t.Cleanup(geo.Close)

	weather := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(weather.Close)

	o := newOrchestrator(t, Config{
		GeoURL:       geo.URL,
		WeatherURL:   weather.URL,
		StageTimeout: time.Second,
	})
	o.Start(context.Background())

	waitFor(t, 2*time.Second, func() bool { return o.Snapshot().WeatherError != "" })

	snap := o.Snapshot()
	if snap.Location == nil || snap.Location.City != "Pune" {
		t.Fatalf("location lost on weather failure: %+v", snap)
	}
	if snap.WeatherError != "Could not fetch weather data" {
		t.Fatalf("unexpected weather error: %q", snap.WeatherError)
	}
	if snap.Weather != nil {
		t.Fatalf("weather should be absent: %+v", snap.Weather)
	}
}

func TestOrchestratorRefreshRerunsPipeline(t *testing.T) {
	var hits atomic.Int32
	geo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Write([]byte(`{"city":"Pune","country_name":"India","timezone":"UTC","latitude":0,"longitude":0}`))
			return
		}
		w.Write([]byte(`{"city":"Oslo","country_name":"Norway","timezone":"UTC","latitude":0,"longitude":0}`))
	}))
	t.Cleanup(geo.Close)

	o := newOrchestrator(t, Config{
		GeoURL:       geo.URL,
		StageTimeout: time.Second,
	})

	// Refresh before Start is a no-op.
	o.Refresh()
	if hits.Load() != 0 {
		t.Fatal("refresh before start must not fetch")
	}

	o.Start(context.Background())
	waitFor(t, 2*time.Second, func() bool {
		snap := o.Snapshot()
		return snap.Location != nil && snap.Location.City == "Pune"
	})

	o.Refresh()
	waitFor(t, 2*time.Second, func() bool {
		snap := o.Snapshot()
		return snap.Location != nil && snap.Location.City == "Oslo"
	})
}

func TestOrchestratorCloseStopsClock(t *testing.T) {
	geo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Zero coordinates keep the weather stage out of this test.
		w.Write([]byte(`{"city":"X","country_name":"Y","timezone":"UTC","latitude":0,"longitude":0}`))
	}))
	t.Cleanup(geo.Close)

	o := newOrchestrator(t, Config{
		GeoURL:        geo.URL,
		StageTimeout:  time.Second,
		ClockInterval: 10 * time.Millisecond,
	})

	// Frozen clock distinguishes formatting updates from time progression.
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	var ticks atomic.Int64
	o.now = func() time.Time {
		return base.Add(time.Duration(ticks.Add(1)) * time.Second)
	}

	o.Start(context.Background())
	waitFor(t, 2*time.Second, func() bool { return o.Snapshot().CurrentTime != "" })

	o.Close()
	snap := o.Snapshot()
	time.Sleep(50 * time.Millisecond)
	if got := o.Snapshot(); got.CurrentTime != snap.CurrentTime {
		t.Fatalf("clock kept updating after Close: %q -> %q", snap.CurrentTime, got.CurrentTime)
	}
}

func TestGlyphMappingIsTotal(t *testing.T) {
	cases := map[string]string{
		"Clear":        "sun",
		"Clouds":       "cloud",
		"Rain":         "cloud-rain",
		"Snow":         "cloud-snow",
		"Mist":         "cloud-fog",
		"Fog":          "cloud-fog",
		"Haze":         "cloud-fog",
		"Thunderstorm": "cloud",
		"":             "cloud",
	}
	for condition, want := range cases {
		if got := Glyph(condition); got != want {
			t.Errorf("Glyph(%q) = %q, want %q", condition, got, want)
		}
	}
}
