package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"github.com/hibaYsr/Alsat-Track-Sat/internal/alert"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/api"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/auth"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/geo"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/history"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/notify"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/passes"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/poll"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/propagation"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/proximity"
	"github.com/hibaYsr/Alsat-Track-Sat/internal/tle"
)

// CDS: Satellite Development Center ground site, Oran.
const (
	defaultSiteLat = 35.7025
	defaultSiteLon = -0.621389
)

// The ALSAT constellation, name:catalog number.
const defaultSatellites = "ALSAT-1:27559,ALSAT-2A:36798,ALSAT-1N:41789,ALSAT-1B:41785,ALSAT-2B:41786"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: loadLogLevel(),
	}))

	addr := os.Getenv("ALSATTRACK_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	site, err := loadSiteConfig()
	if err != nil {
		logger.Error("invalid site configuration", "error", err)
		os.Exit(1)
	}

	objects, err := loadObjects()
	if err != nil {
		logger.Error("invalid satellite configuration", "error", err)
		os.Exit(1)
	}

	pollCfg, err := loadPollConfig()
	if err != nil {
		logger.Error("invalid poll configuration", "error", err)
		os.Exit(1)
	}

	alertCfg, err := loadAlertConfig(pollCfg.Cadence)
	if err != nil {
		logger.Error("invalid alert configuration", "error", err)
		os.Exit(1)
	}

	engineCfg, err := loadEngineConfig()
	if err != nil {
		logger.Error("invalid engine configuration", "error", err)
		os.Exit(1)
	}

	authCfg, err := loadAuthConfig(logger)
	if err != nil {
		logger.Error("invalid auth configuration", "error", err)
		os.Exit(1)
	}

	tleCfg := loadTLEConfig(logger)

	fetcher := tle.NewFetcher(tleCfg.SourceURL, pollCfg.Timeout, logger)
	diskCache := tle.NewCache(afero.NewOsFs(), tleCfg.CacheDir, tleCfg.MaxFiles)
	source := tle.NewCachedSource(fetcher, diskCache, tleCfg.TTL, tleCfg.MaxAge, logger)

	prop := propagation.NewSGP4()
	finder := passes.NewFinder(prop, engineCfg.MinElevationDeg)
	scanner := proximity.NewScanner(prop, site, engineCfg.ProximityRadiusKm, engineCfg.SampleStep)

	sched, err := alert.NewScheduler(alertCfg, logger)
	if err != nil {
		logger.Error("invalid alert configuration", "error", err)
		os.Exit(1)
	}

	transport := loadTransport(logger, pollCfg.Timeout)

	hist := loadHistory(logger)
	if hist != nil {
		defer hist.Close()
	}

	driver, err := poll.NewDriver(pollCfg, site, objects, source, prop, finder, scanner, sched, transport, hist, logger)
	if err != nil {
		logger.Error("invalid driver configuration", "error", err)
		os.Exit(1)
	}

	srv := api.NewServer(addr, logger, authCfg, driver, hist)

	// Graceful shutdown on SIGINT/SIGTERM. The in-flight tick finishes
	// before the driver returns.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	driverDone := make(chan struct{})
	go func() {
		defer close(driverDone)
		if err := driver.Run(ctx); err != nil {
			logger.Error("poll driver error", "error", err)
		}
	}()

	go func() {
		logger.Info("starting server",
			"addr", addr,
			"auth_enabled", authCfg.Enabled,
			"site_lat", site.LatDeg,
			"site_lon", site.LonDeg,
			"objects", len(objects),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	<-driverDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("stopped")
}

func loadLogLevel() slog.Level {
	switch strings.ToLower(os.Getenv("ALSATTRACK_LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func loadSiteConfig() (geo.Point, error) {
	site := geo.Point{LatDeg: defaultSiteLat, LonDeg: defaultSiteLon}

	if v := os.Getenv("ALSATTRACK_SITE_LAT"); v != "" {
		lat, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return geo.Point{}, errors.New("ALSATTRACK_SITE_LAT must be a number")
		}
		site.LatDeg = lat
	}
	if v := os.Getenv("ALSATTRACK_SITE_LON"); v != "" {
		lon, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return geo.Point{}, errors.New("ALSATTRACK_SITE_LON must be a number")
		}
		site.LonDeg = lon
	}
	if v := os.Getenv("ALSATTRACK_SITE_ALT_KM"); v != "" {
		alt, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return geo.Point{}, errors.New("ALSATTRACK_SITE_ALT_KM must be a number")
		}
		site.AltKm = alt
	}

	if !site.Valid() {
		return geo.Point{}, errors.New("site coordinates out of range")
	}
	return site, nil
}

// loadObjects parses ALSATTRACK_SATELLITES ("NAME:CATNR,NAME:CATNR,...").
func loadObjects() ([]poll.Object, error) {
	raw := os.Getenv("ALSATTRACK_SATELLITES")
	if raw == "" {
		raw = defaultSatellites
	}

	var objects []poll.Object
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, catStr, ok := strings.Cut(part, ":")
		if !ok {
			return nil, errors.New("ALSATTRACK_SATELLITES entries must be NAME:CATNR, got " + part)
		}
		catalogID, err := strconv.Atoi(strings.TrimSpace(catStr))
		if err != nil || catalogID <= 0 {
			return nil, errors.New("invalid catalog number in ALSATTRACK_SATELLITES: " + catStr)
		}
		name = strings.TrimSpace(name)
		objects = append(objects, poll.Object{
			ID:          name,
			DisplayName: name,
			CatalogID:   catalogID,
		})
	}

	if len(objects) == 0 {
		return nil, errors.New("ALSATTRACK_SATELLITES resolved to an empty set")
	}
	return objects, nil
}

func loadPollConfig() (poll.Config, error) {
	cfg := poll.DefaultConfig()

	if v := os.Getenv("ALSATTRACK_POLL_CADENCE_SEC"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return cfg, errors.New("ALSATTRACK_POLL_CADENCE_SEC must be a positive integer")
		}
		cfg.Cadence = time.Duration(n) * time.Second
	}
	if v := os.Getenv("ALSATTRACK_HORIZON_HOURS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return cfg, errors.New("ALSATTRACK_HORIZON_HOURS must be a positive integer")
		}
		cfg.Horizon = time.Duration(n) * time.Hour
	}
	if v := os.Getenv("ALSATTRACK_LOOKBACK_MIN"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return cfg, errors.New("ALSATTRACK_LOOKBACK_MIN must be a non-negative integer")
		}
		cfg.Lookback = time.Duration(n) * time.Minute
	}
	if v := os.Getenv("ALSATTRACK_MAX_CONCURRENT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return cfg, errors.New("ALSATTRACK_MAX_CONCURRENT must be a positive integer")
		}
		cfg.MaxConcurrent = n
	}
	if v := os.Getenv("ALSATTRACK_TIMEOUT_SEC"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return cfg, errors.New("ALSATTRACK_TIMEOUT_SEC must be a positive integer")
		}
		cfg.Timeout = time.Duration(n) * time.Second
	}

	return cfg, cfg.Validate()
}

// loadAlertConfig reads the lead/tolerance tunables. The pre-pass tolerance
// defaults to the poll cadence so the firing band is never narrower than the
// gap between ticks.
func loadAlertConfig(cadence time.Duration) (alert.Config, error) {
	cfg := alert.DefaultConfig()
	cfg.PrePassTolerance = cadence
	if cfg.PrePassTolerance < 5*time.Minute {
		cfg.PrePassTolerance = 5 * time.Minute
	}

	load := func(env string, dst *time.Duration) error {
		v := os.Getenv(env)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return errors.New(env + " must be a positive integer (seconds)")
		}
		*dst = time.Duration(n) * time.Second
		return nil
	}

	if err := load("ALSATTRACK_PREPASS_LEAD_SEC", &cfg.PrePassLead); err != nil {
		return cfg, err
	}
	if err := load("ALSATTRACK_PREPASS_TOLERANCE_SEC", &cfg.PrePassTolerance); err != nil {
		return cfg, err
	}
	if err := load("ALSATTRACK_OVERHEAD_LEAD_SEC", &cfg.OverheadLead); err != nil {
		return cfg, err
	}
	if err := load("ALSATTRACK_OVERHEAD_TOLERANCE_SEC", &cfg.OverheadTolerance); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

type engineConfig struct {
	MinElevationDeg   float64
	ProximityRadiusKm float64
	SampleStep        time.Duration
}

func loadEngineConfig() (engineConfig, error) {
	cfg := engineConfig{
		MinElevationDeg:   passes.DefaultMinElevationDeg,
		ProximityRadiusKm: proximity.DefaultRadiusKm,
		SampleStep:        proximity.DefaultSampleStep,
	}

	if v := os.Getenv("ALSATTRACK_MIN_ELEVATION_DEG"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 || f >= 90 {
			return cfg, errors.New("ALSATTRACK_MIN_ELEVATION_DEG must be in (0, 90)")
		}
		cfg.MinElevationDeg = f
	}
	if v := os.Getenv("ALSATTRACK_PROXIMITY_RADIUS_KM"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return cfg, errors.New("ALSATTRACK_PROXIMITY_RADIUS_KM must be positive")
		}
		cfg.ProximityRadiusKm = f
	}
	if v := os.Getenv("ALSATTRACK_SAMPLE_STEP_SEC"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return cfg, errors.New("ALSATTRACK_SAMPLE_STEP_SEC must be a positive integer")
		}
		cfg.SampleStep = time.Duration(n) * time.Second
	}

	return cfg, nil
}

func loadAuthConfig(logger *slog.Logger) (auth.Config, error) {
	cfg := auth.Config{}

	if v := os.Getenv("ALSATTRACK_AUTH_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, errors.New("ALSATTRACK_AUTH_ENABLED must be a boolean value (true/false/1/0)")
		}
		cfg.Enabled = enabled
	}

	if cfg.Enabled {
		cfg.Token = os.Getenv("ALSATTRACK_AUTH_TOKEN")
		if cfg.Token == "" {
			return cfg, errors.New("ALSATTRACK_AUTH_TOKEN is required when auth is enabled")
		}
		logger.Info("auth enabled")
	}

	return cfg, nil
}

type tleConfig struct {
	SourceURL string
	CacheDir  string
	MaxFiles  int
	TTL       time.Duration
	MaxAge    time.Duration
}

func loadTLEConfig(logger *slog.Logger) tleConfig {
	cfg := tleConfig{
		CacheDir: "/tmp/alsattrack/tle",
		MaxFiles: 5,
		TTL:      time.Hour,
		MaxAge:   24 * time.Hour,
	}

	if v := os.Getenv("ALSATTRACK_TLE_SOURCE_URL"); v != "" {
		cfg.SourceURL = v
	}
	if v := os.Getenv("ALSATTRACK_TLE_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
	if v := os.Getenv("ALSATTRACK_TLE_TTL_SEC"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid ALSATTRACK_TLE_TTL_SEC value, using default", "value", v, "default", 3600)
		} else {
			cfg.TTL = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("ALSATTRACK_TLE_MAX_AGE_SEC"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid ALSATTRACK_TLE_MAX_AGE_SEC value, using default", "value", v, "default", 86400)
		} else {
			cfg.MaxAge = time.Duration(n) * time.Second
		}
	}

	logger.Info("TLE config",
		"source_url", cfg.SourceURL,
		"cache_dir", cfg.CacheDir,
		"ttl_seconds", cfg.TTL.Seconds(),
	)

	return cfg
}

// loadTransport selects Telegram when credentials are present, otherwise a
// log-only transport. Missing credentials are a warning, not an error, to
// match how the tracker behaves without a configured bot.
func loadTransport(logger *slog.Logger, timeout time.Duration) notify.Transport {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	chatID := os.Getenv("TELEGRAM_CHAT_ID")

	if token == "" || chatID == "" {
		logger.Warn("missing Telegram configuration, notifications will be logged only")
		return &notify.LogTransport{Logger: logger}
	}

	return notify.NewTelegram("", token, chatID, timeout)
}

// loadHistory opens the pass-history database. ALSATTRACK_HISTORY_DB=off
// disables recording.
func loadHistory(logger *slog.Logger) *history.Store {
	path := os.Getenv("ALSATTRACK_HISTORY_DB")
	if path == "" {
		path = "/tmp/alsattrack/history.db"
	}
	if strings.EqualFold(path, "off") {
		logger.Info("pass history disabled")
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		logger.Warn("cannot create history directory, history disabled", "path", path, "error", err)
		return nil
	}

	store, err := history.Open(path)
	if err != nil {
		logger.Warn("cannot open history database, history disabled", "path", path, "error", err)
		return nil
	}

	logger.Info("pass history enabled", "path", path)
	return store
}
