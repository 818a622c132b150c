package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	"github.com/japersik/weather-map/internal/config"
	"github.com/japersik/weather-map/internal/history"
	"github.com/japersik/weather-map/internal/mapDataClient"
	"github.com/japersik/weather-map/internal/mapDataClient/openstreetmap"
	"github.com/japersik/weather-map/internal/mapDataClient/openweather"
	"github.com/japersik/weather-map/internal/mapSession"
	"github.com/japersik/weather-map/internal/sessionJanitor"
	"github.com/japersik/weather-map/internal/telegram"
	"github.com/japersik/weather-map/internal/web"
	"github.com/japersik/weather-map/logger"
	"github.com/japersik/weather-map/model"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		logger.Warn("reading .env: ", err)
	}
	cfg, err := config.Load(".")
	if err != nil {
		logger.Fatal("Error loading config: ", err)
	}

	zapLog, err := logger.NewZap(cfg.LogLevel)
	if err != nil {
		logger.Fatal("Error creating logger: ", err)
	}
	defer zapLog.Sync()
	if err := logger.NewInstance(logger.NewZapLogger(zapLog)); err != nil {
		logger.Fatal("Error installing logger: ", err)
	}
	for _, name := range cfg.MissingCredentials() {
		logger.WarnF("%s is not set", name)
	}

	policy, err := mapSession.ParseFailurePolicy(cfg.Weather.FailurePolicy)
	if err != nil {
		logger.Fatal(err)
	}

	weather := openweather.NewOpenWeatherClient(cfg.Weather.APIKey,
		openweather.WithBaseURL(cfg.Weather.BaseURL),
		openweather.WithUnits(cfg.Weather.Units),
		openweather.WithTimeout(cfg.Weather.Timeout),
	)
	geocoder := openstreetmap.NewOpenStreetClient(
		openstreetmap.WithBaseURL(cfg.Geocoder.BaseURL),
		openstreetmap.WithUserAgent(cfg.Geocoder.UserAgent),
		openstreetmap.WithLanguage(cfg.Geocoder.Language),
		openstreetmap.WithSuggestionLimit(cfg.Geocoder.SuggestionLimit),
		openstreetmap.WithTimeout(cfg.Geocoder.Timeout),
	)
	client := mapDataClient.Client{WeatherInfoSource: weather, GeocodeSource: geocoder}

	center := model.ViewCenter{
		Coordinate: model.Coordinate{Lat: cfg.Maps.CenterLat, Lng: cfg.Maps.CenterLng},
		Zoom:       cfg.Maps.Zoom,
	}
	opts := mapSession.Options{
		Center:        center,
		SearchZoom:    cfg.Maps.SearchZoom,
		FailurePolicy: policy,
	}

	var observations web.HistorySource
	if cfg.History.Enabled {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			logger.Fatal("Error opening history: ", err)
		}
		defer store.Close()
		opts.Recorder = store
		observations = store
	}

	registry := mapSession.NewRegistry(func(key string) *mapSession.Session {
		return mapSession.New(key, client, opts)
	})
	defer registry.Close()

	hub := web.NewHub(registry)
	defer hub.Close()

	mux := http.NewServeMux()
	web.NewHandler(registry, hub, observations, web.PublicConfig{
		MapsAPIKey: cfg.Maps.APIKey,
		Center:     center,
	}).RegisterRoutes(mux)
	server := &http.Server{Addr: ":" + cfg.Server.Port, Handler: web.WithLogging(mux)}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.InfoF("listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return sessionJanitor.NewJanitor(registry, cfg.Session.IdleTimeout, cfg.Session.SweepInterval).Start(ctx)
	})

	if cfg.Telegram.Token != "" {
		api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			logger.Fatal("Error creating telegram bot: ", err)
		}
		bot := telegram.NewBot(api, registry)
		g.Go(func() error {
			return bot.Start(ctx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("Error running weathermap: ", err)
	}
	logger.Info("stopped")
}
