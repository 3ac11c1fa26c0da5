package main

import (
	"context"
	"fmt"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/recscribe/internal/pkg/asr"
	"github.com/airenas/recscribe/internal/pkg/asr/dashscope"
	"github.com/airenas/recscribe/internal/pkg/asr/mock"
	"github.com/airenas/recscribe/internal/pkg/events"
	"github.com/airenas/recscribe/internal/pkg/persistence"
	"github.com/airenas/recscribe/internal/pkg/postgres"
	"github.com/airenas/recscribe/internal/pkg/scheduler"
	"github.com/airenas/recscribe/internal/pkg/service"
	"github.com/airenas/recscribe/internal/pkg/storage"
	"github.com/airenas/recscribe/internal/pkg/tracker"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/gommon/color"
	"github.com/spf13/viper"
	"github.com/vgarvardt/gue/v5"
	"github.com/vgarvardt/gue/v5/adapter/pgxv5"
)

func main() {
	goapp.StartWithDefault()

	printBanner()

	cfg := goapp.Config
	ctx, cancelFunc := context.WithCancel(context.Background())
	defer cancelFunc()

	dbConfig, err := pgxpool.ParseConfig(cfg.GetString("db.url"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}
	goapp.Log.Info().Int32("max_conn", dbConfig.MaxConns).Int32("min_conn", dbConfig.MinConns).Msg("db info")

	dbPool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}
	defer dbPool.Close()

	db, err := postgres.NewDB(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db")
	}
	if cfg.GetBool("db.migrate") {
		if err := db.Migrate(ctx); err != nil {
			goapp.Log.Fatal().Err(err).Msg("can't migrate db")
		}
	}

	gueClient, err := gue.NewClient(pgxv5.NewConnPool(dbPool))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gue")
	}
	sender, err := postgres.NewSender(gueClient)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gue sender")
	}
	notifier, err := events.NewQueueNotifier(sender)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init notifier")
	}

	provider, err := newProvider(cfg)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init asr provider")
	}
	audio, err := storage.NewPresignerFromConfig(cfg.Sub("filer"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init storage")
	}

	tr, err := tracker.New(&tracker.Data{DB: db, Provider: provider, Audio: audio, Notifier: notifier,
		Timeout: cfg.GetDuration("tracker.timeout")})
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init tracker")
	}

	manager, err := scheduler.NewManager(ctx, &scheduler.Data{Refresher: tr,
		Interval: defaultV(cfg.GetDuration("scheduler.interval"), 3*time.Second),
		OnFinish: func(j *persistence.Job) {
			goapp.Log.Info().Str("jobID", j.ID).Str("status", j.Status.String()).Msg("job finished")
		}})
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init poll manager")
	}
	defer manager.Stop()

	hub := events.NewHub()
	if cfg.GetBool("scheduler.pauseUnobserved") {
		manager.SetVisible(false)
		hub.OnObserved(manager.SetVisible)
	}
	if err := manager.Resume(ctx, db); err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't resume jobs")
	}

	doneCh, err := events.StartStatusHandler(ctx, &events.HandlerData{GueClient: gueClient,
		WorkerCount: defaultV(cfg.GetInt("events.workers"), 2), Publisher: hub})
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start status handler")
	}

	data := &service.Data{Port: cfg.GetInt("port"), Submitter: tr, DB: db, Scheduler: manager, Hub: hub,
		Checker: db, KeepAlive: cfg.GetDuration("events.keepAlive")}
	goapp.Log.Info().Msg("starting web service")
	if err := service.StartWebServer(data); err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start web server")
	}
	goapp.Log.Info().Msg("exit web service")
	cancelFunc()
	select {
	case <-doneCh:
		goapp.Log.Info().Msg("All code returned. Now exit. Bye")
	case <-time.After(time.Second * 15):
		goapp.Log.Warn().Msg("Timeout gracefull shutdown")
	}
}

func newProvider(cfg *viper.Viper) (asr.Provider, error) {
	switch p := defaultV(cfg.GetString("asr.provider"), "dashscope"); p {
	case "dashscope":
		return dashscope.NewClientFromConfig(cfg.Sub("asr.dashscope"))
	case "mock":
		return mock.NewProvider(mock.Options{PollsUntilRunning: cfg.GetInt("asr.mock.pollsUntilRunning"),
			PollsUntilDone: cfg.GetInt("asr.mock.pollsUntilDone"), SimulateFailure: cfg.GetBool("asr.mock.simulateFailure"),
			FailureMessage: cfg.GetString("asr.mock.failureMessage")})
	default:
		return nil, fmt.Errorf("unknown asr provider '%s'", p)
	}
}

func defaultV[T comparable](v, d T) T {
	var e T
	if v == e {
		return d
	}
	return v
}

var (
	version = "DEV"
)

func printBanner() {
	banner := `
                                  _ __       
   ________  ______________________(_) /_  ___ 
  / ___/ _ \/ ___/ ___/ ___/ ___/ / __ \/ _ \
 / /  /  __/ /__(__  ) /__/ /  / / /_/ /  __/
/_/   \___/\___/____/\___/_/  /_/_.___/\___/   v: %s

%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/airenas/recscribe"))
}
