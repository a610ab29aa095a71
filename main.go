package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "timecoach/app/configs"
	"timecoach/app/core/db"
	httpapi "timecoach/app/core/interaction/http"
	"timecoach/app/core/jobs"
	"timecoach/app/core/placement"
	"timecoach/app/core/plan"
	"timecoach/app/core/reflection"
	"timecoach/app/core/schedule"
	"timecoach/app/core/session"
	"timecoach/app/pkg/civil"
	"timecoach/app/pkg/logger"
)

func main() {
	cfgManager, err := config.NewManager(config.DefaultPath())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg := cfgManager.Get()

	if err := logger.Init(cfg.Server.LogDir); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logger.Info("TimeCoach starting...")

	database, err := db.NewSQLiteDB(cfg.Server.DataDir)
	if err != nil {
		logger.Error("Failed to initialize DB: %v", err)
		os.Exit(1)
	}
	defer database.Close()
	logger.Info("Database initialized successfully")

	planStore := plan.NewStore(database)
	scheduleStore := schedule.NewStore(database)
	sessionStore := session.NewStore(database)
	reflectionStore := reflection.NewStore(database)

	oracle := placement.NewOpenAIOracle(cfg.Oracle.Model, cfg.Oracle.Temperature, cfg.Oracle.BaseURL)
	composer := schedule.NewComposer(planStore, scheduleStore, sessionStore, oracle, cfg.Planner.HistoryWindowDays)
	settler := session.NewSettler(scheduleStore, sessionStore)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := jobs.NewRunner()
	if cfg.Settle.NightlyEnabled {
		nightlyHour := cfg.Settle.NightlyHour
		if err := runner.Register(jobs.JobSpec{
			Name:     "nightly-settle",
			Interval: time.Hour,
			Timeout:  5 * time.Minute,
			Run: func(jobCtx context.Context) error {
				if time.Now().Hour() != nightlyHour {
					return nil
				}
				return settleAllForToday(jobCtx, scheduleStore, settler)
			},
		}); err != nil {
			logger.Error("Failed to register nightly settle job: %v", err)
			os.Exit(1)
		}
	}
	if err := runner.Start(ctx); err != nil {
		logger.Error("Failed to start job runner: %v", err)
		os.Exit(1)
	}
	defer func() {
		if err := runner.Stop(3 * time.Second); err != nil {
			logger.Error("Job runner shutdown timeout: %v", err)
		}
	}()

	server := httpapi.NewServer(cfg.Server.Port, httpapi.HeaderAuthenticator{}, httpapi.Deps{
		Plans:       planStore,
		Sessions:    sessionStore,
		Schedules:   scheduleStore,
		Reflections: reflectionStore,
		Composer:    composer,
		Settler:     settler,
	}, time.Duration(cfg.Oracle.TimeoutSec)*time.Second)
	server.SetStatusProvider(func(context.Context) map[string]interface{} {
		statuses := runner.Status()
		out := make(map[string]interface{}, len(statuses))
		for _, st := range statuses {
			out[st.Name] = st
		}
		return map[string]interface{}{"jobs": out}
	})

	go func() {
		if err := server.Start(ctx); err != nil {
			logger.Error("HTTP server crashed: %v", err)
			os.Exit(1)
		}
	}()

	logger.Info("TimeCoach is ready to serve.")
	fmt.Printf("- API:    http://localhost:%d/api/schedule\n", cfg.Server.Port)
	fmt.Printf("- Health: http://localhost:%d/health\n", cfg.Server.Port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Received signal: %v. TimeCoach shutting down...", sig)
	cancel()
}

// settleAllForToday closes out the current day for every owner that has a
// schedule stored for it. Settlement is idempotent, so a rerun after a
// partial failure only fills the gaps.
func settleAllForToday(ctx context.Context, schedules *schedule.Store, settler *session.Settler) error {
	day := civil.Today()
	owners, err := schedules.ListOwnersForDay(ctx, day)
	if err != nil {
		return err
	}
	for _, ownerID := range owners {
		result, err := settler.Settle(ctx, ownerID, day)
		if err != nil {
			logger.Error("Nightly settle failed for %s on %s: %v", ownerID, day, err)
			continue
		}
		if result.Created > 0 {
			logger.Info("Nightly settle for %s on %s: %d sessions created", ownerID, day, result.Created)
		}
	}
	return nil
}
