package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/gorm"

	"dayplanner/internal/bot"
	"dayplanner/internal/calendar"
	"dayplanner/internal/config"
	"dayplanner/internal/repository"
	"dayplanner/internal/service"
	"dayplanner/internal/web"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// app holds the wired dependencies shared by all commands.
type app struct {
	cfg        config.Config
	db         *gorm.DB
	users      *repository.UserRepository
	schedules  *repository.ScheduleRepository
	reconciler *service.Reconciler
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	users := repository.NewUserRepository(db)
	schedules := repository.NewScheduleRepository(db)
	reconciler := service.NewReconciler(
		schedules,
		users,
		calendar.NewICSClient(nil),
		service.NewRecurringService(),
		service.NewTemplateGenerator(cfg.DefaultSections),
		cfg.CalendarFetchTimeout,
		cfg.Location(),
	)

	return &app{cfg: cfg, db: db, users: users, schedules: schedules, reconciler: reconciler}, nil
}

func (a *app) Close() {
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
}

func serve(ctx context.Context, a *app) error {
	jobs := service.NewPlannerJobs(a.users, a.reconciler, a.cfg.Location())

	var telegramBot *bot.Bot
	if a.cfg.TelegramToken != "" {
		b, err := bot.New(a.cfg.TelegramToken, a.users, a.schedules, a.reconciler, &a.cfg)
		if err != nil {
			return err
		}
		telegramBot = b
	} else {
		log.Println("[info] TELEGRAM_TOKEN not set, bot disabled")
	}

	scheduler := service.NewSchedulerService(a.cfg.Location(), 5*time.Minute)
	if _, err := scheduler.ScheduleDaily("autogenerate", a.cfg.AutogenTime, func(ctx context.Context) error {
		if err := jobs.AutogenerateTomorrow(ctx); err != nil {
			return err
		}
		if telegramBot != nil {
			return telegramBot.SendDailySchedules(ctx, 1)
		}
		return nil
	}); err != nil {
		return err
	}
	if a.cfg.SyncInterval > 0 {
		if _, err := scheduler.ScheduleInterval("calendar-sync", a.cfg.SyncInterval, jobs.SyncToday); err != nil {
			return err
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	srv := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           web.NewServer(a.reconciler, a.schedules).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 2)
	go func() {
		log.Printf("[info] http listening on %s", a.cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	if telegramBot != nil {
		go func() {
			if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- err
			}
		}()
	}

	log.Println("Day planner started.")
	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[warn] http shutdown: %v", err)
	}
	log.Println("Shutdown complete.")
	return runErr
}
