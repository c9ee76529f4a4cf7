package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ovaphlow/splashops/service-core/internal/clock"
	"github.com/ovaphlow/splashops/service-core/internal/mail"
	"github.com/ovaphlow/splashops/service-core/internal/notification"
	"github.com/ovaphlow/splashops/service-core/internal/router"
	"github.com/ovaphlow/splashops/service-core/internal/session"
	"github.com/ovaphlow/splashops/service-core/internal/user"
	"github.com/ovaphlow/splashops/service-core/pkg/database"
	"github.com/ovaphlow/splashops/service-core/pkg/utilities"
)

func main() {
	// load .env file if present so os.Getenv picks values from it
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting splashops service-core")

	db, err := database.Open(database.ConfigFromEnv())
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if os.Getenv("MIGRATE_ON_BOOT") == "1" {
		if err := database.Migrate(ctx, db.DB); err != nil {
			sugar.Fatalf("migrate: %v", err)
		}
		sugar.Info("migrations applied")
	}

	notifier, err := mail.FromConfig(mail.ConfigFromEnv(), sugar.Named("mail"))
	if err != nil {
		sugar.Fatalf("mail config: %v", err)
	}
	sessions, err := session.NewSessionService(db, session.ConfigFromEnv())
	if err != nil {
		sugar.Fatalf("session service: %v", err)
	}
	clockCfg, err := clock.ConfigFromEnv()
	if err != nil {
		sugar.Fatalf("clock config: %v", err)
	}
	rcfg := router.ConfigFromEnv()
	inbox := notification.NewNotificationService(db, sugar.Named("notification"))

	handler := router.RegisterRoutes(router.Deps{
		Users:          user.NewUserService(db, user.ConfigFromEnv(), notifier, inbox, sugar.Named("user")),
		Sessions:       sessions,
		Clock:          clock.NewClockService(db, clockCfg, sugar.Named("clock")),
		Notifications:  inbox,
		DB:             db,
		AdminPositions: rcfg.AdminPositions,
		Logger:         sugar,
	})
	srv := &http.Server{
		Addr:              rcfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sugar.Infow("http server listening", "addr", rcfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()

	cleaner := session.NewCleaner(sessions, session.CleanupSpecFromEnv(), sugar.Named("cleanup"))
	if err := cleaner.Start(); err != nil {
		sugar.Fatalf("session cleanup: %v", err)
	}

	<-ctx.Done()

	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}
	cleaner.Stop(doneCtx)

	sugar.Info("goodbye")
}
