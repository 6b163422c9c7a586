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

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"pdvledger/backend/internal/bootstrap"
	"pdvledger/backend/internal/config"
	"pdvledger/backend/internal/httpapi"
	"pdvledger/backend/internal/logger"
	"pdvledger/backend/internal/maintenance"
	"pdvledger/backend/internal/service"
)

func main() {
	// a missing .env is normal outside development
	_ = godotenv.Load()

	cfg := config.Load()
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatal("invalid security configuration", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := bootstrap.OpenRepository(ctx, cfg, log)
	if err != nil {
		log.Fatal("store initialization failed", "error", err)
	}
	summaryCache, closeCache := bootstrap.OpenSummaryCache(ctx, cfg, log)

	svc := service.New(repo,
		service.WithSummaryCache(summaryCache, cfg.SummaryCacheTTL),
		service.WithLogger(log),
	)

	scheduler, err := maintenance.NewPurgeScheduler(svc, cfg.ResumeRetentionDays, cfg.ResumePurgeSchedule, log)
	if err != nil {
		log.Fatal("invalid resume purge configuration", "error", err)
	}
	if err := scheduler.Start(); err != nil {
		log.Fatal("resume purge scheduler failed", "error", err)
	}

	if cfg.LogMode != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), cfg.ManagerPIN)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, log)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("ledger backend listening", "addr", cfg.Address())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", "error", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown error", "error", err)
	}
	scheduler.Stop()

	for _, closeFn := range []func() error{closeCache, repo.Close} {
		if err := closeFn(); err != nil {
			log.Warn("close error", "error", err)
		}
	}

	log.Info("server stopped")
}

// validateSecurityConfig refuses to start without a usable signing secret.
// The manager PIN is optional; without it cancellations are refused.
func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.ManagerPIN == "" {
		return nil
	}
	if len(cfg.ManagerPIN) < 6 {
		return fmt.Errorf("MANAGER_PIN must be at least 6 digits")
	}
	if err := validatePINStrength(cfg.ManagerPIN); err != nil {
		return fmt.Errorf("MANAGER_PIN is too weak: %w", err)
	}
	return nil
}

// validatePINStrength rejects PINs that are all the same digit, sequential
// (ascending or descending), or on a known-weak list.
func validatePINStrength(pin string) error {
	known := map[string]bool{
		"123456": true, "654321": true, "000000": true, "121212": true,
		"112233": true, "123123": true, "159753": true, "147258": true,
	}
	if known[pin] {
		return fmt.Errorf("common PIN not allowed")
	}

	allSame := true
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("all-same-digit PIN not allowed")
	}

	ascending, descending := true, true
	for i := 1; i < len(pin); i++ {
		diff := int(pin[i]) - int(pin[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if ascending || descending {
		return fmt.Errorf("sequential PIN not allowed")
	}
	return nil
}
