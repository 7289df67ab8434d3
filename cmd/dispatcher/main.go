package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/btouchard/dispatchd/internal/application/services"
	"github.com/btouchard/dispatchd/internal/domain/models"
	"github.com/btouchard/dispatchd/internal/domain/retrypolicy"
	"github.com/btouchard/dispatchd/internal/infrastructure/config"
	"github.com/btouchard/dispatchd/internal/infrastructure/database"
	"github.com/btouchard/dispatchd/internal/infrastructure/dispatch"
	"github.com/btouchard/dispatchd/internal/infrastructure/email"
	"github.com/btouchard/dispatchd/internal/presentation/api"
	"github.com/btouchard/dispatchd/internal/presentation/api/accounts"
	"github.com/btouchard/dispatchd/internal/presentation/api/emails"
	"github.com/btouchard/dispatchd/internal/presentation/api/health"
	"github.com/btouchard/dispatchd/pkg/logger"
)

// Build-time variables set via ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger.SetLevelAndFormat(logger.ParseLevel(cfg.Logger.Level), cfg.Logger.Format)
	logger.Logger.Info("starting dispatchd",
		"version", Version, "commit", Commit, "build_date", BuildDate, "env", cfg.App.Env)

	db, err := database.InitDB(ctx, database.Config{Path: cfg.Database.Path})
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	store := database.NewSQLiteStore(db)

	sender := email.NewSender(store)
	retry := retrypolicy.New(store, cfg.Queue.MaxRetries)
	dispatcher := dispatch.New(sender, retry, cfg.Queue.Workers)
	dispatchService := services.NewDispatchService(store, dispatcher)

	if cfg.App.SeedAccountsFile != "" {
		if err := seedAccounts(ctx, dispatchService, cfg.App.SeedAccountsFile); err != nil {
			log.Fatalf("failed to seed accounts: %v", err)
		}
	}

	dispatcher.Start(ctx)

	if err := dispatchService.Rehydrate(ctx); err != nil {
		log.Fatalf("failed to rehydrate queue: %v", err)
	}

	router := api.NewRouter(api.RouterConfig{
		APIKey:          cfg.App.APIKey,
		EmailsHandler:   emails.NewHandler(dispatchService),
		AccountsHandler: accounts.NewHandler(dispatchService),
		HealthHandler:   health.NewHandler(),
	})

	server := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: router,
	}

	go func() {
		logger.Logger.Info("http server listening", "addr", cfg.Server.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Logger.Info("shutting down dispatchd")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Logger.Error("server forced to shutdown", "error", err)
	}

	if err := dispatcher.Stop(); err != nil {
		logger.Logger.Error("dispatcher stop error", "error", err)
	}

	logger.Logger.Info("dispatchd exited")
}

// seedAccountSpec is one entry of a SEED_ACCOUNTS_FILE document.
type seedAccountSpec struct {
	Name         string `yaml:"name"`
	Host         string `yaml:"smtp_host"`
	Port         int    `yaml:"smtp_port"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	UseTLS       bool   `yaml:"use_tls"`
	UseSSL       bool   `yaml:"use_ssl"`
	EmailAddress string `yaml:"email_address"`
	DisplayName  string `yaml:"display_name"`
	DailyLimit   int    `yaml:"daily_limit"`
	HourlyLimit  int    `yaml:"hourly_limit"`
}

// accountCreator is the slice of services.DispatchService that seedAccounts needs.
type accountCreator interface {
	ListAccounts(ctx context.Context) ([]*models.Account, error)
	CreateAccount(ctx context.Context, input models.AccountInput) (*models.Account, error)
}

// seedAccounts provisions any account from path whose name is not already
// registered, so operators can bootstrap SMTP accounts declaratively
// instead of calling the REST API by hand.
func seedAccounts(ctx context.Context, svc accountCreator, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed accounts file: %w", err)
	}

	var specs []seedAccountSpec
	if err := yaml.Unmarshal(raw, &specs); err != nil {
		return fmt.Errorf("failed to parse seed accounts file: %w", err)
	}

	existing, err := svc.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list existing accounts: %w", err)
	}

	known := make(map[string]bool, len(existing))
	for _, acc := range existing {
		known[acc.Name] = true
	}

	for _, spec := range specs {
		if known[spec.Name] {
			continue
		}

		_, err := svc.CreateAccount(ctx, models.AccountInput{
			Name: spec.Name, Host: spec.Host, Port: spec.Port, Username: spec.Username,
			Password: spec.Password, UseTLS: spec.UseTLS, UseSSL: spec.UseSSL,
			EmailAddress: spec.EmailAddress, DisplayName: spec.DisplayName, Active: true,
			DailyLimit: spec.DailyLimit, HourlyLimit: spec.HourlyLimit,
		})
		if err != nil {
			return fmt.Errorf("failed to seed account %q: %w", spec.Name, err)
		}
		logger.Logger.Info("seeded account", "name", spec.Name)
	}

	return nil
}
