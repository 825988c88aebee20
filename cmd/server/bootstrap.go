package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/groupchoice/internal/api"
	"github.com/charlesng35/groupchoice/internal/app"
	"github.com/charlesng35/groupchoice/internal/app/maintenance"
	iauth "github.com/charlesng35/groupchoice/internal/auth"
	"github.com/charlesng35/groupchoice/internal/database"
	"github.com/charlesng35/groupchoice/pkg/logger"
	"github.com/charlesng35/groupchoice/pkg/mail"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB       *gorm.DB
	Mailer   mail.Mailer
	Services *api.Services
	Cleaner  *maintenance.Cleaner
	Router   *gin.Engine
}

// bootstrapRuntime initialises the database, mailer, services, background jobs and the HTTP router.
func bootstrapRuntime(cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			_ = stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Email.SMTP.Enabled {
		stack.Mailer, err = mail.New(cfg.Email.SMTPSettings())
		if err != nil {
			return nil, fmt.Errorf("initialise mailer: %w", err)
		}
		log.Info("smtp mailer ready",
			zap.String("host", cfg.Email.SMTP.Host),
			zap.Int("pool_size", cfg.Email.SMTP.PoolSize),
		)
	} else {
		log.Warn("smtp disabled; invitations will not be mailed")
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	stack.Services, err = api.NewServices(stack.DB, cfg, stack.Mailer)
	if err != nil {
		return nil, fmt.Errorf("initialise services: %w", err)
	}

	stack.Cleaner = maintenance.NewCleaner(stack.Services.Audit,
		maintenance.WithAuditRetentionDays(cfg.Maintenance.AuditRetentionDays),
		maintenance.WithAuditSchedule(cfg.Maintenance.AuditSchedule),
	)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	stack.Router, err = api.NewRouter(stack.DB, jwtSvc, cfg, stack.Services)
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown stops background jobs, drains pending notifications and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) error {
	if s == nil {
		return nil
	}

	var errs error

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		if stopCtx != nil {
			ctx = stopCtx
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("maintenance: %w", err))
		}
	}

	if s.Services != nil {
		s.Services.Notifier.Wait()
	}

	if closer, ok := s.Mailer.(mail.Closer); ok {
		if err := closer.Close(); err != nil {
			log.Warn("mailer shutdown", zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("mailer: %w", err))
		}
	}

	if s.DB != nil {
		if err := database.Close(s.DB); err != nil {
			log.Warn("failed to close database", zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("database: %w", err))
		}
	}

	return errs
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db, cfg.Auth.SeedOptions()); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", dbCfg.Driver))

	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:   strings.TrimSpace(cfg.Database.Path),
		DSN:    strings.TrimSpace(cfg.Database.DSN),
	}

	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		applyServerAuth(&dbCfg, cfg.Database.Postgres)
	case "mysql":
		applyServerAuth(&dbCfg, cfg.Database.MySQL)
	default:
		// Leave driver as-is to surface unsupported driver error during open.
	}

	return dbCfg
}

func applyServerAuth(dbCfg *database.Config, auth app.DBAuthConfig) {
	dbCfg.Host = strings.TrimSpace(auth.Host)
	dbCfg.Port = auth.Port
	dbCfg.Name = strings.TrimSpace(auth.Database)
	dbCfg.User = strings.TrimSpace(auth.Username)
	dbCfg.Password = strings.TrimSpace(auth.Password)
}
