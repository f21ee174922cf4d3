package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/persistence"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

type seedAccount struct {
	name     string
	email    string
	password string
	role     domain.Role
}

var accounts = []seedAccount{
	{name: "Admin", email: "admin@helpdesk.local", password: "admin-password", role: domain.RoleAdmin},
	{name: "First Line", email: "first@helpdesk.local", password: "staff-password", role: domain.RoleFirstLine},
	{name: "Second Line", email: "second@helpdesk.local", password: "staff-password", role: domain.RoleSecondLine},
	{name: "Requester", email: "user@helpdesk.local", password: "user-password", role: domain.RoleUser},
}

// seed creates demo accounts in Postgres and prints a bearer token for each.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := observability.NewLogger(cfg.Logger, cfg.App.Env)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if cfg.Postgres.DSN == "" {
		logger.Fatal("POSTGRES_DSN is required to seed accounts")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	store := repository.NewPostgresStore(pg.PoolHandle())
	authService := service.NewAuthService(cfg.Auth, store.Users(), logger)

	for _, acct := range accounts {
		user, err := ensureUser(ctx, store.Users(), acct, cfg.Auth.BcryptCost)
		if err != nil {
			logger.Fatal("failed to seed account", zap.String("email", acct.email), zap.Error(err))
		}
		session, err := authService.IssueToken(user)
		if err != nil {
			logger.Fatal("failed to issue token", zap.String("email", acct.email), zap.Error(err))
		}
		fmt.Fprintf(os.Stdout, "%-10s %-24s %s\n", user.Role, user.Email, session.Token)
	}
}

func ensureUser(ctx context.Context, users repository.UserRepository, acct seedAccount, cost int) (*domain.User, error) {
	existing, err := users.GetByEmail(ctx, acct.email)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	hash, err := auth.HashPassword(acct.password, cost)
	if err != nil {
		return nil, err
	}
	user := &domain.User{
		ID:           uuid.NewString(),
		Name:         acct.name,
		Email:        acct.email,
		PasswordHash: hash,
		Role:         acct.role,
		CreatedAt:    time.Now().UTC(),
	}
	if err := users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
