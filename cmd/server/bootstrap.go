package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"pollbank/internal/accounts/models"
	"pollbank/internal/auth/secrets"
	"pollbank/internal/backend"
	"pollbank/internal/directory/idalloc"
	"pollbank/pkg/domain"
)

type userSource interface {
	Users(ctx context.Context) ([]models.User, error)
	Refresh(ctx context.Context) error
}

// ensureAdmin provisions an administrator when none exists, so a fresh
// deployment can log in. Users are otherwise provisioned out-of-band.
func ensureAdmin(ctx context.Context, users userSource, seeder backend.Seeder, name, password string, logger *slog.Logger) error {
	existing, err := users.Users(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	ids := make([]string, 0, len(existing))
	for _, u := range existing {
		if u.Role == domain.RoleAdmin {
			return nil
		}
		if strings.EqualFold(u.UserName, name) {
			return fmt.Errorf("user name %q is taken by a non-admin user", name)
		}
		ids = append(ids, u.ID)
	}

	generated := password == ""
	if generated {
		if password, err = secrets.Generate(); err != nil {
			return err
		}
	}
	hash, err := secrets.Hash(password)
	if err != nil {
		return err
	}
	admin := models.User{
		ID:           idalloc.Next("U", ids),
		UserName:     name,
		PasswordHash: hash,
		Role:         domain.RoleAdmin,
		OfficerName:  "Administrator",
	}
	if err := seeder.Seed(ctx, backend.Data{Users: []models.User{admin}}); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if err := users.Refresh(ctx); err != nil {
		return fmt.Errorf("reload after seeding admin: %w", err)
	}

	args := []any{"user_id", admin.ID, "user_name", admin.UserName}
	if generated {
		args = append(args, "password", password)
	}
	logger.WarnContext(ctx, "bootstrap administrator created", args...)
	return nil
}
