package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"form-engine/internal/config"
	"form-engine/internal/metadata"
)

// systemTables lists the tables created by Bootstrap.
var systemTables = []string{"_forms", "_form_revisions", "_users", "_refresh_tokens", "_events"}

// Bootstrap creates the system tables and seeds the first admin user when
// the users table is empty.
func (s *Store) Bootstrap(ctx context.Context, admin config.AdminConfig) error {
	if _, err := s.DB.ExecContext(ctx, s.Dialect.SystemTablesSQL()); err != nil {
		return fmt.Errorf("bootstrap system tables: %w", err)
	}
	for _, table := range systemTables {
		ok, err := s.Dialect.TableExists(ctx, s.DB, table)
		if err != nil {
			return fmt.Errorf("check table %s: %w", table, err)
		}
		if !ok {
			return fmt.Errorf("bootstrap: table %s missing after create", table)
		}
	}
	if err := s.seedAdminUser(ctx, admin); err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}
	return nil
}

func (s *Store) seedAdminUser(ctx context.Context, admin config.AdminConfig) error {
	var count int
	if err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM _users").Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	if admin.Email == "" || admin.Password == "" {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(admin.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	pb := s.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("INSERT INTO _users (id, email, password_hash, roles) VALUES (%s, %s, %s, %s)",
		pb.Add(uuid.New().String()), pb.Add(admin.Email), pb.Add(string(hash)), pb.Add(s.Dialect.ArrayParam([]string{metadata.RoleAdmin})))
	if _, err := s.DB.ExecContext(ctx, sqlStr, pb.Params()...); err != nil {
		return s.Dialect.MapError(err)
	}

	logrus.WithField("email", admin.Email).Warn("default admin user created, change the password immediately")
	return nil
}
