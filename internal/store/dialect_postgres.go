package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// PostgresDialect implements Dialect for PostgreSQL via pgx/stdlib.
type PostgresDialect struct{}

func (d *PostgresDialect) Name() string       { return "postgres" }
func (d *PostgresDialect) DriverName() string { return "pgx" }

func (d *PostgresDialect) NewParamBuilder() ParamBuilder {
	return &paramBuilder{prefix: "$"}
}

func (d *PostgresDialect) NowExpr() string { return "NOW()" }

func (d *PostgresDialect) SystemTablesSQL() string {
	return postgresSchema
}

func (d *PostgresDialect) TableExists(ctx context.Context, db *sql.DB, tableName string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_name = $1 AND table_schema = 'public')`,
		tableName,
	).Scan(&exists)
	return exists, err
}

func (d *PostgresDialect) IntervalDeleteExpr(createdAtCol string, pb ParamBuilder, days string) string {
	ph := pb.Add(days)
	return fmt.Sprintf("%s < now() - (%s || ' days')::interval", createdAtCol, ph)
}

func (d *PostgresDialect) ArrayParam(values []string) any {
	return values
}

// pgTypes decodes array literals that pgx/stdlib hands back as text.
var pgTypes = pgtype.NewMap()

func (d *PostgresDialect) ScanArray(src any) ([]string, error) {
	var text []byte
	switch v := src.(type) {
	case nil:
		return []string{}, nil
	case []string:
		return v, nil
	case string:
		text = []byte(v)
	case []byte:
		text = v
	default:
		return nil, fmt.Errorf("scan array: unsupported %T", src)
	}
	var out []string
	if err := pgTypes.Scan(pgtype.TextArrayOID, pgtype.TextFormatCode, text, &out); err != nil {
		return nil, fmt.Errorf("scan array: %w", err)
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

func (d *PostgresDialect) SyncCommitOff() string {
	return "SET LOCAL synchronous_commit = off"
}

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

func (d *PostgresDialect) MapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	return err
}

var _ Dialect = (*PostgresDialect)(nil)
