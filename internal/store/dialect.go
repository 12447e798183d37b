package store

import (
	"context"
	"database/sql"
	"strconv"
)

// Dialect hides the SQL differences between the postgres and sqlite
// backends of the form store.
type Dialect interface {
	Name() string
	// DriverName is the database/sql driver ("pgx" or "sqlite").
	DriverName() string
	NewParamBuilder() ParamBuilder
	NowExpr() string

	// SystemTablesSQL creates the form, revision, user, token and event tables.
	SystemTablesSQL() string
	TableExists(ctx context.Context, db *sql.DB, table string) (bool, error)

	// IntervalDeleteExpr is a WHERE fragment matching rows older than days.
	IntervalDeleteExpr(createdAtCol string, pb ParamBuilder, days string) string

	// ArrayParam and ScanArray carry role lists: TEXT[] on postgres, JSON
	// text on sqlite.
	ArrayParam(values []string) any
	ScanArray(src any) ([]string, error)

	// SyncCommitOff relaxes durability for event batches. Empty when the
	// backend has no such switch.
	SyncCommitOff() string

	// MapError wraps constraint failures in ErrUniqueViolation, keeping the
	// driver error reachable through errors.As.
	MapError(err error) error
}

// ParamBuilder collects query arguments and hands out their placeholders.
type ParamBuilder interface {
	Add(v any) string
	Params() []any
}

// NewDialect returns the dialect for driver, defaulting to postgres.
func NewDialect(driver string) Dialect {
	if driver == "sqlite" {
		return &SQLiteDialect{}
	}
	return &PostgresDialect{}
}

// paramBuilder numbers placeholders as prefix+n: $1 for postgres, ?1 for sqlite.
type paramBuilder struct {
	prefix string
	params []any
}

func (p *paramBuilder) Add(v any) string {
	p.params = append(p.params, v)
	return p.prefix + strconv.Itoa(len(p.params))
}

func (p *paramBuilder) Params() []any { return p.params }
