package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FormRecord is one stored form definition.
type FormRecord struct {
	Key        string          `json:"key"`
	Title      string          `json:"title"`
	Revision   string          `json:"revision"`
	Definition json.RawMessage `json:"definition,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Revision is one historical version of a form definition.
type Revision struct {
	Revision   string          `json:"revision"`
	FormKey    string          `json:"form_key"`
	Definition json.RawMessage `json:"definition,omitempty"`
	CreatedBy  string          `json:"created_by,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// ListForms returns every stored form without its definition.
func (s *Store) ListForms(ctx context.Context) ([]FormRecord, error) {
	rows, err := QueryRows(ctx, s.DB, "SELECT key, title, revision, created_at, updated_at FROM _forms ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("list forms: %w", err)
	}
	out := make([]FormRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, formFromRow(row))
	}
	return out, nil
}

// GetForm loads a form by key. It returns ErrNotFound when no such form exists.
func (s *Store) GetForm(ctx context.Context, key string) (*FormRecord, error) {
	pb := s.Dialect.NewParamBuilder()
	row, err := QueryRow(ctx, s.DB,
		fmt.Sprintf("SELECT key, title, revision, definition, created_at, updated_at FROM _forms WHERE key = %s", pb.Add(key)),
		pb.Params()...)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get form %s: %w", key, err)
	}
	rec := formFromRow(row)
	return &rec, nil
}

// SaveForm creates or replaces a form definition under a new revision id and
// appends the revision to the history.
func (s *Store) SaveForm(ctx context.Context, key, title string, definition json.RawMessage, userID string) (*FormRecord, error) {
	revision := uuid.New().String()

	tx, err := s.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	pb := s.Dialect.NewParamBuilder()
	keyPh, titlePh, revPh, defPh := pb.Add(key), pb.Add(title), pb.Add(revision), pb.Add(string(definition))
	upsert := fmt.Sprintf(`INSERT INTO _forms (key, title, revision, definition) VALUES (%s, %s, %s, %s)
		ON CONFLICT (key) DO UPDATE SET title = excluded.title, revision = excluded.revision,
		definition = excluded.definition, updated_at = %s`,
		keyPh, titlePh, revPh, defPh, s.Dialect.NowExpr())
	if _, err := tx.ExecContext(ctx, upsert, pb.Params()...); err != nil {
		return nil, fmt.Errorf("save form %s: %w", key, s.Dialect.MapError(err))
	}

	pb = s.Dialect.NewParamBuilder()
	var createdBy any
	if userID != "" {
		createdBy = userID
	}
	history := fmt.Sprintf("INSERT INTO _form_revisions (revision, form_key, definition, created_by) VALUES (%s, %s, %s, %s)",
		pb.Add(revision), pb.Add(key), pb.Add(string(definition)), pb.Add(createdBy))
	if _, err := tx.ExecContext(ctx, history, pb.Params()...); err != nil {
		return nil, fmt.Errorf("save form revision %s: %w", key, s.Dialect.MapError(err))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit form %s: %w", key, err)
	}
	return s.GetForm(ctx, key)
}

// DeleteForm removes a form and its history.
func (s *Store) DeleteForm(ctx context.Context, key string) error {
	pb := s.Dialect.NewParamBuilder()
	where := pb.Add(key)
	if _, err := Exec(ctx, s.DB, fmt.Sprintf("DELETE FROM _form_revisions WHERE form_key = %s", where), pb.Params()...); err != nil {
		return fmt.Errorf("delete form revisions %s: %w", key, err)
	}
	n, err := Exec(ctx, s.DB, fmt.Sprintf("DELETE FROM _forms WHERE key = %s", where), pb.Params()...)
	if err != nil {
		return fmt.Errorf("delete form %s: %w", key, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRevisions returns the revision history of a form, newest first.
func (s *Store) ListRevisions(ctx context.Context, key string) ([]Revision, error) {
	pb := s.Dialect.NewParamBuilder()
	rows, err := QueryRows(ctx, s.DB,
		fmt.Sprintf("SELECT revision, form_key, created_by, created_at FROM _form_revisions WHERE form_key = %s ORDER BY created_at DESC, revision", pb.Add(key)),
		pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("list revisions %s: %w", key, err)
	}
	out := make([]Revision, 0, len(rows))
	for _, row := range rows {
		out = append(out, Revision{
			Revision:  row.String("revision"),
			FormKey:   row.String("form_key"),
			CreatedBy: row.String("created_by"),
			CreatedAt: row.Time("created_at"),
		})
	}
	return out, nil
}

func formFromRow(row Row) FormRecord {
	rec := FormRecord{
		Key:       row.String("key"),
		Title:     row.String("title"),
		Revision:  row.String("revision"),
		CreatedAt: row.Time("created_at"),
		UpdatedAt: row.Time("updated_at"),
	}
	if def := row.String("definition"); def != "" {
		rec.Definition = json.RawMessage(def)
	}
	return rec
}
