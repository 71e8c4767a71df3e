package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/algomatic/statement-builder/pkg/statement"
)

// ErrDraftNotFound is returned when no draft has the requested id.
var ErrDraftNotFound = errors.New("draft not found")

// Draft is a saved, possibly incomplete statement.
type Draft struct {
	ID          string               `json:"id"`
	Account     string               `json:"account"`
	Label       string               `json:"label"`
	Statement   *statement.Statement `json:"statement"`
	StatementID string               `json:"statement_id,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// DraftRepo provides database access for statement drafts.
type DraftRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewDraftRepo creates a new DraftRepo.
func NewDraftRepo(db DBTX, logger *slog.Logger) *DraftRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &DraftRepo{db: db, logger: logger}
}

// SaveDraft inserts d, or overwrites the draft with the same id. An empty
// ID is assigned a new one.
func (r *DraftRepo) SaveDraft(ctx context.Context, d *Draft) error {
	if d.Statement == nil {
		return fmt.Errorf("saving draft for %s: no statement", d.Account)
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Label == "" {
		d.Label = d.Statement.Label
	}

	doc, err := json.Marshal(d.Statement)
	if err != nil {
		return fmt.Errorf("encoding draft %s: %w", d.ID, err)
	}

	err = r.db.QueryRow(ctx, `
		INSERT INTO statement_drafts (id, account, label, document, statement_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), now(), now())
		ON CONFLICT (id) DO UPDATE SET
			label = EXCLUDED.label,
			document = EXCLUDED.document,
			statement_id = EXCLUDED.statement_id,
			updated_at = now()
		RETURNING created_at, updated_at
	`, d.ID, d.Account, d.Label, doc, d.StatementID).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving draft %s: %w", d.ID, err)
	}

	r.logger.Info("Draft saved", "draft_id", d.ID, "account", d.Account)
	return nil
}

// GetDraft returns the draft with the given id, re-hydrated from its
// serialized document.
func (r *DraftRepo) GetDraft(ctx context.Context, id string) (*Draft, error) {
	var (
		d           Draft
		doc         []byte
		statementID *string
	)
	err := r.db.QueryRow(ctx, `
		SELECT id, account, label, document, statement_id, created_at, updated_at
		FROM statement_drafts
		WHERE id = $1
	`, id).Scan(&d.ID, &d.Account, &d.Label, &doc, &statementID, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("getting draft %s: %w", id, ErrDraftNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting draft %s: %w", id, err)
	}

	d.Statement, err = statement.Decode(doc)
	if err != nil {
		return nil, fmt.Errorf("decoding draft %s: %w", id, err)
	}
	if statementID != nil {
		d.StatementID = *statementID
	}
	return &d, nil
}

// ListDrafts returns an account's drafts, most recently updated first. The
// statements are not decoded; use GetDraft to open one.
func (r *DraftRepo) ListDrafts(ctx context.Context, account string) ([]Draft, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, account, label, statement_id, created_at, updated_at
		FROM statement_drafts
		WHERE account = $1
		ORDER BY updated_at DESC
	`, account)
	if err != nil {
		return nil, fmt.Errorf("listing drafts for %s: %w", account, err)
	}
	defer rows.Close()

	var drafts []Draft
	for rows.Next() {
		var (
			d           Draft
			statementID *string
		)
		if err := rows.Scan(&d.ID, &d.Account, &d.Label, &statementID, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning draft row: %w", err)
		}
		if statementID != nil {
			d.StatementID = *statementID
		}
		drafts = append(drafts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating drafts: %w", err)
	}
	return drafts, nil
}

// DeleteDraft removes a draft.
func (r *DraftRepo) DeleteDraft(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM statement_drafts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting draft %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("deleting draft %s: %w", id, ErrDraftNotFound)
	}
	r.logger.Info("Draft deleted", "draft_id", id)
	return nil
}
