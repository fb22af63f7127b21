package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dharsanguruparan/ReceiptDrop/internal/apperr"
	"github.com/dharsanguruparan/ReceiptDrop/internal/model"
	"github.com/dharsanguruparan/ReceiptDrop/internal/ports"
)

const dateLayout = "2006-01-02"

const columns = `id, user_id, filename, object_key, image_url, status, date, currency, vendor_name,
	items, tax, total, failure_reason, created_at, updated_at`

// ExtractionRepository wraps all SQL used throughout the API and worker.
type ExtractionRepository struct {
	pool *pgxpool.Pool
}

var _ ports.ExtractionStore = (*ExtractionRepository)(nil)

// NewExtractionRepository constructs a repository.
func NewExtractionRepository(pool *pgxpool.Pool) *ExtractionRepository {
	return &ExtractionRepository{pool: pool}
}

// Create inserts a SUBMITTING extraction.
func (r *ExtractionRepository) Create(ctx context.Context, e *model.Extraction) error {
	now := time.Now().UTC()
	e.Status = model.StatusSubmitting
	e.CreatedAt = now
	e.UpdatedAt = now
	_, err := r.pool.Exec(ctx, `
		INSERT INTO extractions (id, user_id, filename, object_key, image_url, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, e.ID, e.UserID, e.Filename, e.ObjectKey, e.ImageURL, e.Status, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert extraction: %w", err)
	}
	return nil
}

// Get returns an extraction owned by userID.
func (r *ExtractionRepository) Get(ctx context.Context, id, userID string) (*model.Extraction, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+columns+` FROM extractions WHERE id=$1 AND user_id=$2`, id, userID)
	e, err := scanExtraction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("extraction not found")
		}
		return nil, fmt.Errorf("select extraction: %w", err)
	}
	return e, nil
}

// List returns the user's extractions, newest first.
func (r *ExtractionRepository) List(ctx context.Context, userID string) ([]*model.Extraction, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+columns+` FROM extractions WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list extractions: %w", err)
	}
	defer rows.Close()
	out := make([]*model.Extraction, 0)
	for rows.Next() {
		e, err := scanExtraction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan extraction: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list extractions: %w", err)
	}
	return out, nil
}

// MarkExtracting sets the status to EXTRACTING once the job is enqueued.
func (r *ExtractionRepository) MarkExtracting(ctx context.Context, id string) (*model.Extraction, error) {
	return r.transition(ctx, id, model.StatusExtracting, nil, "")
}

// MarkExtracted stores the validated receipt data.
func (r *ExtractionRepository) MarkExtracted(ctx context.Context, id string, data model.ReceiptData) (*model.Extraction, error) {
	return r.transition(ctx, id, model.StatusExtracted, &data, "")
}

// MarkInvalid records the model's rejection reason.
func (r *ExtractionRepository) MarkInvalid(ctx context.Context, id, reason string) (*model.Extraction, error) {
	return r.transition(ctx, id, model.StatusInvalid, nil, reason)
}

// MarkFailed marks the processing attempt as failed and stores the message.
func (r *ExtractionRepository) MarkFailed(ctx context.Context, id, reason string) (*model.Extraction, error) {
	return r.transition(ctx, id, model.StatusFailed, nil, reason)
}

// Delete removes the user's extraction and reports whether a row existed.
func (r *ExtractionRepository) Delete(ctx context.Context, id, userID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM extractions WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return false, fmt.Errorf("delete extraction: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// transition applies one guarded status change. The WHERE clause carries the
// allowed source statuses so the check and the write are one statement.
func (r *ExtractionRepository) transition(ctx context.Context, id string, to model.Status, data *model.ReceiptData, reason string) (*model.Extraction, error) {
	var next model.Extraction
	next.Apply(to, data, reason)

	var date *time.Time
	if next.Date != nil {
		d, err := time.Parse(dateLayout, *next.Date)
		if err != nil {
			return nil, apperr.Validation("invalid date: " + *next.Date)
		}
		date = &d
	}
	var items []byte
	if next.Items != nil {
		b, err := json.Marshal(next.Items)
		if err != nil {
			return nil, fmt.Errorf("marshal items: %w", err)
		}
		items = b
	}
	allowed := make([]string, 0, 3)
	for _, s := range model.AllowedFrom(to) {
		allowed = append(allowed, string(s))
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE extractions
		SET status=$2,
			date=$3,
			currency=$4,
			vendor_name=$5,
			items=$6,
			tax=$7,
			total=$8,
			failure_reason=$9,
			updated_at=$10
		WHERE id=$1 AND status = ANY($11)
		RETURNING `+columns,
		id, to, date, next.Currency, next.VendorName, items, next.Tax, next.Total, next.FailureReason,
		time.Now().UTC(), allowed)
	e, err := scanExtraction(row)
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("update extraction: %w", err)
	}

	var current model.Status
	if err := r.pool.QueryRow(ctx, `SELECT status FROM extractions WHERE id=$1`, id).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("extraction not found")
		}
		return nil, fmt.Errorf("select extraction status: %w", err)
	}
	return nil, transitionError(current, to)
}

func transitionError(from, to model.Status) error {
	return apperr.New(apperr.ErrInvalidTransition, fmt.Sprintf("cannot move extraction from %s to %s", from, to), nil)
}

func scanExtraction(row pgx.Row) (*model.Extraction, error) {
	var (
		e     model.Extraction
		date  *time.Time
		items []byte
	)
	if err := row.Scan(&e.ID, &e.UserID, &e.Filename, &e.ObjectKey, &e.ImageURL, &e.Status, &date,
		&e.Currency, &e.VendorName, &items, &e.Tax, &e.Total, &e.FailureReason, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	if date != nil {
		d := date.Format(dateLayout)
		e.Date = &d
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &e.Items); err != nil {
			return nil, fmt.Errorf("decode items: %w", err)
		}
	}
	return &e, nil
}
