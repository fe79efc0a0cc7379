package turso

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/emiliopalmerini/mexp/internal/domain"
)

const (
	streamRetries = 2
	// rowTimeLayout has a fixed width so created_at sorts lexically.
	rowTimeLayout = "2006-01-02T15:04:05.000000000Z"
)

// ExperimentRepository stores each experiment as a JSON document row.
type ExperimentRepository struct {
	db    *sql.DB
	now   func() time.Time
	newID func() string
}

func NewExperimentRepository(db *sql.DB) *ExperimentRepository {
	return &ExperimentRepository{
		db:    db,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

func (r *ExperimentRepository) FindAll(ctx context.Context) ([]domain.Experiment, error) {
	return WithRetry(ctx, streamRetries, func() ([]domain.Experiment, error) {
		rows, err := r.db.QueryContext(ctx,
			`SELECT id, document FROM experiments ORDER BY created_at, rowid`)
		if err != nil {
			return nil, fmt.Errorf("failed to list experiments: %w", err)
		}
		defer rows.Close()

		experiments := []domain.Experiment{}
		for rows.Next() {
			var id, doc string
			if err := rows.Scan(&id, &doc); err != nil {
				return nil, fmt.Errorf("failed to scan experiment: %w", err)
			}
			e, err := experimentFromDocument(id, doc)
			if err != nil {
				return nil, err
			}
			experiments = append(experiments, e)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to list experiments: %w", err)
		}
		return experiments, nil
	})
}

func (r *ExperimentRepository) FindByID(ctx context.Context, id string) (*domain.Experiment, error) {
	return WithRetry(ctx, streamRetries, func() (*domain.Experiment, error) {
		var doc string
		err := r.db.QueryRowContext(ctx,
			`SELECT document FROM experiments WHERE id = ?`, id).Scan(&doc)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}
			return nil, fmt.Errorf("failed to get experiment: %w", err)
		}
		e, err := experimentFromDocument(id, doc)
		if err != nil {
			return nil, err
		}
		return &e, nil
	})
}

func (r *ExperimentRepository) Insert(ctx context.Context, experiment domain.Experiment) (*domain.Experiment, error) {
	e := experiment.Clone()
	e.ID = r.newID()

	doc, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode experiment: %w", err)
	}
	now := r.now().UTC().Format(rowTimeLayout)

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO experiments (id, name, document, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.Name, string(doc), now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert experiment: %w", err)
	}
	return &e, nil
}

func (r *ExperimentRepository) Save(ctx context.Context, experiment domain.Experiment) (*domain.Experiment, error) {
	if experiment.ID == "" {
		return nil, domain.ErrMissingID
	}
	e := experiment.Clone()

	doc, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode experiment: %w", err)
	}
	now := r.now().UTC().Format(rowTimeLayout)

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO experiments (id, name, document, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			document = excluded.document,
			updated_at = excluded.updated_at`,
		e.ID, e.Name, string(doc), now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to save experiment: %w", err)
	}
	return &e, nil
}

func experimentFromDocument(id, doc string) (domain.Experiment, error) {
	var e domain.Experiment
	if err := json.Unmarshal([]byte(doc), &e); err != nil {
		return domain.Experiment{}, fmt.Errorf("failed to decode experiment %s: %w", id, err)
	}
	e.ID = id
	return e, nil
}
