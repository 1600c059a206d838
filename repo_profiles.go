package registration

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Profiles is the registration profile store
type Profiles interface {
	repository.Repository[*RegistrationProfile]

	FindByKey(ctx context.Context, key string) (*RegistrationProfile, error)
	FindByKeyTx(ctx context.Context, tx bun.IDB, key string) (*RegistrationProfile, error)
	ConsumeKey(ctx context.Context, id uuid.UUID, key string) (bool, error)
	ConsumeKeyTx(ctx context.Context, tx bun.IDB, id uuid.UUID, key string) (bool, error)
	DeleteExpired(ctx context.Context, cutoff time.Time, scope ...uuid.UUID) (int64, error)
	DeleteExpiredTx(ctx context.Context, tx bun.IDB, cutoff time.Time, scope ...uuid.UUID) (int64, error)
	DeleteActivated(ctx context.Context, scope ...uuid.UUID) (int64, error)
	DeleteActivatedTx(ctx context.Context, tx bun.IDB, scope ...uuid.UUID) (int64, error)
	ListPending(ctx context.Context, cutoff time.Time, scope ...uuid.UUID) ([]*RegistrationProfile, error)
	ListPendingTx(ctx context.Context, tx bun.IDB, cutoff time.Time, scope ...uuid.UUID) ([]*RegistrationProfile, error)
}

type profiles struct {
	repository.Repository[*RegistrationProfile]
	db *bun.DB
}

var (
	_ Profiles                                    = (*profiles)(nil)
	_ repository.Repository[*RegistrationProfile] = (*profiles)(nil)
)

// NewProfilesRepository returns the bun backed profile store
func NewProfilesRepository(db *bun.DB) Profiles {
	repo := repository.NewRepository[*RegistrationProfile](db, repository.ModelHandlers[*RegistrationProfile]{
		NewRecord: func() *RegistrationProfile { return &RegistrationProfile{} },
		GetID: func(p *RegistrationProfile) uuid.UUID {
			if p == nil {
				return uuid.Nil
			}
			return p.ID
		},
		SetID: func(p *RegistrationProfile, id uuid.UUID) {
			if p != nil {
				p.ID = id
			}
		},
		GetIdentifier: func() string {
			return "activation_key"
		},
	})

	return &profiles{
		Repository: repo,
		db:         db,
	}
}

func (p *profiles) Create(ctx context.Context, record *RegistrationProfile, criteria ...repository.InsertCriteria) (*RegistrationProfile, error) {
	return p.CreateTx(ctx, p.db, record, criteria...)
}

func (p *profiles) CreateTx(ctx context.Context, tx bun.IDB, record *RegistrationProfile, criteria ...repository.InsertCriteria) (*RegistrationProfile, error) {
	prepareProfileDefaults(record)
	return p.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (p *profiles) FindByKey(ctx context.Context, key string) (*RegistrationProfile, error) {
	return p.FindByKeyTx(ctx, p.db, key)
}

func (p *profiles) FindByKeyTx(ctx context.Context, tx bun.IDB, key string) (*RegistrationProfile, error) {
	key = strings.TrimSpace(key)
	if key == "" || key == ActivatedSentinel {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"activation_key": key,
			})
	}

	record := &RegistrationProfile{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.activation_key = ?", key).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"activation_key": key,
				})
		}
		return nil, err
	}

	return record, nil
}

func (p *profiles) ConsumeKey(ctx context.Context, id uuid.UUID, key string) (bool, error) {
	return p.ConsumeKeyTx(ctx, p.db, id, key)
}

// ConsumeKeyTx flips the key to the sentinel only if it still holds key.
// It returns false when another activation got there first.
func (p *profiles) ConsumeKeyTx(ctx context.Context, tx bun.IDB, id uuid.UUID, key string) (bool, error) {
	res, err := tx.NewUpdate().
		Model((*RegistrationProfile)(nil)).
		Set("activation_key = ?", ActivatedSentinel).
		Where("id = ?", id).
		Where("activation_key = ?", key).
		Exec(ctx)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected == 1, nil
}

func (p *profiles) DeleteExpired(ctx context.Context, cutoff time.Time, scope ...uuid.UUID) (int64, error) {
	return p.DeleteExpiredTx(ctx, p.db, cutoff, scope...)
}

// DeleteExpiredTx removes unconsumed profiles registered at or before cutoff
func (p *profiles) DeleteExpiredTx(ctx context.Context, tx bun.IDB, cutoff time.Time, scope ...uuid.UUID) (int64, error) {
	q := tx.NewDelete().
		Model((*RegistrationProfile)(nil)).
		Where("activation_key != ?", ActivatedSentinel).
		Where("registered_at <= ?", cutoff)

	if len(scope) > 0 {
		q = q.Where("id IN (?)", bun.In(scope))
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (p *profiles) DeleteActivated(ctx context.Context, scope ...uuid.UUID) (int64, error) {
	return p.DeleteActivatedTx(ctx, p.db, scope...)
}

func (p *profiles) DeleteActivatedTx(ctx context.Context, tx bun.IDB, scope ...uuid.UUID) (int64, error) {
	q := tx.NewDelete().
		Model((*RegistrationProfile)(nil)).
		Where("activation_key = ?", ActivatedSentinel)

	if len(scope) > 0 {
		q = q.Where("id IN (?)", bun.In(scope))
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (p *profiles) ListPending(ctx context.Context, cutoff time.Time, scope ...uuid.UUID) ([]*RegistrationProfile, error) {
	return p.ListPendingTx(ctx, p.db, cutoff, scope...)
}

// ListPendingTx returns unconsumed profiles registered after cutoff
func (p *profiles) ListPendingTx(ctx context.Context, tx bun.IDB, cutoff time.Time, scope ...uuid.UUID) ([]*RegistrationProfile, error) {
	records := []*RegistrationProfile{}
	q := tx.NewSelect().
		Model(&records).
		Where("?TableAlias.activation_key != ?", ActivatedSentinel).
		Where("?TableAlias.registered_at > ?", cutoff).
		Order("registered_at ASC")

	if len(scope) > 0 {
		q = q.Where("?TableAlias.id IN (?)", bun.In(scope))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	return records, nil
}

func prepareProfileDefaults(record *RegistrationProfile) {
	if record == nil {
		return
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	if record.RegisteredAt.IsZero() {
		record.RegisteredAt = time.Now().UTC()
	}
}
