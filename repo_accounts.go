package registration

import (
	"context"
	"strings"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Accounts stores the accounts created by the bundled activation method
type Accounts interface {
	repository.Repository[*UserAccount]

	UsernameExists(ctx context.Context, username string) (bool, error)
	UsernameExistsTx(ctx context.Context, tx bun.IDB, username string) (bool, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	EmailExistsTx(ctx context.Context, tx bun.IDB, email string) (bool, error)
}

type accounts struct {
	repository.Repository[*UserAccount]
	db *bun.DB
}

var _ Accounts = (*accounts)(nil)

// NewAccountsRepository returns the bun backed account store
func NewAccountsRepository(db *bun.DB) Accounts {
	repo := repository.NewRepository[*UserAccount](db, repository.ModelHandlers[*UserAccount]{
		NewRecord: func() *UserAccount { return &UserAccount{} },
		GetID: func(u *UserAccount) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *UserAccount, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "username"
		},
	})

	return &accounts{
		Repository: repo,
		db:         db,
	}
}

func (a *accounts) UsernameExists(ctx context.Context, username string) (bool, error) {
	return a.UsernameExistsTx(ctx, a.db, username)
}

func (a *accounts) UsernameExistsTx(ctx context.Context, tx bun.IDB, username string) (bool, error) {
	return tx.NewSelect().
		Model((*UserAccount)(nil)).
		Where("?TableAlias.username = ?", strings.TrimSpace(username)).
		Exists(ctx)
}

func (a *accounts) EmailExists(ctx context.Context, email string) (bool, error) {
	return a.EmailExistsTx(ctx, a.db, email)
}

func (a *accounts) EmailExistsTx(ctx context.Context, tx bun.IDB, email string) (bool, error) {
	return tx.NewSelect().
		Model((*UserAccount)(nil)).
		Where("LOWER(?TableAlias.email) = LOWER(?)", strings.TrimSpace(email)).
		Exists(ctx)
}
