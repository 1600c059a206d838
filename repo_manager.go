package registration

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Profiles() Profiles
	Accounts() Accounts
}

type mngr struct {
	db       *bun.DB
	profiles Profiles
	accounts Accounts
}

// NewRepositoryManager wires the bun repositories around db
func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:       db,
		profiles: NewProfilesRepository(db),
		accounts: NewAccountsRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.db == nil {
		return errors.New("repository manager requires a database")
	}

	if m.profiles == nil {
		return errors.New("repository profiles should be initialized")
	}

	if m.accounts == nil {
		return errors.New("repository accounts should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Profiles() Profiles {
	return m.profiles
}

func (m mngr) Accounts() Accounts {
	return m.accounts
}
