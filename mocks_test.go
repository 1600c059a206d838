package registration

import (
	"context"
	"database/sql"

	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"
)

// MockRepositoryManager implements RepositoryManager
type MockRepositoryManager struct {
	mock.Mock
}

func (m *MockRepositoryManager) Validate() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockRepositoryManager) MustValidate() {
	m.Called()
}

func (m *MockRepositoryManager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	args := m.Called(ctx, opts, f)
	return args.Error(0)
}

func (m *MockRepositoryManager) Profiles() Profiles {
	args := m.Called()
	profiles, _ := args.Get(0).(Profiles)
	return profiles
}

func (m *MockRepositoryManager) Accounts() Accounts {
	args := m.Called()
	accounts, _ := args.Get(0).(Accounts)
	return accounts
}
