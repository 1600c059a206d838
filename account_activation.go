package registration

import (
	"context"
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

// ActivationMethodCreateAccount is the name the bundled activation method is registered under
const ActivationMethodCreateAccount = "create_account"

// NewAccountActivationMethod returns an ActivationMethod that creates a
// UserAccount from the profile email and the username and password picked
// on the activation form. The account is written through the activation
// transaction so it is rolled back if the key can not be consumed.
func NewAccountActivationMethod(accounts Accounts) ActivationMethod {
	return func(ctx context.Context, req ActivationRequest) (Account, error) {
		if req.Profile == nil {
			return nil, goerrors.New("missing registration profile", goerrors.CategoryInternal)
		}

		values := map[string]any{}
		for k, v := range req.Extra {
			values[k] = v
		}
		if req.Form != nil {
			for k, v := range req.Form.Values() {
				values[k] = v
			}
		}

		password := stringValue(values, "password1", "password")
		if password == "" {
			return nil, goerrors.New("a password is required to activate the account", goerrors.CategoryValidation).
				WithCode(goerrors.CodeBadRequest)
		}

		hash, err := HashPassword(password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return nil, goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		account := &UserAccount{
			Username:     getUsername(stringValue(values, "username"), req.Profile.Email),
			Email:        req.Profile.Email,
			PasswordHash: hash,
			IsActive:     true,
		}

		if id, err := hashid.NewUUID(req.Profile.Email); err == nil {
			account.ID = id
		} else {
			account.ID = uuid.New()
		}

		var created *UserAccount
		if req.Tx != nil {
			created, err = accounts.CreateTx(ctx, req.Tx, account)
		} else {
			created, err = accounts.Create(ctx, account)
		}
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryConflict, "could not create account").
				WithCode(goerrors.CodeConflict).
				WithMetadata(map[string]any{"username": account.Username})
		}

		return created, nil
	}
}

func stringValue(values map[string]any, keys ...string) string {
	for _, key := range keys {
		raw, ok := values[key]
		if !ok || raw == nil {
			continue
		}
		s := strings.TrimSpace(fmt.Sprint(raw))
		if s != "" {
			return s
		}
	}
	return ""
}

func getUsername(username, email string) string {
	if username != "" {
		return username
	}

	if strings.Contains(email, "@") {
		username = strings.Split(email, "@")[0]
	}

	return username
}
