package registration

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/hex"
	"regexp"

	goerrors "github.com/goliatone/go-errors"
)

const saltLength = 5

var activationKeyRe = regexp.MustCompile(`^[a-f0-9]{40}$`)

// IsActivationKeyShape reports if key looks like a generated activation key
func IsActivationKeyShape(key string) bool {
	return activationKeyRe.MatchString(key)
}

// GenerateActivationKey returns the hex SHA-1 of a fresh random salt
// followed by the email.
func GenerateActivationKey(email string) (string, error) {
	salt, err := newSalt()
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate activation key salt")
	}

	sum := sha1.Sum([]byte(salt + email))
	return hex.EncodeToString(sum[:]), nil
}

func newSalt() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	sum := sha1.Sum(buf)
	return hex.EncodeToString(sum[:])[:saltLength], nil
}
