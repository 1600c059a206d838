//go:build race

package registration

import "golang.org/x/crypto/bcrypt"

func passwordHashCost() int {
	return bcrypt.MinCost
}
