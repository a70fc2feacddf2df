// Package verify issues and checks appointment confirmation codes.
package verify

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

// MaxAttempts caps verification tries per appointment before it is voided.
const MaxAttempts = 5

// NewCode returns a 6-digit confirmation code and its bcrypt hash. Only the
// hash is stored; the code itself goes out on the notification path.
func NewCode() (code string, hash string, err error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", "", err
	}
	code = fmt.Sprintf("%06d", n.Int64())
	h, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", "", err
	}
	return code, string(h), nil
}

func Check(hash, code string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) == nil
}
