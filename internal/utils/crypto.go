// internal/utils/crypto.go
package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// referenceCharset omits 0/O/1/I to keep codes unambiguous when typed into
// a bank transfer form.
const referenceCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func GenerateRandomString(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	return randomFromCharset(length, charset)
}

// GenerateReferenceCode produces a human-typeable payment reference of the
// form PREFIX-YEAR-XXXXXX. Uniqueness is enforced by the caller against the
// store.
func GenerateReferenceCode(prefix string, now time.Time) (string, error) {
	code, err := randomFromCharset(6, referenceCharset)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%d-%s", prefix, now.Year(), code), nil
}

func randomFromCharset(length int, charset string) (string, error) {
	b := make([]byte, length)

	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		b[i] = charset[n.Int64()]
	}

	return string(b), nil
}
