package rand

import (
	cryptoRand "crypto/rand"
	"github.com/google/uuid"
)

// GenerateCryptoSafeRandomData fills b with cryptographically-safe random data.
func GenerateCryptoSafeRandomData(b []byte) error {
	_, err := cryptoRand.Read(b)
	return err
}

// GenerateUuid returns a UUID in string format (including hyphens). Used to identify connections in logs and in the registry.
func GenerateUuid() string {
	return uuid.NewString()
}
