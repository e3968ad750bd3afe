package security

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"math"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	argonTime    uint32 = 3
	argonMemory  uint32 = 64 * 1024
	argonThreads uint8  = 2
	argonKeyLen  uint32 = 32
	SaltLen             = 16
)

// NewSalt returns a fresh random salt, base64 encoded for storage.
func NewSalt() (string, error) {
	b, err := randomBytes(SaltLen)
	if err != nil {
		return "", err
	}
	return base64.RawStdEncoding.EncodeToString(b), nil
}

// HashPassword derives an argon2id key from password and the stored salt. The
// parameters are encoded with the key so they can be raised later.
func HashPassword(password, salt string) (string, error) {
	rawSalt, err := base64.RawStdEncoding.DecodeString(salt)
	if err != nil || len(rawSalt) == 0 {
		return "", fmt.Errorf("invalid salt")
	}
	hash := argon2.IDKey([]byte(password), rawSalt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return fmt.Sprintf("$argon2id$v=19$m=%d,t=%d,p=%d$%s",
		argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(hash)), nil
}

func VerifyPassword(encoded, password, salt string) (bool, error) {
	memory, timeCost, threads, expected, err := decodeHash(encoded)
	if err != nil {
		return false, err
	}
	rawSalt, err := base64.RawStdEncoding.DecodeString(salt)
	if err != nil || len(rawSalt) == 0 {
		return false, fmt.Errorf("invalid salt")
	}
	expectedLen := len(expected)
	if uint64(expectedLen) > uint64(math.MaxUint32) {
		return false, fmt.Errorf("invalid hash length")
	}
	// #nosec G115 -- bounded by explicit MaxUint32 check above.
	keyLen := uint32(expectedLen)
	actual := argon2.IDKey([]byte(password), rawSalt, timeCost, memory, threads, keyLen)
	return subtle.ConstantTimeCompare(actual, expected) == 1, nil
}

func decodeHash(encoded string) (memory uint32, timeCost uint32, threads uint8, hash []byte, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 5 || parts[1] != "argon2id" || parts[2] != "v=19" {
		return 0, 0, 0, nil, fmt.Errorf("invalid password hash format")
	}
	if _, err = fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &timeCost, &threads); err != nil {
		return 0, 0, 0, nil, fmt.Errorf("invalid hash params")
	}
	hash, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return 0, 0, 0, nil, fmt.Errorf("invalid hash payload")
	}
	return memory, timeCost, threads, hash, nil
}
