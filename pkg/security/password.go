package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/angelmondragon/grocerybid-backend/pkg/config"
	"golang.org/x/crypto/argon2"
)

// Hashes are stored in the PHC string format:
// $argon2id$v=19$m=<KiB>,t=<passes>,p=<lanes>$<salt>$<key>
const (
	phcAlgorithm = "argon2id"
	phcParams    = "m=%d,t=%d,p=%d"
)

// Referral codes avoid 0/O and 1/I/L so they survive being read aloud.
const referralAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

var (
	ErrInvalidHash   = errors.New("invalid argon2id hash")
	errEmptyPassword = errors.New("password cannot be empty")
	b64              = base64.RawStdEncoding
)

type argonCost struct {
	memory  uint32
	passes  uint32
	lanes   uint8
	saltLen int
	keyLen  uint32
}

func costFromConfig(cfg config.PasswordConfig) argonCost {
	return argonCost{
		memory:  uint32(bounded(cfg.ArgonMemoryKB, 8, 512*1024)),
		passes:  uint32(bounded(cfg.ArgonTime, 1, 10)),
		lanes:   uint8(bounded(cfg.ArgonParallelism, 1, 255)),
		saltLen: bounded(cfg.ArgonSaltLen, 8, 64),
		keyLen:  uint32(bounded(cfg.ArgonKeyLen, 16, 64)),
	}
}

func (c argonCost) derive(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, c.passes, c.memory, c.lanes, c.keyLen)
}

// HashPassword derives a fresh salted key with the configured cost.
func HashPassword(password string, cfg config.PasswordConfig) (string, error) {
	if password == "" {
		return "", errEmptyPassword
	}
	cost := costFromConfig(cfg)
	salt := make([]byte, cost.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}
	key := cost.derive(password, salt)

	return strings.Join([]string{
		"",
		phcAlgorithm,
		fmt.Sprintf("v=%d", argon2.Version),
		fmt.Sprintf(phcParams, cost.memory, cost.passes, cost.lanes),
		b64.EncodeToString(salt),
		b64.EncodeToString(key),
	}, "$"), nil
}

// VerifyPassword re-derives the key with the cost recorded in encoded.
// A wrong password is (false, nil); only a malformed hash is an error.
func VerifyPassword(password, encoded string) (bool, error) {
	cost, salt, want, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	got := cost.derive(password, salt)
	return subtle.ConstantTimeCompare(want, got) == 1, nil
}

func parsePHC(encoded string) (argonCost, []byte, []byte, error) {
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != phcAlgorithm {
		return argonCost{}, nil, nil, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil || version != argon2.Version {
		return argonCost{}, nil, nil, ErrInvalidHash
	}

	var cost argonCost
	if _, err := fmt.Sscanf(fields[3], phcParams, &cost.memory, &cost.passes, &cost.lanes); err != nil {
		return argonCost{}, nil, nil, ErrInvalidHash
	}
	if cost.memory == 0 || cost.passes == 0 || cost.lanes == 0 {
		return argonCost{}, nil, nil, ErrInvalidHash
	}

	salt, err := b64.DecodeString(fields[4])
	if err != nil || len(salt) == 0 {
		return argonCost{}, nil, nil, ErrInvalidHash
	}
	key, err := b64.DecodeString(fields[5])
	if err != nil || len(key) == 0 {
		return argonCost{}, nil, nil, ErrInvalidHash
	}
	cost.saltLen = len(salt)
	cost.keyLen = uint32(len(key))
	return cost, salt, key, nil
}

func bounded(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

// GenerateReferralCode returns length characters drawn uniformly from
// referralAlphabet.
func GenerateReferralCode(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("referral code length must be positive, got %d", length)
	}
	alphabetSize := big.NewInt(int64(len(referralAlphabet)))

	var sb strings.Builder
	sb.Grow(length)
	for sb.Len() < length {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", fmt.Errorf("draw referral character: %w", err)
		}
		sb.WriteByte(referralAlphabet[n.Int64()])
	}
	return sb.String(), nil
}
