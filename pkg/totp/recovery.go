package totp

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// MaxBackupCodes bounds a single batch.
const MaxBackupCodes = 100

// GenerateBackupCodes creates count distinct numeric codes of the given length.
// Every digit string is drawn uniformly from crypto/rand; math/rand is never used.
func GenerateBackupCodes(count, digits int) ([]string, error) {
	if count < 1 || count > MaxBackupCodes {
		return nil, ErrInvalidBackupCodeCount
	}
	if digits < 6 || digits > 18 {
		return nil, ErrInvalidBackupCodeDigits
	}

	upper := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	format := fmt.Sprintf("%%0%dd", digits)

	seen := make(map[string]struct{}, count)
	codes := make([]string, 0, count)
	for len(codes) < count {
		n, err := rand.Int(rand.Reader, upper)
		if err != nil {
			return nil, errors.Join(ErrFailedToGenerateBackupCode, err)
		}
		code := fmt.Sprintf(format, n.Int64())
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}

// NormalizeBackupCode makes comparison case-insensitive and whitespace-agnostic.
func NormalizeBackupCode(code string) string {
	return strings.ToUpper(NormalizeCode(code))
}

// CodeHasher is a one-way hash for backup codes.
type CodeHasher interface {
	Hash(code string) (string, error)
	// Compare reports whether code matches hash. Implementations must not leak
	// how close a non-matching code was.
	Compare(hash, code string) bool
}

// BcryptHasher hashes backup codes with bcrypt at a tunable cost.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a hasher using cost, clamped to bcrypt's valid range.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &BcryptHasher{cost: cost}
}

// Cost returns the bcrypt work factor.
func (h *BcryptHasher) Cost() int {
	return h.cost
}

func (h *BcryptHasher) Hash(code string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(NormalizeBackupCode(code)), h.cost)
	if err != nil {
		return "", errors.Join(ErrFailedToHashBackupCode, err)
	}
	return string(hash), nil
}

func (h *BcryptHasher) Compare(hash, code string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(NormalizeBackupCode(code))) == nil
}
