package services

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// CurseForge ids below these bounds predate the public API and are rejected.
const (
	MinModID  = 30000
	MinFileID = 530000
)

// MaxBatch caps the number of ids accepted by one batch lookup.
const MaxBatch = 1000

const (
	AlgorithmSHA1   = "sha1"
	AlgorithmSHA512 = "sha512"
)

var (
	// Modrinth ids are base62; slugs allow a few punctuation characters.
	modrinthKeyRe = regexp.MustCompile("^[\\w!@$()`.+,\"\\-']{2,64}$")
	hexRe         = regexp.MustCompile(`^[0-9a-f]+$`)
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidIdentity, fmt.Sprintf(format, args...))
}

// ValidateModID checks a CurseForge mod id.
func ValidateModID(id int64) error {
	if id < MinModID {
		return invalid("mod id %d is below %d", id, MinModID)
	}
	return nil
}

// ValidateFileID checks a CurseForge file id.
func ValidateFileID(id int64) error {
	if id < MinFileID {
		return invalid("file id %d is below %d", id, MinFileID)
	}
	return nil
}

// ValidateFingerprint checks a CurseForge murmur2 fingerprint, an unsigned
// 32-bit value.
func ValidateFingerprint(fp int64) error {
	if fp <= 0 || fp > math.MaxUint32 {
		return invalid("fingerprint %d is out of range", fp)
	}
	return nil
}

// ValidateModrinthKey checks a Modrinth project or version id, or a slug.
func ValidateModrinthKey(key string) error {
	if !modrinthKeyRe.MatchString(key) {
		return invalid("modrinth id %q", key)
	}
	return nil
}

// NormalizeAlgorithm defaults an empty algorithm to sha1.
func NormalizeAlgorithm(algorithm string) (string, error) {
	switch a := strings.ToLower(strings.TrimSpace(algorithm)); a {
	case "", AlgorithmSHA1:
		return AlgorithmSHA1, nil
	case AlgorithmSHA512:
		return AlgorithmSHA512, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algorithm)
	}
}

// NormalizeHash lowercases a hex digest and checks its length against the
// algorithm.
func NormalizeHash(algorithm, hash string) (string, error) {
	h := strings.ToLower(strings.TrimSpace(hash))
	want := 40
	if algorithm == AlgorithmSHA512 {
		want = 128
	}
	if len(h) != want || !hexRe.MatchString(h) {
		return "", invalid("%s hash %q", algorithm, hash)
	}
	return h, nil
}

func checkBatch(n int) error {
	switch {
	case n == 0:
		return ErrEmptyBatch
	case n > MaxBatch:
		return fmt.Errorf("%w: %d ids (max %d)", ErrBatchTooLarge, n, MaxBatch)
	}
	return nil
}

func validateAll[K any](keys []K, check func(K) error) error {
	if err := checkBatch(len(keys)); err != nil {
		return err
	}
	for _, k := range keys {
		if err := check(k); err != nil {
			return err
		}
	}
	return nil
}
