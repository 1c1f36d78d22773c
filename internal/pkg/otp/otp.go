package otp

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

// ErrInvalidLength is returned when a non-positive code length is requested.
var ErrInvalidLength = errors.New("otp: code length must be positive")

// bytes at or above this value are rejected so b%10 stays uniform.
const rejectAbove = 250

// Generator defines the contract for numeric code generation.
type Generator interface {
	Generate(length int) (string, error)
}

// CryptoGenerator draws digits from a secure random reader.
type CryptoGenerator struct {
	reader io.Reader
}

// NewCrypto returns a generator backed by crypto/rand.
func NewCrypto() *CryptoGenerator {
	return &CryptoGenerator{reader: rand.Reader}
}

// NewCryptoFromReader returns a generator reading random bytes from r.
// It exists so failure paths can be exercised; production code uses NewCrypto.
func NewCryptoFromReader(r io.Reader) *CryptoGenerator {
	return &CryptoGenerator{reader: r}
}

// Generate returns a string of exactly length decimal digits.
func (g *CryptoGenerator) Generate(length int) (string, error) {
	if length < 1 {
		return "", ErrInvalidLength
	}

	out := make([]byte, 0, length)
	buf := make([]byte, length+length/4+1)

	for len(out) < length {
		if _, err := io.ReadFull(g.reader, buf); err != nil {
			return "", fmt.Errorf("otp: read random source: %w", err)
		}

		for _, b := range buf {
			if b >= rejectAbove {
				continue
			}
			out = append(out, '0'+b%10)
			if len(out) == length {
				break
			}
		}
	}

	return string(out), nil
}
