package pin

import (
	"crypto/rand"
	"math/big"
)

// Source is the randomness provider for shuffling the pool and minting secrets.
//
// Implementations MUST be safe for concurrent use.
type Source interface {
	// Intn returns a non-negative random int in [0, n).
	//
	// Precondition: n > 0.
	Intn(n int) int
}

// cryptoSource implements Source using crypto/rand.
type cryptoSource struct{}

// NewCryptoSource returns a Source backed by crypto/rand.
//
// Postcondition: Every value returned by Intn is in [0, n).
func NewCryptoSource() Source {
	return &cryptoSource{}
}

// Intn returns a cryptographically secure random int in [0, n).
//
// Precondition: n > 0. Panics with "pin: Intn called with n <= 0" if n <= 0.
func (c *cryptoSource) Intn(n int) int {
	if n <= 0 {
		panic("pin: Intn called with n <= 0")
	}
	val, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic("pin: crypto/rand failure: " + err.Error())
	}
	return int(val.Int64())
}

const secretAlphabet = "0123456789bcdfghjklmnpqrstvwxyz"

// Secret returns a random base-31 token of the given length, suitable as a
// session secret. The alphabet omits vowels so tokens never spell words.
//
// Precondition: length > 0; src must be non-nil.
// Postcondition: Returns a string of exactly length characters from the base-31 alphabet.
func Secret(src Source, length int) string {
	out := make([]byte, length)
	for i := range out {
		out[i] = secretAlphabet[src.Intn(len(secretAlphabet))]
	}
	return string(out)
}
