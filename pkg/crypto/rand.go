package crypto

import (
	"crypto/rand"
	"errors"
	"math/big"
)

func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	got, err := rand.Read(b)
	if err != nil {
		return nil, err
	}
	if n != got {
		return nil, errors.New("unable to generate enough random data")
	}
	return b, nil
}

// randBigInt returns a uniform random value in [0, max).
func randBigInt(max *big.Int) (*big.Int, error) {
	return rand.Int(rand.Reader, max)
}

const nonceAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// RandNonce returns an n-character string drawn uniformly from
// [A-Za-z0-9], suitable for an OpenID return_to nonce.
func RandNonce(n int) (string, error) {
	out := make([]byte, n)
	max := big.NewInt(int64(len(nonceAlphabet)))
	for i := range out {
		idx, err := randBigInt(max)
		if err != nil {
			return "", err
		}
		out[i] = nonceAlphabet[idx.Int64()]
	}
	return string(out), nil
}
