package crypto

import "math/big"

// DefaultDHModulus is the 1024-bit prime the OpenID Authentication 1.1
// specification fixes as the default Diffie-Hellman modulus, used whenever
// a consumer's associate request omits openid.dh_modulus.
var DefaultDHModulus = mustParseDecimal(
	"155172898181473697471232257763715539915724801966915404479707795314057629378541917580651227423698188993727816152646631438561595825688188889951272158842675419950341258706556549803580104870537681476726513255747040765857479291291572334510643245094715007229621094194349783925984760375594985848253359305585439638443")

// DefaultDHGenerator is the generator paired with DefaultDHModulus.
var DefaultDHGenerator = big.NewInt(2)

func mustParseDecimal(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("crypto: invalid decimal constant")
	}
	return n
}

// DiffieHellman performs the consumer side of an OpenID 1.1 DH-SHA1 key
// agreement: pick a private exponent x in [1, p-2], publish X = g^x mod p,
// and later combine the provider's public value Y into a shared secret
// Z = Y^x mod p.
type DiffieHellman struct {
	P *big.Int
	G *big.Int
}

// NewDiffieHellman returns a DiffieHellman using the OpenID 1.1 default
// modulus and generator. Callers that received openid.dh_modulus /
// openid.dh_gen from a provider's associate response should build one
// directly instead.
func NewDiffieHellman() *DiffieHellman {
	return &DiffieHellman{P: DefaultDHModulus, G: DefaultDHGenerator}
}

// GeneratePrivate draws a private exponent x uniformly from [1, p-2] using
// crypto/rand.
func (dh *DiffieHellman) GeneratePrivate() (*big.Int, error) {
	// pMinus2 is the inclusive upper bound; rand.Int wants an exclusive
	// bound, so ask for [0, p-2) and shift by one to land in [1, p-2].
	pMinus2 := new(big.Int).Sub(dh.P, big.NewInt(2))
	x, err := randBigInt(pMinus2)
	if err != nil {
		return nil, err
	}
	return x.Add(x, big.NewInt(1)), nil
}

// Public computes X = g^x mod p.
func (dh *DiffieHellman) Public(private *big.Int) *big.Int {
	return new(big.Int).Exp(dh.G, private, dh.P)
}

// Shared computes Z = Y^x mod p given the other side's public value Y and
// this side's private exponent x.
func (dh *DiffieHellman) Shared(private, otherPublic *big.Int) *big.Int {
	return new(big.Int).Exp(otherPublic, private, dh.P)
}
