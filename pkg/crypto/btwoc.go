package crypto

import "math/big"

// BTWOC returns the big-endian two's-complement encoding of a non-negative
// integer: the minimal byte string, with a leading 0x00 prepended if the
// high bit of the top byte would otherwise be set (which would make the
// value read as negative).
func BTWOC(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) == 0 {
		return []byte{0}
	}
	if b[0]&0x80 != 0 {
		out := make([]byte, len(b)+1)
		copy(out[1:], b)
		return out
	}
	return b
}
