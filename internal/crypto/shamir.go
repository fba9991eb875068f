package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

// Shares are laid out as the evaluated bytes followed by a one-byte x coordinate,
// which keeps them compatible with the common Vault-style encoding.

var (
	gfExp [510]byte
	gfLog [256]byte
)

func init() {
	x := byte(1)
	for i := 0; i < 255; i++ {
		gfExp[i] = x
		gfLog[x] = byte(i)
		x = gfMulSlow(x, 3)
	}
	for i := 255; i < len(gfExp); i++ {
		gfExp[i] = gfExp[i-255]
	}
}

// gfMulSlow multiplies in GF(2^8) modulo x^8+x^4+x^3+x+1.
func gfMulSlow(a, b byte) byte {
	var p byte
	for b > 0 {
		if b&1 == 1 {
			p ^= a
		}
		hi := a & 0x80
		a <<= 1
		if hi != 0 {
			a ^= 0x1b
		}
		b >>= 1
	}
	return p
}

func gfMul(a, b byte) byte {
	if a == 0 || b == 0 {
		return 0
	}
	return gfExp[int(gfLog[a])+int(gfLog[b])]
}

func gfDiv(a, b byte) byte {
	if a == 0 {
		return 0
	}
	return gfExp[int(gfLog[a])+255-int(gfLog[b])]
}

// Split divides secret into parts shares, any threshold of which recover it.
func Split(secret []byte, parts, threshold int) ([][]byte, error) {
	switch {
	case len(secret) == 0:
		return nil, errors.New("cannot split an empty secret")
	case threshold < 2:
		return nil, errors.New("threshold must be at least 2")
	case parts < threshold:
		return nil, errors.New("parts cannot be less than threshold")
	case parts > 255:
		return nil, errors.New("parts cannot exceed 255")
	}

	shares := make([][]byte, parts)
	for i := range shares {
		shares[i] = make([]byte, len(secret)+1)
		shares[i][len(secret)] = byte(i + 1)
	}

	coeffs := make([]byte, threshold-1)
	defer clear(coeffs)
	for idx, b := range secret {
		if _, err := io.ReadFull(rand.Reader, coeffs); err != nil {
			return nil, fmt.Errorf("failed to generate coefficients: %w", err)
		}
		for i := range shares {
			x := shares[i][len(secret)]
			// Horner evaluation, intercept is the secret byte
			var y byte
			for c := len(coeffs) - 1; c >= 0; c-- {
				y = gfMul(y, x) ^ coeffs[c]
			}
			shares[i][idx] = gfMul(y, x) ^ b
		}
	}
	return shares, nil
}

// Combine recovers the secret from at least two shares produced by Split.
// The caller must clear the result.
func Combine(shares [][]byte) ([]byte, error) {
	if len(shares) < 2 {
		return nil, errors.New("at least two shares are required")
	}
	n := len(shares[0])
	if n < 2 {
		return nil, errors.New("share is too short")
	}

	xs := make([]byte, len(shares))
	seen := make(map[byte]bool, len(shares))
	for i, s := range shares {
		if len(s) != n {
			return nil, errors.New("shares have different lengths")
		}
		x := s[n-1]
		if x == 0 || seen[x] {
			return nil, errors.New("invalid or duplicate share coordinate")
		}
		seen[x] = true
		xs[i] = x
	}

	// Lagrange basis at x=0; subtraction is xor in GF(2^8)
	basis := make([]byte, len(shares))
	for i := range xs {
		l := byte(1)
		for j := range xs {
			if i == j {
				continue
			}
			l = gfMul(l, gfDiv(xs[j], xs[j]^xs[i]))
		}
		basis[i] = l
	}

	secret := make([]byte, n-1)
	for idx := range secret {
		var acc byte
		for i, s := range shares {
			acc ^= gfMul(s[idx], basis[i])
		}
		secret[idx] = acc
	}
	return secret, nil
}
