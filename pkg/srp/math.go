package srp

import "math/big"

// The helpers in this file operate on unsigned big-endian byte buffers so that
// no arbitrary-precision type escapes into the protocol layer. Results are
// minimal-length; use ToFixedWidthBytes to render them for the wire.

// ModPow computes base^exponent mod modulus by left-to-right square-and-multiply
// over the exponent bits. It panics if modulus is zero.
func ModPow(base, exponent, modulus []byte) []byte {
	m := toInt(modulus)
	if m.Sign() == 0 {
		panic("srp: ModPow with zero modulus")
	}

	b := new(big.Int).Mod(toInt(base), m)
	result := new(big.Int).Mod(big.NewInt(1), m)

	for _, octet := range exponent {
		for bit := 7; bit >= 0; bit-- {
			result.Mul(result, result).Mod(result, m)
			if (octet>>uint(bit))&1 == 1 {
				result.Mul(result, b).Mod(result, m)
			}
		}
	}

	return result.Bytes()
}

// ModMul returns a*b mod modulus.
func ModMul(a, b, modulus []byte) []byte {
	m := mustModulus(modulus)
	r := new(big.Int).Mul(toInt(a), toInt(b))
	return r.Mod(r, m).Bytes()
}

// ModAdd returns (a+b) mod modulus.
func ModAdd(a, b, modulus []byte) []byte {
	m := mustModulus(modulus)
	r := new(big.Int).Add(toInt(a), toInt(b))
	return r.Mod(r, m).Bytes()
}

// ModSub returns (a-b) mod modulus as a non-negative value.
func ModSub(a, b, modulus []byte) []byte {
	m := mustModulus(modulus)
	r := new(big.Int).Sub(toInt(a), toInt(b))
	return r.Mod(r, m).Bytes()
}

// Add returns a+b without reduction.
func Add(a, b []byte) []byte {
	return new(big.Int).Add(toInt(a), toInt(b)).Bytes()
}

// Mul returns a*b without reduction.
func Mul(a, b []byte) []byte {
	return new(big.Int).Mul(toInt(a), toInt(b)).Bytes()
}

// IsZeroMod reports whether value is congruent to zero modulo modulus.
func IsZeroMod(value, modulus []byte) bool {
	m := mustModulus(modulus)
	return new(big.Int).Mod(toInt(value), m).Sign() == 0
}

// ToFixedWidthBytes renders value as exactly width bytes: shorter values are
// left-padded with zeros, longer values lose their leading bytes.
func ToFixedWidthBytes(value []byte, width int) []byte {
	if width < 0 {
		panic("srp: negative width")
	}

	out := make([]byte, width)
	if len(value) >= width {
		copy(out, value[len(value)-width:])
		return out
	}
	copy(out[width-len(value):], value)
	return out
}

func toInt(b []byte) *big.Int {
	return new(big.Int).SetBytes(b)
}

func mustModulus(modulus []byte) *big.Int {
	m := toInt(modulus)
	if m.Sign() == 0 {
		panic("srp: zero modulus")
	}
	return m
}
