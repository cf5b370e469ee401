package tokens

import (
	"encoding/binary"

	"filippo.io/edwards25519"
	"lukechampine.com/blake3"
)

const (
	domainHashToCurve = "rewards-ledger/v1/hash-to-curve"
	domainCoefficient = "rewards-ledger/v1/batch-coefficient"
	domainChallenge   = "rewards-ledger/v1/dleq-challenge"
	domainVerifyKey   = "rewards-ledger/v1/verification-key"

	maxHashToCurveAttempts = 256
)

// hashToCurve 将原像映射到素数阶子群
func hashToCurve(preimage []byte) (*edwards25519.Point, error) {
	identity := edwards25519.NewIdentityPoint()
	for counter := 0; counter < maxHashToCurveAttempts; counter++ {
		h := blake3.New(32, nil)
		_, _ = h.Write([]byte(domainHashToCurve))
		_, _ = h.Write(preimage)
		_, _ = h.Write([]byte{byte(counter)})
		candidate, err := new(edwards25519.Point).SetBytes(h.Sum(nil))
		if err != nil {
			continue
		}
		candidate.MultByCofactor(candidate)
		if candidate.Equal(identity) == 1 {
			continue
		}
		return candidate, nil
	}
	return nil, ErrInvalidPoint
}

// hashToScalar 对带长度前缀的输入做 64 字节摘要并约简为标量
func hashToScalar(domain string, parts ...[]byte) *edwards25519.Scalar {
	h := blake3.New(64, nil)
	_, _ = h.Write([]byte(domain))
	var prefix [4]byte
	for _, part := range parts {
		binary.BigEndian.PutUint32(prefix[:], uint32(len(part)))
		_, _ = h.Write(prefix[:])
		_, _ = h.Write(part)
	}
	s, err := edwards25519.NewScalar().SetUniformBytes(h.Sum(nil))
	if err != nil {
		// SetUniformBytes 仅在长度不为 64 时失败
		panic(err)
	}
	return s
}

func decodePoint(raw []byte) (*edwards25519.Point, error) {
	if len(raw) != 32 {
		return nil, ErrInvalidEncoding
	}
	p, err := new(edwards25519.Point).SetBytes(raw)
	if err != nil {
		return nil, ErrInvalidPoint
	}
	if p.Equal(edwards25519.NewIdentityPoint()) == 1 {
		return nil, ErrInvalidPoint
	}
	return p, nil
}

func decodeScalar(raw []byte) (*edwards25519.Scalar, error) {
	if len(raw) != 32 {
		return nil, ErrInvalidEncoding
	}
	s, err := edwards25519.NewScalar().SetCanonicalBytes(raw)
	if err != nil {
		return nil, ErrInvalidScalar
	}
	return s, nil
}

func isZeroScalar(s *edwards25519.Scalar) bool {
	return s.Equal(edwards25519.NewScalar()) == 1
}
