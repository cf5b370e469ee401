package tokens

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"

	"filippo.io/edwards25519"
)

// BatchDLEQProof 批量离散对数相等证明：证明所有 Q_i = k·P_i 且 Y = k·B
type BatchDLEQProof struct {
	c *edwards25519.Scalar
	s *edwards25519.Scalar
}

// NewBatchProof 为一批签名生成证明
func (k *SigningKey) NewBatchProof(blinded []*BlindedToken, signed []*SignedToken) (*BatchDLEQProof, error) {
	m, z, err := combine(k.public, blinded, signed)
	if err != nil {
		return nil, opError("batch proof", err)
	}
	w, err := randomScalar(rand.Reader)
	if err != nil {
		return nil, opError("batch proof", err)
	}
	a := new(edwards25519.Point).ScalarBaseMult(w)
	b := new(edwards25519.Point).ScalarMult(w, m)
	c := challenge(k.public.point, m, z, a, b)
	s := edwards25519.NewScalar().Subtract(w, edwards25519.NewScalar().Multiply(c, k.scalar))
	return &BatchDLEQProof{c: c, s: s}, nil
}

// Verify 校验证明
func (p *BatchDLEQProof) Verify(publicKey *PublicKey, blinded []*BlindedToken, signed []*SignedToken) error {
	if p == nil || p.c == nil || p.s == nil || publicKey == nil || publicKey.point == nil {
		return opError("verify batch proof", ErrProofMismatch)
	}
	m, z, err := combine(publicKey, blinded, signed)
	if err != nil {
		return opError("verify batch proof", err)
	}
	// A = s·B + c·Y, B' = s·M + c·Z
	a := new(edwards25519.Point).VarTimeDoubleScalarBaseMult(p.c, publicKey.point, p.s)
	b := new(edwards25519.Point).VarTimeMultiScalarMult(
		[]*edwards25519.Scalar{p.s, p.c},
		[]*edwards25519.Point{m, z},
	)
	if challenge(publicKey.point, m, z, a, b).Equal(p.c) != 1 {
		return opError("verify batch proof", ErrProofMismatch)
	}
	return nil
}

// VerifyBatchProof 校验批量证明
func VerifyBatchProof(proof *BatchDLEQProof, publicKey *PublicKey, blinded []*BlindedToken, signed []*SignedToken) bool {
	return proof.Verify(publicKey, blinded, signed) == nil
}

// UnblindBatch 先校验批量证明再逐个去盲，任一失败则整批失败
func UnblindBatch(tokens []*Token, blinded []*BlindedToken, signed []*SignedToken, proof *BatchDLEQProof, publicKey *PublicKey) ([]*UnblindedToken, error) {
	if len(tokens) != len(blinded) || len(tokens) != len(signed) {
		return nil, opError("unblind batch", ErrLengthMismatch)
	}
	if err := proof.Verify(publicKey, blinded, signed); err != nil {
		return nil, err
	}
	result := make([]*UnblindedToken, 0, len(tokens))
	for i := range tokens {
		unblinded, err := Unblind(signed[i], tokens[i], publicKey)
		if err != nil {
			return nil, err
		}
		result = append(result, unblinded)
	}
	return result, nil
}

// Encode 编码为 base64(c || s)
func (p *BatchDLEQProof) Encode() string {
	buf := make([]byte, 0, 64)
	buf = append(buf, p.c.Bytes()...)
	buf = append(buf, p.s.Bytes()...)
	return base64.StdEncoding.EncodeToString(buf)
}

// DecodeBatchProof 解码批量证明
func DecodeBatchProof(encoded string) (*BatchDLEQProof, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) != 64 {
		return nil, opError("decode batch proof", ErrInvalidEncoding)
	}
	c, err := decodeScalar(raw[:32])
	if err != nil {
		return nil, opError("decode batch proof", err)
	}
	s, err := decodeScalar(raw[32:])
	if err != nil {
		return nil, opError("decode batch proof", err)
	}
	return &BatchDLEQProof{c: c, s: s}, nil
}

// combine 计算 M = Σc_i·P_i 与 Z = Σc_i·Q_i
func combine(publicKey *PublicKey, blinded []*BlindedToken, signed []*SignedToken) (*edwards25519.Point, *edwards25519.Point, error) {
	if len(blinded) == 0 || len(blinded) != len(signed) {
		return nil, nil, ErrLengthMismatch
	}
	seedParts := make([][]byte, 0, 2*len(blinded)+1)
	seedParts = append(seedParts, publicKey.point.Bytes())
	for _, b := range blinded {
		if b == nil || b.point == nil {
			return nil, nil, ErrInvalidPoint
		}
		seedParts = append(seedParts, b.point.Bytes())
	}
	for _, s := range signed {
		if s == nil || s.point == nil {
			return nil, nil, ErrInvalidPoint
		}
		seedParts = append(seedParts, s.point.Bytes())
	}
	seed := hashToScalar(domainCoefficient, seedParts...).Bytes()

	coefficients := make([]*edwards25519.Scalar, len(blinded))
	var index [8]byte
	for i := range blinded {
		binary.BigEndian.PutUint64(index[:], uint64(i))
		coefficients[i] = hashToScalar(domainCoefficient, seed, index[:])
	}
	bPoints := make([]*edwards25519.Point, len(blinded))
	sPoints := make([]*edwards25519.Point, len(signed))
	for i := range blinded {
		bPoints[i] = blinded[i].point
		sPoints[i] = signed[i].point
	}
	m := new(edwards25519.Point).VarTimeMultiScalarMult(coefficients, bPoints)
	z := new(edwards25519.Point).VarTimeMultiScalarMult(coefficients, sPoints)
	return m, z, nil
}

func challenge(y, m, z, a, b *edwards25519.Point) *edwards25519.Scalar {
	return hashToScalar(domainChallenge,
		edwards25519.NewGeneratorPoint().Bytes(),
		y.Bytes(),
		m.Bytes(),
		z.Bytes(),
		a.Bytes(),
		b.Bytes(),
	)
}
