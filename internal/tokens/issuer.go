package tokens

import (
	"crypto/hmac"
	"crypto/rand"
	"encoding/base64"

	"filippo.io/edwards25519"
)

// PublicKey 发行方公钥 Y = k·B
type PublicKey struct {
	point *edwards25519.Point
}

// SigningKey 发行方签名私钥
type SigningKey struct {
	scalar *edwards25519.Scalar
	public *PublicKey
}

// GenerateSigningKey 生成随机签名私钥
func GenerateSigningKey() (*SigningKey, error) {
	k, err := randomScalar(rand.Reader)
	if err != nil {
		return nil, err
	}
	return newSigningKey(k), nil
}

func newSigningKey(k *edwards25519.Scalar) *SigningKey {
	return &SigningKey{
		scalar: k,
		public: &PublicKey{point: new(edwards25519.Point).ScalarBaseMult(k)},
	}
}

// DecodeSigningKey 解码签名私钥
func DecodeSigningKey(encoded string) (*SigningKey, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, opError("decode signing key", ErrInvalidEncoding)
	}
	k, err := decodeScalar(raw)
	if err != nil {
		return nil, opError("decode signing key", err)
	}
	if isZeroScalar(k) {
		return nil, opError("decode signing key", ErrInvalidScalar)
	}
	return newSigningKey(k), nil
}

// Encode 编码私钥
func (k *SigningKey) Encode() string {
	return base64.StdEncoding.EncodeToString(k.scalar.Bytes())
}

// PublicKey 返回对应公钥
func (k *SigningKey) PublicKey() *PublicKey {
	return k.public
}

// Sign 对盲化代币签名
func (k *SigningKey) Sign(blinded *BlindedToken) (*SignedToken, error) {
	if blinded == nil || blinded.point == nil {
		return nil, opError("sign", ErrInvalidPoint)
	}
	return &SignedToken{point: new(edwards25519.Point).ScalarMult(k.scalar, blinded.point)}, nil
}

// DeriveUnblindedToken 由原像重新计算去盲代币，用于校验消费签名
func (k *SigningKey) DeriveUnblindedToken(preimage string) (*UnblindedToken, error) {
	raw, err := base64.StdEncoding.DecodeString(preimage)
	if err != nil || len(raw) != PreimageSize {
		return nil, opError("derive unblinded token", ErrInvalidEncoding)
	}
	t, err := hashToCurve(raw)
	if err != nil {
		return nil, opError("derive unblinded token", err)
	}
	token := &UnblindedToken{
		point:     new(edwards25519.Point).ScalarMult(k.scalar, t),
		publicKey: k.public.Encode(),
	}
	copy(token.preimage[:], raw)
	return token, nil
}

// VerifyMessage 校验消费签名
func (k *SigningKey) VerifyMessage(preimage string, message, signature []byte) bool {
	token, err := k.DeriveUnblindedToken(preimage)
	if err != nil {
		return false
	}
	return hmac.Equal(token.SignMessage(message), signature)
}

// Encode 编码公钥
func (p *PublicKey) Encode() string {
	return base64.StdEncoding.EncodeToString(p.point.Bytes())
}

// DecodePublicKey 解码公钥
func DecodePublicKey(encoded string) (*PublicKey, error) {
	point, err := decodeEncodedPoint(encoded)
	if err != nil {
		return nil, opError("decode public key", err)
	}
	return &PublicKey{point: point}, nil
}
