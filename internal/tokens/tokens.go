package tokens

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha512"
	"encoding/base64"
	"io"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/hkdf"
)

// PreimageSize 代币原像长度
const PreimageSize = 64

// Token 客户端持有的代币秘密：原像与盲化因子
type Token struct {
	preimage [PreimageSize]byte
	blind    *edwards25519.Scalar
}

// BlindedToken 盲化后的代币 P = r·T
type BlindedToken struct {
	point *edwards25519.Point
}

// SignedToken 发行方签名后的代币 Q = k·P
type SignedToken struct {
	point *edwards25519.Point
}

// UnblindedToken 去盲后的代币 (t, W = k·T)
type UnblindedToken struct {
	preimage  [PreimageSize]byte
	point     *edwards25519.Point
	publicKey string
}

// RandomToken 生成随机代币
func RandomToken() (*Token, error) {
	return newToken(rand.Reader)
}

func newToken(r io.Reader) (*Token, error) {
	token := &Token{}
	if _, err := io.ReadFull(r, token.preimage[:]); err != nil {
		return nil, err
	}
	blind, err := randomScalar(r)
	if err != nil {
		return nil, err
	}
	token.blind = blind
	return token, nil
}

func randomScalar(r io.Reader) (*edwards25519.Scalar, error) {
	var buf [64]byte
	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, err
		}
		s, err := edwards25519.NewScalar().SetUniformBytes(buf[:])
		if err != nil {
			return nil, err
		}
		if !isZeroScalar(s) {
			return s, nil
		}
	}
}

// Blind 盲化代币
func Blind(token *Token) (*BlindedToken, error) {
	if token == nil || token.blind == nil {
		return nil, opError("blind", ErrInvalidScalar)
	}
	t, err := hashToCurve(token.preimage[:])
	if err != nil {
		return nil, opError("blind", err)
	}
	return &BlindedToken{point: new(edwards25519.Point).ScalarMult(token.blind, t)}, nil
}

// Unblind 使用盲化因子还原签名代币
func Unblind(signed *SignedToken, token *Token, publicKey *PublicKey) (*UnblindedToken, error) {
	if signed == nil || signed.point == nil {
		return nil, opError("unblind", ErrInvalidPoint)
	}
	if token == nil || token.blind == nil || isZeroScalar(token.blind) {
		return nil, opError("unblind", ErrInvalidScalar)
	}
	if publicKey == nil || publicKey.point == nil {
		return nil, opError("unblind", ErrInvalidPoint)
	}
	inverse := edwards25519.NewScalar().Invert(token.blind)
	w := new(edwards25519.Point).ScalarMult(inverse, signed.point)
	if w.Equal(edwards25519.NewIdentityPoint()) == 1 {
		return nil, opError("unblind", ErrInvalidPoint)
	}
	return &UnblindedToken{
		preimage:  token.preimage,
		point:     w,
		publicKey: publicKey.Encode(),
	}, nil
}

// Encode 编码为 base64(t || r)
func (t *Token) Encode() string {
	buf := make([]byte, 0, PreimageSize+32)
	buf = append(buf, t.preimage[:]...)
	buf = append(buf, t.blind.Bytes()...)
	return base64.StdEncoding.EncodeToString(buf)
}

// DecodeToken 解码代币秘密
func DecodeToken(encoded string) (*Token, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) != PreimageSize+32 {
		return nil, opError("decode token", ErrInvalidEncoding)
	}
	blind, err := decodeScalar(raw[PreimageSize:])
	if err != nil {
		return nil, opError("decode token", err)
	}
	token := &Token{blind: blind}
	copy(token.preimage[:], raw[:PreimageSize])
	return token, nil
}

// Encode 编码盲化代币
func (b *BlindedToken) Encode() string {
	return base64.StdEncoding.EncodeToString(b.point.Bytes())
}

// DecodeBlindedToken 解码盲化代币
func DecodeBlindedToken(encoded string) (*BlindedToken, error) {
	p, err := decodeEncodedPoint(encoded)
	if err != nil {
		return nil, opError("decode blinded token", err)
	}
	return &BlindedToken{point: p}, nil
}

// Encode 编码签名代币
func (s *SignedToken) Encode() string {
	return base64.StdEncoding.EncodeToString(s.point.Bytes())
}

// DecodeSignedToken 解码签名代币
func DecodeSignedToken(encoded string) (*SignedToken, error) {
	p, err := decodeEncodedPoint(encoded)
	if err != nil {
		return nil, opError("decode signed token", err)
	}
	return &SignedToken{point: p}, nil
}

// Preimage 返回原像的 base64 编码
func (u *UnblindedToken) Preimage() string {
	return base64.StdEncoding.EncodeToString(u.preimage[:])
}

// PublicKey 返回签发该代币的公钥
func (u *UnblindedToken) PublicKey() string {
	return u.publicKey
}

// Encode 编码为 base64(t || W)
func (u *UnblindedToken) Encode() string {
	buf := make([]byte, 0, PreimageSize+32)
	buf = append(buf, u.preimage[:]...)
	buf = append(buf, u.point.Bytes()...)
	return base64.StdEncoding.EncodeToString(buf)
}

// DecodeUnblindedToken 解码去盲代币
func DecodeUnblindedToken(encoded, publicKey string) (*UnblindedToken, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) != PreimageSize+32 {
		return nil, opError("decode unblinded token", ErrInvalidEncoding)
	}
	p, err := decodePoint(raw[PreimageSize:])
	if err != nil {
		return nil, opError("decode unblinded token", err)
	}
	token := &UnblindedToken{point: p, publicKey: publicKey}
	copy(token.preimage[:], raw[:PreimageSize])
	return token, nil
}

// VerificationKey 派生用于消费签名的共享密钥
func (u *UnblindedToken) VerificationKey() []byte {
	reader := hkdf.New(sha512.New, u.point.Bytes(), u.preimage[:], []byte(domainVerifyKey))
	key := make([]byte, 64)
	if _, err := io.ReadFull(reader, key); err != nil {
		panic(err)
	}
	return key
}

// SignMessage 使用派生密钥对消息做 HMAC-SHA512
func (u *UnblindedToken) SignMessage(message []byte) []byte {
	mac := hmac.New(sha512.New, u.VerificationKey())
	_, _ = mac.Write(message)
	return mac.Sum(nil)
}

func decodeEncodedPoint(encoded string) (*edwards25519.Point, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrInvalidEncoding
	}
	return decodePoint(raw)
}
