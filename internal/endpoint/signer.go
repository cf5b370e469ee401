package endpoint

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrSignatureInvalid 请求签名校验失败
var ErrSignatureInvalid = errors.New("request signature invalid")

// Ed25519Signer 以钱包密钥对请求摘要签名
type Ed25519Signer struct {
	KeyID string
	Key   ed25519.PrivateKey
}

// SignRequest 写入 Digest 与 Signature 头
func (s Ed25519Signer) SignRequest(req *http.Request, body []byte) error {
	if len(s.Key) != ed25519.PrivateKeySize {
		return errors.New("signing key is invalid")
	}
	digest := BodyDigest(body)
	req.Header.Set("Digest", digest)
	signature := ed25519.Sign(s.Key, []byte("digest: "+digest))
	req.Header.Set("Signature", fmt.Sprintf(`keyId="%s",algorithm="ed25519",headers="digest",signature="%s"`,
		s.KeyID, base64.StdEncoding.EncodeToString(signature)))
	return nil
}

// BodyDigest 计算请求体摘要头
func BodyDigest(body []byte) string {
	sum := sha256.Sum256(body)
	return "SHA-256=" + base64.StdEncoding.EncodeToString(sum[:])
}

// VerifyRequestSignature 校验请求签名，返回 keyId
func VerifyRequestSignature(header http.Header, body []byte, publicKey ed25519.PublicKey) (string, error) {
	digest := header.Get("Digest")
	if digest == "" || digest != BodyDigest(body) {
		return "", ErrSignatureInvalid
	}
	params := parseSignatureHeader(header.Get("Signature"))
	raw, err := base64.StdEncoding.DecodeString(params["signature"])
	if err != nil || len(publicKey) != ed25519.PublicKeySize {
		return "", ErrSignatureInvalid
	}
	if !ed25519.Verify(publicKey, []byte("digest: "+digest), raw) {
		return "", ErrSignatureInvalid
	}
	return params["keyId"], nil
}

// ParseSignatureKeyID 读取签名头中的 keyId
func ParseSignatureKeyID(header http.Header) string {
	return parseSignatureHeader(header.Get("Signature"))["keyId"]
}

func parseSignatureHeader(value string) map[string]string {
	params := make(map[string]string)
	for _, part := range strings.Split(value, ",") {
		key, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		params[key] = strings.Trim(val, `"`)
	}
	return params
}
