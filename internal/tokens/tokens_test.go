package tokens

import (
	"errors"
	"testing"
)

func issueBatch(t *testing.T, key *SigningKey, size int) ([]*Token, []*BlindedToken, []*SignedToken) {
	t.Helper()
	secrets := make([]*Token, 0, size)
	blinded := make([]*BlindedToken, 0, size)
	signed := make([]*SignedToken, 0, size)
	for i := 0; i < size; i++ {
		token, err := RandomToken()
		if err != nil {
			t.Fatalf("random token failed: %v", err)
		}
		b, err := Blind(token)
		if err != nil {
			t.Fatalf("blind failed: %v", err)
		}
		s, err := key.Sign(b)
		if err != nil {
			t.Fatalf("sign failed: %v", err)
		}
		secrets = append(secrets, token)
		blinded = append(blinded, b)
		signed = append(signed, s)
	}
	return secrets, blinded, signed
}

func TestUnblindBatchMatchesIssuerDerivation(t *testing.T) {
	key, err := GenerateSigningKey()
	if err != nil {
		t.Fatalf("generate key failed: %v", err)
	}
	secrets, blinded, signed := issueBatch(t, key, 5)
	proof, err := key.NewBatchProof(blinded, signed)
	if err != nil {
		t.Fatalf("new batch proof failed: %v", err)
	}

	unblinded, err := UnblindBatch(secrets, blinded, signed, proof, key.PublicKey())
	if err != nil {
		t.Fatalf("unblind batch failed: %v", err)
	}
	if len(unblinded) != 5 {
		t.Fatalf("expected 5 tokens, got %d", len(unblinded))
	}
	for _, token := range unblinded {
		derived, err := key.DeriveUnblindedToken(token.Preimage())
		if err != nil {
			t.Fatalf("derive failed: %v", err)
		}
		if derived.Encode() != token.Encode() {
			t.Fatalf("unblinded token mismatch")
		}
		if token.PublicKey() != key.PublicKey().Encode() {
			t.Fatalf("unexpected public key on token")
		}
		message := []byte("order-1")
		if !key.VerifyMessage(token.Preimage(), message, token.SignMessage(message)) {
			t.Fatalf("signature should verify")
		}
		if key.VerifyMessage(token.Preimage(), []byte("order-2"), token.SignMessage(message)) {
			t.Fatalf("signature should not verify for other message")
		}
	}
}

func TestVerifyBatchProofRejectsForeignSignature(t *testing.T) {
	key, _ := GenerateSigningKey()
	other, _ := GenerateSigningKey()
	secrets, blinded, signed := issueBatch(t, key, 3)

	forged, err := other.Sign(blinded[1])
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	signed[1] = forged
	proof, err := key.NewBatchProof(blinded, signed)
	if err != nil {
		t.Fatalf("new batch proof failed: %v", err)
	}
	if VerifyBatchProof(proof, key.PublicKey(), blinded, signed) {
		t.Fatalf("proof over tampered batch should not verify")
	}
	_, err = UnblindBatch(secrets, blinded, signed, proof, key.PublicKey())
	if !errors.Is(err, ErrProofMismatch) {
		t.Fatalf("expected ErrProofMismatch, got %v", err)
	}
	if !IsCryptoError(err) {
		t.Fatalf("expected crypto error, got %T", err)
	}
}

func TestVerifyBatchProofRejectsWrongPublicKey(t *testing.T) {
	key, _ := GenerateSigningKey()
	other, _ := GenerateSigningKey()
	_, blinded, signed := issueBatch(t, key, 2)
	proof, _ := key.NewBatchProof(blinded, signed)
	if !VerifyBatchProof(proof, key.PublicKey(), blinded, signed) {
		t.Fatalf("proof should verify with issuer key")
	}
	if VerifyBatchProof(proof, other.PublicKey(), blinded, signed) {
		t.Fatalf("proof should not verify with another key")
	}
}

func TestUnblindBatchLengthMismatch(t *testing.T) {
	key, _ := GenerateSigningKey()
	secrets, blinded, signed := issueBatch(t, key, 2)
	proof, _ := key.NewBatchProof(blinded, signed)
	_, err := UnblindBatch(secrets[:1], blinded, signed, proof, key.PublicKey())
	if !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("expected ErrLengthMismatch, got %v", err)
	}
}

func TestEncodingRoundTrip(t *testing.T) {
	key, _ := GenerateSigningKey()
	secrets, blinded, signed := issueBatch(t, key, 1)

	decodedToken, err := DecodeToken(secrets[0].Encode())
	if err != nil {
		t.Fatalf("decode token failed: %v", err)
	}
	reblinded, err := Blind(decodedToken)
	if err != nil {
		t.Fatalf("blind decoded token failed: %v", err)
	}
	if reblinded.Encode() != blinded[0].Encode() {
		t.Fatalf("decoded token should blind to the same point")
	}

	decodedKey, err := DecodeSigningKey(key.Encode())
	if err != nil {
		t.Fatalf("decode signing key failed: %v", err)
	}
	if decodedKey.PublicKey().Encode() != key.PublicKey().Encode() {
		t.Fatalf("public key mismatch after decode")
	}

	proof, _ := key.NewBatchProof(blinded, signed)
	decodedProof, err := DecodeBatchProof(proof.Encode())
	if err != nil {
		t.Fatalf("decode proof failed: %v", err)
	}
	pub, err := DecodePublicKey(key.PublicKey().Encode())
	if err != nil {
		t.Fatalf("decode public key failed: %v", err)
	}
	if !VerifyBatchProof(decodedProof, pub, blinded, signed) {
		t.Fatalf("decoded proof should verify")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := DecodeToken("not-base64"); !errors.Is(err, ErrInvalidEncoding) {
		t.Fatalf("expected ErrInvalidEncoding, got %v", err)
	}
	if _, err := DecodeSignedToken("AAAA"); !errors.Is(err, ErrInvalidEncoding) {
		t.Fatalf("expected ErrInvalidEncoding, got %v", err)
	}
	if _, err := DecodeBatchProof(""); !errors.Is(err, ErrInvalidEncoding) {
		t.Fatalf("expected ErrInvalidEncoding, got %v", err)
	}
}
