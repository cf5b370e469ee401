package issuersim

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rewards-ledger/internal/endpoint"
	"github.com/rewards-ledger/internal/tokens"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func (s *Server) listPromotions(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listStatus != 0 {
		errorBody(c, s.listStatus, "promotions unavailable")
		return
	}
	platform := strings.TrimSpace(c.Query("platform"))
	items := make([]endpoint.Promotion, 0, len(s.promotions))
	for _, p := range s.promotions {
		if platform != "" && p.Platform != "" && p.Platform != platform {
			continue
		}
		items = append(items, p)
	}
	c.JSON(http.StatusOK, gin.H{"promotions": items})
}

type clobberedRequest struct {
	ClaimIDs []string `json:"claimIds"`
}

func (s *Server) reportClobbered(c *gin.Context) {
	var req clobberedRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.ClaimIDs) == 0 {
		errorBody(c, http.StatusBadRequest, "claimIds required")
		return
	}
	s.mu.Lock()
	s.clobbered = append(s.clobbered, append([]string(nil), req.ClaimIDs...))
	s.mu.Unlock()
	c.Status(http.StatusOK)
}

type claimRequest struct {
	PaymentID    string   `json:"paymentId"`
	BlindedCreds []string `json:"blindedCreds"`
}

func (s *Server) claimPromotion(c *gin.Context) {
	body, ok := s.readSigned(c)
	if !ok {
		return
	}
	var req claimRequest
	if err := json.Unmarshal(body, &req); err != nil || req.PaymentID == "" || len(req.BlindedCreds) == 0 {
		errorBody(c, http.StatusBadRequest, "invalid claim")
		return
	}
	promotionID := c.Param("id")

	s.mu.Lock()
	defer s.mu.Unlock()
	promotion, found := s.findPromotion(promotionID)
	if !found || !promotion.Available {
		errorBody(c, http.StatusNotFound, "promotion not found")
		return
	}
	if len(req.BlindedCreds) != promotion.SuggestionsPerGrant {
		errorBody(c, http.StatusBadRequest, "wrong number of blinded tokens")
		return
	}
	key := promotionID + "|" + req.PaymentID
	if s.requireAttestation && !s.attested[key] {
		errorBody(c, http.StatusForbidden, "attestation required")
		return
	}
	if claimID, exists := s.claimByPromo[key]; exists {
		c.JSON(http.StatusOK, gin.H{"claimId": claimID})
		return
	}

	blinded := make([]*tokens.BlindedToken, 0, len(req.BlindedCreds))
	for _, encoded := range req.BlindedCreds {
		token, err := tokens.DecodeBlindedToken(encoded)
		if err != nil {
			errorBody(c, http.StatusBadRequest, "invalid blinded token")
			return
		}
		blinded = append(blinded, token)
	}
	signed := make([]*tokens.SignedToken, 0, len(blinded))
	encodedSigned := make([]string, 0, len(blinded))
	for _, token := range blinded {
		st, err := s.key.Sign(token)
		if err != nil {
			errorBody(c, http.StatusInternalServerError, "sign failed")
			return
		}
		signed = append(signed, st)
		encodedSigned = append(encodedSigned, st.Encode())
	}
	proof, err := s.key.NewBatchProof(blinded, signed)
	if err != nil {
		errorBody(c, http.StatusInternalServerError, "proof failed")
		return
	}

	claimID := uuid.NewString()
	s.claims[claimID] = &claim{
		promotionID: promotionID,
		paymentID:   req.PaymentID,
		blinded:     req.BlindedCreds,
		signed: &endpoint.SignedCreds{
			SignedCreds: encodedSigned,
			BatchProof:  proof.Encode(),
			PublicKey:   s.key.PublicKey().Encode(),
		},
	}
	s.claimByPromo[key] = claimID
	c.JSON(http.StatusOK, gin.H{"claimId": claimID})
}

func (s *Server) getClaim(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimMissing {
		errorBody(c, http.StatusNotFound, "claim not found")
		return
	}
	cl, ok := s.claims[c.Param("claimId")]
	if !ok || cl.promotionID != c.Param("id") {
		errorBody(c, http.StatusNotFound, "claim not found")
		return
	}
	if s.claimNotReady {
		c.Status(http.StatusAccepted)
		return
	}
	resp := *cl.signed
	if s.corruptProof {
		proof, err := s.foreignProof(cl)
		if err != nil {
			errorBody(c, http.StatusInternalServerError, "proof failed")
			return
		}
		resp.BatchProof = proof
	}
	if s.publicKeyOverride != "" {
		resp.PublicKey = s.publicKeyOverride
	}
	c.JSON(http.StatusOK, resp)
}

// foreignProof 用另一把密钥生成证明，客户端校验必然失败
func (s *Server) foreignProof(cl *claim) (string, error) {
	blinded := make([]*tokens.BlindedToken, 0, len(cl.blinded))
	signed := make([]*tokens.SignedToken, 0, len(cl.blinded))
	for i, encoded := range cl.blinded {
		bt, err := tokens.DecodeBlindedToken(encoded)
		if err != nil {
			return "", err
		}
		st, err := tokens.DecodeSignedToken(cl.signed.SignedCreds[i])
		if err != nil {
			return "", err
		}
		blinded = append(blinded, bt)
		signed = append(signed, st)
	}
	proof, err := s.otherKey.NewBatchProof(blinded, signed)
	if err != nil {
		return "", err
	}
	return proof.Encode(), nil
}

func (s *Server) findPromotion(id string) (endpoint.Promotion, bool) {
	for _, p := range s.promotions {
		if p.ID == id {
			return p, true
		}
	}
	return endpoint.Promotion{}, false
}

// readSigned 读取请求体，按需校验钱包签名
func (s *Server) readSigned(c *gin.Context) ([]byte, bool) {
	body, err := c.GetRawData()
	if err != nil {
		errorBody(c, http.StatusBadRequest, "read body failed")
		return nil, false
	}
	s.mu.Lock()
	walletKey := s.walletKey
	s.mu.Unlock()
	if walletKey == nil {
		return body, true
	}
	if _, err := endpoint.VerifyRequestSignature(c.Request.Header, body, walletKey); err != nil {
		errorBody(c, http.StatusUnauthorized, "invalid signature")
		return nil, false
	}
	return body, true
}
