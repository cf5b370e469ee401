package issuersim

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mojocn/base64Captcha"
)

type attestationPayload struct {
	PaymentID   string `json:"paymentId"`
	PromotionID string `json:"promotionId"`
}

type captchaChallenge struct {
	CaptchaID   string `json:"captchaId"`
	ImageBase64 string `json:"image"`
}

// Solution 挑战答案格式
type Solution struct {
	Answer string `json:"answer"`
}

func (s *Server) startAttestation(c *gin.Context) {
	body, ok := s.readSigned(c)
	if !ok {
		return
	}
	var payload attestationPayload
	if err := json.Unmarshal(body, &payload); err != nil || payload.PaymentID == "" || payload.PromotionID == "" {
		errorBody(c, http.StatusBadRequest, "invalid attestation payload")
		return
	}

	driver := base64Captcha.NewDriverString(80, 240, 0, 0, 6, "abcdefghjkmnpqrstuvwxyz23456789", nil, base64Captcha.DefaultEmbeddedFonts, nil)
	captcha := base64Captcha.NewCaptcha(driver, s.store)
	captchaID, b64s, answer, err := captcha.Generate()
	if err != nil {
		errorBody(c, http.StatusInternalServerError, "challenge failed")
		return
	}

	s.mu.Lock()
	s.attestations[captchaID] = &attestation{
		captchaID:   captchaID,
		answer:      answer,
		paymentID:   payload.PaymentID,
		promotionID: payload.PromotionID,
	}
	s.mu.Unlock()

	challenge, _ := json.Marshal(captchaChallenge{CaptchaID: captchaID, ImageBase64: b64s})
	c.JSON(http.StatusOK, gin.H{"id": captchaID, "challenge": json.RawMessage(challenge)})
}

type confirmRequest struct {
	Solution Solution `json:"solution"`
}

func (s *Server) confirmAttestation(c *gin.Context) {
	body, ok := s.readSigned(c)
	if !ok {
		return
	}
	var req confirmRequest
	if err := json.Unmarshal(body, &req); err != nil || strings.TrimSpace(req.Solution.Answer) == "" {
		errorBody(c, http.StatusBadRequest, "invalid solution")
		return
	}

	id := c.Param("id")
	s.mu.Lock()
	defer s.mu.Unlock()
	att, exists := s.attestations[id]
	if !exists {
		errorBody(c, http.StatusNotFound, "attestation not found")
		return
	}
	if !s.store.Verify(att.captchaID, strings.TrimSpace(req.Solution.Answer), true) {
		errorBody(c, http.StatusUnauthorized, "wrong answer")
		return
	}
	delete(s.attestations, id)
	s.attested[att.promotionID+"|"+att.paymentID] = true
	c.Status(http.StatusOK)
}
