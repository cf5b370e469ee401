package issuersim

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rewards-ledger/internal/endpoint"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type createOrderRequest struct {
	Items []endpoint.OrderItemRequest `json:"items"`
}

func (s *Server) createOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Items) == 0 {
		errorBody(c, http.StatusBadRequest, "items required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	order := &endpoint.Order{
		ID:         uuid.NewString(),
		MerchantID: "rewards.test",
		Location:   c.Request.Host,
		Status:     "pending",
	}
	total := decimal.Zero
	for _, item := range req.Items {
		sku, ok := s.skus[item.SKU]
		if !ok || item.Quantity <= 0 {
			errorBody(c, http.StatusBadRequest, "unknown sku")
			return
		}
		total = total.Add(sku.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		order.Items = append(order.Items, endpoint.OrderItem{
			ID:          uuid.NewString(),
			SKU:         item.SKU,
			Quantity:    item.Quantity,
			Price:       sku.Price.String(),
			Name:        sku.Name,
			Description: sku.Description,
			Type:        sku.Type,
			ExpiresAt:   time.Now().Add(24 * time.Hour).UTC(),
		})
	}
	order.TotalPrice = total.String()
	s.orders[order.ID] = order
	c.JSON(http.StatusCreated, order)
}

type orderCredentialsRequest struct {
	ItemID      string                     `json:"itemId"`
	Type        string                     `json:"type"`
	Credentials []endpoint.TokenCredential `json:"credentials"`
}

func (s *Server) submitOrderCredentials(c *gin.Context) {
	var req orderCredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Credentials) == 0 || req.Type != "single-use" {
		errorBody(c, http.StatusBadRequest, "invalid credentials")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.orderCredsStatus != 0 {
		errorBody(c, s.orderCredsStatus, "credentials unavailable")
		return
	}
	order, ok := s.orders[c.Param("id")]
	if !ok {
		errorBody(c, http.StatusNotFound, "order not found")
		return
	}
	if !hasItem(order, req.ItemID) {
		errorBody(c, http.StatusBadRequest, "unknown item")
		return
	}
	if status, msg := s.redeem(req.Credentials, []byte(order.ID)); status != 0 {
		errorBody(c, status, msg)
		return
	}
	order.Status = "paid"
	c.Status(http.StatusOK)
}

type orderTransactionRequest struct {
	ExternalTransactionID string `json:"externalTransactionId"`
}

func (s *Server) submitOrderTransaction(c *gin.Context) {
	var req orderTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ExternalTransactionID == "" {
		errorBody(c, http.StatusBadRequest, "externalTransactionId required")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[c.Param("id")]
	if !ok {
		errorBody(c, http.StatusNotFound, "order not found")
		return
	}
	s.transactions = append(s.transactions, OrderTransaction{
		OrderID:    order.ID,
		Type:       c.Param("type"),
		ExternalID: req.ExternalTransactionID,
	})
	order.Status = "paid"
	c.Status(http.StatusCreated)
}

func (s *Server) getPublisher(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	publisher, ok := s.publishers[c.Param("key")]
	if !ok {
		errorBody(c, http.StatusNotFound, "publisher not found")
		return
	}
	c.JSON(http.StatusOK, publisher)
}

type suggestionsRequest struct {
	PaymentID   string                     `json:"paymentId"`
	Credentials []endpoint.TokenCredential `json:"credentials"`
}

func (s *Server) claimSuggestions(c *gin.Context) {
	body, ok := s.readSigned(c)
	if !ok {
		return
	}
	var req suggestionsRequest
	if err := json.Unmarshal(body, &req); err != nil || req.PaymentID == "" || len(req.Credentials) == 0 {
		errorBody(c, http.StatusBadRequest, "invalid suggestions")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if status, msg := s.redeem(req.Credentials, []byte(req.PaymentID)); status != 0 {
		errorBody(c, status, msg)
		return
	}
	s.suggestions[req.PaymentID] += len(req.Credentials)
	c.Status(http.StatusOK)
}

type transferRequest struct {
	From        string `json:"from"`
	Destination string `json:"destination"`
	Amount      string `json:"amount"`
	Message     string `json:"message"`
}

func (s *Server) transfer(c *gin.Context) {
	body, ok := s.readSigned(c)
	if !ok {
		return
	}
	var req transferRequest
	if err := json.Unmarshal(body, &req); err != nil || req.Destination == "" {
		errorBody(c, http.StatusBadRequest, "invalid transfer")
		return
	}
	if amount, err := decimal.NewFromString(req.Amount); err != nil || !amount.IsPositive() {
		errorBody(c, http.StatusBadRequest, "invalid amount")
		return
	}
	id := uuid.NewString()
	s.mu.Lock()
	s.transfers = append(s.transfers, Transfer{
		ID:          id,
		From:        req.From,
		Destination: req.Destination,
		Amount:      req.Amount,
		Message:     req.Message,
	})
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"id": id})
}

// redeem 校验并消费代币，返回非零状态码表示失败；调用方持有锁
func (s *Server) redeem(creds []endpoint.TokenCredential, message []byte) (int, string) {
	publicKey := s.key.PublicKey().Encode()
	seen := make(map[string]bool, len(creds))
	for _, cred := range creds {
		if cred.PublicKey != publicKey {
			return http.StatusBadRequest, "unknown public key"
		}
		if s.spent[cred.T] || seen[cred.T] {
			return http.StatusConflict, "token already spent"
		}
		signature, err := base64.StdEncoding.DecodeString(cred.Signature)
		if err != nil || !s.key.VerifyMessage(cred.T, message, signature) {
			return http.StatusBadRequest, "invalid token signature"
		}
		seen[cred.T] = true
	}
	for t := range seen {
		s.spent[t] = true
	}
	return 0, ""
}

func hasItem(order *endpoint.Order, itemID string) bool {
	for _, item := range order.Items {
		if item.ID == itemID {
			return true
		}
	}
	return false
}
