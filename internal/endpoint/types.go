package endpoint

import (
	"encoding/json"
	"time"
)

// Promotion 发行服务下发的活动
type Promotion struct {
	ID                  string    `json:"id"`
	CreatedAt           time.Time `json:"createdAt"`
	ExpiresAt           time.Time `json:"expiresAt"`
	Version             int       `json:"version"`
	SuggestionsPerGrant int       `json:"suggestionsPerGrant"`
	ApproximateValue    string    `json:"approximateValue"`
	Type                string    `json:"type"`
	Available           bool      `json:"available"`
	Platform            string    `json:"platform"`
	PublicKeys          []string  `json:"publicKeys"`
	LegacyClaimed       bool      `json:"legacyClaimed"`
}

// PromotionList 活动列表，Corrupted 为结构校验失败的条目ID
type PromotionList struct {
	Promotions []Promotion
	Corrupted  []string
}

// SignedCreds 发行方签名结果
type SignedCreds struct {
	SignedCreds []string `json:"signedCreds"`
	BatchProof  string   `json:"batchProof"`
	PublicKey   string   `json:"publicKey"`
}

// AttestationChallenge 证明挑战
type AttestationChallenge struct {
	ID        string          `json:"id"`
	Challenge json.RawMessage `json:"challenge"`
}

// OrderItemRequest 下单条目
type OrderItemRequest struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// Order 发行服务订单
type Order struct {
	ID         string      `json:"id"`
	TotalPrice string      `json:"totalPrice"`
	MerchantID string      `json:"merchantId"`
	Location   string      `json:"location"`
	Status     string      `json:"status"`
	Items      []OrderItem `json:"items"`
}

// OrderItem 发行服务订单项
type OrderItem struct {
	ID          string    `json:"id"`
	SKU         string    `json:"sku"`
	Quantity    int       `json:"quantity"`
	Price       string    `json:"price"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Type        string    `json:"type"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// TokenCredential 代币消费凭证
type TokenCredential struct {
	T         string `json:"t"`
	PublicKey string `json:"publicKey"`
	Signature string `json:"signature"`
}

// Publisher 发布者信息
type Publisher struct {
	PublisherKey string `json:"publisherKey"`
	Status       string `json:"status"`
	Address      string `json:"address"`
}
