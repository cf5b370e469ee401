package issuersim

import (
	"crypto/ed25519"
	"net/http"
	"sync"
	"time"

	"github.com/rewards-ledger/internal/endpoint"
	"github.com/rewards-ledger/internal/tokens"

	"github.com/gin-gonic/gin"
	"github.com/mojocn/base64Captcha"
	"github.com/shopspring/decimal"
)

// SKU 模拟商品
type SKU struct {
	Price       decimal.Decimal
	Name        string
	Description string
	Type        string
}

type claim struct {
	promotionID string
	paymentID   string
	blinded     []string
	signed      *endpoint.SignedCreds
}

type attestation struct {
	captchaID   string
	answer      string
	paymentID   string
	promotionID string
}

// Transfer 托管钱包转账记录
type Transfer struct {
	ID          string
	From        string
	Destination string
	Amount      string
	Message     string
}

// OrderTransaction 订单外部交易记录
type OrderTransaction struct {
	OrderID    string
	Type       string
	ExternalID string
}

// Server 内存版发行服务，用于本地联调与测试
type Server struct {
	mu sync.Mutex

	key       *tokens.SigningKey
	otherKey  *tokens.SigningKey
	walletKey ed25519.PublicKey
	store     base64Captcha.Store

	promotions   []endpoint.Promotion
	claims       map[string]*claim
	claimByPromo map[string]string
	attestations map[string]*attestation
	attested     map[string]bool
	skus         map[string]SKU
	orders       map[string]*endpoint.Order
	publishers   map[string]endpoint.Publisher
	spent        map[string]bool

	clobbered    [][]string
	transfers    []Transfer
	transactions []OrderTransaction
	suggestions  map[string]int

	// 故障注入开关
	listStatus         int
	claimNotReady      bool
	claimMissing       bool
	corruptProof       bool
	publicKeyOverride  string
	requireAttestation bool
	orderCredsStatus   int
}

// New 创建模拟发行服务
func New(key *tokens.SigningKey) (*Server, error) {
	if key == nil {
		generated, err := tokens.GenerateSigningKey()
		if err != nil {
			return nil, err
		}
		key = generated
	}
	other, err := tokens.GenerateSigningKey()
	if err != nil {
		return nil, err
	}
	return &Server{
		key:          key,
		otherKey:     other,
		store:        base64Captcha.NewMemoryStore(1024, 10*time.Minute),
		claims:       make(map[string]*claim),
		claimByPromo: make(map[string]string),
		attestations: make(map[string]*attestation),
		attested:     make(map[string]bool),
		skus:         make(map[string]SKU),
		orders:       make(map[string]*endpoint.Order),
		publishers:   make(map[string]endpoint.Publisher),
		spent:        make(map[string]bool),
		suggestions:  make(map[string]int),
	}, nil
}

// Handler 构建 gin 路由
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	v1 := r.Group("/v1")
	{
		v1.GET("/promotions", s.listPromotions)
		v1.POST("/promotions/clobbered-claims", s.reportClobbered)
		v1.POST("/promotions/:id", s.claimPromotion)
		v1.GET("/promotions/:id/claims/:claimId", s.getClaim)

		v1.POST("/attestations", s.startAttestation)
		v1.PUT("/attestations/:id", s.confirmAttestation)

		v1.POST("/orders", s.createOrder)
		v1.POST("/orders/:id/credentials", s.submitOrderCredentials)
		v1.POST("/orders/:id/transactions/:type", s.submitOrderTransaction)

		v1.GET("/publishers/:key", s.getPublisher)
		v1.POST("/suggestions/claim", s.claimSuggestions)

		v1.POST("/transfers", s.transfer)
	}
	return r
}

// PublicKey 当前签名公钥
func (s *Server) PublicKey() string {
	return s.key.PublicKey().Encode()
}

// SigningKey 当前签名私钥
func (s *Server) SigningKey() *tokens.SigningKey {
	return s.key
}

// AddPromotion 新增或替换活动
func (s *Server) AddPromotion(p endpoint.Promotion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.promotions {
		if s.promotions[i].ID == p.ID {
			s.promotions[i] = p
			return
		}
	}
	s.promotions = append(s.promotions, p)
}

// RemovePromotion 下线活动
func (s *Server) RemovePromotion(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.promotions[:0]
	for _, p := range s.promotions {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	s.promotions = kept
}

// AddSKU 注册商品
func (s *Server) AddSKU(code string, sku SKU) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skus[code] = sku
}

// AddPublisher 注册发布者
func (s *Server) AddPublisher(p endpoint.Publisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishers[p.PublisherKey] = p
}

// RequireWalletSignature 要求签名请求使用该钱包公钥
func (s *Server) RequireWalletSignature(key ed25519.PublicKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.walletKey = key
}

// SetListStatus 活动列表接口返回指定状态码，0 表示正常
func (s *Server) SetListStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listStatus = status
}

// SetClaimNotReady 签名结果返回 202
func (s *Server) SetClaimNotReady(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claimNotReady = v
}

// SetClaimMissing 签名结果返回 404
func (s *Server) SetClaimMissing(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claimMissing = v
}

// SetCorruptProof 下发无法通过校验的批量证明
func (s *Server) SetCorruptProof(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.corruptProof = v
}

// SetPublicKeyOverride 覆盖签名结果中的公钥
func (s *Server) SetPublicKeyOverride(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publicKeyOverride = key
}

// SetRequireAttestation 领取前必须完成证明
func (s *Server) SetRequireAttestation(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requireAttestation = v
}

// SetOrderCredentialsStatus 订单代币支付返回指定状态码，0 表示正常
func (s *Server) SetOrderCredentialsStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orderCredsStatus = status
}

// AttestationAnswer 返回挑战答案
func (s *Server) AttestationAnswer(attestationID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.attestations[attestationID]; ok {
		return a.answer
	}
	return ""
}

// ClobberedClaims 已上报的损坏领取记录
func (s *Server) ClobberedClaims() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.clobbered))
	copy(out, s.clobbered)
	return out
}

// Transfers 托管转账记录
func (s *Server) Transfers() []Transfer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Transfer(nil), s.transfers...)
}

// OrderTransactions 订单外部交易记录
func (s *Server) OrderTransactions() []OrderTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]OrderTransaction(nil), s.transactions...)
}

// Order 返回订单快照
func (s *Server) Order(id string) (endpoint.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return endpoint.Order{}, false
	}
	return *order, true
}

// SuggestionBalance 钱包已兑入的代币数量
func (s *Server) SuggestionBalance(paymentID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suggestions[paymentID]
}

// ClaimCount 领取次数
func (s *Server) ClaimCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.claims)
}

func errorBody(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"message": message, "code": status})
}
