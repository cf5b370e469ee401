package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rewards-ledger/internal/constants"
	"github.com/rewards-ledger/internal/endpoint"
	"github.com/rewards-ledger/internal/logger"
	"github.com/rewards-ledger/internal/metrics"
	"github.com/rewards-ledger/internal/models"
	"github.com/rewards-ledger/internal/queue"
	"github.com/rewards-ledger/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// defaultSKURetryDelay 订单支付提交失败后的重试延迟
const defaultSKURetryDelay = 30 * time.Second

// SKUIssuer 发行服务的订单接口
type SKUIssuer interface {
	CreateOrder(ctx context.Context, items []endpoint.OrderItemRequest) (*endpoint.Order, error)
	SubmitOrderCredentials(ctx context.Context, orderID, itemID string, creds []endpoint.TokenCredential) error
	SubmitOrderTransaction(ctx context.Context, orderID, transactionType, externalID string) error
	GetPublisher(ctx context.Context, publisherKey string) (*endpoint.Publisher, error)
}

// Custodian 托管钱包转账接口
type Custodian interface {
	Transfer(ctx context.Context, from, destination, amount, message string) (string, error)
}

// SKURetryQueue 订单支付重试队列
type SKURetryQueue interface {
	EnqueueSKUOrderRetry(payload queue.SKUOrderRetryPayload, delay time.Duration) error
}

// SKUDeps SKU 服务依赖
type SKUDeps struct {
	OrderRepo       repository.SKUOrderRepository
	TransactionRepo repository.SKUTransactionRepository
	PublisherRepo   repository.ServerPublisherRepository
	TokenRepo       repository.UnblindedTokenRepository
	Issuer          SKUIssuer
	Custodian       Custodian
	Queue           SKURetryQueue
	TokenValue      string
	RetryDelay      time.Duration
}

// SKUService SKU 订单兑换
type SKUService struct {
	orderRepo       repository.SKUOrderRepository
	transactionRepo repository.SKUTransactionRepository
	publisherRepo   repository.ServerPublisherRepository
	tokenRepo       repository.UnblindedTokenRepository
	issuer          SKUIssuer
	custodian       Custodian
	queue           SKURetryQueue
	tokenValue      decimal.Decimal
	retryDelay      time.Duration
}

// NewSKUService 创建 SKU 服务
func NewSKUService(deps SKUDeps) (*SKUService, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(deps.TokenValue))
	if err != nil || !value.IsPositive() {
		return nil, fmt.Errorf("%w: token value %q", ErrInvalidPayload, deps.TokenValue)
	}
	delay := deps.RetryDelay
	if delay <= 0 {
		delay = defaultSKURetryDelay
	}
	return &SKUService{
		orderRepo:       deps.OrderRepo,
		transactionRepo: deps.TransactionRepo,
		publisherRepo:   deps.PublisherRepo,
		tokenRepo:       deps.TokenRepo,
		issuer:          deps.Issuer,
		custodian:       deps.Custodian,
		queue:           deps.Queue,
		tokenValue:      value,
		retryDelay:      delay,
	}, nil
}

// Process 创建订单并按钱包类型完成支付
func (s *SKUService) Process(ctx context.Context, items []endpoint.OrderItemRequest, wallet *Wallet) (*models.SKUOrder, error) {
	if wallet == nil {
		return nil, ErrWalletRequired
	}
	if len(items) == 0 {
		return nil, ErrInvalidPayload
	}

	remote, err := s.issuer.CreateOrder(ctx, items)
	if err != nil {
		logger.Warnw("sku_order_create_failed", "error", err)
		return nil, fmt.Errorf("%w: create order: %v", ErrLedger, err)
	}
	order, err := toSKUOrderModel(remote)
	if err != nil {
		logger.Warnw("sku_order_invalid", "order_id", remote.ID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrCorruptedData, err)
	}
	order.PaymentPath = constants.SKUPaymentPathTokens
	if wallet.IsCustodial() {
		order.PaymentPath = constants.SKUPaymentPathCustodial
	}
	if err := s.orderRepo.InsertOrUpdate(order); err != nil {
		return nil, fmt.Errorf("%w: save order: %v", ErrLedger, err)
	}

	stored, err := s.load(order.OrderID)
	if err != nil {
		return nil, err
	}
	if err := s.createTransaction(ctx, stored, wallet); err != nil {
		metrics.Ledger().ObserveSKUOrder(stored.PaymentPath, ResultCode(err))
		return stored, err
	}
	metrics.Ledger().ObserveSKUOrder(stored.PaymentPath, constants.ResultOK)
	return s.load(order.OrderID)
}

// Retry 继续未完成订单的支付
func (s *SKUService) Retry(ctx context.Context, orderID string, wallet *Wallet) (*models.SKUOrder, error) {
	order, err := s.load(orderID)
	if err != nil {
		return nil, err
	}
	switch order.Status {
	case constants.SKUOrderStatusPaid, constants.SKUOrderStatusFulfilled:
		return order, nil
	case constants.SKUOrderStatusCanceled:
		return order, ErrOrderCanceled
	}
	if wallet == nil {
		return order, ErrWalletRequired
	}

	transaction, err := s.transactionRepo.GetByOrderID(order.OrderID)
	if err != nil {
		return order, fmt.Errorf("%w: load transaction: %v", ErrLedger, err)
	}
	if transaction != nil && transaction.ExternalTransactionID != "" &&
		transaction.Status != constants.SKUTransactionStatusFailed {
		err = s.submitTransaction(ctx, order, transaction)
	} else {
		err = s.createTransaction(ctx, order, wallet)
	}
	metrics.Ledger().ObserveSKUOrder(order.PaymentPath, ResultCode(err))
	if err != nil {
		return order, err
	}
	return s.load(order.OrderID)
}

// GetOrder 获取订单
func (s *SKUService) GetOrder(orderID string) (*models.SKUOrder, error) {
	return s.load(orderID)
}

// GetOrderByContributionID 按贡献ID获取订单
func (s *SKUService) GetOrderByContributionID(contributionID string) (*models.SKUOrder, error) {
	order, err := s.orderRepo.GetByContributionID(contributionID)
	if err != nil {
		return nil, fmt.Errorf("%w: load order: %v", ErrLedger, err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// SaveContributionID 绑定贡献ID
func (s *SKUService) SaveContributionID(orderID, contributionID string) error {
	if strings.TrimSpace(contributionID) == "" {
		return ErrInvalidPayload
	}
	if _, err := s.load(orderID); err != nil {
		return err
	}
	if err := s.orderRepo.UpdateContributionID(orderID, contributionID); err != nil {
		return fmt.Errorf("%w: save contribution id: %v", ErrLedger, err)
	}
	return nil
}

// UpdateStatus 更新订单状态
func (s *SKUService) UpdateStatus(orderID, status string) error {
	switch status {
	case constants.SKUOrderStatusPending, constants.SKUOrderStatusPaid,
		constants.SKUOrderStatusFulfilled, constants.SKUOrderStatusCanceled:
	default:
		return ErrInvalidPayload
	}
	if _, err := s.load(orderID); err != nil {
		return err
	}
	if err := s.orderRepo.UpdateStatus(orderID, status); err != nil {
		return fmt.Errorf("%w: update order status: %v", ErrLedger, err)
	}
	return nil
}

func (s *SKUService) load(orderID string) (*models.SKUOrder, error) {
	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: load order: %v", ErrLedger, err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// createTransaction 按订单创建时确定的支付路径发起支付
func (s *SKUService) createTransaction(ctx context.Context, order *models.SKUOrder, wallet *Wallet) error {
	switch order.PaymentPath {
	case constants.SKUPaymentPathCustodial:
		return s.payCustodial(ctx, order, wallet)
	case constants.SKUPaymentPathTokens:
		return s.payWithTokens(ctx, order)
	default:
		logger.Errorw("sku_order_payment_path_unknown", "order_id", order.OrderID, "payment_path", order.PaymentPath)
		return ErrLedger
	}
}

// tokensNeeded 订单总额除以单个代币价值，向上取整
func (s *SKUService) tokensNeeded(total decimal.Decimal) int {
	if !total.IsPositive() {
		return 0
	}
	return int(total.Div(s.tokenValue).Ceil().IntPart())
}

func (s *SKUService) payWithTokens(ctx context.Context, order *models.SKUOrder) error {
	if len(order.Items) == 0 {
		return fmt.Errorf("%w: order %s has no items", ErrCorruptedData, order.OrderID)
	}
	needed := s.tokensNeeded(order.TotalAmount.Decimal)
	if needed == 0 {
		return fmt.Errorf("%w: order %s total is not positive", ErrCorruptedData, order.OrderID)
	}
	reserved, err := s.reserveTokens(order.OrderID, needed)
	if err != nil {
		return err
	}

	transaction, err := s.transactionRepo.GetByOrderID(order.OrderID)
	if err != nil {
		return fmt.Errorf("%w: load transaction: %v", ErrLedger, err)
	}
	resubmit := transaction != nil && transaction.Status == constants.SKUTransactionStatusCreated
	if !resubmit {
		transaction = &models.SKUTransaction{
			TransactionID: uuid.NewString(),
			OrderID:       order.OrderID,
			Type:          constants.SKUTransactionTypeSingleUseTokens,
			Amount:        order.TotalAmount,
			Status:        constants.SKUTransactionStatusCreated,
		}
		if err := s.transactionRepo.Create(transaction); err != nil {
			return fmt.Errorf("%w: save transaction: %v", ErrLedger, err)
		}
	}

	creds, err := buildCredentials(reserved, []byte(order.OrderID))
	if err != nil {
		s.releaseTokens(order.OrderID)
		s.failTransaction(transaction.TransactionID)
		return fmt.Errorf("%w: %v", ErrCorruptedData, err)
	}
	if err := s.issuer.SubmitOrderCredentials(ctx, order.OrderID, order.Items[0].OrderItemID, creds); err != nil {
		logger.Warnw("sku_order_credentials_failed", "order_id", order.OrderID, "tokens", len(creds), "error", err)
		if errors.Is(err, endpoint.ErrRejected) {
			if resubmit {
				// 之前的提交可能已被服务端消费，不再放回可用池
				s.burnTokens(order.OrderID, reserved)
			} else {
				s.releaseTokens(order.OrderID)
			}
			s.failTransaction(transaction.TransactionID)
			return fmt.Errorf("%w: order credentials rejected: %v", ErrLedger, err)
		}
		s.scheduleRetry(order.OrderID)
		return fmt.Errorf("%w: submit order credentials: %v", ErrLedger, err)
	}

	if _, err := s.tokenRepo.MarkUsedByIDs(tokenIDs(reserved), time.Now()); err != nil {
		return fmt.Errorf("%w: mark tokens used: %v", ErrLedger, err)
	}
	if err := s.transactionRepo.UpdateStatus(transaction.TransactionID, constants.SKUTransactionStatusCompleted); err != nil {
		return fmt.Errorf("%w: complete transaction: %v", ErrLedger, err)
	}
	if err := s.orderRepo.UpdateStatus(order.OrderID, constants.SKUOrderStatusPaid); err != nil {
		return fmt.Errorf("%w: mark order paid: %v", ErrLedger, err)
	}
	logger.Infow("sku_order_paid", "order_id", order.OrderID, "payment_path", order.PaymentPath, "tokens", len(creds))
	return nil
}

// reserveTokens 复用已为订单预留的代币，不足部分继续预留
func (s *SKUService) reserveTokens(orderID string, needed int) ([]models.UnblindedToken, error) {
	reserved, err := s.tokenRepo.ListReserved(orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: list reserved tokens: %v", ErrLedger, err)
	}
	if len(reserved) >= needed {
		if excess := reserved[needed:]; len(excess) > 0 {
			if _, err := s.tokenRepo.ReleaseByIDs(tokenIDs(excess)); err != nil {
				return nil, fmt.Errorf("%w: release excess tokens: %v", ErrLedger, err)
			}
			logger.Infow("sku_order_excess_tokens_released", "order_id", orderID, "count", len(excess))
		}
		return reserved[:needed], nil
	}

	missing := needed - len(reserved)
	spendable, err := s.tokenRepo.ListSpendable(nil, missing)
	if err != nil {
		return nil, fmt.Errorf("%w: list spendable tokens: %v", ErrLedger, err)
	}
	if len(spendable) < missing {
		logger.Warnw("sku_order_tokens_insufficient", "order_id", orderID, "needed", needed, "available", len(reserved)+len(spendable))
		return nil, ErrInsufficientTokens
	}
	if err := s.tokenRepo.Reserve(tokenIDs(spendable), orderID, constants.TokenRedeemTypeSKUOrder, time.Now()); err != nil {
		if errors.Is(err, repository.ErrTokensUnavailable) {
			return nil, ErrRetry
		}
		return nil, fmt.Errorf("%w: reserve tokens: %v", ErrLedger, err)
	}
	return append(reserved, spendable...), nil
}

func (s *SKUService) releaseTokens(orderID string) {
	if _, err := s.tokenRepo.Release(orderID); err != nil {
		logger.Errorw("sku_order_release_failed", "order_id", orderID, "error", err)
	}
}

func (s *SKUService) burnTokens(orderID string, tokens []models.UnblindedToken) {
	burned, err := s.tokenRepo.MarkUsedByIDs(tokenIDs(tokens), time.Now())
	if err != nil {
		logger.Errorw("sku_order_burn_failed", "order_id", orderID, "error", err)
		return
	}
	logger.Warnw("sku_order_tokens_burned", "order_id", orderID, "count", burned)
}

func (s *SKUService) failTransaction(transactionID string) {
	if err := s.transactionRepo.UpdateStatus(transactionID, constants.SKUTransactionStatusFailed); err != nil {
		logger.Errorw("sku_transaction_fail_update_failed", "transaction_id", transactionID, "error", err)
	}
}

func (s *SKUService) payCustodial(ctx context.Context, order *models.SKUOrder, wallet *Wallet) error {
	publisher, err := s.resolvePublisher(ctx, order.MerchantID)
	if err != nil {
		return err
	}
	if publisher == nil || strings.TrimSpace(publisher.Address) == "" {
		logger.Warnw("sku_order_merchant_address_missing", "order_id", order.OrderID, "merchant_id", order.MerchantID)
		return ErrMerchantAddressMissing
	}
	if s.custodian == nil {
		return fmt.Errorf("%w: custodian not configured", ErrLedger)
	}

	externalID, err := s.custodian.Transfer(ctx, wallet.Address, publisher.Address, order.TotalAmount.String(), order.OrderID)
	if err != nil {
		logger.Warnw("sku_order_custodial_transfer_failed", "order_id", order.OrderID, "error", err)
		return fmt.Errorf("%w: custodial transfer: %v", ErrLedger, err)
	}
	transaction := &models.SKUTransaction{
		TransactionID:         uuid.NewString(),
		OrderID:               order.OrderID,
		ExternalTransactionID: externalID,
		Type:                  constants.SKUTransactionTypeCustodial,
		Amount:                order.TotalAmount,
		Status:                constants.SKUTransactionStatusCreated,
	}
	if err := s.transactionRepo.Create(transaction); err != nil {
		return fmt.Errorf("%w: save transaction: %v", ErrLedger, err)
	}
	return s.submitTransaction(ctx, order, transaction)
}

// submitTransaction 提交外部交易并将订单置为已支付
func (s *SKUService) submitTransaction(ctx context.Context, order *models.SKUOrder, transaction *models.SKUTransaction) error {
	if err := s.issuer.SubmitOrderTransaction(ctx, order.OrderID, transaction.Type, transaction.ExternalTransactionID); err != nil {
		logger.Warnw("sku_order_transaction_submit_failed", "order_id", order.OrderID, "transaction_id", transaction.TransactionID, "error", err)
		if !errors.Is(err, endpoint.ErrRejected) {
			s.scheduleRetry(order.OrderID)
		}
		return fmt.Errorf("%w: submit order transaction: %v", ErrLedger, err)
	}
	if err := s.transactionRepo.UpdateStatus(transaction.TransactionID, constants.SKUTransactionStatusCompleted); err != nil {
		return fmt.Errorf("%w: complete transaction: %v", ErrLedger, err)
	}
	if err := s.orderRepo.UpdateStatus(order.OrderID, constants.SKUOrderStatusPaid); err != nil {
		return fmt.Errorf("%w: mark order paid: %v", ErrLedger, err)
	}
	logger.Infow("sku_order_paid", "order_id", order.OrderID, "payment_path", order.PaymentPath, "external_id", transaction.ExternalTransactionID)
	return nil
}

// resolvePublisher 先查本地，未命中时向发行服务获取并落盘
func (s *SKUService) resolvePublisher(ctx context.Context, publisherKey string) (*models.ServerPublisher, error) {
	if strings.TrimSpace(publisherKey) == "" {
		return nil, nil
	}
	publisher, err := s.publisherRepo.GetByKey(publisherKey)
	if err != nil {
		return nil, fmt.Errorf("%w: load publisher: %v", ErrLedger, err)
	}
	if publisher != nil && publisher.Address != "" {
		return publisher, nil
	}

	remote, err := s.issuer.GetPublisher(ctx, publisherKey)
	if err != nil {
		if errors.Is(err, endpoint.ErrNotFound) {
			return publisher, nil
		}
		return nil, fmt.Errorf("%w: fetch publisher: %v", ErrLedger, err)
	}
	fetched := &models.ServerPublisher{
		PublisherKey: publisherKey,
		Status:       remote.Status,
		Address:      remote.Address,
	}
	if fetched.Status == "" {
		fetched.Status = constants.PublisherStatusNotVerified
	}
	if err := s.publisherRepo.Upsert(fetched); err != nil {
		return nil, fmt.Errorf("%w: save publisher: %v", ErrLedger, err)
	}
	return fetched, nil
}

func (s *SKUService) scheduleRetry(orderID string) {
	if s.queue == nil {
		return
	}
	if err := s.queue.EnqueueSKUOrderRetry(queue.SKUOrderRetryPayload{OrderID: orderID}, s.retryDelay); err != nil {
		logger.Warnw("sku_order_retry_enqueue_failed", "order_id", orderID, "error", err)
	}
}

func toSKUOrderModel(remote *endpoint.Order) (*models.SKUOrder, error) {
	if remote == nil || strings.TrimSpace(remote.ID) == "" {
		return nil, errors.New("order id missing")
	}
	total, err := models.ParseMoney(remote.TotalPrice)
	if err != nil {
		return nil, fmt.Errorf("order total: %w", err)
	}
	status := remote.Status
	if status == "" {
		status = constants.SKUOrderStatusPending
	}
	order := &models.SKUOrder{
		OrderID:     remote.ID,
		TotalAmount: total,
		MerchantID:  remote.MerchantID,
		Location:    remote.Location,
		Status:      status,
		Items:       make([]models.SKUOrderItem, 0, len(remote.Items)),
	}
	for _, item := range remote.Items {
		price, err := models.ParseMoney(item.Price)
		if err != nil {
			return nil, fmt.Errorf("order item price: %w", err)
		}
		row := models.SKUOrderItem{
			OrderItemID: item.ID,
			OrderID:     remote.ID,
			SKU:         item.SKU,
			Quantity:    item.Quantity,
			Price:       price,
			Name:        item.Name,
			Description: item.Description,
			Type:        item.Type,
		}
		if !item.ExpiresAt.IsZero() {
			row.ExpiresAt = item.ExpiresAt.Unix()
		}
		order.Items = append(order.Items, row)
	}
	return order, nil
}
