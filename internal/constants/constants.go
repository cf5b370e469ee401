package constants

// 奖励活动类型常量
const (
	PromotionTypeGrant = "grant"
	PromotionTypeAds   = "ads"
)

// 奖励活动状态常量
const (
	PromotionStatusActive    = "active"
	PromotionStatusAttested  = "attested"
	PromotionStatusFinished  = "finished"
	PromotionStatusCorrupted = "corrupted"
	PromotionStatusOver      = "over"
)

// 凭证批次状态常量
const (
	CredsBatchStatusNone      = "none"
	CredsBatchStatusBlinded   = "blinded"
	CredsBatchStatusSigned    = "signed"
	CredsBatchStatusFinished  = "finished"
	CredsBatchStatusCorrupted = "corrupted"
)

// 凭证触发来源常量
const (
	CredsTriggerPromotion = "promotion"
	CredsTriggerSKU       = "sku"
)

// 代币消费类型常量
const (
	TokenRedeemTypeTransfer = "transfer"
	TokenRedeemTypeSKUOrder = "sku_order"
)

// SKU 订单状态常量
const (
	SKUOrderStatusPending   = "pending"
	SKUOrderStatusPaid      = "paid"
	SKUOrderStatusFulfilled = "fulfilled"
	SKUOrderStatusCanceled  = "canceled"
)

// SKU 订单支付路径常量（创建时确定，之后不再变更）
const (
	SKUPaymentPathTokens    = "tokens"
	SKUPaymentPathCustodial = "custodial"
)

// SKU 交易类型与状态常量
const (
	SKUTransactionTypeSingleUseTokens = "single_use_tokens"
	SKUTransactionTypeCustodial       = "custodial"
	SKUTransactionStatusCreated       = "created"
	SKUTransactionStatusCompleted     = "completed"
	SKUTransactionStatusFailed        = "failed"
)

// 钱包类型常量
const (
	WalletTypeAnonymous = "anonymous"
	WalletTypeCustodial = "custodial"
)

// 发布者状态常量
const (
	PublisherStatusNotVerified = "not_verified"
	PublisherStatusVerified    = "verified"
)

// 结果码常量
const (
	ResultOK                  = "ok"
	ResultError               = "error"
	ResultNotFound            = "not_found"
	ResultCorruptedData       = "corrupted_data"
	ResultRetry               = "retry"
	ResultInProgress          = "in_progress"
	ResultGrantAlreadyClaimed = "grant_already_claimed"
	ResultTooManyResults      = "too_many_results"
)

// 状态存储键
const (
	StateKeyPromotionLastFetchStamp    = "promotion_last_fetch_stamp"
	StateKeyPromotionCorruptedMigrated = "promotion_corrupted_migrated"
	StateKeyWalletPaymentID            = "wallet_payment_id"
	StateKeyWalletType                 = "wallet_type"
	StateKeyWalletAddress              = "wallet_address"
	StateKeyWalletRecoverySeed         = "wallet_recovery_seed"
)

// 队列名称常量
const (
	QueueDefault  = "default"
	QueueCritical = "critical"
)

// 异步任务类型常量
const (
	TaskSKUOrderRetry  = "sku:order_retry"
	TaskPromotionRetry = "promotion:retry"
)
