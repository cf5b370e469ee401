package cache

// 缓存键
const (
	keyActivePromotions = "promotions:active"
)

// ActivePromotionsKey 可领取活动列表缓存键
func ActivePromotionsKey() string {
	return keyActivePromotions
}

// CredsLockName 凭证批次锁名
func CredsLockName(triggerType, triggerID string) string {
	return "creds:" + triggerType + ":" + triggerID
}
