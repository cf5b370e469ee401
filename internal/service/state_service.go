package service

import (
	"strconv"
	"strings"
	"time"

	"github.com/rewards-ledger/internal/constants"
	"github.com/rewards-ledger/internal/repository"
)

// StateService 账本键值状态
type StateService struct {
	repo repository.StateRepository
}

// NewStateService 创建状态服务
func NewStateService(repo repository.StateRepository) *StateService {
	return &StateService{repo: repo}
}

// GetString 读取字符串状态，不存在时返回空串
func (s *StateService) GetString(key string) (string, error) {
	state, err := s.repo.GetByKey(key)
	if err != nil {
		return "", err
	}
	if state == nil {
		return "", nil
	}
	return state.Value, nil
}

// SetString 写入字符串状态
func (s *StateService) SetString(key, value string) error {
	return s.repo.Upsert(key, value)
}

// LastFetch 最近一次拉取活动的时间，未拉取过时返回零值
func (s *StateService) LastFetch() (time.Time, error) {
	raw, err := s.GetString(constants.StateKeyPromotionLastFetchStamp)
	if err != nil {
		return time.Time{}, err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	stamp, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || stamp <= 0 {
		return time.Time{}, nil
	}
	return time.Unix(stamp, 0), nil
}

// SetLastFetch 记录拉取时间
func (s *StateService) SetLastFetch(at time.Time) error {
	return s.SetString(constants.StateKeyPromotionLastFetchStamp, strconv.FormatInt(at.Unix(), 10))
}

// CorruptionMigrated 损坏巡检是否已完成
func (s *StateService) CorruptionMigrated() (bool, error) {
	raw, err := s.GetString(constants.StateKeyPromotionCorruptedMigrated)
	if err != nil {
		return false, err
	}
	return raw == "true", nil
}

// MarkCorruptionMigrated 标记巡检完成；该标记只会置为 true
func (s *StateService) MarkCorruptionMigrated() error {
	return s.SetString(constants.StateKeyPromotionCorruptedMigrated, "true")
}
