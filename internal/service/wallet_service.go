package service

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/rewards-ledger/internal/config"
	"github.com/rewards-ledger/internal/constants"
	"github.com/rewards-ledger/internal/endpoint"

	"golang.org/x/crypto/nacl/secretbox"
	"lukechampine.com/blake3"
)

var (
	ErrWalletSeedInvalid = errors.New("wallet recovery seed invalid")
	ErrWalletKeyMissing  = errors.New("wallet encryption key missing")
)

const walletSeedSize = 32

// Wallet 当前钱包
type Wallet struct {
	PaymentID string
	Type      string
	Address   string
}

// IsCustodial 是否托管钱包
func (w *Wallet) IsCustodial() bool {
	return w != nil && w.Type == constants.WalletTypeCustodial
}

// WalletService 钱包身份与请求签名
type WalletService struct {
	state  *StateService
	boxKey [32]byte

	mu  sync.Mutex
	key ed25519.PrivateKey
}

// NewWalletService 创建钱包服务，encryptionKey 用于落盘加密恢复种子
func NewWalletService(state *StateService, encryptionKey string) *WalletService {
	s := &WalletService{state: state}
	if secret := strings.TrimSpace(encryptionKey); secret != "" {
		s.boxKey = blake3.Sum256([]byte(secret))
	}
	return s
}

// Bootstrap 按配置写入钱包身份，空字段保留已有值
func (s *WalletService) Bootstrap(cfg config.WalletConfig) error {
	if id := strings.TrimSpace(cfg.PaymentID); id != "" {
		if err := s.state.SetString(constants.StateKeyWalletPaymentID, id); err != nil {
			return err
		}
	}
	if walletType := strings.TrimSpace(cfg.Type); walletType != "" {
		if err := s.state.SetString(constants.StateKeyWalletType, walletType); err != nil {
			return err
		}
	}
	if address := strings.TrimSpace(cfg.Address); address != "" {
		if err := s.state.SetString(constants.StateKeyWalletAddress, address); err != nil {
			return err
		}
	}
	if seed := strings.TrimSpace(cfg.RecoverySeed); seed != "" {
		raw, err := base64.StdEncoding.DecodeString(seed)
		if err != nil || len(raw) != walletSeedSize {
			return ErrWalletSeedInvalid
		}
		return s.StoreSeed(raw)
	}
	return nil
}

// Current 返回当前钱包，未配置时返回 nil
func (s *WalletService) Current() (*Wallet, error) {
	paymentID, err := s.state.GetString(constants.StateKeyWalletPaymentID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(paymentID) == "" {
		return nil, nil
	}
	walletType, err := s.state.GetString(constants.StateKeyWalletType)
	if err != nil {
		return nil, err
	}
	if walletType == "" {
		walletType = constants.WalletTypeAnonymous
	}
	address, err := s.state.GetString(constants.StateKeyWalletAddress)
	if err != nil {
		return nil, err
	}
	return &Wallet{PaymentID: paymentID, Type: walletType, Address: address}, nil
}

// StoreSeed 加密保存恢复种子
func (s *WalletService) StoreSeed(seed []byte) error {
	if len(seed) != walletSeedSize {
		return ErrWalletSeedInvalid
	}
	if s.boxKey == ([32]byte{}) {
		return ErrWalletKeyMissing
	}
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return err
	}
	sealed := secretbox.Seal(nonce[:], seed, &nonce, &s.boxKey)
	if err := s.state.SetString(constants.StateKeyWalletRecoverySeed, base64.StdEncoding.EncodeToString(sealed)); err != nil {
		return err
	}
	s.mu.Lock()
	s.key = nil
	s.mu.Unlock()
	return nil
}

// signingKey 解密种子并派生签名私钥
func (s *WalletService) signingKey() (ed25519.PrivateKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key != nil {
		return s.key, nil
	}
	encoded, err := s.state.GetString(constants.StateKeyWalletRecoverySeed)
	if err != nil {
		return nil, err
	}
	if encoded == "" {
		return nil, nil
	}
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(sealed) < 24+secretbox.Overhead {
		return nil, ErrWalletSeedInvalid
	}
	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	seed, ok := secretbox.Open(nil, sealed[24:], &nonce, &s.boxKey)
	if !ok {
		return nil, ErrWalletSeedInvalid
	}
	derived := blake3.Sum256(seed)
	s.key = ed25519.NewKeyFromSeed(derived[:])
	return s.key, nil
}

// PublicKey 钱包签名公钥，未配置种子时返回 nil
func (s *WalletService) PublicKey() (ed25519.PublicKey, error) {
	key, err := s.signingKey()
	if err != nil || key == nil {
		return nil, err
	}
	return key.Public().(ed25519.PublicKey), nil
}

// SignRequest 以钱包密钥签名请求，未配置种子时不签名
func (s *WalletService) SignRequest(req *http.Request, body []byte) error {
	key, err := s.signingKey()
	if err != nil {
		return fmt.Errorf("load wallet key: %w", err)
	}
	if key == nil {
		return nil
	}
	paymentID, err := s.state.GetString(constants.StateKeyWalletPaymentID)
	if err != nil {
		return err
	}
	return endpoint.Ed25519Signer{KeyID: paymentID, Key: key}.SignRequest(req, body)
}
