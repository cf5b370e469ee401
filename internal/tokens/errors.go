package tokens

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidEncoding 编码格式非法
	ErrInvalidEncoding = errors.New("invalid token encoding")
	// ErrInvalidPoint 曲线点非法或为单位元
	ErrInvalidPoint = errors.New("invalid curve point")
	// ErrInvalidScalar 标量非法
	ErrInvalidScalar = errors.New("invalid scalar")
	// ErrLengthMismatch 批次中各列表长度不一致
	ErrLengthMismatch = errors.New("batch length mismatch")
	// ErrProofMismatch 批量证明校验失败
	ErrProofMismatch = errors.New("batch proof verification failed")
)

// Error 密码学操作失败，用于与传输层错误区分
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("tokens: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func opError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// IsCryptoError 判断错误是否来自密码学操作
func IsCryptoError(err error) bool {
	var target *Error
	return errors.As(err, &target)
}
