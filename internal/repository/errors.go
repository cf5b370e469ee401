package repository

import "errors"

// ErrTooManyResults 查询结果超过唯一性约束允许的行数
var ErrTooManyResults = errors.New("too many results")
