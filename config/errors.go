package config

import "errors"

var (
	// ErrNilConfig 配置为空
	ErrNilConfig = errors.New("config: config is nil")

	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = errors.New("config: invalid config")
)
