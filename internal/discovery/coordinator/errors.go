package coordinator

import "errors"

var (
	// ErrInvalidConfig 无效的配置
	ErrInvalidConfig = errors.New("coordinator: invalid config")

	// ErrEmptyServiceType 服务类型为空
	ErrEmptyServiceType = errors.New("coordinator: empty service type")

	// ErrAdvertiseFailed 广播启动失败
	ErrAdvertiseFailed = errors.New("coordinator: advertise failed")

	// ErrBrowseFailed 浏览启动失败
	ErrBrowseFailed = errors.New("coordinator: browse failed")
)
