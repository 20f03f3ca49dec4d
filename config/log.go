package config

import (
	"fmt"

	"github.com/dep2p/go-peerkit/internal/util/logger"
)

// LogConfig 日志配置
type LogConfig struct {
	// Level 全部子系统的日志级别，为空时沿用环境变量
	Level string `json:"level,omitempty"`

	// Subsystems 单个子系统的日志级别，例如 {"core/session": "debug"}
	Subsystems map[string]string `json:"subsystems,omitempty"`
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{}
}

// Validate 验证日志级别名称
func (c LogConfig) Validate() error {
	if c.Level != "" {
		if _, ok := logger.ParseLevel(c.Level); !ok {
			return fmt.Errorf("%w: log.level %q", ErrInvalidConfig, c.Level)
		}
	}
	for name, level := range c.Subsystems {
		if _, ok := logger.ParseLevel(level); !ok {
			return fmt.Errorf("%w: log.subsystems[%s] %q", ErrInvalidConfig, name, level)
		}
	}
	return nil
}

// Apply 将日志级别应用到日志系统
func (c LogConfig) Apply() {
	if level, ok := logger.ParseLevel(c.Level); ok && c.Level != "" {
		logger.SetGlobalLevel(level)
	}
	for name, s := range c.Subsystems {
		if level, ok := logger.ParseLevel(s); ok {
			logger.SetLevel(name, level)
		}
	}
}
