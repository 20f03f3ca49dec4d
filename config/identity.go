package config

import "fmt"

// IdentityConfig 本地身份配置
type IdentityConfig struct {
	// DisplayName 展示名，随广播发布
	//
	// 同名的两个实例仍拥有不同的身份。
	DisplayName string `json:"display_name"`
}

// DefaultIdentityConfig 返回默认身份配置
func DefaultIdentityConfig() IdentityConfig {
	return IdentityConfig{}
}

// Validate 验证身份配置
func (c IdentityConfig) Validate() error {
	if c.DisplayName == "" {
		return fmt.Errorf("%w: identity.display_name is empty", ErrInvalidConfig)
	}
	return nil
}
