package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dep2p/go-peerkit"
	"github.com/dep2p/go-peerkit/config"
)

// ============================================================================
//                              环境变量覆盖
// ============================================================================

// 环境变量名，均使用 PEERKIT_ 前缀
const (
	envPrefix        = "PEERKIT_"
	envDisplayName   = envPrefix + "NAME"
	envServiceType   = envPrefix + "SERVICE"
	envMode          = envPrefix + "MODE"
	envListenAddr    = envPrefix + "LISTEN_ADDR"
	envResourceDir   = envPrefix + "RESOURCE_DIR"
	envInviteTimeout = envPrefix + "INVITE_TIMEOUT"
	envStopBrowsing  = envPrefix + "STOP_BROWSING_ON_CONNECT"
	envTieBreak      = envPrefix + "TIE_BREAK"
)

// applyEnvOverrides 应用环境变量覆盖配置
//
// 环境变量优先级高于配置文件，但低于命令行参数。
func applyEnvOverrides(cfg *config.Config, getenv func(string) string) error {
	if v := getenv(envDisplayName); v != "" {
		cfg.Identity.DisplayName = v
	}
	if v := getenv(envServiceType); v != "" {
		cfg.Discovery.ServiceType = v
	}
	if v := getenv(envMode); v != "" {
		m, err := peerkit.ParseMode(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envMode, err)
		}
		cfg.Discovery.Mode = m
	}
	if v := getenv(envListenAddr); v != "" {
		cfg.Transport.Kind = config.TransportLAN
		cfg.Transport.ListenAddr = v
	}
	if v := getenv(envResourceDir); v != "" {
		cfg.Transport.ResourceDir = v
	}
	if v := getenv(envInviteTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envInviteTimeout, err)
		}
		cfg.Discovery.InviteTimeout = config.Duration(d)
	}
	if v := getenv(envStopBrowsing); v != "" {
		cfg.Session.StopBrowsingOnConnect = parseBool(v)
	}
	if v := getenv(envTieBreak); v != "" {
		tb, err := peerkit.ParseTieBreak(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envTieBreak, err)
		}
		cfg.Discovery.TieBreak = tb
	}
	return nil
}

// parseBool 解析布尔值字符串
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}
