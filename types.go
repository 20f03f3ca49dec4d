package peerkit

import (
	"github.com/dep2p/go-peerkit/internal/core/metrics"
	"github.com/dep2p/go-peerkit/internal/core/transport/mem"
	pkgif "github.com/dep2p/go-peerkit/pkg/interfaces"
	"github.com/dep2p/go-peerkit/pkg/types"
)

// ════════════════════════════════════════════════════════════════════════════
//                              类型别名
// ════════════════════════════════════════════════════════════════════════════

type (
	// PeerID 节点身份
	PeerID = types.PeerID

	// Mode 发现角色
	Mode = types.Mode

	// SessionState 会话状态
	SessionState = types.SessionState

	// Reliability 发送模式
	Reliability = types.Reliability

	// TieBreak 邀请决胜策略
	TieBreak = types.TieBreak

	// DiscoveryInfo 随广播发布的键值信息
	DiscoveryInfo = types.DiscoveryInfo

	// Observer 应用观察者，回调均可选
	Observer = pkgif.Observer

	// EventHandler 按事件名注册的处理器
	EventHandler = pkgif.EventHandler

	// Progress 资源发送进度
	Progress = pkgif.Progress

	// Transport 自定义传输能力
	Transport = pkgif.Transport

	// Discovery 自定义发现能力
	Discovery = pkgif.Discovery

	// MemNetwork 进程内网络
	MemNetwork = mem.Network

	// TrafficStats 数据字节统计
	TrafficStats = metrics.Stats
)

// 发现角色
const (
	ModeClient = types.ModeClient
	ModeServer = types.ModeServer
	ModePeer   = types.ModePeer
	ModeAll    = types.ModeAll
)

// 会话状态
const (
	StateInactive     = types.StateInactive
	StateSearching    = types.StateSearching
	StateConnected    = types.StateConnected
	StateDisconnected = types.StateDisconnected
)

// 发送模式
const (
	Reliable   = types.Reliable
	Unreliable = types.Unreliable
)

// 邀请决胜策略
const (
	TieBreakStrict        = types.TieBreakStrict
	TieBreakWhileBrowsing = types.TieBreakWhileBrowsing
)

// ParseMode 解析模式名称：client、server、peer、all、both
func ParseMode(s string) (Mode, error) {
	return types.ParseMode(s)
}

// ParseTieBreak 解析决胜策略名称：strict、browsing
func ParseTieBreak(s string) (TieBreak, error) {
	return types.ParseTieBreak(s)
}

// NewMemNetwork 创建进程内网络，供多个节点通过 WithMemNetwork 共享
//
// resourceDir 为入站资源落盘目录，为空时使用系统临时目录。
func NewMemNetwork(resourceDir string) (*MemNetwork, error) {
	cfg := mem.DefaultConfig()
	cfg.ResourceDir = resourceDir
	return mem.NewNetwork(cfg)
}
