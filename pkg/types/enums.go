package types

import (
	"fmt"
	"strings"
)

// ============================================================================
//                              Mode - 发现模式
// ============================================================================

// Mode 发现模式位集合
//
// client 位表示浏览（主动寻找节点），server 位表示广播（等待被发现）。
type Mode uint8

const (
	// ModeNone 无角色
	ModeNone Mode = 0
	// ModeClient 浏览者角色
	ModeClient Mode = 1 << 0
	// ModeServer 广播者角色
	ModeServer Mode = 1 << 1

	// ModePeer 同时浏览和广播
	ModePeer = ModeClient | ModeServer
	// ModeAll ModePeer 的别名
	ModeAll = ModePeer
)

// Has 检查是否包含 flag 的全部位
func (m Mode) Has(flag Mode) bool {
	return flag != ModeNone && m&flag == flag
}

// IsValid 至少包含一个已知位，且不含未知位
func (m Mode) IsValid() bool {
	return m != ModeNone && m&^ModePeer == 0
}

// String 返回模式名称
func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeClient:
		return "client"
	case ModeServer:
		return "server"
	case ModePeer:
		return "peer"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// ParseMode 解析模式名称
//
// 支持 client、server、peer、all、both，不区分大小写。
// 也支持用 "|" 或 "," 组合，例如 "client|server"。
func ParseMode(s string) (Mode, error) {
	var m Mode
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ',' }) {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "client", "browse", "browser":
			m |= ModeClient
		case "server", "advertise", "advertiser":
			m |= ModeServer
		case "peer", "all", "both":
			m |= ModePeer
		default:
			return ModeNone, fmt.Errorf("%w: %q", ErrInvalidMode, part)
		}
	}
	if m == ModeNone {
		return ModeNone, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
	return m, nil
}

// MarshalText 实现 encoding.TextMarshaler
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ============================================================================
//                              SessionState - 会话状态
// ============================================================================

// SessionState 会话状态机状态
type SessionState int

const (
	// StateInactive 未激活，没有任何角色运行，也不持有传输会话
	StateInactive SessionState = iota
	// StateSearching 正在广播和/或浏览
	StateSearching
	// StateConnected 至少有一个节点已连接
	StateConnected
	// StateDisconnected 所有节点都已断开
	StateDisconnected
)

// String 返回状态名称
func (s SessionState) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateSearching:
		return "searching"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ============================================================================
//                              PeerState - 单个节点的连接状态
// ============================================================================

// PeerState 传输层报告的单个节点连接状态
type PeerState int

const (
	// PeerNotConnected 未连接
	PeerNotConnected PeerState = iota
	// PeerConnecting 连接中
	PeerConnecting
	// PeerConnected 已连接
	PeerConnected
)

// String 返回状态名称
func (s PeerState) String() string {
	switch s {
	case PeerConnecting:
		return "connecting"
	case PeerConnected:
		return "connected"
	default:
		return "not_connected"
	}
}

// ============================================================================
//                              Reliability - 发送可靠性
// ============================================================================

// Reliability 数据发送模式
type Reliability int

const (
	// Reliable 可靠有序发送
	Reliable Reliability = iota
	// Unreliable 尽力而为发送
	Unreliable
)

// String 返回模式名称
func (r Reliability) String() string {
	if r == Unreliable {
		return "unreliable"
	}
	return "reliable"
}

// MarshalText 实现 encoding.TextMarshaler
func (r Reliability) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (r *Reliability) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "reliable", "":
		*r = Reliable
	case "unreliable":
		*r = Unreliable
	default:
		return fmt.Errorf("invalid reliability %q", string(text))
	}
	return nil
}

// ============================================================================
//                              TieBreak - 邀请决胜策略
// ============================================================================

// TieBreak 收到邀请时何时比较排序键
type TieBreak int

const (
	// TieBreakStrict 总是比较，本地排序键严格大于邀请方时才接受
	TieBreakStrict TieBreak = iota
	// TieBreakWhileBrowsing 仅在本地浏览时比较，未浏览时接受任何邀请
	//
	// 只广播的节点不会发出竞争邀请，此策略让排序键较小的 server 也能被 client 连上。
	TieBreakWhileBrowsing
)

// String 返回策略名称
func (t TieBreak) String() string {
	switch t {
	case TieBreakStrict:
		return "strict"
	case TieBreakWhileBrowsing:
		return "browsing"
	default:
		return fmt.Sprintf("tiebreak(%d)", int(t))
	}
}

// IsValid 是否为已知策略
func (t TieBreak) IsValid() bool {
	return t == TieBreakStrict || t == TieBreakWhileBrowsing
}

// ParseTieBreak 解析策略名称：strict、browsing，不区分大小写
func ParseTieBreak(s string) (TieBreak, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict", "":
		return TieBreakStrict, nil
	case "browsing", "while-browsing":
		return TieBreakWhileBrowsing, nil
	default:
		return TieBreakStrict, fmt.Errorf("invalid tie-break policy %q", s)
	}
}

// MarshalText 实现 encoding.TextMarshaler
func (t TieBreak) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (t *TieBreak) UnmarshalText(text []byte) error {
	parsed, err := ParseTieBreak(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
