package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dep2p/go-peerkit/internal/core/metrics"
	"github.com/dep2p/go-peerkit/internal/core/notifier"
	"github.com/dep2p/go-peerkit/internal/discovery/coordinator"
	"github.com/dep2p/go-peerkit/internal/util/logger"
	"github.com/dep2p/go-peerkit/pkg/types"
)

// ============================================================================
//                              Machine 结构体
// ============================================================================

// Machine 会话状态机
type Machine struct {
	config   *Config
	sessions *PeerSession
	coord    *coordinator.Coordinator
	notifier *notifier.Notifier
	metrics  *metrics.Metrics
	log      *slog.Logger

	mu    sync.Mutex
	state types.SessionState
	mode  types.Mode
}

// pending 释放锁后按顺序执行的通知
type pending []func()

func (p *pending) add(f func()) { *p = append(*p, f) }

func (p pending) run() {
	for _, f := range p {
		f()
	}
}

// NewMachine 创建状态机，并把自己绑定为会话观察者与协调器回调
func NewMachine(config *Config, sessions *PeerSession, coord *coordinator.Coordinator, n *notifier.Notifier, m *metrics.Metrics) (*Machine, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if n == nil {
		n = notifier.New(nil, m, config.Logger)
	}

	mc := &Machine{
		config:   config,
		sessions: sessions,
		coord:    coord,
		notifier: n,
		metrics:  m,
		log:      logger.OrDefault(config.Logger, "core/session"),
		state:    types.StateInactive,
		mode:     config.Mode,
	}

	sessions.SetObserver(mc)
	coord.SetHooks(coordinator.Hooks{
		CanAccept: mc.canAccept,
		Accepted:  mc.accepted,
	})
	return mc, nil
}

// ============================================================================
//                              查询
// ============================================================================

// State 当前状态
func (mc *Machine) State() types.SessionState {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.state
}

// Mode 当前角色
func (mc *Machine) Mode() types.Mode {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.mode
}

// Notifier 返回观察者分发器
func (mc *Machine) Notifier() *notifier.Notifier {
	return mc.notifier
}

// Sessions 返回会话句柄持有者
func (mc *Machine) Sessions() *PeerSession {
	return mc.sessions
}

// ============================================================================
//                              外部操作
// ============================================================================

// SetMode 设置角色
//
// searching 状态下立即按新角色启停广播与浏览，其他状态在下次进入 searching 时生效。
func (mc *Machine) SetMode(mode types.Mode) error {
	if !mode.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidMode, mode)
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	if mc.mode == mode {
		return nil
	}
	mc.log.Debug("设置角色", "from", mc.mode, "to", mode)
	mc.mode = mode

	if mc.state != types.StateSearching {
		return nil
	}
	if !mode.Has(types.ModeServer) {
		mc.coord.StopAdvertising()
	}
	if !mode.Has(types.ModeClient) {
		mc.coord.StopBrowsing()
	}
	return mc.startRolesLocked(mode)
}

// Activate 从 inactive 进入 searching，其他状态下为空操作
func (mc *Machine) Activate() error {
	var ev pending
	mc.mu.Lock()
	var err error
	if mc.state == types.StateInactive {
		err = mc.enterSearchingLocked(mc.mode, &ev)
	} else {
		mc.log.Debug("已激活，忽略 Activate", "state", mc.state)
	}
	mc.mu.Unlock()

	ev.run()
	return err
}

// Deactivate 停止全部角色并拆除会话，任何状态下都可调用
func (mc *Machine) Deactivate() {
	mc.Transition(types.StateInactive)
}

// Transition 请求迁移到 to，非法迁移是空操作，返回是否发生了迁移
func (mc *Machine) Transition(to types.SessionState) bool {
	var ev pending
	mc.mu.Lock()
	from := mc.state
	mc.transitionLocked(to, &ev)
	changed := mc.state != from
	mc.mu.Unlock()

	ev.run()
	return changed
}

// ============================================================================
//                              状态迁移
// ============================================================================

func (mc *Machine) transitionLocked(to types.SessionState, ev *pending) {
	from := mc.state

	switch to {
	case types.StateSearching:
		if from != types.StateInactive && from != types.StateDisconnected {
			mc.ignore(from, to)
			return
		}
		roles := mc.mode
		if from == types.StateDisconnected {
			roles = types.ModeServer
		}
		if err := mc.enterSearchingLocked(roles, ev); err != nil {
			mc.log.Warn("进入 searching 失败", "from", from, "err", err)
		}

	case types.StateConnected:
		if from != types.StateSearching && from != types.StateDisconnected {
			mc.ignore(from, to)
			return
		}
		mc.coord.StopAdvertising()
		if mc.config.StopBrowsingOnConnect {
			mc.coord.StopBrowsing()
		}
		mc.setStateLocked(types.StateConnected, ev)

	case types.StateDisconnected:
		if from != types.StateConnected {
			mc.ignore(from, to)
			return
		}
		mc.setStateLocked(types.StateDisconnected, ev)
		mc.sessions.Teardown()
		mc.metrics.SetConnectedPeers(0)
		mc.recoverLocked(ev)

	case types.StateInactive:
		if from == types.StateInactive {
			mc.ignore(from, to)
			return
		}
		mc.coord.Reset()
		mc.sessions.Teardown()
		mc.metrics.SetConnectedPeers(0)
		mc.setStateLocked(types.StateInactive, ev)
		ev.add(mc.notifier.Clear)

	default:
		mc.ignore(from, to)
	}
}

// enterSearchingLocked 创建会话并启动 roles 中的角色
//
// 请求的角色全部启动失败时回滚并保持原状态。
func (mc *Machine) enterSearchingLocked(roles types.Mode, ev *pending) error {
	if !mc.mode.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidMode, mc.mode)
	}
	if _, err := mc.sessions.Session(); err != nil {
		return err
	}

	if err := mc.startRolesLocked(roles); err != nil {
		if mc.state == types.StateInactive {
			mc.coord.Reset()
			mc.sessions.Teardown()
		}
		return err
	}

	mc.setStateLocked(types.StateSearching, ev)
	return nil
}

// startRolesLocked 按 roles 启动广播与浏览，部分失败只记录日志
func (mc *Machine) startRolesLocked(roles types.Mode) error {
	var (
		requested int
		errs      []error
	)
	if roles.Has(types.ModeServer) {
		requested++
		if err := mc.coord.StartAdvertising(mc.config.ServiceType, mc.config.DiscoveryInfo); err != nil {
			errs = append(errs, err)
		}
	}
	if roles.Has(types.ModeClient) {
		requested++
		if err := mc.coord.StartBrowsing(mc.config.ServiceType); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	if len(errs) < requested {
		mc.log.Warn("部分发现角色启动失败", "err", errors.Join(errs...))
		return nil
	}
	return fmt.Errorf("%w: %w", ErrRolesFailed, errors.Join(errs...))
}

// recoverLocked 断开后的恢复
//
// 恢复后没有任何发现角色在运行时无法再被找到或重连，回到 inactive。
func (mc *Machine) recoverLocked(ev *pending) {
	if mc.mode.Has(types.ModeServer) {
		mc.transitionLocked(types.StateSearching, ev)
	} else if err := mc.resumeBrowsingLocked(); err != nil {
		mc.log.Warn("恢复浏览失败", "err", err)
	}

	if mc.state == types.StateDisconnected && !mc.coord.Advertising() && !mc.coord.Browsing() {
		mc.log.Warn("断开后恢复停滞，没有发现角色运行，回到 inactive")
		mc.transitionLocked(types.StateInactive, ev)
		return
	}
	ev.add(func() { mc.coord.Reconnect() })
}

// resumeBrowsingLocked 仅 client 位时浏览是唯一的重连途径
func (mc *Machine) resumeBrowsingLocked() error {
	if _, err := mc.sessions.Session(); err != nil {
		return err
	}
	return mc.coord.StartBrowsing(mc.config.ServiceType)
}

func (mc *Machine) setStateLocked(to types.SessionState, ev *pending) {
	from := mc.state
	mc.state = to
	mc.metrics.Transition(from, to)
	mc.log.Info("会话状态变更", "from", from, "to", to)
	ev.add(func() { mc.notifier.StateChanged(from, to) })
}

func (mc *Machine) ignore(from, to types.SessionState) {
	mc.log.Debug("忽略无效状态迁移", "from", from, "to", to)
}

// ============================================================================
//                              会话回调
// ============================================================================

// OnPeerStateChanged 传输层上报节点状态
func (mc *Machine) OnPeerStateChanged(peer types.PeerID, state types.PeerState) {
	var ev pending
	mc.mu.Lock()
	if mc.state == types.StateInactive {
		mc.mu.Unlock()
		return
	}

	ev.add(func() { mc.notifier.PeerStateChanged(peer, state) })

	switch state {
	case types.PeerConnected:
		mc.coord.Remember(peer)
		mc.metrics.SetConnectedPeers(len(mc.sessions.ConnectedPeers()))
		mc.transitionLocked(types.StateConnected, &ev)

	case types.PeerNotConnected:
		// 被拒绝或超时的邀请也会上报未连接，只有连接过的节点才在 PeerConnected 时记录
		remaining := len(mc.sessions.ConnectedPeers())
		mc.metrics.SetConnectedPeers(remaining)
		if mc.state == types.StateConnected && remaining == 0 {
			mc.transitionLocked(types.StateDisconnected, &ev)
		}
	}
	mc.mu.Unlock()

	ev.run()
}

// OnDataReceived 传输层上报数据
func (mc *Machine) OnDataReceived(peer types.PeerID, data []byte) {
	if mc.State() == types.StateInactive {
		return
	}
	mc.notifier.DataReceived(peer, data)
}

// OnResourceFinished 传输层上报资源接收结束
func (mc *Machine) OnResourceFinished(peer types.PeerID, name, localPath string, err error) {
	if mc.State() == types.StateInactive {
		return
	}
	mc.notifier.ResourceFinished(peer, name, localPath, err)
}

// ============================================================================
//                              协调器回调
// ============================================================================

func (mc *Machine) canAccept() bool {
	return mc.State() != types.StateInactive
}

func (mc *Machine) accepted(peer types.PeerID) {
	mc.log.Debug("邀请已接受", "peer", peer.ShortString())
	mc.Transition(types.StateConnected)
}
