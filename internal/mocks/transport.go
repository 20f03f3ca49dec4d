package mocks

import (
	"slices"
	"sync"

	"github.com/dep2p/go-peerkit/pkg/interfaces"
	"github.com/dep2p/go-peerkit/pkg/types"
)

// ============================================================================
//                              MockTransport
// ============================================================================

// MockTransport 模拟 Transport 接口实现
type MockTransport struct {
	mu sync.Mutex

	// 可覆盖的方法
	CreateSessionFunc func(local types.PeerID) (interfaces.Session, error)

	// 调用记录
	Sessions []*MockSession
}

// NewMockTransport 创建 MockTransport
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// CreateSession 创建会话
func (m *MockTransport) CreateSession(local types.PeerID) (interfaces.Session, error) {
	if m.CreateSessionFunc != nil {
		return m.CreateSessionFunc(local)
	}
	s := NewMockSession(local)
	m.mu.Lock()
	m.Sessions = append(m.Sessions, s)
	m.mu.Unlock()
	return s, nil
}

// CreateCount 返回已创建的会话数
func (m *MockTransport) CreateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sessions)
}

// Last 返回最近创建的会话
func (m *MockTransport) Last() *MockSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Sessions) == 0 {
		return nil
	}
	return m.Sessions[len(m.Sessions)-1]
}

// ============================================================================
//                              MockSession
// ============================================================================

// SendCall Send 调用记录
type SendCall struct {
	Data  []byte
	Peers []types.PeerID
	Mode  types.Reliability
}

// ResourceCall SendResource 调用记录
type ResourceCall struct {
	Path       string
	Name       string
	Peer       types.PeerID
	OnComplete func(error)
}

// MockSession 模拟 Session 接口实现
type MockSession struct {
	mu sync.Mutex

	Local    types.PeerID
	Peers    []types.PeerID
	Observer interfaces.SessionObserver

	// 可覆盖的方法
	SendFunc         func(data []byte, peers []types.PeerID, mode types.Reliability) error
	SendResourceFunc func(path, name string, peer types.PeerID, onComplete func(error)) (interfaces.Progress, error)

	// 调用记录
	SendCalls       []SendCall
	ResourceCalls   []ResourceCall
	DisconnectCalls int
	ObserverSets    int
}

// NewMockSession 创建 MockSession
func NewMockSession(local types.PeerID) *MockSession {
	return &MockSession{Local: local}
}

// LocalPeer 返回本地身份
func (m *MockSession) LocalPeer() types.PeerID {
	return m.Local
}

// ConnectedPeers 返回已连接节点
func (m *MockSession) ConnectedPeers() []types.PeerID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.Peers)
}

// SetObserver 设置观察者
func (m *MockSession) SetObserver(o interfaces.SessionObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Observer = o
	m.ObserverSets++
}

// Send 记录发送
func (m *MockSession) Send(data []byte, peers []types.PeerID, mode types.Reliability) error {
	m.mu.Lock()
	m.SendCalls = append(m.SendCalls, SendCall{Data: slices.Clone(data), Peers: slices.Clone(peers), Mode: mode})
	fn := m.SendFunc
	m.mu.Unlock()
	if fn != nil {
		return fn(data, peers, mode)
	}
	return nil
}

// SendResource 记录资源发送
func (m *MockSession) SendResource(path, name string, peer types.PeerID, onComplete func(error)) (interfaces.Progress, error) {
	m.mu.Lock()
	m.ResourceCalls = append(m.ResourceCalls, ResourceCall{Path: path, Name: name, Peer: peer, OnComplete: onComplete})
	fn := m.SendResourceFunc
	m.mu.Unlock()
	if fn != nil {
		return fn(path, name, peer, onComplete)
	}
	return &MockProgress{Size: 1}, nil
}

// Disconnect 记录断开
func (m *MockSession) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DisconnectCalls++
	m.Peers = nil
}

// Sends 返回 Send 调用记录
func (m *MockSession) Sends() []SendCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.SendCalls)
}

// Disconnects 返回 Disconnect 调用次数
func (m *MockSession) Disconnects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.DisconnectCalls
}

// CurrentObserver 返回当前观察者
func (m *MockSession) CurrentObserver() interfaces.SessionObserver {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Observer
}

// FirePeerState 更新已连接列表并通知观察者
func (m *MockSession) FirePeerState(peer types.PeerID, state types.PeerState) {
	m.mu.Lock()
	m.Peers = slices.DeleteFunc(m.Peers, func(p types.PeerID) bool { return p == peer })
	if state == types.PeerConnected {
		m.Peers = append(m.Peers, peer)
	}
	o := m.Observer
	m.mu.Unlock()
	if o != nil {
		o.OnPeerStateChanged(peer, state)
	}
}

// FireData 通知观察者收到数据
func (m *MockSession) FireData(peer types.PeerID, data []byte) {
	if o := m.CurrentObserver(); o != nil {
		o.OnDataReceived(peer, data)
	}
}

// FireResource 通知观察者资源接收结束
func (m *MockSession) FireResource(peer types.PeerID, name, localPath string, err error) {
	if o := m.CurrentObserver(); o != nil {
		o.OnResourceFinished(peer, name, localPath, err)
	}
}

// ============================================================================
//                              MockProgress
// ============================================================================

// MockProgress 模拟 Progress 接口实现
type MockProgress struct {
	mu        sync.Mutex
	Done      int64
	Size      int64
	Cancelled bool
}

// Completed 已完成字节数
func (p *MockProgress) Completed() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Done
}

// Total 总字节数
func (p *MockProgress) Total() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Size
}

// Fraction 完成比例
func (p *MockProgress) Fraction() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Size <= 0 {
		return 0
	}
	return float64(p.Done) / float64(p.Size)
}

// Cancel 标记取消
func (p *MockProgress) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Cancelled = true
}
