package mocks

import (
	"slices"
	"sync"
	"time"

	"github.com/dep2p/go-peerkit/pkg/interfaces"
	"github.com/dep2p/go-peerkit/pkg/types"
)

// ============================================================================
//                              MockDiscovery
// ============================================================================

// MockDiscovery 模拟 Discovery 接口实现
type MockDiscovery struct {
	mu sync.Mutex

	// 非空时创建失败
	NewAdvertiserErr error
	NewBrowserErr    error

	// 调用记录
	Advertisers []*MockAdvertiser
	Browsers    []*MockBrowser
}

// NewMockDiscovery 创建 MockDiscovery
func NewMockDiscovery() *MockDiscovery {
	return &MockDiscovery{}
}

// NewAdvertiser 创建广播者
func (m *MockDiscovery) NewAdvertiser(local types.PeerID, serviceType string, info types.DiscoveryInfo) (interfaces.Advertiser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.NewAdvertiserErr != nil {
		return nil, m.NewAdvertiserErr
	}
	a := &MockAdvertiser{Local: local, ServiceType: serviceType, Info: info}
	m.Advertisers = append(m.Advertisers, a)
	return a, nil
}

// NewBrowser 创建浏览者
func (m *MockDiscovery) NewBrowser(local types.PeerID, serviceType string) (interfaces.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.NewBrowserErr != nil {
		return nil, m.NewBrowserErr
	}
	b := &MockBrowser{Local: local, ServiceType: serviceType}
	m.Browsers = append(m.Browsers, b)
	return b, nil
}

// AdvertiserCount 已创建的广播者数
func (m *MockDiscovery) AdvertiserCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Advertisers)
}

// BrowserCount 已创建的浏览者数
func (m *MockDiscovery) BrowserCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Browsers)
}

// LastAdvertiser 最近创建的广播者
func (m *MockDiscovery) LastAdvertiser() *MockAdvertiser {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Advertisers) == 0 {
		return nil
	}
	return m.Advertisers[len(m.Advertisers)-1]
}

// LastBrowser 最近创建的浏览者
func (m *MockDiscovery) LastBrowser() *MockBrowser {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Browsers) == 0 {
		return nil
	}
	return m.Browsers[len(m.Browsers)-1]
}

// ============================================================================
//                              MockAdvertiser
// ============================================================================

// MockAdvertiser 模拟 Advertiser 接口实现
type MockAdvertiser struct {
	mu sync.Mutex

	Local       types.PeerID
	ServiceType string
	Info        types.DiscoveryInfo
	Observer    interfaces.AdvertiserObserver
	StartErr    error

	// 调用记录
	StartCalls int
	StopCalls  int
}

// SetObserver 设置观察者
func (m *MockAdvertiser) SetObserver(o interfaces.AdvertiserObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Observer = o
}

// Start 记录启动
func (m *MockAdvertiser) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StartCalls++
	return m.StartErr
}

// Stop 记录停止
func (m *MockAdvertiser) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StopCalls++
}

// Stopped 是否调用过 Stop
func (m *MockAdvertiser) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.StopCalls > 0
}

// CurrentObserver 返回当前观察者
func (m *MockAdvertiser) CurrentObserver() interfaces.AdvertiserObserver {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Observer
}

// FireInvitation 模拟收到邀请，返回应答结果
//
// 未绑定观察者时视为拒绝。
func (m *MockAdvertiser) FireInvitation(peer types.PeerID, context []byte) (bool, interfaces.Session) {
	o := m.CurrentObserver()
	if o == nil {
		return false, nil
	}
	var (
		accepted bool
		session  interfaces.Session
	)
	o.OnInvitation(peer, context, func(accept bool, s interfaces.Session) {
		accepted, session = accept, s
	})
	return accepted, session
}

// ============================================================================
//                              MockBrowser
// ============================================================================

// InviteCall InvitePeer 调用记录
type InviteCall struct {
	Peer    types.PeerID
	Session interfaces.Session
	Context []byte
	Timeout time.Duration
}

// MockBrowser 模拟 Browser 接口实现
type MockBrowser struct {
	mu sync.Mutex

	Local       types.PeerID
	ServiceType string
	Observer    interfaces.BrowserObserver
	StartErr    error

	// 调用记录
	StartCalls  int
	StopCalls   int
	InviteCalls []InviteCall
}

// SetObserver 设置观察者
func (m *MockBrowser) SetObserver(o interfaces.BrowserObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Observer = o
}

// Start 记录启动
func (m *MockBrowser) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StartCalls++
	return m.StartErr
}

// Stop 记录停止
func (m *MockBrowser) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StopCalls++
}

// Stopped 是否调用过 Stop
func (m *MockBrowser) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.StopCalls > 0
}

// InvitePeer 记录邀请
func (m *MockBrowser) InvitePeer(peer types.PeerID, session interfaces.Session, context []byte, timeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InviteCalls = append(m.InviteCalls, InviteCall{Peer: peer, Session: session, Context: context, Timeout: timeout})
}

// Invites 返回邀请记录
func (m *MockBrowser) Invites() []InviteCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.InviteCalls)
}

// CurrentObserver 返回当前观察者
func (m *MockBrowser) CurrentObserver() interfaces.BrowserObserver {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Observer
}

// FirePeerFound 模拟发现节点
func (m *MockBrowser) FirePeerFound(peer types.PeerID, info types.DiscoveryInfo) {
	if o := m.CurrentObserver(); o != nil {
		o.OnPeerFound(peer, info)
	}
}

// FirePeerLost 模拟节点丢失
func (m *MockBrowser) FirePeerLost(peer types.PeerID) {
	if o := m.CurrentObserver(); o != nil {
		o.OnPeerLost(peer)
	}
}
