package mdns

import (
	"fmt"
	"sync"

	"github.com/hashicorp/mdns"

	pkgif "github.com/dep2p/go-peerkit/pkg/interfaces"
	"github.com/dep2p/go-peerkit/pkg/types"
)

// ============================================================================
//                              Advertiser 实现
// ============================================================================

// Advertiser mDNS 广播器
//
// 运行期间在 TCP 传输上接管该服务类型的入站邀请。
type Advertiser struct {
	d           *Discovery
	local       types.PeerID
	serviceType string
	info        types.DiscoveryInfo

	mu       sync.Mutex
	observer pkgif.AdvertiserObserver
	server   *mdns.Server
}

// 确保实现接口
var _ pkgif.Advertiser = (*Advertiser)(nil)

// SetObserver 设置观察者
func (a *Advertiser) SetObserver(o pkgif.AdvertiserObserver) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.observer = o
}

// Start 注册邀请处理器并发布服务，已启动时为空操作
func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		return nil
	}

	ips, err := a.d.localIPs()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrServerStart, err)
	}
	if len(ips) == 0 {
		return ErrNoLocalAddress
	}

	port := a.d.transport.Port()
	svc, err := mdns.NewMDNSService(
		instanceName(a.local),
		serviceName(a.serviceType),
		a.d.config.Domain,
		"",
		port,
		ips,
		buildTXTRecords(a.local, a.info),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrServerStart, err)
	}

	a.d.transport.SetInvitationHandler(a.serviceType, a.handleInvitation)

	server, err := mdns.NewServer(&mdns.Config{Zone: svc, Iface: a.d.iface()})
	if err != nil {
		a.d.transport.SetInvitationHandler(a.serviceType, nil)
		return fmt.Errorf("%w: %v", ErrServerStart, err)
	}
	a.server = server

	a.d.log.Info("mDNS 广播已启动",
		"service", serviceName(a.serviceType),
		"port", port,
		"ips", len(ips))
	return nil
}

// Stop 停止发布并注销邀请处理器
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server == nil {
		return
	}
	if err := a.server.Shutdown(); err != nil {
		a.d.log.Debug("关闭 mDNS 服务器出错", "err", err)
	}
	a.server = nil
	a.d.transport.SetInvitationHandler(a.serviceType, nil)
	a.d.log.Info("mDNS 广播已停止", "service", serviceName(a.serviceType))
}

// handleInvitation 把 TCP 入站邀请交给观察者，没有观察者时拒绝
func (a *Advertiser) handleInvitation(peer types.PeerID, context []byte, respond pkgif.InvitationResponder) {
	a.mu.Lock()
	o := a.observer
	a.mu.Unlock()

	if o == nil {
		respond(false, nil)
		return
	}
	o.OnInvitation(peer, context, respond)
}
