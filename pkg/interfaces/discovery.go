package interfaces

import (
	"time"

	"github.com/dep2p/go-peerkit/pkg/types"
)

// Discovery 发现能力
//
// 创建广播者与浏览者。两者均与本地身份绑定，并以服务类型隔离。
type Discovery interface {
	// NewAdvertiser 创建广播者
	NewAdvertiser(local types.PeerID, serviceType string, info types.DiscoveryInfo) (Advertiser, error)

	// NewBrowser 创建浏览者
	NewBrowser(local types.PeerID, serviceType string) (Browser, error)
}

// Advertiser 广播者句柄
type Advertiser interface {
	// SetObserver 设置观察者，传 nil 表示解除
	SetObserver(observer AdvertiserObserver)

	// Start 开始广播
	Start() error

	// Stop 停止广播
	Stop()
}

// AdvertiserObserver 广播者观察者
type AdvertiserObserver interface {
	// OnInvitation 收到连接邀请，必须调用 respond 作答
	OnInvitation(peer types.PeerID, context []byte, respond InvitationResponder)
}

// InvitationResponder 邀请应答函数
//
// accept 为 true 时，连接加入 session。
type InvitationResponder func(accept bool, session Session)

// Browser 浏览者句柄
type Browser interface {
	// SetObserver 设置观察者，传 nil 表示解除
	SetObserver(observer BrowserObserver)

	// Start 开始浏览
	Start() error

	// Stop 停止浏览
	Stop()

	// InvitePeer 邀请节点加入 session
	//
	// 超时后由实现方放弃邀请，调用方不重试。
	InvitePeer(peer types.PeerID, session Session, context []byte, timeout time.Duration)
}

// BrowserObserver 浏览者观察者
type BrowserObserver interface {
	// OnPeerFound 发现节点
	OnPeerFound(peer types.PeerID, info types.DiscoveryInfo)

	// OnPeerLost 节点消失
	OnPeerLost(peer types.PeerID)
}
