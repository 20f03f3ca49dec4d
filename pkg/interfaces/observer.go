package interfaces

import "github.com/dep2p/go-peerkit/pkg/types"

// Observer 应用观察者
//
// 每个回调都是可选的，为 nil 时直接忽略。
type Observer struct {
	// Connecting 正在与节点建立连接
	Connecting func(peer types.PeerID)

	// Connected 节点已连接
	Connected func(peer types.PeerID)

	// Disconnected 节点已断开
	Disconnected func(peer types.PeerID)

	// ReceivedData 收到原始字节，每条入站数据都会触发
	ReceivedData func(peer types.PeerID, data []byte)

	// ReceivedObject 收到可解码的信封
	ReceivedObject func(peer types.PeerID, event string, object any)

	// ReceivedResource 资源接收成功
	ReceivedResource func(peer types.PeerID, name, localPath string)

	// ResourceFailed 资源接收失败
	ResourceFailed func(peer types.PeerID, name string, err error)

	// StateChanged 会话状态迁移
	StateChanged func(from, to types.SessionState)
}

// EventHandler 按事件名注册的处理器
type EventHandler func(peer types.PeerID, object any)
