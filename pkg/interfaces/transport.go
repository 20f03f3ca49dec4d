package interfaces

import "github.com/dep2p/go-peerkit/pkg/types"

// Transport 传输能力
//
// 负责为本地身份创建会话。会话的连接、加密、字节投递都由实现方负责。
type Transport interface {
	// CreateSession 为本地身份创建一个新会话
	CreateSession(local types.PeerID) (Session, error)
}

// Session 传输会话句柄
type Session interface {
	// LocalPeer 返回会话绑定的本地身份
	LocalPeer() types.PeerID

	// ConnectedPeers 返回当前已连接的节点
	ConnectedPeers() []types.PeerID

	// SetObserver 设置观察者，传 nil 表示解除
	SetObserver(observer SessionObserver)

	// Send 向指定节点发送字节
	Send(data []byte, peers []types.PeerID, mode types.Reliability) error

	// SendResource 向单个节点发送文件资源
	//
	// 立即返回进度句柄；传输完成（成功或失败）后调用 onComplete。
	SendResource(path, name string, peer types.PeerID, onComplete func(error)) (Progress, error)

	// Disconnect 断开所有节点并释放会话
	Disconnect()
}

// SessionObserver 会话观察者
type SessionObserver interface {
	// OnPeerStateChanged 节点连接状态变化
	OnPeerStateChanged(peer types.PeerID, state types.PeerState)

	// OnDataReceived 收到字节
	OnDataReceived(peer types.PeerID, data []byte)

	// OnResourceFinished 资源接收结束，err 非空表示失败
	OnResourceFinished(peer types.PeerID, name, localPath string, err error)
}

// Progress 资源传输进度
type Progress interface {
	// Completed 已传输字节数
	Completed() int64

	// Total 总字节数
	Total() int64

	// Fraction 完成比例 [0, 1]
	Fraction() float64

	// Cancel 取消传输
	Cancel()
}
