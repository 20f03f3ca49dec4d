// Package peerkit 提供局域网内无中心的节点发现与消息收发
//
// # 快速开始
//
//	node, err := peerkit.New(
//	    peerkit.WithDisplayName("alice"),
//	    peerkit.WithServiceType("chat"),
//	    peerkit.WithObserver(peerkit.Observer{
//	        Connected: func(p peerkit.PeerID) { fmt.Println("已连接", p.Name) },
//	        ReceivedObject: func(p peerkit.PeerID, event string, object any) {
//	            fmt.Println(p.Name, event, object)
//	        },
//	    }),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer node.Close()
//
//	if err := node.Activate(); err != nil {
//	    log.Fatal(err)
//	}
//	_ = node.SendEvent("hello", map[string]any{"text": "hi"})
//
// # 会话状态
//
// 节点在 inactive、searching、connected、disconnected 之间迁移：
//
//	inactive ──Activate──▶ searching ──连接──▶ connected
//	    ▲                      ▲                   │
//	    │                      └──── server 恢复 ──┤ 全部断开
//	    └────────── Deactivate（任意状态）─── disconnected
//
// Mode 决定 searching 时运行的角色：client 浏览，server 广播，peer 两者都运行。
// 两个节点互相发现并同时邀请对方时，排序键较大的一方接受邀请。
//
// # 传输
//
// 默认使用 TCP 会话加 mDNS 发现（lan）。测试和同进程演示可以用
// WithMemNetwork 让多个节点共享一个进程内网络。
//
// # 回调
//
// Observer 的回调都是可选的，由传输层的投递 goroutine 调用，
// 同一节点的通知保持投递顺序。回调中可以安全地调用 Node 的任何方法，
// 包括 Deactivate 与 Close。
package peerkit
