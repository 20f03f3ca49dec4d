// Package transport 按配置组装传输与发现能力
//
// 支持两种传输：
//
//   - lan：TCP 会话加 mDNS 发现，邀请经由 TCP 连接交换
//   - mem：进程内网络，供测试与同进程演示使用
//
// Stack 同时提供 pkgif.Transport 与 pkgif.Discovery，二者共享底层资源，
// 由 Stack.Close 一并释放。
//
// # Fx 模块集成
//
//	app := fx.New(
//	    fx.Supply(&transport.Config{Kind: transport.KindMem}),
//	    transport.Module,
//	    fx.Invoke(func(t pkgif.Transport, d pkgif.Discovery) {
//	        // 使用传输与发现
//	    }),
//	)
package transport
