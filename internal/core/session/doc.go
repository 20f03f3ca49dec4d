// Package session 实现传输会话句柄与会话状态机
//
// # PeerSession
//
// PeerSession 独占当前传输会话句柄。句柄按需创建（Session），
// 拆除（Teardown）时先解除观察者，再断开，最后清空句柄。
// 句柄上的回调经过绑定包装，句柄被替换后到达的迟到回调直接丢弃。
//
// 发送经由信封编解码器编码。未指定目标时发往全部已连接节点，
// 没有目标节点时不调用传输层，直接返回 nil。
//
// # Machine
//
// Machine 维护会话状态：
//
//	inactive → searching → connected → disconnected → searching ...
//	                 任意状态 → inactive（Deactivate）
//
// 非法迁移是空操作。所有状态变更在互斥锁内完成，
// 观察者通知在释放锁之后按顺序投递，因此可以在回调中调用 Deactivate。
//
// 断开后的恢复策略：
//   - 带 server 位：重新进入 searching 并恢复广播，仍在运行的浏览不重启
//   - 仅 client 位：重建会话，保持 disconnected，由协调器向已知节点重新邀请
package session
