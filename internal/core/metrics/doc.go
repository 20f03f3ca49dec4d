// Package metrics 提供 PeerKit 核心的 Prometheus 指标
//
// 指标全部以 peerkit_ 为前缀：
//
//   - peerkit_session_transitions_total{from,to} 状态迁移次数
//   - peerkit_invitations_total{result}          邀请（sent/accepted/rejected）
//   - peerkit_envelopes_total{direction}         信封（sent/received/malformed）
//   - peerkit_send_failures_total                发送失败
//   - peerkit_resources_total{result}            资源接收（received/failed）
//   - peerkit_connected_peers                    当前已连接节点数
//   - peerkit_data_bytes_total{direction}        数据字节（in/out）
//
// 另有按节点统计字节数与速率的 Traffic，供 Node 查询。
//
// # 使用
//
//	reg := prometheus.NewRegistry()
//	m := metrics.New(reg)
//	m.Transition(types.StateInactive, types.StateSearching)
//
// *Metrics 的所有方法对 nil 接收者安全，组件可以不注入指标。
// 同一 Registerer 多次调用 New 会复用已注册的收集器。
package metrics
