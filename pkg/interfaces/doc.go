// Package interfaces 定义 PeerKit 的公共接口
//
// 本包只包含接口与回调记录，实现位于 internal/ 下。
//
// # 消费的能力（由外部实现）
//
//   - transport.go - Transport / Session / SessionObserver / Progress
//   - discovery.go - Discovery / Advertiser / Browser 及其观察者
//
// # 产出的能力（提供给应用）
//
//   - observer.go  - Observer 回调记录（各回调独立可选）
//
// # 回调约定
//
// 实现方必须异步投递回调：不得在核心调用 Transport/Discovery 方法的
// 调用栈内同步回调观察者。同一会话的回调应串行投递，以保证单节点内的顺序。
package interfaces
