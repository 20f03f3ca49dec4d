// Package tcp 实现局域网 TCP 会话传输
//
// # 概述
//
// Transport 在一个 TCP 端口上监听，所有会话共享该端口。
// 会话之间通过邀请握手建立连接：
//
//  0. 拨号后先完成 Noise NN 握手（X25519、ChaChaPoly、SHA256），之后所有帧均加密
//  1. 邀请方发送 invite 帧（本地身份、服务类型、上下文）
//  2. 被邀请方按服务类型找到邀请处理器，等待应答
//  3. 接受时回复 accept 帧并把连接加入应答的会话，拒绝时回复 reject 帧并关闭
//
// 邀请处理器由发现层的广播者注册（见 internal/discovery/mdns）。
//
// # 帧格式
//
// 加密层之下每条 Noise 消息为 uint16(len) ciphertext。加密层之上：
//
//	varint(len(header)) header varint(len(body)) body
//
// header 是 protobuf 编码的 structpb.Struct，body 是原始字节
// （数据帧的载荷、资源帧的分块、邀请帧的上下文）。
//
// # 回调
//
// 每个会话有一个分发 goroutine，观察者回调按到达顺序串行执行，
// 且从不在核心调用的调用栈内触发。
//
// # 可靠性
//
// TCP 总是可靠有序，Unreliable 模式按可靠方式发送。
package tcp
