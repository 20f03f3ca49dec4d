// Package envelope 实现应用消息信封的编解码
//
// 每条应用层消息在发送前都被包装为信封：
//
//	{event: string, object?: any}
//
// # 线格式
//
// 信封编码为 google.protobuf.Struct，字段固定为 "event"（字符串）
// 与可选的 "object"（google.protobuf.Value）。使用 protobuf 的确定性序列化。
//
// # 对象取值范围
//
// object 可以是 nil、bool、string、float64、[]any、map[string]any，
// 以及 float32、[]byte 与全部有符号、无符号整数类型，容器可任意嵌套。
// 其余类型（结构体、类型化切片或映射、指针等）由 Encode 返回 ErrUnsupportedObject，
// 调用方需先转换为上述类型。
//
// 整数、float32 与 []byte 以单字段 Struct 携带类型标签，
// 整数以十进制字符串传输，不经过 double，因此任意 int64、uint64 都能精确还原。
// map[string]any 同样包装一层，与标签值区分。
//
// 在取值范围内，往返保持值与动态类型完全一致：
//
//	Decode(Encode(e, o)) == Envelope{Event: e, Object: o}
package envelope
