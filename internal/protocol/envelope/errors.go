package envelope

import "errors"

var (
	// ErrMalformedEnvelope 字节序列不是合法信封
	//
	// 调用方应将其视为丢弃的消息，而非致命错误。
	ErrMalformedEnvelope = errors.New("envelope: malformed envelope")

	// ErrEmptyEvent 事件名为空
	ErrEmptyEvent = errors.New("envelope: empty event")

	// ErrInvalidEvent 事件名不是合法 UTF-8 文本
	ErrInvalidEvent = errors.New("envelope: event is not valid text")

	// ErrUnsupportedObject 对象无法序列化
	ErrUnsupportedObject = errors.New("envelope: unsupported object")
)
