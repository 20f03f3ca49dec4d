package notifier

import "errors"

// ErrResourceTransfer 资源传输以错误结束
//
// ResourceFailed 收到的错误同时包装本错误和传输层的原始错误。
var ErrResourceTransfer = errors.New("notifier: resource transfer failed")
