// Package mocks 提供传输与发现接口的记录型模拟实现
//
// 模拟对象记录全部调用，并提供 Fire* 方法在测试中模拟传输层回调。
// Fire* 在调用方 goroutine 上同步投递，且投递时不持有模拟对象的锁。
package mocks
