// Package dispatch 提供串行回调队列
//
// 传输层用它把会话回调投递到独立 goroutine 上依次执行，
// 调用方永远不会在自己的调用栈里收到回调。
package dispatch

import "sync"

// Queue 无界串行队列
//
// 回调按投递顺序在同一个 goroutine 上执行。
// 回调内部可以再次投递，不会阻塞。
type Queue struct {
	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	mu    sync.Mutex
	items []func()
}

// New 创建队列并启动执行 goroutine
func New() *Queue {
	q := &Queue{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

// Post 投递回调，队列关闭后返回 false
func (q *Queue) Post(fn func()) bool {
	select {
	case <-q.done:
		return false
	default:
	}

	q.mu.Lock()
	q.items = append(q.items, fn)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// Close 关闭队列，尚未执行的回调被丢弃
//
// 可以多次调用，也可以在回调内部调用。
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
	})
}

// Closed 队列是否已关闭
func (q *Queue) Closed() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}

func (q *Queue) run() {
	for {
		select {
		case <-q.wake:
		case <-q.done:
			q.drop()
			return
		}

		for {
			fn, ok := q.next()
			if !ok {
				break
			}
			if q.Closed() {
				q.drop()
				return
			}
			fn()
		}
	}
}

func (q *Queue) next() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}
	fn := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return fn, true
}

func (q *Queue) drop() {
	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()
}
