package tcp

import (
	"context"
	"fmt"
	"net"
	"time"
)

// listen 在 addr 上创建 TCP 监听器
func listen(addr string) (*net.TCPListener, error) {
	lc := net.ListenConfig{KeepAlive: 15 * time.Second}

	l, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("监听失败: %w", err)
	}

	tcpListener, ok := l.(*net.TCPListener)
	if !ok {
		_ = l.Close()
		return nil, fmt.Errorf("不是 TCP 监听器")
	}
	return tcpListener, nil
}

// dial 建立出站连接并设置连接选项
func dial(addr string, timeout time.Duration) (net.Conn, error) {
	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 15 * time.Second,
	}
	conn, err := dialer.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("连接失败: %w", err)
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}
	return conn, nil
}
