package tcp

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/flynn/noise"
)

// ============================================================================
//                              Noise 加密连接
// ============================================================================

const (
	// noisePrologue 绑定到握手哈希，版本不一致的两端握手失败
	noisePrologue = "peerkit/tcp/noise-nn/1"

	noiseMaxMessage   = 65535
	noiseTagSize      = 16
	noiseMaxPlaintext = noiseMaxMessage - noiseTagSize
)

var noiseSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)

// secureConn Noise 加密连接
//
// 每条 Noise 消息前缀 2 字节大端长度。写入超过单条消息上限时拆分为多条。
type secureConn struct {
	net.Conn

	send *noise.CipherState
	recv *noise.CipherState

	readMu  sync.Mutex
	writeMu sync.Mutex
	readBuf []byte
}

// secure 在 conn 上执行 Noise NN 握手
//
// NN 只使用临时密钥，提供加密与前向保密，不认证身份。
// 调用方负责设置握手期间的读写超时。
func secure(conn net.Conn, initiator bool) (*secureConn, error) {
	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite: noiseSuite,
		Pattern:     noise.HandshakeNN,
		Initiator:   initiator,
		Prologue:    []byte(noisePrologue),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	var cs1, cs2 *noise.CipherState
	if initiator {
		// -> e
		msg, _, _, err := hs.WriteMessage(nil, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
		}
		if err := writeNoiseMessage(conn, msg); err != nil {
			return nil, err
		}
		// <- e, ee
		msg, err = readNoiseMessage(conn)
		if err != nil {
			return nil, err
		}
		if _, cs1, cs2, err = hs.ReadMessage(nil, msg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
		}
	} else {
		msg, err := readNoiseMessage(conn)
		if err != nil {
			return nil, err
		}
		if _, _, _, err := hs.ReadMessage(nil, msg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
		}
		if msg, cs1, cs2, err = hs.WriteMessage(nil, nil); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
		}
		if err := writeNoiseMessage(conn, msg); err != nil {
			return nil, err
		}
	}
	if cs1 == nil || cs2 == nil {
		return nil, fmt.Errorf("%w: handshake incomplete", ErrHandshakeFailed)
	}

	// cs1 加密发起方到响应方的方向
	sc := &secureConn{Conn: conn}
	if initiator {
		sc.send, sc.recv = cs1, cs2
	} else {
		sc.send, sc.recv = cs2, cs1
	}
	return sc, nil
}

// Read 读取并解密
func (c *secureConn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for len(c.readBuf) == 0 {
		msg, err := readNoiseMessage(c.Conn)
		if err != nil {
			return 0, err
		}
		plain, err := c.recv.Decrypt(msg[:0], nil, msg)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
		}
		c.readBuf = plain
	}

	n := copy(p, c.readBuf)
	c.readBuf = c.readBuf[n:]
	return n, nil
}

// Write 加密并写出
func (c *secureConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	buf := make([]byte, 2, 2+noiseMaxMessage)
	written := 0
	for len(p) > 0 {
		n := min(len(p), noiseMaxPlaintext)
		out, err := c.send.Encrypt(buf[:2], nil, p[:n])
		if err != nil {
			return written, fmt.Errorf("encrypt: %w", err)
		}
		binary.BigEndian.PutUint16(out[:2], uint16(len(out)-2))
		if _, err := c.Conn.Write(out); err != nil {
			return written, err
		}
		written += n
		p = p[n:]
	}
	return written, nil
}

func writeNoiseMessage(w io.Writer, msg []byte) error {
	if len(msg) > noiseMaxMessage {
		return ErrFrameTooLarge
	}
	buf := make([]byte, 2+len(msg))
	binary.BigEndian.PutUint16(buf, uint16(len(msg)))
	copy(buf[2:], msg)
	_, err := w.Write(buf)
	return err
}

// readNoiseMessage 读取一条消息，连接在消息边界关闭时返回 io.EOF
func readNoiseMessage(r io.Reader) ([]byte, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	msg := make([]byte, binary.BigEndian.Uint16(lenBuf[:]))
	if _, err := io.ReadFull(r, msg); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return msg, nil
}
