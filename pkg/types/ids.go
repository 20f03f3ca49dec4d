package types

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"

	"github.com/mr-tron/base58"
)

// ============================================================================
//                              PeerID - 节点身份
// ============================================================================

// KeySize PeerID 排序键长度
const KeySize = 32

// PeerID 节点身份
//
// Name 为展示名，Key 为排序键。Key 由展示名与进程内随机数一起哈希得到，
// 因此同名的两个进程实例也拥有不同的身份。
//
// PeerID 是值类型，可直接用 == 比较，也可作为 map 键。
// 排序只看 Key（见 Compare），与 Name 无关。
type PeerID struct {
	Name string
	Key  [KeySize]byte
}

// EmptyPeerID 空身份
var EmptyPeerID PeerID

// NewPeerID 为展示名生成新的进程内唯一身份
func NewPeerID(displayName string) (PeerID, error) {
	if displayName == "" {
		return EmptyPeerID, ErrEmptyDisplayName
	}

	var nonce [16]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return EmptyPeerID, err
	}

	h := sha256.New()
	h.Write([]byte(displayName))
	h.Write(nonce[:])

	id := PeerID{Name: displayName}
	copy(id.Key[:], h.Sum(nil))
	return id, nil
}

// PeerIDFromKey 由展示名和已知排序键构造身份（用于解析远端身份）
func PeerIDFromKey(displayName string, key []byte) (PeerID, error) {
	if len(key) != KeySize {
		return EmptyPeerID, ErrInvalidPeerID
	}
	id := PeerID{Name: displayName}
	copy(id.Key[:], key)
	return id, nil
}

// ParsePeerID 从 Base58 排序键和展示名解析身份
func ParsePeerID(displayName, encodedKey string) (PeerID, error) {
	if encodedKey == "" {
		return EmptyPeerID, ErrEmptyPeerID
	}
	key, err := base58.Decode(encodedKey)
	if err != nil {
		return EmptyPeerID, ErrInvalidPeerID
	}
	return PeerIDFromKey(displayName, key)
}

// String 返回排序键的 Base58 表示
func (id PeerID) String() string {
	if id.IsEmpty() {
		return ""
	}
	return base58.Encode(id.Key[:])
}

// ShortString 返回用于日志的简短标识
func (id PeerID) ShortString() string {
	s := id.String()
	if len(s) > 8 {
		s = s[:8]
	}
	if id.Name == "" {
		return s
	}
	return id.Name + "/" + s
}

// IsEmpty 检查身份是否为空
func (id PeerID) IsEmpty() bool {
	return id.Key == EmptyPeerID.Key
}

// Compare 按排序键比较两个身份
//
// 返回 -1、0、1。比较是全序的，且只依赖双方的 Key，
// 任意两端对同一对身份计算得到相同结论。
func (id PeerID) Compare(other PeerID) int {
	return bytes.Compare(id.Key[:], other.Key[:])
}

// Greater 当本身份的排序键大于 other 时返回 true
func (id PeerID) Greater(other PeerID) bool {
	return id.Compare(other) > 0
}
