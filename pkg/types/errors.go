package types

import "errors"

var (
	// ErrEmptyPeerID 空节点 ID
	ErrEmptyPeerID = errors.New("empty peer ID")

	// ErrInvalidPeerID 无效的节点 ID
	ErrInvalidPeerID = errors.New("invalid peer ID")

	// ErrEmptyDisplayName 展示名为空
	ErrEmptyDisplayName = errors.New("empty display name")

	// ErrInvalidMode 无效的模式名称
	ErrInvalidMode = errors.New("invalid mode")
)
