package mdns

import (
	"fmt"
	"slices"
	"strings"

	"github.com/dep2p/go-peerkit/pkg/types"
)

const (
	txtID         = "id="
	txtName       = "name="
	txtInfoPrefix = "info."

	// maxTXTLen 单条 TXT 记录上限（RFC 1035）
	maxTXTLen = 255
)

// buildTXTRecords 构建 TXT 记录，超长条目被丢弃
func buildTXTRecords(local types.PeerID, info types.DiscoveryInfo) []string {
	txt := []string{txtID + local.String()}
	if name := txtName + local.Name; len(name) <= maxTXTLen {
		txt = append(txt, name)
	}

	keys := make([]string, 0, len(info))
	for k := range info {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		if k == "" || strings.Contains(k, "=") {
			continue
		}
		entry := txtInfoPrefix + k + "=" + info[k]
		if len(entry) > maxTXTLen {
			continue
		}
		txt = append(txt, entry)
	}
	return txt
}

// parseTXTRecords 从 TXT 记录解析身份与发现信息
func parseTXTRecords(fields []string) (types.PeerID, types.DiscoveryInfo, error) {
	var (
		key, name string
		info      types.DiscoveryInfo
	)
	for _, f := range fields {
		switch {
		case strings.HasPrefix(f, txtID):
			key = strings.TrimPrefix(f, txtID)
		case strings.HasPrefix(f, txtName):
			name = strings.TrimPrefix(f, txtName)
		case strings.HasPrefix(f, txtInfoPrefix):
			k, v, ok := strings.Cut(strings.TrimPrefix(f, txtInfoPrefix), "=")
			if !ok || k == "" {
				continue
			}
			if info == nil {
				info = make(types.DiscoveryInfo)
			}
			info[k] = v
		}
	}

	if key == "" {
		return types.EmptyPeerID, nil, ErrMissingID
	}
	peer, err := types.ParsePeerID(name, key)
	if err != nil {
		return types.EmptyPeerID, nil, fmt.Errorf("parse id %q: %w", key, err)
	}
	return peer, info, nil
}

// serviceName 由服务类型构造 mDNS 服务名
func serviceName(serviceType string) string {
	return "_" + serviceType + "._tcp"
}

// instanceName 服务实例名，同一服务下每个节点唯一
func instanceName(local types.PeerID) string {
	return "peerkit-" + local.String()
}
