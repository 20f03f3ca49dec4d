package types

// DiscoveryInfo 广播者随服务一起发布的键值信息
type DiscoveryInfo map[string]string

// Clone 复制一份，避免调用方修改共享 map
func (d DiscoveryInfo) Clone() DiscoveryInfo {
	if d == nil {
		return nil
	}
	out := make(DiscoveryInfo, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
