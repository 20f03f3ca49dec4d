// Package mdns 实现基于 mDNS 的局域网发现
//
// 广播器以 hashicorp/mdns 服务器发布 `_<serviceType>._tcp` 服务实例，
// TXT 记录携带节点身份与发现信息；浏览器周期性查询同一服务，
// 超过 PeerTTL 未再出现的节点以 OnPeerLost 上报。
//
// 邀请走 TCP 传输：广播器在传输上注册该服务类型的邀请处理器，
// 浏览器拨号对端在 mDNS 记录中发布的地址与端口。
//
// # TXT 记录
//
//	id=<Base58 排序键>
//	name=<展示名>
//	info.<key>=<value>   每个发现信息条目一条
//
// 单条记录超过 255 字节时丢弃。
package mdns
