// Package coordinator 驱动局域网发现与邀请握手
//
// # 模块概述
//
// Coordinator 持有至多一个广播器（Advertiser）与一个浏览器（Browser），
// 并把自己绑定为二者的观察者：
//
//   - 浏览器发现节点时，向其发出邀请，邀请携带本地传输会话
//   - 广播器收到邀请时，按排序键做决胜判断
//   - 浏览器丢失节点时，将其移出发现缓存
//
// # 决胜规则
//
// 双方同时互相发现时会各自发出邀请。为避免建立两条连接，
// 收到邀请的一方仅当本地排序键严格大于邀请方排序键时接受。
// 两端比较同一对键，结论互补，因此恰好一条邀请被接受。
//
// 本地未在浏览时不会产生竞争邀请，此时直接接受。
//
// # 角色句柄
//
// 启动角色前先检查句柄是否已存在，重复启动是空操作。
// 停止角色时先解除观察者绑定，再停止并清空句柄，
// 已停止句柄上的迟到回调不会被处理。
//
// # 重连
//
// Coordinator 记录最近连接或断开过的节点。会话恢复时，
// 对其中仍在发现缓存里的节点重新发起邀请。
package coordinator
