// Package mem 实现进程内的传输与发现
//
// Network 同时实现 Transport 与 Discovery，所有节点共享同一个 Network 即可
// 互相发现、邀请和收发数据，无需真实网络。用于测试与单进程演示。
//
// # 行为
//
//   - 广播器启动时，同服务类型的运行中浏览器收到 OnPeerFound；停止时收到 OnPeerLost
//   - 邀请在 Network 的发现队列上异步投递给目标广播器
//   - 邀请超时由 clock 驱动，测试中可以使用模拟时钟
//   - 会话回调在每个会话自己的串行队列上异步执行
//   - 资源以文件复制的方式写入 ResourceDir
package mem
