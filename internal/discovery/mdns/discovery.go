package mdns

import (
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/hashicorp/mdns"

	"github.com/dep2p/go-peerkit/internal/core/transport/tcp"
	"github.com/dep2p/go-peerkit/internal/util/logger"
	pkgif "github.com/dep2p/go-peerkit/pkg/interfaces"
	"github.com/dep2p/go-peerkit/pkg/types"
)

// ============================================================================
//                              Discovery 实现
// ============================================================================

// Discovery mDNS 发现，邀请经由 TCP 传输
type Discovery struct {
	config    *Config
	transport *tcp.Transport
	log       *slog.Logger

	// lookup 执行一次 mDNS 查询，测试中替换
	lookup func(*mdns.QueryParam) error

	mu       sync.Mutex
	browsers map[*Browser]struct{}
	loops    sync.WaitGroup
}

// 确保实现接口
var _ pkgif.Discovery = (*Discovery)(nil)

// New 创建 mDNS 发现
func New(config *Config, transport *tcp.Transport) (*Discovery, error) {
	if transport == nil {
		return nil, ErrNoTransport
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Discovery{
		config:    config,
		transport: transport,
		log:       logger.OrDefault(config.Logger, "discovery/mdns"),
		lookup:    mdns.Query,
		browsers:  make(map[*Browser]struct{}),
	}, nil
}

// Close 停止仍在运行的浏览器并等待全部查询循环退出
func (d *Discovery) Close() error {
	d.mu.Lock()
	browsers := make([]*Browser, 0, len(d.browsers))
	for b := range d.browsers {
		browsers = append(browsers, b)
	}
	d.mu.Unlock()

	for _, b := range browsers {
		b.Stop()
	}
	d.loops.Wait()
	return nil
}

// track 登记启动的浏览器，并为其查询循环计数
func (d *Discovery) track(b *Browser) {
	d.mu.Lock()
	d.browsers[b] = struct{}{}
	d.mu.Unlock()
	d.loops.Add(1)
}

func (d *Discovery) untrack(b *Browser) {
	d.mu.Lock()
	delete(d.browsers, b)
	d.mu.Unlock()
}

// NewAdvertiser 创建广播器
func (d *Discovery) NewAdvertiser(local types.PeerID, serviceType string, info types.DiscoveryInfo) (pkgif.Advertiser, error) {
	return &Advertiser{
		d:           d,
		local:       local,
		serviceType: serviceType,
		info:        info.Clone(),
	}, nil
}

// NewBrowser 创建浏览器
func (d *Discovery) NewBrowser(local types.PeerID, serviceType string) (pkgif.Browser, error) {
	return newBrowser(d, local, serviceType), nil
}

func (d *Discovery) iface() *net.Interface {
	if d.config.Interface == "" {
		return nil
	}
	iface, err := net.InterfaceByName(d.config.Interface)
	if err != nil {
		d.log.Warn("找不到指定接口", "interface", d.config.Interface, "err", err)
		return nil
	}
	return iface
}

// ============================================================================
//                              本地地址
// ============================================================================

// localIPs 返回可广播的局域网地址
//
// 跳过回环、未启用与虚拟网卡。
func (d *Discovery) localIPs() ([]net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var ips []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		if d.config.Interface != "" && iface.Name != d.config.Interface {
			continue
		}
		if isVirtualInterface(iface.Name) {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip := ipNet.IP
			if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
				continue
			}
			if ip.To4() == nil && d.config.DisableIPv6 {
				continue
			}
			ips = append(ips, ip)
		}
	}
	return ips, nil
}

// virtualInterfacePrefixes 虚拟网卡前缀，其地址跨机通常不可达
var virtualInterfacePrefixes = []string{
	"docker", "br-", "veth", "cni", "flannel", "calico", "weave",
	"virbr", "lxcbr", "lxdbr", "utun", "tun", "tap", "vmnet", "vboxnet",
}

func isVirtualInterface(name string) bool {
	for _, p := range virtualInterfacePrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
