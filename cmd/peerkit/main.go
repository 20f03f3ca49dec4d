// Package main 提供 peerkit 命令行入口
//
// 启动一个局域网节点，把标准输入的每一行作为 "message" 事件发送给
// 已连接节点，并打印收到的事件与连接变化。
//
// 使用方法：
//
//	# 零配置启动
//	go run ./cmd/peerkit --name alice --service chat
//
//	# 使用配置文件，并在 :9100 暴露 Prometheus 指标
//	go run ./cmd/peerkit --config peerkit.json --metrics :9100
//
//	# 发送文件：在输入行中使用 /send <路径>
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dep2p/go-peerkit"
	"github.com/dep2p/go-peerkit/config"
	"github.com/dep2p/go-peerkit/internal/util/logger"
)

var log = logger.Logger("cmd")

// messageEvent 聊天消息的事件名
const messageEvent = "message"

// ═══════════════════════════════════════════════════════════════════════════
// 命令行参数
// ═══════════════════════════════════════════════════════════════════════════
//
//   命令行参数：这次运行的覆盖
//   环境变量：PEERKIT_* 前缀，优先级低于命令行
//   JSON 配置文件：节点的固定配置
//
// ═══════════════════════════════════════════════════════════════════════════
var (
	configFile  = flag.String("config", "", "配置文件路径")
	name        = flag.String("name", "", "展示名（默认取主机名）")
	service     = flag.String("service", "", "服务类型，1-15 个小写字母、数字或连字符")
	mode        = flag.String("mode", "", "角色：client、server、peer")
	listenAddr  = flag.String("listen", "", "TCP 监听地址，例如 :4100")
	resourceDir = flag.String("resource-dir", "", "入站资源落盘目录")
	iface       = flag.String("interface", "", "限定 mDNS 使用的网卡")
	tieBreak    = flag.String("tie-break", "", "邀请决胜策略：strict、browsing")
	metricsAddr = flag.String("metrics", "", "Prometheus 指标监听地址，为空时不启用")
	logFile     = flag.String("log", "", "日志文件路径，为空时输出到 stderr")
	printConfig = flag.Bool("print-config", false, "打印最终配置后退出")
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("打开日志文件失败: %w", err)
		}
		defer func() { _ = f.Close() }()
		logger.SetOutput(f)
	}

	cfg, err := buildConfig()
	if err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}
	if *printConfig {
		data, err := cfg.ToJSON()
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	opts := []peerkit.Option{
		peerkit.WithConfig(cfg),
		peerkit.WithObserver(printer(os.Stdout)),
	}

	if *metricsAddr != "" {
		reg := prometheus.NewRegistry()
		opts = append(opts, peerkit.WithMetricsRegistry(reg))
		srv := serveMetrics(*metricsAddr, reg)
		defer func() { _ = srv.Close() }()
	}

	node, err := peerkit.New(opts...)
	if err != nil {
		return fmt.Errorf("创建节点失败: %w", err)
	}
	defer func() { _ = node.Close() }()

	if err := node.Activate(); err != nil {
		return fmt.Errorf("激活失败: %w", err)
	}

	fmt.Printf("节点 %s 已启动（服务 %s，角色 %s），按 Ctrl+C 退出\n",
		node.LocalPeer().ShortString(), cfg.Discovery.ServiceType, node.Mode())

	go readInput(node, os.Stdin)
	waitForSignal()

	fmt.Println("\n正在关闭节点...")
	return nil
}

// buildConfig 构建配置
//
// 优先级（从高到低）：命令行参数、环境变量、配置文件、默认值。
func buildConfig() (*config.Config, error) {
	cfg := config.NewConfig()
	if *configFile != "" {
		loaded, err := config.LoadFile(*configFile)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败: %w", err)
		}
		cfg = loaded
	}

	if err := applyEnvOverrides(cfg, os.Getenv); err != nil {
		return nil, err
	}
	if err := applyFlags(cfg); err != nil {
		return nil, err
	}

	if cfg.Identity.DisplayName == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "peerkit"
		}
		cfg.Identity.DisplayName = host
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFlags 应用显式设置的命令行参数
func applyFlags(cfg *config.Config) error {
	var err error
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "name":
			cfg.Identity.DisplayName = *name
		case "service":
			cfg.Discovery.ServiceType = *service
		case "mode":
			m, perr := peerkit.ParseMode(*mode)
			if perr != nil {
				err = perr
				return
			}
			cfg.Discovery.Mode = m
		case "listen":
			cfg.Transport.Kind = config.TransportLAN
			cfg.Transport.ListenAddr = *listenAddr
		case "resource-dir":
			cfg.Transport.ResourceDir = *resourceDir
		case "interface":
			cfg.Transport.Interface = *iface
		case "tie-break":
			tb, perr := peerkit.ParseTieBreak(*tieBreak)
			if perr != nil {
				err = perr
				return
			}
			cfg.Discovery.TieBreak = tb
		}
	})
	return err
}

// ═══════════════════════════════════════════════════════════════════════════
// 输入与输出
// ═══════════════════════════════════════════════════════════════════════════

// printer 把节点事件打印到 w
func printer(w io.Writer) peerkit.Observer {
	return peerkit.Observer{
		Connected: func(peer peerkit.PeerID) {
			fmt.Fprintf(w, "[+] %s 已连接\n", peer.Name)
		},
		Disconnected: func(peer peerkit.PeerID) {
			fmt.Fprintf(w, "[-] %s 已断开\n", peer.Name)
		},
		ReceivedObject: func(peer peerkit.PeerID, event string, object any) {
			if event == messageEvent {
				fmt.Fprintf(w, "<%s> %v\n", peer.Name, object)
				return
			}
			fmt.Fprintf(w, "[%s] %s: %v\n", event, peer.Name, object)
		},
		ReceivedResource: func(peer peerkit.PeerID, name, localPath string) {
			fmt.Fprintf(w, "[file] %s 发来 %s，保存在 %s\n", peer.Name, name, localPath)
		},
		ResourceFailed: func(peer peerkit.PeerID, name string, err error) {
			fmt.Fprintf(w, "[file] 接收 %s 的 %s 失败: %v\n", peer.Name, name, err)
		},
		StateChanged: func(from, to peerkit.SessionState) {
			log.Debug("会话状态变更", "from", from, "to", to)
		},
	}
}

// readInput 逐行读取输入并发送
func readInput(node *peerkit.Node, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := handleLine(node, line); err != nil {
			fmt.Fprintf(os.Stderr, "发送失败: %v\n", err)
		}
	}
}

func handleLine(node *peerkit.Node, line string) error {
	switch {
	case line == "/peers":
		for _, p := range node.ConnectedPeers() {
			fmt.Printf("  %s\n", p.ShortString())
		}
		return nil

	case strings.HasPrefix(line, "/send "):
		path := strings.TrimSpace(strings.TrimPrefix(line, "/send "))
		_, err := node.SendResource(path, "", func(peer peerkit.PeerID, err error) {
			if err != nil {
				fmt.Fprintf(os.Stderr, "发送 %s 给 %s 失败: %v\n", path, peer.Name, err)
			}
		})
		return err

	default:
		return node.SendEvent(messageEvent, line)
	}
}

// serveMetrics 在 addr 上暴露 /metrics
func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("指标服务退出", "addr", addr, "err", err)
		}
	}()
	return srv
}

// waitForSignal 等待退出信号
func waitForSignal() {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals
}
