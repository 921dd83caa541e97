// Package main 提供独立的 msgrpc 中继服务
//
// 中继接受客户端以名称注册，并把发往 "relay#name/path" 的消息转发到注册连接，
// 响应与取消沿原路返回。
//
// 使用方法:
//
//	msgrpc-relay -listen tcp://0.0.0.0:4510 -introspect 127.0.0.1:6060
//	msgrpc-relay -config relay.yaml
//	MSGRPC_RELAY_MAX_PENDING=10000 msgrpc-relay
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dep2p/go-msgrpc"
	"github.com/dep2p/go-msgrpc/config"
	"github.com/dep2p/go-msgrpc/internal/util/logger"
)

var log = logger.Logger("msgrpc-relay")

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ 错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "配置文件路径（YAML/JSON/TOML）")
	listen := flag.String("listen", "", "监听地址，逗号分隔（覆盖配置）")
	introspectAddr := flag.String("introspect", "", "启用自省服务并监听该地址")
	stats := flag.Duration("stats", 0, "统计输出间隔（覆盖配置，0 使用配置值）")
	dump := flag.Bool("dump", true, "退出时输出连接池与中继表")
	showVersion := flag.Bool("version", false, "显示版本")
	flag.Parse()

	if *showVersion {
		fmt.Println("msgrpc-relay", msgrpc.Version)
		return nil
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *listen != "" {
		cfg.Listen.Addrs = splitList(*listen)
	}
	if *stats > 0 {
		cfg.Diagnostics.StatsInterval = config.Duration(*stats)
	}

	opts := []msgrpc.Option{msgrpc.WithConfig(cfg), msgrpc.WithRelay(true)}
	if *introspectAddr != "" {
		opts = append(opts, msgrpc.WithIntrospect(*introspectAddr))
	}

	node, err := msgrpc.New(opts...)
	if err != nil {
		return fmt.Errorf("创建中继节点失败: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := node.Start(ctx); err != nil {
		return fmt.Errorf("启动中继节点失败: %w", err)
	}

	printServerInfo(node)

	if interval := node.Config().Diagnostics.StatsInterval.Duration(); interval > 0 {
		go reportStats(ctx, node, interval)
	}

	<-ctx.Done()
	fmt.Println("\n正在关闭中继服务...")

	if *dump {
		if err := node.WriteDump(os.Stdout); err != nil {
			log.Warn("输出状态失败", "error", err)
		}
	}
	return node.Close()
}

// printServerInfo 打印服务信息
func printServerInfo(node *msgrpc.Node) {
	info := node.Dump()
	fmt.Println("╔══════════════════════════════════════════════════════╗")
	fmt.Printf("║ msgrpc relay %s\n", msgrpc.Version)
	fmt.Printf("║ 服务 ID: %s\n", info.Service.ID)
	fmt.Println("║ 监听地址:")
	for _, addr := range node.ListenAddrs() {
		fmt.Printf("║   • %s\n", addr)
	}
	if addr := node.IntrospectAddr(); addr != "" {
		fmt.Printf("║ 自省服务: http://%s/debug/introspect\n", addr)
	}
	fmt.Println("╚══════════════════════════════════════════════════════╝")
	fmt.Println("客户端以 <监听地址>#<名称> 访问已注册的服务，按 Ctrl+C 停止")
}

// reportStats 定期输出统计
func reportStats(ctx context.Context, node *msgrpc.Node, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info := node.Dump()
			attrs := []any{"connections", info.Service.Connections, "pools", len(info.Service.Pools)}
			if r := info.Relay; r != nil {
				attrs = append(attrs,
					"routes", len(r.Routes),
					"pending", r.Limiter.Pending,
					"forwarded", r.Forwarded,
					"rejected", r.Rejected)
			}
			log.Info("中继统计", attrs...)
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
