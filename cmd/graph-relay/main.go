// Package main 提供独立的复制图中继服务器
//
// 对等端经 websocket 接入，中继做叶子级 last-write-wins 合并
// 并把每次收敛扇出给所有在线客户端。它是纯转发方，不持有
// 身份、不解密内容。
//
// 使用方法:
//
//	go run main.go -addr :7420
//
// 指标经同一端口的 /metrics 暴露（Prometheus 文本格式）。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dechat/go-dechat/internal/graph/relayhub"
)

func main() {
	if err := run(); err != nil {
		fmt.Printf("❌ 错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 解析命令行参数
	addr := flag.String("addr", ":7420", "监听地址")
	maxFrame := flag.Int64("max-frame", 1<<20, "单帧字节上限")
	writeTimeout := flag.Duration("write-timeout", 10*time.Second, "慢客户端写超时")
	flag.Parse()

	fmt.Println("╔══════════════════════════════════════════════════════╗")
	fmt.Println("║            DeChat Graph Relay                        ║")
	fmt.Println("╚══════════════════════════════════════════════════════╝")
	fmt.Println()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 捕获中断信号
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-signalCh
		fmt.Printf("\n收到信号 %v，正在关闭...\n", sig)
		cancel()
	}()

	// 创建中继与指标
	registry := prometheus.NewRegistry()
	hub := relayhub.New(registry,
		relayhub.WithMaxFrameSize(*maxFrame),
		relayhub.WithWriteTimeout(*writeTimeout),
	)

	mux := http.NewServeMux()
	mux.Handle("/graph", hub)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{Addr: *addr, Handler: mux}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	fmt.Printf("中继已启动，监听 %s\n", *addr)
	fmt.Println("客户端接入路径: /graph")
	fmt.Println("指标路径:       /metrics")
	fmt.Println("按 Ctrl+C 停止服务器")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	// 启动统计报告
	go reportStats(ctx, hub)

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("中继服务失败: %w", err)
		}
	case <-ctx.Done():
	}

	fmt.Println("\n正在关闭中继...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = hub.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("关闭失败: %w", err)
	}
	fmt.Println("再见! 👋")
	return nil
}

// reportStats 定期报告统计信息
func reportStats(ctx context.Context, hub *relayhub.Hub) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Printf("[Stats] 在线客户端: %d，叶子数: %d\n", hub.ClientCount(), hub.LeafCount())
		}
	}
}
