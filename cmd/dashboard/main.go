package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"degen-dashboard-go/internal/config"
	"degen-dashboard-go/internal/dashboard"
	"degen-dashboard-go/internal/logger"
	"degen-dashboard-go/internal/models"
	"degen-dashboard-go/internal/settings"

	"github.com/joho/godotenv"
)

func main() {
	// --- 命令行参数定义 ---
	configPath := flag.String("config", "config.json", "path to the config file")
	mode := flag.String("mode", "serve", "running mode: serve or console")
	flag.Parse()

	// --- 初始化日志 (提前) ---
	// 为了在加载.env或配置时就能记录日志，先用默认配置初始化一个logger
	logger.InitLogger(models.LogConfig{Level: "info", Output: "console"})

	// --- 加载 .env 文件 ---
	err := godotenv.Load()
	if err != nil {
		logger.S().Info("未找到 .env 文件，将从系统环境变量中读取。")
	} else {
		logger.S().Info("成功从 .env 文件加载配置。")
	}

	// --- 加载 JSON 配置 ---
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.S().Fatalf("无法加载配置文件: %v", err)
	}

	// --- 使用文件中的配置重新初始化日志 ---
	logger.InitLogger(cfg.LogConfig)
	defer logger.S().Sync() // 确保在main函数退出时刷新所有缓冲的日志

	// --- 打开本地设置库 ---
	store, err := settings.NewBadgerStore(cfg.DBPath)
	if err != nil {
		logger.S().Fatalf("无法打开本地设置库: %v", err)
	}
	defer store.Close()

	// --- 组装仪表盘并恢复上次的会话 ---
	app := dashboard.NewApp(cfg, store, logger.L())
	if err := app.Start(); err != nil {
		logger.S().Fatalf("恢复会话失败: %v", err)
	}
	defer app.Close()

	// --- 根据模式执行 ---
	switch *mode {
	case "serve":
		runServeMode(cfg, app)
	case "console":
		runConsoleMode(cfg, app)
	default:
		logger.S().Fatalf("未知的运行模式: %s。请选择 'serve' 或 'console'。", *mode)
	}
}

// runServeMode 启动HTTP服务，为前端提供API和websocket推送
func runServeMode(cfg *models.Config, app *dashboard.App) {
	logger.S().Info("--- 启动仪表盘服务模式 ---")

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: app.Handler(),
	}

	go func() {
		logger.S().Infof("HTTP 服务监听于 %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.S().Fatalf("HTTP 服务异常退出: %v", err)
		}
	}()

	// 等待中断信号以实现优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.S().Info("收到退出信号，正在关闭...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.S().Warnf("HTTP 服务关闭超时: %v", err)
	}
	logger.S().Info("仪表盘已成功停止。")
}

// runConsoleMode 在终端周期性打印仪表盘快照。
// 该模式依赖之前通过服务模式登录并持久化的会话。
func runConsoleMode(cfg *models.Config, app *dashboard.App) {
	logger.S().Info("--- 启动控制台模式 ---")

	renderer := dashboard.NewConsoleRenderer(os.Stdout)
	ticker := time.NewTicker(time.Duration(cfg.PollIntervalSec) * time.Second)
	defer ticker.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	renderer.Render(app.Overview())
	for {
		select {
		case <-ticker.C:
			renderer.Render(app.Overview())
		case <-quit:
			logger.S().Info("收到退出信号，控制台模式结束。")
			return
		}
	}
}
