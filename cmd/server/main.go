// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/Corphon/AnimeStoryboard/internal/app"
	"github.com/Corphon/AnimeStoryboard/internal/config"
	"github.com/Corphon/AnimeStoryboard/internal/di"
	"github.com/Corphon/AnimeStoryboard/internal/utils"
)

func main() {
	log.Println("🚀 启动 AnimeStoryboard 服务器...")

	// 1. 加载基础配置
	baseConfig, err := config.Load()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	log.Printf("✅ 基础配置加载完成，端口: %s", baseConfig.Port)

	// 2. 创建必要的目录
	if err := createDirectories(baseConfig); err != nil {
		log.Fatalf("创建目录失败: %v", err)
	}

	// 3. 初始化配置系统与日志
	if err := config.InitConfig(baseConfig.DataDir); err != nil {
		log.Fatalf("初始化配置系统失败: %v", err)
	}
	cfg := config.GetCurrentConfig()

	if err := utils.InitLogger(filepath.Join(cfg.LogDir, "server.log")); err != nil {
		log.Printf("⚠️ 日志文件不可用，仅输出到控制台: %v", err)
	}
	log.Println("✅ 配置系统初始化完成")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. 按依赖顺序初始化服务
	container := di.GetContainer()
	if err := app.InitServices(ctx, cfg, container); err != nil {
		log.Fatalf("初始化服务失败: %v", err)
	}
	log.Printf("✅ 服务初始化完成，服务数量: %d", len(container.GetNames()))

	application, err := app.New(cfg, container)
	if err != nil {
		log.Fatalf("❌ 创建应用失败: %v", err)
	}

	log.Printf("🌐 服务器启动在端口 %s", cfg.Port)
	log.Printf("🔗 访问地址: http://localhost:%s/health", cfg.Port)

	runErr := application.Run(ctx)
	if err := container.CloseAll(); err != nil {
		log.Printf("⚠️ 释放资源失败: %v", err)
	}
	if runErr != nil {
		log.Fatalf("❌ 服务器异常退出: %v", runErr)
	}
	log.Println("👋 服务器已关闭")
}

func createDirectories(cfg *config.Config) error {
	for _, dir := range []string{cfg.DataDir, cfg.LogDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("%s: %w", dir, err)
		}
	}
	return nil
}
