// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/Corphon/CineGenieMCP/internal/api"
	"github.com/Corphon/CineGenieMCP/internal/config"
	"github.com/Corphon/CineGenieMCP/internal/di"
	"github.com/Corphon/CineGenieMCP/internal/models"
	"github.com/Corphon/CineGenieMCP/internal/services"
	"github.com/Corphon/CineGenieMCP/internal/storage"
	"github.com/Corphon/CineGenieMCP/internal/store"
	"github.com/Corphon/CineGenieMCP/internal/utils"

	// 注册内置生成提供者
	_ "github.com/Corphon/CineGenieMCP/internal/gen/providers/google"
)

// App 应用程序实例
type App struct {
	config   *config.AppConfig
	server   *http.Server
	stopChan chan os.Signal
}

var (
	instance *App
	appOnce  sync.Once
)

// GetApp 获取应用单例
func GetApp() *App {
	appOnce.Do(func() {
		instance = &App{
			stopChan: make(chan os.Signal, 1),
		}
	})
	return instance
}

// GetConfig 返回应用配置
func (a *App) GetConfig() *config.AppConfig {
	return a.config
}

// GetDIContainer 获取依赖注入容器
func GetDIContainer() *di.Container {
	return di.GetContainer()
}

// IsDebugMode 检查是否处于调试模式
func IsDebugMode() bool {
	if instance == nil || instance.config == nil {
		return false
	}
	return instance.config.DebugMode
}

// initLogger 初始化日志系统，日志文件按日期命名
func initLogger(logDir string) error {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("创建日志目录失败: %w", err)
	}

	logFile := filepath.Join(logDir, fmt.Sprintf("cinegenie_%s.log", time.Now().Format("2006-01-02")))
	return utils.InitLogger(logFile)
}

// Initialize 初始化应用：配置、日志、服务
func Initialize() error {
	baseConfig, err := config.Load()
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}

	if err := config.InitConfig(baseConfig.DataDir); err != nil {
		return fmt.Errorf("初始化配置系统失败: %w", err)
	}

	cfg := config.GetCurrentConfig()
	GetApp().config = cfg

	if err := initLogger(cfg.LogDir); err != nil {
		return fmt.Errorf("初始化日志系统失败: %w", err)
	}

	if err := InitServices(); err != nil {
		return fmt.Errorf("初始化服务失败: %w", err)
	}

	return nil
}

// InitServices 按依赖顺序初始化所有服务并注册到容器
//
// 顺序：存储层 → 文档/资产存储 → 通知器 → 剧本服务 →
// 提供者解析器 → 资产/生成/导出/统计服务 → 资产通知中心
func InitServices() error {
	cfg := config.GetCurrentConfig()

	container := di.GetContainer()

	fileStorage, err := storage.NewFileStorage(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("初始化文件存储失败: %w", err)
	}
	container.Register("storage", fileStorage)

	documentStore := store.NewDocumentStore(fileStorage)
	container.Register("documents", documentStore)

	imageStore := store.NewBlobStore(fileStorage, models.AssetKindImage)
	container.Register("images", imageStore)

	videoStore := store.NewBlobStore(fileStorage, models.AssetKindVideo)
	container.Register("videos", videoStore)

	notifier := services.NewNotifier()
	container.Register("notifier", notifier)

	scriptService := services.NewScriptService(documentStore, imageStore, videoStore, notifier)
	container.Register("script", scriptService)

	resolver := &services.ConfigProviderResolver{ProviderName: "google"}
	container.Register("resolver", resolver)

	assetService := services.NewAssetService(
		scriptService, documentStore, imageStore, videoStore, notifier, resolver)
	container.Register("asset", assetService)

	generationService := services.NewGenerationService(scriptService, resolver)
	container.Register("generation", generationService)

	exportService := services.NewExportService(documentStore, imageStore, videoStore)
	container.Register("export", exportService)

	statsService := services.NewStatsService(documentStore, imageStore, videoStore)
	container.Register("stats", statsService)

	// 资产通知中心订阅资产变更，向WebSocket客户端推送
	assetsHub := api.NewAssetsHub()
	notifier.Subscribe(assetsHub)
	container.Register("assets_hub", assetsHub)

	return nil
}

// Run 启动HTTP服务器并阻塞到收到停止信号
func Run(router http.Handler) error {
	app := GetApp()

	port := "8080"
	if app.config != nil && app.config.Port != "" {
		port = app.config.Port
	}

	app.server = &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	signal.Notify(app.stopChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-app.stopChan:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("服务器关闭失败: %w", err)
	}

	app.cleanup()
	return nil
}

// Stop 触发优雅关闭
func (a *App) Stop() {
	select {
	case a.stopChan <- os.Interrupt:
	default:
	}
}

// cleanup 释放容器中持有资源的服务
func (a *App) cleanup() {
	container := di.GetContainer()

	if hub, ok := container.Get("assets_hub").(*api.AssetsHub); ok && hub != nil {
		hub.Shutdown()
	}

	utils.GetLogger().Close()
}
