// internal/api/router.go
package api

import (
	"fmt"
	"time"

	"github.com/Corphon/CineGenieMCP/internal/di"
	"github.com/Corphon/CineGenieMCP/internal/services"
	"github.com/gin-gonic/gin"
)

// SetupRouter 配置HTTP路由
func SetupRouter() (*gin.Engine, error) {
	// 获取依赖注入容器
	container := di.GetContainer()

	// 只从容器获取服务，不再创建新实例
	scriptService, ok := container.Get("script").(*services.ScriptService)
	if !ok {
		return nil, fmt.Errorf("剧本服务未正确初始化")
	}

	assetService, ok := container.Get("asset").(*services.AssetService)
	if !ok {
		return nil, fmt.Errorf("资产服务未正确初始化")
	}

	generationService, ok := container.Get("generation").(*services.GenerationService)
	if !ok {
		return nil, fmt.Errorf("生成服务未正确初始化")
	}

	exportService, ok := container.Get("export").(*services.ExportService)
	if !ok {
		return nil, fmt.Errorf("导出服务未正确初始化")
	}

	statsService, ok := container.Get("stats").(*services.StatsService)
	if !ok {
		return nil, fmt.Errorf("统计服务未正确初始化")
	}

	assetsHub, ok := container.Get("assets_hub").(*AssetsHub)
	if !ok {
		return nil, fmt.Errorf("资产通知中心未正确初始化")
	}

	handler := NewHandler(
		scriptService,
		assetService,
		generationService,
		exportService,
		statsService,
		assetsHub,
	)

	// 创建路由
	r := gin.Default()

	// 启用CORS和请求ID
	r.Use(corsMiddleware())
	r.Use(requestIDMiddleware())

	// 生成类接口限流：每个IP令牌桶，容量10，每6秒补充1个
	genLimiter := newRateLimiter(10, 6*time.Second)
	rateLimited := generationRateLimitMiddleware(genLimiter)

	// WebSocket：资产库变更订阅
	r.GET("/ws/assets", handler.HandleAssetsWebSocket)

	// API路由
	apiGroup := r.Group("/api")
	{
		// 剧本管理
		scripts := apiGroup.Group("/scripts")
		{
			scripts.GET("", handler.ListScripts)
			scripts.POST("", handler.CreateScript)
			scripts.POST("/generate", rateLimited, handler.GenerateScript)
			scripts.POST("/suggest", rateLimited, handler.SuggestPlotPoints)

			// 活动剧本与场景资产操作
			active := scripts.Group("/active")
			{
				active.GET("", handler.GetActiveScript)
				active.POST("/clear", handler.NewScript)
				active.DELETE("", handler.DeleteActiveScript)

				scenes := active.Group("/scenes/:act/:scene")
				{
					scenes.POST("/image", rateLimited, handler.GenerateSceneImage)
					scenes.POST("/image/cancel", handler.CancelSceneImage)
					scenes.DELETE("/image", handler.DeleteSceneImage)

					scenes.POST("/video", rateLimited, handler.GenerateSceneVideo)
					scenes.POST("/video/cancel", handler.CancelSceneVideo)
					scenes.DELETE("/video", handler.DeleteSceneVideo)
				}
			}

			scripts.GET("/:id", handler.GetScript)
			scripts.PUT("/:id", handler.UpdateScript)
			scripts.DELETE("/:id", handler.DeleteScript)
		}

		// 资产库
		assets := apiGroup.Group("/assets")
		{
			assets.GET("", handler.ListAssets)
			assets.GET("/:kind/:id", handler.GetAssetContent)
			assets.DELETE("/:kind/:id", handler.DeleteAsset)
		}

		// 导出 / 导入
		apiGroup.GET("/export/scripts", handler.ExportScripts)
		apiGroup.GET("/export/bundle/:id", handler.ExportBundle)
		apiGroup.POST("/import", handler.ImportScripts)

		// 设置 / 统计 / 数据管理
		apiGroup.GET("/settings", handler.GetSettings)
		apiGroup.PUT("/settings/apikey", handler.UpdateAPIKey)
		apiGroup.PUT("/settings/genconfig", handler.UpdateGenConfig)
		apiGroup.GET("/stats", handler.GetStats)
		apiGroup.DELETE("/data", handler.ClearAllData)
	}

	return r, nil
}
