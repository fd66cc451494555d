// internal/api/handlers.go
package api

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Corphon/CineGenieMCP/internal/config"
	"github.com/Corphon/CineGenieMCP/internal/models"
	"github.com/Corphon/CineGenieMCP/internal/services"
	"github.com/gin-gonic/gin"
)

// APIResponse 统一API响应格式
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Message   string      `json:"message,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// APIError API错误详情
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Handler API处理器，持有所有业务服务
type Handler struct {
	ScriptService     *services.ScriptService
	AssetService      *services.AssetService
	GenerationService *services.GenerationService
	ExportService     *services.ExportService
	StatsService      *services.StatsService
	AssetsHub         *AssetsHub
	Response          *ResponseHelper
}

// NewHandler 创建API处理器
func NewHandler(
	scripts *services.ScriptService,
	assets *services.AssetService,
	generation *services.GenerationService,
	export *services.ExportService,
	stats *services.StatsService,
	hub *AssetsHub,
) *Handler {
	return &Handler{
		ScriptService:     scripts,
		AssetService:      assets,
		GenerationService: generation,
		ExportService:     export,
		StatsService:      stats,
		AssetsHub:         hub,
		Response:          NewResponseHelper(),
	}
}

// ========================================
// 剧本管理
// ========================================

// ListScripts 列出所有已保存的剧本
func (h *Handler) ListScripts(c *gin.Context) {
	docs, err := h.ScriptService.ListScripts()
	if err != nil {
		h.Response.HandleServiceError(c, err)
		return
	}

	h.Response.Success(c, docs)
}

// GetScript 按ID获取剧本
func (h *Handler) GetScript(c *gin.Context) {
	id := c.Param("id")

	doc, err := h.ScriptService.SelectScript(id)
	if err != nil {
		h.Response.HandleServiceError(c, err)
		return
	}

	h.Response.Success(c, doc)
}

// CreateScript 手动创建剧本
func (h *Handler) CreateScript(c *gin.Context) {
	var doc models.ScriptDocument
	if err := c.ShouldBindJSON(&doc); err != nil {
		h.Response.BadRequest(c, "无效的剧本数据", err.Error())
		return
	}

	doc.ID = ""
	id, err := h.ScriptService.CreateScript(&doc)
	if err != nil {
		h.Response.HandleServiceError(c, err)
		return
	}

	h.Response.Created(c, gin.H{"id": id, "script": &doc}, "剧本创建成功")
}

// UpdateScript 整篇替换已保存的剧本
func (h *Handler) UpdateScript(c *gin.Context) {
	var doc models.ScriptDocument
	if err := c.ShouldBindJSON(&doc); err != nil {
		h.Response.BadRequest(c, "无效的剧本数据", err.Error())
		return
	}

	doc.ID = c.Param("id")
	if err := h.ScriptService.UpdateScript(&doc); err != nil {
		h.Response.HandleServiceError(c, err)
		return
	}

	h.Response.Success(c, &doc, "剧本保存成功")
}

// DeleteScript 删除剧本及其拥有的全部资产
func (h *Handler) DeleteScript(c *gin.Context) {
	if err := h.ScriptService.DeleteScript(c.Param("id")); err != nil {
		h.Response.HandleServiceError(c, err)
		return
	}

	h.Response.Success(c, nil, "剧本已删除")
}

// GetActiveScript 返回当前活动剧本（可能为空）
func (h *Handler) GetActiveScript(c *gin.Context) {
	h.Response.Success(c, h.ScriptService.Active())
}

// NewScript 清空活动剧本，回到创建状态
func (h *Handler) NewScript(c *gin.Context) {
	h.ScriptService.NewScript()
	h.Response.Success(c, nil)
}

// DeleteActiveScript 删除当前活动剧本
func (h *Handler) DeleteActiveScript(c *gin.Context) {
	if err := h.ScriptService.DeleteActiveScript(); err != nil {
		h.Response.HandleServiceError(c, err)
		return
	}

	h.Response.Success(c, nil, "剧本已删除")
}

// ========================================
// 剧本生成
// ========================================

// GenerateScript 从故事梗概生成完整剧本
func (h *Handler) GenerateScript(c *gin.Context) {
	var req services.GenerateScriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的生成请求", err.Error())
		return
	}

	doc, err := h.GenerationService.GenerateScript(c.Request.Context(), req)
	if err != nil {
		h.Response.HandleServiceError(c, err)
		return
	}

	h.Response.Created(c, doc, "剧本生成成功")
}

// SuggestPlotPointsRequest 情节建议的表单输入
type SuggestPlotPointsRequest struct {
	Logline  string   `json:"logline"`
	Genres   []string `json:"genres"`
	Language string   `json:"language"`
}

// SuggestPlotPoints 根据故事梗概返回情节要点建议
func (h *Handler) SuggestPlotPoints(c *gin.Context) {
	var req SuggestPlotPointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的建议请求", err.Error())
		return
	}

	suggestions, err := h.GenerationService.SuggestPlotPoints(
		c.Request.Context(), req.Logline, req.Genres, req.Language)
	if err != nil {
		h.Response.HandleServiceError(c, err)
		return
	}

	h.Response.Success(c, gin.H{"suggestions": suggestions})
}

// ========================================
// 场景资产生成
// ========================================

// sceneLocatorFromPath 从路径参数解析场景定位器
func (h *Handler) sceneLocatorFromPath(c *gin.Context) (models.SceneLocator, bool) {
	actIndex, err := strconv.Atoi(c.Param("act"))
	if err != nil {
		h.Response.BadRequest(c, "无效的幕索引", c.Param("act"))
		return models.SceneLocator{}, false
	}

	sceneIndex, err := strconv.Atoi(c.Param("scene"))
	if err != nil {
		h.Response.BadRequest(c, "无效的场景索引", c.Param("scene"))
		return models.SceneLocator{}, false
	}

	return models.SceneLocator{ActIndex: actIndex, SceneIndex: sceneIndex}, true
}

// GenerateSceneImageRequest 场景图片生成的表单输入
type GenerateSceneImageRequest struct {
	Prompt         string             `json:"prompt"`
	NegativePrompt string             `json:"negative_prompt"`
	AspectRatio    models.AspectRatio `json:"aspect_ratio"`
}

// GenerateSceneImage 为指定场景生成图片
func (h *Handler) GenerateSceneImage(c *gin.Context) {
	loc, ok := h.sceneLocatorFromPath(c)
	if !ok {
		return
	}

	var req GenerateSceneImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的生成请求", err.Error())
		return
	}

	aspect := req.AspectRatio
	if !aspect.IsValid() {
		if active := h.ScriptService.Active(); active != nil && active.Setting.DefaultAspectRatio.IsValid() {
			aspect = active.Setting.DefaultAspectRatio
		} else {
			aspect = models.DefaultAspectRatio
		}
	}

	err := h.AssetService.GenerateSceneImage(c.Request.Context(), loc, req.Prompt, req.NegativePrompt, aspect)
	if err != nil {
		h.Response.HandleServiceError(c, err)
		return
	}

	h.Response.Success(c, h.ScriptService.Active(), "图片生成成功")
}

// CancelSceneImage 取消场景图片生成的可见状态
func (h *Handler) CancelSceneImage(c *gin.Context) {
	loc, ok := h.sceneLocatorFromPath(c)
	if !ok {
		return
	}

	h.AssetService.CancelGenerateSceneImage(loc)
	h.Response.Success(c, h.ScriptService.Active())
}

// DeleteSceneImage 删除场景的生成图片
func (h *Handler) DeleteSceneImage(c *gin.Context) {
	loc, ok := h.sceneLocatorFromPath(c)
	if !ok {
		return
	}

	if err := h.AssetService.DeleteSceneImage(loc); err != nil {
		h.Response.HandleServiceError(c, err)
		return
	}

	h.Response.Success(c, h.ScriptService.Active(), "图片已删除")
}

// GenerateSceneVideoRequest 场景视频生成的表单输入
type GenerateSceneVideoRequest struct {
	AspectRatio models.AspectRatio `json:"aspect_ratio"`
}

// GenerateSceneVideo 为指定场景生成视频
func (h *Handler) GenerateSceneVideo(c *gin.Context) {
	loc, ok := h.sceneLocatorFromPath(c)
	if !ok {
		return
	}

	var req GenerateSceneVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
		h.Response.BadRequest(c, "无效的生成请求", err.Error())
		return
	}

	aspect := req.AspectRatio
	if !aspect.IsValid() {
		if active := h.ScriptService.Active(); active != nil && active.Setting.DefaultAspectRatio.IsValid() {
			aspect = active.Setting.DefaultAspectRatio
		} else {
			aspect = models.DefaultAspectRatio
		}
	}

	if err := h.AssetService.GenerateSceneVideo(c.Request.Context(), loc, aspect); err != nil {
		h.Response.HandleServiceError(c, err)
		return
	}

	h.Response.Success(c, h.ScriptService.Active(), "视频生成成功")
}

// CancelSceneVideo 取消场景视频生成的可见状态
func (h *Handler) CancelSceneVideo(c *gin.Context) {
	loc, ok := h.sceneLocatorFromPath(c)
	if !ok {
		return
	}

	h.AssetService.CancelGenerateSceneVideo(loc)
	h.Response.Success(c, h.ScriptService.Active())
}

// DeleteSceneVideo 删除场景的生成视频
func (h *Handler) DeleteSceneVideo(c *gin.Context) {
	loc, ok := h.sceneLocatorFromPath(c)
	if !ok {
		return
	}

	if err := h.AssetService.DeleteSceneVideo(loc); err != nil {
		h.Response.HandleServiceError(c, err)
		return
	}

	h.Response.Success(c, h.ScriptService.Active(), "视频已删除")
}

// ========================================
// 资产库
// ========================================

// assetKindFromPath 解析路径中的资产类型
func (h *Handler) assetKindFromPath(c *gin.Context) (models.AssetKind, bool) {
	switch c.Param("kind") {
	case "image":
		return models.AssetKindImage, true
	case "video":
		return models.AssetKindVideo, true
	}

	h.Response.BadRequest(c, "未知的资产类型", c.Param("kind"))
	return "", false
}

// ListAssets 列出资产库的全部资产元数据
func (h *Handler) ListAssets(c *gin.Context) {
	infos, err := h.AssetService.ListAssets()
	if err != nil {
		h.Response.HandleServiceError(c, err)
		return
	}

	h.Response.Success(c, infos)
}

// GetAssetContent 读取资产二进制载荷（预览/下载）
func (h *Handler) GetAssetContent(c *gin.Context) {
	kind, ok := h.assetKindFromPath(c)
	if !ok {
		return
	}

	record, err := h.AssetService.GetAsset(kind, c.Param("id"))
	if err != nil {
		h.Response.HandleServiceError(c, err)
		return
	}

	c.Data(http.StatusOK, record.MediaType, record.Data)
}

// DeleteAsset 从资产库删除资产并修复所属剧本的引用
func (h *Handler) DeleteAsset(c *gin.Context) {
	kind, ok := h.assetKindFromPath(c)
	if !ok {
		return
	}

	scriptID := c.Query("script_id")
	if scriptID == "" {
		h.Response.BadRequest(c, "缺少 script_id 参数")
		return
	}

	if err := h.AssetService.DeleteAssetFromGallery(kind, c.Param("id"), scriptID); err != nil {
		h.Response.HandleServiceError(c, err)
		return
	}

	h.Response.Success(c, nil, "资产已删除")
}

// ========================================
// 导出 / 导入
// ========================================

// ExportScripts 导出全部剧本为JSON文件下载
func (h *Handler) ExportScripts(c *gin.Context) {
	result, err := h.ExportService.ExportAll()
	if err != nil {
		h.Response.HandleServiceError(c, err)
		return
	}

	h.Response.DownloadResponse(c, result)
}

// ExportBundle 导出单个剧本的打包归档下载
func (h *Handler) ExportBundle(c *gin.Context) {
	result, err := h.ExportService.ExportBundle(c.Param("id"))
	if err != nil {
		h.Response.HandleServiceError(c, err)
		return
	}

	h.Response.DownloadResponse(c, result)
}

// ImportScripts 导入剧本文件（单个对象或数组）
// 支持multipart上传的file字段，或直接以请求体提交JSON
func (h *Handler) ImportScripts(c *gin.Context) {
	var data []byte

	if file, err := c.FormFile("file"); err == nil {
		opened, err := file.Open()
		if err != nil {
			h.Response.BadRequest(c, "无法打开导入文件", err.Error())
			return
		}
		defer opened.Close()

		data, err = io.ReadAll(opened)
		if err != nil {
			h.Response.BadRequest(c, "无法读取导入文件", err.Error())
			return
		}
	} else {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			h.Response.BadRequest(c, "无法读取请求体", err.Error())
			return
		}
		data = body
	}

	summary, err := h.ExportService.Import(data)
	if err != nil {
		h.Response.HandleServiceError(c, err)
		return
	}

	h.Response.Success(c, summary, "导入成功")
}

// ========================================
// 设置 / 统计 / 数据管理
// ========================================

// maskAPIKey 只保留密钥末尾4位用于展示
func maskAPIKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

// GetSettings 返回当前设置（密钥掩码展示）
func (h *Handler) GetSettings(c *gin.Context) {
	cfg := config.GetCurrentConfig()

	data := gin.H{
		"api_key_set": cfg.GeminiAPIKey != "",
		"gen_config":  cfg.GenConfig,
	}
	if cfg.GeminiAPIKey != "" {
		data["api_key_masked"] = maskAPIKey(cfg.GeminiAPIKey)
	}

	h.Response.Success(c, data)
}

// UpdateAPIKeyRequest 密钥更新的表单输入
type UpdateAPIKeyRequest struct {
	APIKey string `json:"api_key"`
}

// UpdateAPIKey 更新生成提供者的API密钥（空值表示清除）
func (h *Handler) UpdateAPIKey(c *gin.Context) {
	var req UpdateAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的设置请求", err.Error())
		return
	}

	if err := config.UpdateAPIKey(req.APIKey); err != nil {
		h.Response.HandleServiceError(c, err)
		return
	}

	h.Response.Success(c, gin.H{"api_key_set": req.APIKey != ""}, "设置已保存")
}

// UpdateGenConfigRequest 生成器模型配置的表单输入
type UpdateGenConfigRequest struct {
	GenConfig map[string]string `json:"gen_config"`
}

// UpdateGenConfig 更新生成器的模型配置
func (h *Handler) UpdateGenConfig(c *gin.Context) {
	var req UpdateGenConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的设置请求", err.Error())
		return
	}
	if len(req.GenConfig) == 0 {
		h.Response.BadRequest(c, "模型配置不能为空")
		return
	}

	if err := config.UpdateGenConfig(req.GenConfig); err != nil {
		h.Response.HandleServiceError(c, err)
		return
	}

	h.Response.Success(c, gin.H{"gen_config": req.GenConfig}, "设置已保存")
}

// GetStats 返回运行期统计
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.StatsService.GetStats()
	if err != nil {
		h.Response.HandleServiceError(c, err)
		return
	}

	h.Response.Success(c, stats)
}

// ClearAllData 清空全部剧本和资产数据
func (h *Handler) ClearAllData(c *gin.Context) {
	if err := h.ScriptService.ClearAllData(); err != nil {
		h.Response.HandleServiceError(c, err)
		return
	}

	h.Response.Success(c, nil, "全部数据已清空")
}
