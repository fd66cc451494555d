// internal/services/generation_service.go
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/Corphon/CineGenieMCP/internal/config"
	"github.com/Corphon/CineGenieMCP/internal/errors"
	"github.com/Corphon/CineGenieMCP/internal/gen"
	"github.com/Corphon/CineGenieMCP/internal/models"
)

// ConfigProviderResolver 基于当前配置解析生成提供者
// 密钥和模型配置每次调用重新读取，设置页的变更即时生效
type ConfigProviderResolver struct {
	ProviderName string
}

// Resolve 实现 ProviderResolver
func (r *ConfigProviderResolver) Resolve() (gen.Provider, error) {
	cfg := config.GetCurrentConfig()

	if cfg.GeminiAPIKey == "" {
		return nil, errors.NewValidationError("尚未配置生成器API密钥，请先在设置中填写", nil)
	}

	providerConfig := map[string]string{
		"api_key": cfg.GeminiAPIKey,
	}
	for k, v := range cfg.GenConfig {
		providerConfig[k] = v
	}

	provider, err := gen.GetProvider(r.ProviderName, providerConfig)
	if err != nil {
		return nil, errors.NewProcessingError("初始化生成提供者失败", err)
	}

	return provider, nil
}

// GenerationService 剧本文本相关的生成能力
// 把表单输入组装成提示词，调用外部生成，再交给剧本服务持久化
type GenerationService struct {
	scripts  *ScriptService
	resolver ProviderResolver
}

// NewGenerationService 创建生成服务
func NewGenerationService(scripts *ScriptService, resolver ProviderResolver) *GenerationService {
	return &GenerationService{
		scripts:  scripts,
		resolver: resolver,
	}
}

// GenerateScriptRequest 剧本生成的表单输入
type GenerateScriptRequest struct {
	Logline            string             `json:"logline"`
	Genres             []string           `json:"genres"`
	Language           string             `json:"language"`
	ScriptLength       string             `json:"script_length"`
	DefaultAspectRatio models.AspectRatio `json:"default_aspect_ratio"`
}

// GenerateScript 从故事梗概生成完整剧本并持久化为新文档
func (s *GenerationService) GenerateScript(ctx context.Context, req GenerateScriptRequest) (*models.ScriptDocument, error) {
	if strings.TrimSpace(req.Logline) == "" {
		return nil, errors.NewValidationError("故事梗概不能为空", nil)
	}

	provider, err := s.resolver.Resolve()
	if err != nil {
		return nil, err
	}

	scriptLength := req.ScriptLength
	if scriptLength == "" {
		scriptLength = "medium"
	}

	finalPrompt := strings.TrimSpace(fmt.Sprintf(`
**Logline / Core Idea:** %s
**Genres:** %s
**Desired Script Length:** %s
Based on the provided logline, genres, and desired length, please generate a full movie script.`,
		req.Logline, strings.Join(req.Genres, ", "), scriptLength))

	// 生成期间活动文档复位到空状态
	s.scripts.NewScript()

	doc, err := provider.GenerateScript(ctx, gen.ScriptRequest{
		Prompt:   finalPrompt,
		Language: req.Language,
	})
	if err != nil {
		return nil, errors.NewGenerationError("剧本生成失败", err)
	}

	aspect := req.DefaultAspectRatio
	if !aspect.IsValid() {
		aspect = models.DefaultAspectRatio
	}
	doc.Setting.DefaultAspectRatio = aspect

	if _, err := s.scripts.CreateScript(doc); err != nil {
		return nil, err
	}

	return doc, nil
}

// SuggestPlotPoints 根据故事梗概返回情节要点建议
func (s *GenerationService) SuggestPlotPoints(ctx context.Context, logline string, genres []string, language string) ([]string, error) {
	if strings.TrimSpace(logline) == "" {
		return nil, errors.NewValidationError("故事梗概不能为空", nil)
	}

	provider, err := s.resolver.Resolve()
	if err != nil {
		return nil, err
	}

	suggestionPrompt := strings.TrimSpace(fmt.Sprintf(
		"**Logline / Core Idea:**\n%s\n\n**Genres:**\n%s",
		logline, strings.Join(genres, ", ")))

	suggestions, err := provider.SuggestPlotPoints(ctx, suggestionPrompt, language)
	if err != nil {
		return nil, errors.NewGenerationError("情节建议生成失败", err)
	}

	return suggestions, nil
}
