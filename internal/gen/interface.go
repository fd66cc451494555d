// internal/gen/interface.go
package gen

import (
	"context"
	"errors"

	"github.com/Corphon/CineGenieMCP/internal/models"
)

// 错误定义
var ErrUnknownProvider = errors.New("未知的生成提供者")

// ScriptRequest 剧本文本生成请求
type ScriptRequest struct {
	Prompt   string `json:"prompt"`
	Language string `json:"language,omitempty"`
	Model    string `json:"model,omitempty"`
}

// ImageRequest 场景图片生成请求
type ImageRequest struct {
	Prompt         string             `json:"prompt"`
	NegativePrompt string             `json:"negative_prompt,omitempty"`
	AspectRatio    models.AspectRatio `json:"aspect_ratio,omitempty"`
	Model          string             `json:"model,omitempty"`
}

// VideoRequest 场景视频生成请求
// SeedImage 可选：场景已有生成图片时作为首帧种子传入
type VideoRequest struct {
	Prompt      string             `json:"prompt"`
	AspectRatio models.AspectRatio `json:"aspect_ratio,omitempty"`
	SeedImage   *models.SeedImage  `json:"-"`
	Model       string             `json:"model,omitempty"`
}

// MediaResult 媒体生成结果：二进制载荷加媒体类型
type MediaResult struct {
	Data      []byte `json:"-"`
	MediaType string `json:"media_type"`
}

// Provider 定义所有生成提供者必须实现的接口
type Provider interface {
	// 初始化提供者，传入配置
	Initialize(config map[string]string) error

	// 获取提供者名称
	GetName() string

	// 剧本文本生成
	GenerateScript(ctx context.Context, req ScriptRequest) (*models.ScriptDocument, error)

	// 情节要点建议
	SuggestPlotPoints(ctx context.Context, logline string, language string) ([]string, error)

	// 场景图片生成
	GenerateImage(ctx context.Context, req ImageRequest) (*MediaResult, error)

	// 场景视频生成
	GenerateVideo(ctx context.Context, req VideoRequest) (*MediaResult, error)
}

// Registry 提供者注册表
type Registry struct {
	providers map[string]func() Provider
}

// 全局注册表
var DefaultRegistry = &Registry{
	providers: make(map[string]func() Provider),
}

// Register 注册一个新的生成提供者
func (r *Registry) Register(name string, factory func() Provider) {
	r.providers[name] = factory
}

// GetProvider 获取指定名称的提供者实例
func (r *Registry) GetProvider(name string, config map[string]string) (Provider, error) {
	factory, exists := r.providers[name]
	if !exists {
		return nil, ErrUnknownProvider
	}

	provider := factory()
	if err := provider.Initialize(config); err != nil {
		return nil, err
	}

	return provider, nil
}

// GetAvailableProviders 返回所有已注册的提供者名称
func (r *Registry) GetAvailableProviders() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

// Register 在全局注册表注册提供者
func Register(name string, factory func() Provider) {
	DefaultRegistry.Register(name, factory)
}

// GetProvider 从全局注册表获取提供者
func GetProvider(name string, config map[string]string) (Provider, error) {
	return DefaultRegistry.GetProvider(name, config)
}
