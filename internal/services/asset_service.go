// internal/services/asset_service.go
package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/Corphon/CineGenieMCP/internal/errors"
	"github.com/Corphon/CineGenieMCP/internal/gen"
	"github.com/Corphon/CineGenieMCP/internal/models"
	"github.com/Corphon/CineGenieMCP/internal/store"
	"github.com/Corphon/CineGenieMCP/internal/utils"
)

// ProviderResolver 按当前配置解析生成提供者
// 每次生成调用重新解析，密钥变更即时生效
type ProviderResolver interface {
	Resolve() (gen.Provider, error)
}

// AssetService 驱动场景资产的生成生命周期并维护引用一致性
//
// 每个 (场景, 资产类型) 的生成走乐观更新流程：
// 请求被接受时立即克隆活动文档、置生成标志并发布；
// 成功时基于最新发布的文档提交引用，失败时回滚到请求前的快照。
// 同一场景上重叠的生成请求没有互斥保护，最后发布者获胜——
// 这是沿袭源行为的已知竞态，不做修复
type AssetService struct {
	scripts  *ScriptService
	docs     *store.DocumentStore
	images   *store.BlobStore
	videos   *store.BlobStore
	notifier *Notifier
	resolver ProviderResolver
}

// NewAssetService 创建资产服务
func NewAssetService(
	scripts *ScriptService,
	docs *store.DocumentStore,
	images, videos *store.BlobStore,
	notifier *Notifier,
	resolver ProviderResolver,
) *AssetService {
	return &AssetService{
		scripts:  scripts,
		docs:     docs,
		images:   images,
		videos:   videos,
		notifier: notifier,
		resolver: resolver,
	}
}

func (s *AssetService) storeFor(kind models.AssetKind) (*store.BlobStore, error) {
	switch kind {
	case models.AssetKindImage:
		return s.images, nil
	case models.AssetKindVideo:
		return s.videos, nil
	}
	return nil, errors.NewValidationError(fmt.Sprintf("未知的资产类型: %s", kind), nil)
}

// setGeneratingFlag 在场景上设置指定类型的生成标志
func setGeneratingFlag(scene *models.Scene, kind models.AssetKind, value bool) {
	if kind == models.AssetKindImage {
		scene.IsGeneratingImage = value
	} else {
		scene.IsGeneratingVideo = value
	}
}

// rollback 回滚到请求前的快照
// 克隆的是原始快照而不是乐观副本：宁可丢弃乐观变更，
// 也不尝试部分合并出损坏的中间状态
func (s *AssetService) rollback(original *models.ScriptDocument, loc models.SceneLocator, kind models.AssetKind) {
	reverted := original.Clone()
	if scene := reverted.SceneAt(loc); scene != nil {
		setGeneratingFlag(scene, kind, false)
	}
	s.scripts.Publish(reverted)

	utils.GetMetricsCollector().IncrementCounter("generation_rollbacks")
}

// GenerateSceneImage 为指定场景生成图片
//
// 生命周期：乐观发布（同步，先于任何网络/存储IO）→ 外部生成 →
// 写入资产存储 → 在最新发布的文档上提交引用 → 持久化 → 发布
func (s *AssetService) GenerateSceneImage(ctx context.Context, loc models.SceneLocator, prompt, negativePrompt string, aspectRatio models.AspectRatio) error {
	script := s.scripts.Active()
	if script == nil || script.ID == "" {
		return errors.NewValidationError("没有已保存的活动剧本", nil)
	}
	scriptID := script.ID

	provider, err := s.resolver.Resolve()
	if err != nil {
		return err
	}

	// 请求前快照，回滚的基准
	original := script

	optimistic := script.Clone()
	scene := optimistic.SceneAt(loc)
	if scene == nil {
		return errors.NewValidationError("场景定位器越界", nil)
	}
	scene.IsGeneratingImage = true
	s.scripts.Publish(optimistic)

	result, err := provider.GenerateImage(ctx, gen.ImageRequest{
		Prompt:         prompt,
		NegativePrompt: negativePrompt,
		AspectRatio:    aspectRatio,
	})
	if err != nil {
		s.rollback(original, loc, models.AssetKindImage)
		return errors.NewGenerationError("无法生成场景图片", err)
	}

	imageID, err := s.images.Add(result.Data, result.MediaType, scriptID)
	if err != nil {
		s.rollback(original, loc, models.AssetKindImage)
		return errors.NewStorageError("无法保存生成的图片", err)
	}

	s.notifier.NotifyAssetsChanged()

	return s.commit(loc, models.AssetKindImage, imageID, original)
}

// CancelGenerateSceneImage 取消图片生成的可见状态
//
// 只清除标志，不中止底层的外部调用：迟到的成功或失败
// 仍会按当时的最新文档提交或回滚——用户以为已取消的引用
// 可能因此悄然复活。沿袭源行为，不做修复
func (s *AssetService) CancelGenerateSceneImage(loc models.SceneLocator) {
	s.cancelGenerating(loc, models.AssetKindImage)
}

// CancelGenerateSceneVideo 取消视频生成的可见状态（语义同图片）
func (s *AssetService) CancelGenerateSceneVideo(loc models.SceneLocator) {
	s.cancelGenerating(loc, models.AssetKindVideo)
}

func (s *AssetService) cancelGenerating(loc models.SceneLocator, kind models.AssetKind) {
	script := s.scripts.Active()
	if script == nil {
		return
	}

	cancelled := script.Clone()
	if scene := cancelled.SceneAt(loc); scene != nil {
		setGeneratingFlag(scene, kind, false)
	}
	s.scripts.Publish(cancelled)
}

// GenerateSceneVideo 为指定场景生成视频
// 场景已有生成图片时把它作为首帧种子传给提供者；
// 种子图读取失败不是硬失败，退化为无种子继续生成
func (s *AssetService) GenerateSceneVideo(ctx context.Context, loc models.SceneLocator, aspectRatio models.AspectRatio) error {
	script := s.scripts.Active()
	if script == nil || script.ID == "" {
		return errors.NewValidationError("没有已保存的活动剧本", nil)
	}
	scriptID := script.ID

	provider, err := s.resolver.Resolve()
	if err != nil {
		return err
	}

	original := script

	optimistic := script.Clone()
	scene := optimistic.SceneAt(loc)
	if scene == nil {
		return errors.NewValidationError("场景定位器越界", nil)
	}
	scene.IsGeneratingVideo = true
	s.scripts.Publish(optimistic)

	// 提示词取自请求前快照的场景描述
	srcScene := original.SceneAt(loc)
	prompt := fmt.Sprintf(
		"Cinematic shot for a movie scene. Location: %s (%s). Action: %s. Visual style: %s. Audio style: %s.",
		srcScene.Location, srcScene.Time, srcScene.Action, srcScene.VisualStyle, srcScene.AudioStyle)

	var seedImage *models.SeedImage
	if srcScene.GeneratedImageID != "" {
		record, err := s.images.Get(srcScene.GeneratedImageID)
		if err != nil {
			// 种子图缺失（已被删除等）时退化继续
			utils.GetLogger().Warning("读取种子图失败，继续无种子生成: %v", err)
		} else {
			seedImage = &models.SeedImage{
				MimeType: record.MediaType,
				Data:     record.Data,
			}
		}
	}

	result, err := provider.GenerateVideo(ctx, gen.VideoRequest{
		Prompt:      prompt,
		AspectRatio: aspectRatio,
		SeedImage:   seedImage,
	})
	if err != nil {
		s.rollback(original, loc, models.AssetKindVideo)
		return errors.NewGenerationError("无法生成场景视频", err)
	}

	videoID, err := s.videos.Add(result.Data, result.MediaType, scriptID)
	if err != nil {
		s.rollback(original, loc, models.AssetKindVideo)
		return errors.NewStorageError("无法保存生成的视频", err)
	}

	s.notifier.NotifyAssetsChanged()

	return s.commit(loc, models.AssetKindVideo, videoID, original)
}

// commit 在最新发布的文档上提交资产引用并持久化
// 克隆最新发布的文档而不是请求时捕获的快照，
// 以保留生成期间发生的其他并发编辑
func (s *AssetService) commit(loc models.SceneLocator, kind models.AssetKind, assetID string, original *models.ScriptDocument) error {
	current := s.scripts.Active()
	if current == nil {
		current = original
	}

	committed := current.Clone()
	if scene := committed.SceneAt(loc); scene != nil {
		if kind == models.AssetKindImage {
			scene.GeneratedImageID = assetID
		} else {
			scene.GeneratedVideoID = assetID
		}
		setGeneratingFlag(scene, kind, false)
	}

	if err := s.docs.Update(committed); err != nil {
		// 资产已写入但引用提交失败：回滚可见状态，
		// 孤儿记录留给两个存储之间无事务的既定取舍
		s.rollback(original, loc, kind)
		return errors.NewStorageError("无法保存更新后的剧本", err)
	}

	s.scripts.Publish(committed)

	utils.GetMetricsCollector().IncrementCounter(fmt.Sprintf("%s_generations", kind))

	return nil
}

// DeleteSceneImage 删除场景的生成图片（编辑器路径）
// 场景没有图片引用时是空操作
func (s *AssetService) DeleteSceneImage(loc models.SceneLocator) error {
	return s.deleteSceneAsset(loc, models.AssetKindImage)
}

// DeleteSceneVideo 删除场景的生成视频（编辑器路径）
func (s *AssetService) DeleteSceneVideo(loc models.SceneLocator) error {
	return s.deleteSceneAsset(loc, models.AssetKindVideo)
}

func (s *AssetService) deleteSceneAsset(loc models.SceneLocator, kind models.AssetKind) error {
	script := s.scripts.Active()
	if script == nil {
		return errors.NewValidationError("没有活动剧本", nil)
	}

	blobStore, err := s.storeFor(kind)
	if err != nil {
		return err
	}

	updated := script.Clone()
	scene := updated.SceneAt(loc)
	if scene == nil {
		return errors.NewValidationError("场景定位器越界", nil)
	}

	var assetID string
	if kind == models.AssetKindImage {
		assetID = scene.GeneratedImageID
	} else {
		assetID = scene.GeneratedVideoID
	}

	if assetID == "" {
		// 没有引用可删，第二次删除不产生任何副作用
		return nil
	}

	if err := blobStore.Delete(assetID); err != nil {
		return err
	}

	if kind == models.AssetKindImage {
		scene.GeneratedImageID = ""
	} else {
		scene.GeneratedVideoID = ""
	}

	if err := s.scripts.SaveActive(updated); err != nil {
		return err
	}

	s.notifier.NotifyAssetsChanged()

	utils.GetMetricsCollector().IncrementCounter("assets_deleted")

	return nil
}

// DeleteAssetFromGallery 从资产库删除资产（资产优先路径）
//
// 只凭资产 ID、类型和所属剧本 ID 工作，不依赖内存中的活动文档：
// 先删除记录，再从文档存储加载所属剧本，清除所有匹配的悬空引用
func (s *AssetService) DeleteAssetFromGallery(kind models.AssetKind, assetID, scriptID string) error {
	blobStore, err := s.storeFor(kind)
	if err != nil {
		return err
	}

	if err := blobStore.Delete(assetID); err != nil {
		return err
	}

	doc, err := s.docs.Get(scriptID)
	if err != nil {
		if !errors.IsNotFoundError(err) {
			return err
		}
		// 所属剧本已不存在，没有引用可修复
		doc = nil
	}

	if doc != nil {
		wasUpdated := false
		for ai := range doc.Acts {
			for si := range doc.Acts[ai].Scenes {
				scene := &doc.Acts[ai].Scenes[si]
				if kind == models.AssetKindImage && scene.GeneratedImageID == assetID {
					scene.GeneratedImageID = ""
					wasUpdated = true
				}
				if kind == models.AssetKindVideo && scene.GeneratedVideoID == assetID {
					scene.GeneratedVideoID = ""
					wasUpdated = true
				}
			}
		}

		if wasUpdated {
			if err := s.docs.Update(doc); err != nil {
				return err
			}

			// 被修复的恰好是活动文档时同步内存视图
			active := s.scripts.Active()
			if active != nil && active.ID == doc.ID {
				s.scripts.Publish(doc)
			}
		}
	}

	s.notifier.NotifyAssetsChanged()

	utils.GetMetricsCollector().IncrementCounter("assets_deleted")

	return nil
}

// ListAssets 列出两类资产的全部元数据，最新在前（资产库视图）
func (s *AssetService) ListAssets() ([]models.AssetInfo, error) {
	imageInfos, err := s.images.ListAll()
	if err != nil {
		return nil, err
	}
	videoInfos, err := s.videos.ListAll()
	if err != nil {
		return nil, err
	}

	infos := make([]models.AssetInfo, 0, len(imageInfos)+len(videoInfos))
	infos = append(infos, imageInfos...)
	infos = append(infos, videoInfos...)

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.After(infos[j].CreatedAt)
	})

	return infos, nil
}

// GetAsset 读取单条资产记录（含载荷），用于资产库预览
func (s *AssetService) GetAsset(kind models.AssetKind, id string) (*models.AssetRecord, error) {
	blobStore, err := s.storeFor(kind)
	if err != nil {
		return nil, err
	}

	return blobStore.Get(id)
}
