// internal/services/script_service.go
package services

import (
	"sync"

	"github.com/Corphon/CineGenieMCP/internal/errors"
	"github.com/Corphon/CineGenieMCP/internal/models"
	"github.com/Corphon/CineGenieMCP/internal/store"
	"github.com/Corphon/CineGenieMCP/internal/utils"
)

// ScriptService 管理剧本文档的生命周期和内存中的活动文档
//
// 活动文档被当作不可变值对待：任何变更都先克隆、在克隆上修改，
// 再通过 Publish 整体替换活动引用。持有旧快照的并发操作
// 永远不会观察到撕裂的中间状态
type ScriptService struct {
	docs     *store.DocumentStore
	images   *store.BlobStore
	videos   *store.BlobStore
	notifier *Notifier

	mu     sync.RWMutex
	active *models.ScriptDocument
}

// NewScriptService 创建剧本服务
func NewScriptService(docs *store.DocumentStore, images, videos *store.BlobStore, notifier *Notifier) *ScriptService {
	return &ScriptService{
		docs:     docs,
		images:   images,
		videos:   videos,
		notifier: notifier,
	}
}

// Active 返回当前活动文档（可能为 nil）
// 调用方不得修改返回值，需要变更时先 Clone
func (s *ScriptService) Active() *models.ScriptDocument {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.active
}

// Publish 整体替换活动文档（单一赋值，观察不到部分更新）
func (s *ScriptService) Publish(doc *models.ScriptDocument) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = doc
}

// ListScripts 列出所有已保存的剧本
func (s *ScriptService) ListScripts() ([]*models.ScriptDocument, error) {
	return s.docs.ListAll()
}

// SelectScript 按 ID 加载剧本并设为活动文档
func (s *ScriptService) SelectScript(id string) (*models.ScriptDocument, error) {
	doc, err := s.docs.Get(id)
	if err != nil {
		return nil, err
	}

	s.Publish(doc)
	return doc, nil
}

// NewScript 清空活动文档（回到创建界面的状态）
func (s *ScriptService) NewScript() {
	s.Publish(nil)
}

// CreateScript 持久化一个新剧本并设为活动文档
func (s *ScriptService) CreateScript(doc *models.ScriptDocument) (string, error) {
	if doc == nil || len(doc.Acts) == 0 {
		return "", errors.NewValidationError("剧本必须至少包含一幕", nil)
	}

	if !doc.Setting.DefaultAspectRatio.IsValid() {
		doc.Setting.DefaultAspectRatio = models.DefaultAspectRatio
	}

	id, err := s.docs.Add(doc)
	if err != nil {
		return "", err
	}

	s.Publish(doc)
	return id, nil
}

// SaveActive 持久化给定文档并发布为活动文档
func (s *ScriptService) SaveActive(doc *models.ScriptDocument) error {
	if err := s.docs.Update(doc); err != nil {
		return err
	}

	s.Publish(doc)
	return nil
}

// UpdateScript 持久化文档的整篇替换，不改变活动状态
func (s *ScriptService) UpdateScript(doc *models.ScriptDocument) error {
	if err := s.docs.Update(doc); err != nil {
		return err
	}

	// 更新的恰好是活动文档时同步内存视图
	active := s.Active()
	if active != nil && active.ID == doc.ID {
		s.Publish(doc)
	}

	return nil
}

// DeleteScript 删除剧本并级联删除其拥有的所有资产
// 资产删除失败不会中断级联，引用一侧的文档最终总会被删除
func (s *ScriptService) DeleteScript(id string) error {
	if id == "" {
		return errors.NewValidationError("剧本ID不能为空", nil)
	}

	logger := utils.GetLogger()
	assetsRemoved := false

	for _, blobStore := range []*store.BlobStore{s.images, s.videos} {
		infos, err := blobStore.ListByScript(id)
		if err != nil {
			logger.Warning("级联删除时列出资产失败: %v", err)
			continue
		}
		for _, info := range infos {
			if err := blobStore.Delete(info.ID); err != nil {
				logger.Warning("级联删除资产失败 %s: %v", info.ID, err)
				continue
			}
			assetsRemoved = true
		}
	}

	if err := s.docs.Delete(id); err != nil {
		return err
	}

	active := s.Active()
	if active != nil && active.ID == id {
		s.Publish(nil)
	}

	if assetsRemoved {
		s.notifier.NotifyAssetsChanged()
	}

	utils.GetMetricsCollector().IncrementCounter("scripts_deleted")

	return nil
}

// DeleteActiveScript 删除当前活动剧本
func (s *ScriptService) DeleteActiveScript() error {
	active := s.Active()
	if active == nil || active.ID == "" {
		return errors.NewValidationError("没有活动剧本可删除", nil)
	}

	return s.DeleteScript(active.ID)
}

// ClearAllData 清空三个存储的全部内容
func (s *ScriptService) ClearAllData() error {
	docs, err := s.docs.ListAll()
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if err := s.docs.Delete(doc.ID); err != nil {
			return err
		}
	}

	for _, blobStore := range []*store.BlobStore{s.images, s.videos} {
		infos, err := blobStore.ListAll()
		if err != nil {
			return err
		}
		for _, info := range infos {
			if err := blobStore.Delete(info.ID); err != nil {
				return err
			}
		}
	}

	s.Publish(nil)
	s.notifier.NotifyAssetsChanged()

	return nil
}
