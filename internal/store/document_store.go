// internal/store/document_store.go
package store

import (
	"fmt"
	"strings"

	"github.com/Corphon/CineGenieMCP/internal/errors"
	"github.com/Corphon/CineGenieMCP/internal/models"
	"github.com/Corphon/CineGenieMCP/internal/storage"
	"github.com/google/uuid"
)

const documentsDir = "scripts"

// DocumentStore 剧本文档的持久化存储
// 每个文档一个 JSON 文件，键为存储分配的 ID
// 更新是整篇替换而不是字段级补丁
type DocumentStore struct {
	fs *storage.FileStorage
}

// NewDocumentStore 创建文档存储
func NewDocumentStore(fs *storage.FileStorage) *DocumentStore {
	return &DocumentStore{fs: fs}
}

func documentFilename(id string) string {
	return id + ".json"
}

// Get 按 ID 读取文档，不存在时返回 not_found 错误
func (s *DocumentStore) Get(id string) (*models.ScriptDocument, error) {
	if id == "" {
		return nil, errors.NewValidationError("文档ID不能为空", nil)
	}

	if !s.fs.FileExists(documentsDir, documentFilename(id)) {
		return nil, errors.NewNotFoundError(fmt.Sprintf("文档不存在: %s", id), nil)
	}

	var doc models.ScriptDocument
	if err := s.fs.LoadJSONFile(documentsDir, documentFilename(id), &doc); err != nil {
		return nil, errors.NewStorageError("读取文档失败", err)
	}

	// 存储分配的 ID 以文件名为准
	doc.ID = id

	return &doc, nil
}

// ListAll 列出所有文档
func (s *DocumentStore) ListAll() ([]*models.ScriptDocument, error) {
	files, err := s.fs.ListFiles(documentsDir, ".json")
	if err != nil {
		return nil, errors.NewStorageError("列出文档失败", err)
	}

	docs := make([]*models.ScriptDocument, 0, len(files))
	for _, filename := range files {
		id := strings.TrimSuffix(filename, ".json")
		doc, err := s.Get(id)
		if err != nil {
			// 列表途中被删除的文档直接跳过
			if errors.IsNotFoundError(err) {
				continue
			}
			return nil, err
		}
		docs = append(docs, doc)
	}

	return docs, nil
}

// Add 持久化一个新文档并返回存储分配的 ID
func (s *DocumentStore) Add(doc *models.ScriptDocument) (string, error) {
	if doc == nil {
		return "", errors.NewValidationError("文档不能为空", nil)
	}

	id := uuid.NewString()
	doc.ID = id

	if err := s.fs.SaveJSONFile(documentsDir, documentFilename(id), doc); err != nil {
		return "", errors.NewStorageError("保存文档失败", err)
	}

	return id, nil
}

// Update 整篇替换已持久化的文档
func (s *DocumentStore) Update(doc *models.ScriptDocument) error {
	if doc == nil || doc.ID == "" {
		return errors.NewValidationError("更新的文档必须带有ID", nil)
	}

	if err := s.fs.SaveJSONFile(documentsDir, documentFilename(doc.ID), doc); err != nil {
		return errors.NewStorageError("更新文档失败", err)
	}

	return nil
}

// Delete 删除文档，幂等：ID 不存在不算错误
func (s *DocumentStore) Delete(id string) error {
	if id == "" {
		return errors.NewValidationError("文档ID不能为空", nil)
	}

	if err := s.fs.DeleteFile(documentsDir, documentFilename(id)); err != nil {
		return errors.NewStorageError("删除文档失败", err)
	}

	return nil
}

// BulkAdd 批量插入文档
// 全有或全无：插入开始之前任何一个候选校验失败，整批都不插入
func (s *DocumentStore) BulkAdd(docs []*models.ScriptDocument) error {
	for i, doc := range docs {
		if !doc.HasValidShape() {
			return errors.NewImportShapeError(
				fmt.Sprintf("第 %d 个文档缺少标题或幕列表", i+1), nil)
		}
	}

	for _, doc := range docs {
		if _, err := s.Add(doc); err != nil {
			return err
		}
	}

	return nil
}
