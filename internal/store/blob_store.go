// internal/store/blob_store.go
package store

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Corphon/CineGenieMCP/internal/errors"
	"github.com/Corphon/CineGenieMCP/internal/models"
	"github.com/Corphon/CineGenieMCP/internal/storage"
	"github.com/google/uuid"
)

// BlobStore 生成媒体资产的持久化存储
// 每条记录由元数据 JSON 和二进制载荷两个文件组成
// 记录只增不改：创建是成功生成的最后一步，之后唯一的操作是删除
type BlobStore struct {
	fs   *storage.FileStorage
	kind models.AssetKind
	dir  string
}

// NewBlobStore 创建指定资产类型的存储
// 图片和视频各有独立的存储目录，互不可见
func NewBlobStore(fs *storage.FileStorage, kind models.AssetKind) *BlobStore {
	return &BlobStore{
		fs:   fs,
		kind: kind,
		dir:  filepath.Join("assets", string(kind) + "s"),
	}
}

// Kind 返回该存储承载的资产类型
func (s *BlobStore) Kind() models.AssetKind {
	return s.kind
}

func metaFilename(id string) string {
	return id + ".json"
}

func payloadFilename(id string) string {
	return id + ".bin"
}

// Add 写入一条新资产记录，返回存储分配的 ID
func (s *BlobStore) Add(data []byte, mediaType, scriptID string) (string, error) {
	if len(data) == 0 {
		return "", errors.NewValidationError("资产载荷不能为空", nil)
	}
	if scriptID == "" {
		return "", errors.NewValidationError("资产必须标记所属剧本", nil)
	}

	id := uuid.NewString()

	record := models.AssetRecord{
		ID:        id,
		ScriptID:  scriptID,
		Kind:      s.kind,
		MediaType: mediaType,
		Size:      int64(len(data)),
		CreatedAt: time.Now(),
	}

	if err := s.fs.SaveBinaryFile(s.dir, payloadFilename(id), data); err != nil {
		return "", errors.NewStorageError("保存资产载荷失败", err)
	}

	if err := s.fs.SaveJSONFile(s.dir, metaFilename(id), &record); err != nil {
		// 元数据写入失败时回收已写入的载荷
		s.fs.DeleteFile(s.dir, payloadFilename(id))
		return "", errors.NewStorageError("保存资产元数据失败", err)
	}

	return id, nil
}

// Get 读取一条资产记录（含载荷），不存在时返回 not_found 错误
func (s *BlobStore) Get(id string) (*models.AssetRecord, error) {
	if id == "" {
		return nil, errors.NewValidationError("资产ID不能为空", nil)
	}

	if !s.fs.FileExists(s.dir, metaFilename(id)) {
		return nil, errors.NewNotFoundError(fmt.Sprintf("资产不存在: %s", id), nil)
	}

	var record models.AssetRecord
	if err := s.fs.LoadJSONFile(s.dir, metaFilename(id), &record); err != nil {
		return nil, errors.NewStorageError("读取资产元数据失败", err)
	}

	data, err := s.fs.LoadBinaryFile(s.dir, payloadFilename(id))
	if err != nil {
		return nil, errors.NewStorageError("读取资产载荷失败", err)
	}
	record.Data = data

	return &record, nil
}

// Delete 删除一条资产记录
// 幂等：删除不存在的 ID 是空操作
func (s *BlobStore) Delete(id string) error {
	if id == "" {
		return errors.NewValidationError("资产ID不能为空", nil)
	}

	if err := s.fs.DeleteFile(s.dir, metaFilename(id)); err != nil {
		return errors.NewStorageError("删除资产元数据失败", err)
	}
	if err := s.fs.DeleteFile(s.dir, payloadFilename(id)); err != nil {
		return errors.NewStorageError("删除资产载荷失败", err)
	}

	return nil
}

// ListAll 列出所有资产的元数据，按创建时间倒序（最新在前）
func (s *BlobStore) ListAll() ([]models.AssetInfo, error) {
	files, err := s.fs.ListFiles(s.dir, ".json")
	if err != nil {
		return nil, errors.NewStorageError("列出资产失败", err)
	}

	infos := make([]models.AssetInfo, 0, len(files))
	for _, filename := range files {
		id := strings.TrimSuffix(filename, ".json")

		var record models.AssetRecord
		if err := s.fs.LoadJSONFile(s.dir, metaFilename(id), &record); err != nil {
			// 列表途中被删除的记录直接跳过
			continue
		}
		infos = append(infos, record.Info())
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.After(infos[j].CreatedAt)
	})

	return infos, nil
}

// ListByScript 列出属于指定剧本的所有资产（用于级联删除）
func (s *BlobStore) ListByScript(scriptID string) ([]models.AssetInfo, error) {
	all, err := s.ListAll()
	if err != nil {
		return nil, err
	}

	var infos []models.AssetInfo
	for _, info := range all {
		if info.ScriptID == scriptID {
			infos = append(infos, info)
		}
	}

	return infos, nil
}
