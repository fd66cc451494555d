// internal/services/export_service.go
package services

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Corphon/CineGenieMCP/internal/errors"
	"github.com/Corphon/CineGenieMCP/internal/models"
	"github.com/Corphon/CineGenieMCP/internal/store"
)

// ExportService 剧本的导出与导入
//
// 纯文本导出不内嵌二进制资产：引用 ID 在另一套存储实例里
// 没有意义，这是记录在案的限制。打包导出把活动剧本和
// 已解析的资产载荷一起放进 zip
type ExportService struct {
	docs   *store.DocumentStore
	images *store.BlobStore
	videos *store.BlobStore
}

// NewExportService 创建导出服务
func NewExportService(docs *store.DocumentStore, images, videos *store.BlobStore) *ExportService {
	return &ExportService{
		docs:   docs,
		images: images,
		videos: videos,
	}
}

// ExportAll 导出全部剧本为格式化 JSON 数组（不含二进制资产）
func (s *ExportService) ExportAll() (*models.ExportResult, error) {
	docs, err := s.docs.ListAll()
	if err != nil {
		return nil, err
	}

	content, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return nil, errors.NewProcessingError("序列化剧本失败", err)
	}

	return &models.ExportResult{
		FileName:    fmt.Sprintf("cinegenie-scripts-%s.json", time.Now().Format("2006-01-02")),
		ContentType: "application/json",
		Size:        int64(len(content)),
		CreatedAt:   time.Now(),
		Data:        content,
	}, nil
}

var unsafeTitleChars = regexp.MustCompile(`[^a-zA-Z0-9]`)

// safeArchiveName 把剧本标题转成安全的文件名
func safeArchiveName(title string) string {
	safe := strings.ToLower(unsafeTitleChars.ReplaceAllString(title, "_"))
	if safe == "" {
		safe = "script"
	}
	return safe
}

// ExportBundle 导出单个剧本的打包归档
// 归档包含 script.json 和每个已解析资产引用的二进制条目，
// 条目名由幕号和场景号导出。引用指向的记录缺失时跳过该条目
func (s *ExportService) ExportBundle(id string) (*models.ExportResult, error) {
	doc, err := s.docs.Get(id)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zipWriter := zip.NewWriter(&buf)

	scriptJSON, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, errors.NewProcessingError("序列化剧本失败", err)
	}

	if err := writeZipEntry(zipWriter, "script.json", scriptJSON); err != nil {
		return nil, err
	}

	for _, act := range doc.Acts {
		for _, scene := range act.Scenes {
			if scene.GeneratedImageID != "" {
				record, err := s.images.Get(scene.GeneratedImageID)
				if err == nil {
					name := fmt.Sprintf("scene_%d_%d%s", act.ActNumber, scene.SceneNumber, models.AssetKindImage.FileExtension())
					if err := writeZipEntry(zipWriter, name, record.Data); err != nil {
						return nil, err
					}
				}
			}
			if scene.GeneratedVideoID != "" {
				record, err := s.videos.Get(scene.GeneratedVideoID)
				if err == nil {
					name := fmt.Sprintf("scene_%d_%d%s", act.ActNumber, scene.SceneNumber, models.AssetKindVideo.FileExtension())
					if err := writeZipEntry(zipWriter, name, record.Data); err != nil {
						return nil, err
					}
				}
			}
		}
	}

	if err := zipWriter.Close(); err != nil {
		return nil, errors.NewProcessingError("生成归档失败", err)
	}

	content := buf.Bytes()
	return &models.ExportResult{
		FileName:    safeArchiveName(doc.Title) + ".zip",
		ContentType: "application/zip",
		Size:        int64(len(content)),
		CreatedAt:   time.Now(),
		Data:        content,
	}, nil
}

func writeZipEntry(zipWriter *zip.Writer, name string, data []byte) error {
	writer, err := zipWriter.Create(name)
	if err != nil {
		return errors.NewProcessingError("创建归档条目失败", err)
	}
	if _, err := writer.Write(data); err != nil {
		return errors.NewProcessingError("写入归档条目失败", err)
	}
	return nil
}

// shapeProbe 用于导入候选的最小形状检查：
// 必须带有标题字段和幕字段
type shapeProbe struct {
	Title *json.RawMessage `json:"title"`
	Acts  *json.RawMessage `json:"acts"`
}

// Import 解析导入文件并批量插入
//
// 输入可以是单个剧本对象或剧本数组。任何一个候选形状不合法，
// 整批中止、零插入。插入前剥离候选自带的 ID，避免与已有记录
// 冲突或覆盖。成功后调用方需要整体重新加载应用状态
func (s *ExportService) Import(data []byte) (*models.ImportSummary, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.NewImportReadError("导入文件为空", nil)
	}

	// 统一成候选数组：数组原样使用，单个对象包装成单元素数组
	var rawCandidates []json.RawMessage
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &rawCandidates); err != nil {
			return nil, errors.NewImportReadError("无法解析导入文件", err)
		}
	} else {
		var single json.RawMessage
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return nil, errors.NewImportReadError("无法解析导入文件", err)
		}
		rawCandidates = []json.RawMessage{single}
	}

	if len(rawCandidates) == 0 {
		return &models.ImportSummary{Imported: 0}, nil
	}

	docs := make([]*models.ScriptDocument, 0, len(rawCandidates))
	for i, raw := range rawCandidates {
		var probe shapeProbe
		if err := json.Unmarshal(raw, &probe); err != nil {
			return nil, errors.NewImportShapeError(
				fmt.Sprintf("第 %d 个候选不是对象", i+1), err)
		}
		if probe.Title == nil || probe.Acts == nil {
			return nil, errors.NewImportShapeError(
				fmt.Sprintf("第 %d 个候选缺少标题或幕字段", i+1), nil)
		}

		var doc models.ScriptDocument
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, errors.NewImportShapeError(
				fmt.Sprintf("第 %d 个候选无法解析为剧本", i+1), err)
		}

		// 剥离已有身份，作为新文档插入
		doc.ID = ""

		docs = append(docs, &doc)
	}

	if err := s.docs.BulkAdd(docs); err != nil {
		return nil, err
	}

	return &models.ImportSummary{Imported: len(docs)}, nil
}
