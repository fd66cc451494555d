// internal/models/export.go
package models

import "time"

// ExportResult 导出操作的产物
type ExportResult struct {
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
	Data        []byte    `json:"-"`
}

// ImportSummary 导入操作的结果摘要
// 导入完成后调用方必须整体重新加载应用状态，
// 新文档不会被合并进任何内存中的视图
type ImportSummary struct {
	Imported int `json:"imported"`
}
