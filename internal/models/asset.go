// internal/models/asset.go
package models

import "time"

// AssetKind 资产类型
type AssetKind string

const (
	AssetKindImage AssetKind = "image"
	AssetKindVideo AssetKind = "video"
)

// IsValid 检查资产类型是否合法
func (k AssetKind) IsValid() bool {
	return k == AssetKindImage || k == AssetKindVideo
}

// FileExtension 资产类型对应的导出文件扩展名
func (k AssetKind) FileExtension() string {
	if k == AssetKindVideo {
		return ".mp4"
	}
	return ".png"
}

// AssetRecord 资产存储中的一条记录
// 载荷一经写入不再修改，删除是唯一的后续操作
// ScriptID 标记所属剧本，让资产优先的删除路径无需依赖内存中的活动文档
type AssetRecord struct {
	ID        string    `json:"id"`
	ScriptID  string    `json:"scriptId"`
	Kind      AssetKind `json:"kind"`
	MediaType string    `json:"media_type"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`

	// 二进制载荷单独存放，列表接口不携带
	Data []byte `json:"-"`
}

// AssetInfo 资产库列表视图使用的轻量条目（不含载荷）
type AssetInfo struct {
	ID        string    `json:"id"`
	ScriptID  string    `json:"scriptId"`
	Kind      AssetKind `json:"kind"`
	MediaType string    `json:"media_type"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Info 返回记录的列表视图
func (r *AssetRecord) Info() AssetInfo {
	return AssetInfo{
		ID:        r.ID,
		ScriptID:  r.ScriptID,
		Kind:      r.Kind,
		MediaType: r.MediaType,
		Size:      r.Size,
		CreatedAt: r.CreatedAt,
	}
}

// SeedImage 视频生成可选的首帧种子图
type SeedImage struct {
	MimeType string
	Data     []byte
}
