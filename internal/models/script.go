// internal/models/script.go
package models

// AspectRatio 视频/图片的画面比例
type AspectRatio string

const (
	AspectRatio16x9 AspectRatio = "16:9"
	AspectRatio9x16 AspectRatio = "9:16"
	AspectRatio1x1  AspectRatio = "1:1"
	AspectRatio4x3  AspectRatio = "4:3"
	AspectRatio3x4  AspectRatio = "3:4"
)

// DefaultAspectRatio 未指定时使用的默认画面比例
const DefaultAspectRatio = AspectRatio16x9

// IsValid 检查画面比例是否在支持的集合内
func (r AspectRatio) IsValid() bool {
	switch r {
	case AspectRatio16x9, AspectRatio9x16, AspectRatio1x1, AspectRatio4x3, AspectRatio3x4:
		return true
	}
	return false
}

// ScriptSetting 剧本全局设置
type ScriptSetting struct {
	DefaultAspectRatio AspectRatio `json:"defaultAspectRatio"`
}

// ScriptDocument 剧本文档的根结构
// ID 由文档存储在首次持久化时分配，未保存的新文档 ID 为空
type ScriptDocument struct {
	ID      string        `json:"id,omitempty"`
	Title   string        `json:"title"`
	Logline string        `json:"logline"`
	Genre   []string      `json:"genre"`
	Setting ScriptSetting `json:"setting"`
	Acts    []Act         `json:"acts"`
}

// Act 剧本中的一幕
type Act struct {
	ActNumber int     `json:"act_number"`
	Summary   string  `json:"summary"`
	Scenes    []Scene `json:"scenes"`
}

// Scene 一幕中的一个场景，资产生成以场景为单位
// isGenerating* 标志只驱动会话内的 UI 状态，永远不会被序列化，
// 因此从存储加载的文档中它们总是 false
type Scene struct {
	SceneNumber int    `json:"scene_number"`
	Location    string `json:"location"`
	Time        string `json:"time"`
	Action      string `json:"action"`
	VisualStyle string `json:"visual_style"`
	AudioStyle  string `json:"audio_style"`

	GeneratedImageID string `json:"generatedImageId,omitempty"`
	GeneratedVideoID string `json:"generatedVideoId,omitempty"`

	IsGeneratingImage bool `json:"-"`
	IsGeneratingVideo bool `json:"-"`
}

// SceneLocator 通过 (幕索引, 场景索引) 定位场景
// 克隆之间不能保留场景指针，所有异步操作重新解析定位器
type SceneLocator struct {
	ActIndex   int `json:"act_index"`
	SceneIndex int `json:"scene_index"`
}

// SceneAt 按定位器解析场景，越界时返回 nil
func (d *ScriptDocument) SceneAt(loc SceneLocator) *Scene {
	if d == nil || loc.ActIndex < 0 || loc.ActIndex >= len(d.Acts) {
		return nil
	}
	act := &d.Acts[loc.ActIndex]
	if loc.SceneIndex < 0 || loc.SceneIndex >= len(act.Scenes) {
		return nil
	}
	return &act.Scenes[loc.SceneIndex]
}

// Clone 生成文档的深拷贝
// 活动文档采用写时复制策略：每次变更都在克隆上进行，
// 再整体替换活动引用，观察者永远不会看到撕裂的中间状态
func (d *ScriptDocument) Clone() *ScriptDocument {
	if d == nil {
		return nil
	}

	clone := *d

	if d.Genre != nil {
		clone.Genre = make([]string, len(d.Genre))
		copy(clone.Genre, d.Genre)
	}

	if d.Acts != nil {
		clone.Acts = make([]Act, len(d.Acts))
		for i, act := range d.Acts {
			clonedAct := act
			if act.Scenes != nil {
				clonedAct.Scenes = make([]Scene, len(act.Scenes))
				copy(clonedAct.Scenes, act.Scenes)
			}
			clone.Acts[i] = clonedAct
		}
	}

	return &clone
}

// HasValidShape 检查导入候选是否具备剧本文档的最小形状
// 判定标准与导入校验一致：必须带有标题字段和非空的幕列表
func (d *ScriptDocument) HasValidShape() bool {
	return d != nil && d.Title != "" && len(d.Acts) > 0
}
