// internal/services/asset_service_test.go
package services

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/Corphon/CineGenieMCP/internal/errors"
	"github.com/Corphon/CineGenieMCP/internal/gen"
	"github.com/Corphon/CineGenieMCP/internal/models"
	"github.com/Corphon/CineGenieMCP/internal/storage"
	"github.com/Corphon/CineGenieMCP/internal/store"
)

// mockProvider 可编程的生成提供者
type mockProvider struct {
	imageResult *gen.MediaResult
	imageErr    error
	videoResult *gen.MediaResult
	videoErr    error

	lastImageRequest gen.ImageRequest
	lastVideoRequest gen.VideoRequest
}

func (p *mockProvider) Initialize(config map[string]string) error { return nil }
func (p *mockProvider) GetName() string                           { return "mock" }

func (p *mockProvider) GenerateScript(ctx context.Context, req gen.ScriptRequest) (*models.ScriptDocument, error) {
	return nil, fmt.Errorf("未实现")
}

func (p *mockProvider) SuggestPlotPoints(ctx context.Context, logline, language string) ([]string, error) {
	return nil, fmt.Errorf("未实现")
}

func (p *mockProvider) GenerateImage(ctx context.Context, req gen.ImageRequest) (*gen.MediaResult, error) {
	p.lastImageRequest = req
	return p.imageResult, p.imageErr
}

func (p *mockProvider) GenerateVideo(ctx context.Context, req gen.VideoRequest) (*gen.MediaResult, error) {
	p.lastVideoRequest = req
	return p.videoResult, p.videoErr
}

// mockResolver 返回固定提供者的解析器
type mockResolver struct {
	provider gen.Provider
	err      error
}

func (r *mockResolver) Resolve() (gen.Provider, error) {
	return r.provider, r.err
}

// countingObserver 统计通知次数
type countingObserver struct {
	count int
}

func (o *countingObserver) OnAssetsChanged() {
	o.count++
}

// serviceFixture 资产服务测试的完整装配
type serviceFixture struct {
	docs     *store.DocumentStore
	images   *store.BlobStore
	videos   *store.BlobStore
	scripts  *ScriptService
	assets   *AssetService
	provider *mockProvider
	observer *countingObserver
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	fs, err := storage.NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("创建文件存储失败: %v", err)
	}

	docs := store.NewDocumentStore(fs)
	images := store.NewBlobStore(fs, models.AssetKindImage)
	videos := store.NewBlobStore(fs, models.AssetKindVideo)

	notifier := NewNotifier()
	observer := &countingObserver{}
	notifier.Subscribe(observer)

	scripts := NewScriptService(docs, images, videos, notifier)

	provider := &mockProvider{
		imageResult: &gen.MediaResult{Data: []byte("png-bytes"), MediaType: "image/png"},
		videoResult: &gen.MediaResult{Data: []byte("mp4-bytes"), MediaType: "video/mp4"},
	}
	resolver := &mockResolver{provider: provider}

	assets := NewAssetService(scripts, docs, images, videos, notifier, resolver)

	return &serviceFixture{
		docs:     docs,
		images:   images,
		videos:   videos,
		scripts:  scripts,
		assets:   assets,
		provider: provider,
		observer: observer,
	}
}

// createActiveScript 创建并激活一个带两幕的剧本
func (f *serviceFixture) createActiveScript(t *testing.T) *models.ScriptDocument {
	t.Helper()

	doc := &models.ScriptDocument{
		Title:   "Neon Rain",
		Setting: models.ScriptSetting{DefaultAspectRatio: models.AspectRatio16x9},
		Acts: []models.Act{
			{
				ActNumber: 1,
				Scenes: []models.Scene{
					{SceneNumber: 1, Location: "Alley", Time: "Night", Action: "Rain falls", VisualStyle: "noir", AudioStyle: "jazz"},
					{SceneNumber: 2, Location: "Bar", Time: "Night", Action: "A deal"},
				},
			},
		},
	}

	if _, err := f.scripts.CreateScript(doc); err != nil {
		t.Fatalf("创建剧本失败: %v", err)
	}
	return doc
}

// TestGenerateSceneImageCommit 测试图片生成的完整提交路径
func TestGenerateSceneImageCommit(t *testing.T) {
	f := newServiceFixture(t)
	f.createActiveScript(t)

	loc := models.SceneLocator{ActIndex: 0, SceneIndex: 0}
	err := f.assets.GenerateSceneImage(context.Background(), loc, "neon alley", "blurry", models.AspectRatio16x9)
	if err != nil {
		t.Fatalf("图片生成失败: %v", err)
	}

	// 提供者收到的请求参数
	if f.provider.lastImageRequest.Prompt != "neon alley" {
		t.Errorf("提示词不正确: %s", f.provider.lastImageRequest.Prompt)
	}
	if f.provider.lastImageRequest.AspectRatio != models.AspectRatio16x9 {
		t.Errorf("画面比例不正确: %s", f.provider.lastImageRequest.AspectRatio)
	}

	// 活动文档上的引用已提交，生成标志已清除
	active := f.scripts.Active()
	scene := active.SceneAt(loc)
	if scene.GeneratedImageID == "" {
		t.Fatal("活动文档应该持有生成图片的引用")
	}
	if scene.IsGeneratingImage {
		t.Error("提交后生成标志应该已清除")
	}

	// 引用已持久化，载荷可以读回
	persisted, err := f.docs.Get(active.ID)
	if err != nil {
		t.Fatalf("读取持久化文档失败: %v", err)
	}
	persistedScene := persisted.SceneAt(loc)
	if persistedScene.GeneratedImageID != scene.GeneratedImageID {
		t.Error("持久化文档的引用应该与活动文档一致")
	}
	if persistedScene.IsGeneratingImage {
		t.Error("持久化副本永远不应带有生成标志")
	}

	record, err := f.images.Get(scene.GeneratedImageID)
	if err != nil {
		t.Fatalf("读取生成图片失败: %v", err)
	}
	if !bytes.Equal(record.Data, []byte("png-bytes")) {
		t.Error("读取的载荷应该与生成结果一致")
	}
	if record.ScriptID != active.ID {
		t.Error("资产应该标记所属剧本")
	}

	if f.observer.count == 0 {
		t.Error("成功生成后应该广播资产变更")
	}
}

// TestGenerateSceneImageRollback 测试生成失败时回滚到请求前快照
func TestGenerateSceneImageRollback(t *testing.T) {
	f := newServiceFixture(t)
	f.createActiveScript(t)
	before := f.scripts.Active()

	f.provider.imageResult = nil
	f.provider.imageErr = fmt.Errorf("上游超时")

	loc := models.SceneLocator{ActIndex: 0, SceneIndex: 0}
	err := f.assets.GenerateSceneImage(context.Background(), loc, "p", "", models.AspectRatio16x9)
	if err == nil {
		t.Fatal("提供者失败时生成应该返回错误")
	}
	if !errors.IsGenerationError(err) {
		t.Errorf("错误类型应该是generation_error，实际: %v", err)
	}

	// 回滚后的活动文档没有引用也没有标志
	active := f.scripts.Active()
	scene := active.SceneAt(loc)
	if scene.GeneratedImageID != "" {
		t.Error("回滚后不应留下资产引用")
	}
	if scene.IsGeneratingImage {
		t.Error("回滚后生成标志应该已清除")
	}
	if active == before {
		t.Error("回滚应该发布新的文档实例")
	}

	// 没有资产残留
	infos, _ := f.images.ListAll()
	if len(infos) != 0 {
		t.Errorf("失败的生成不应留下资产，实际: %d", len(infos))
	}

	// 持久化文档与请求前完全一致
	persisted, err := f.docs.Get(before.ID)
	if err != nil {
		t.Fatalf("读取持久化文档失败: %v", err)
	}
	persistedScene := persisted.SceneAt(loc)
	if persistedScene.GeneratedImageID != "" || persistedScene.IsGeneratingImage {
		t.Error("失败的生成不应改变持久化文档")
	}
}

// TestGenerateSceneImageWithoutActiveScript 测试没有活动剧本时的拒绝
func TestGenerateSceneImageWithoutActiveScript(t *testing.T) {
	f := newServiceFixture(t)

	loc := models.SceneLocator{ActIndex: 0, SceneIndex: 0}
	err := f.assets.GenerateSceneImage(context.Background(), loc, "p", "", models.AspectRatio16x9)
	if err == nil {
		t.Fatal("没有活动剧本时生成应该被拒绝")
	}
	if !errors.IsValidationError(err) {
		t.Errorf("错误类型应该是validation_error，实际: %v", err)
	}
}

// TestGenerateSceneVideoPromptAndSeed 测试视频提示词组装和种子图传递
func TestGenerateSceneVideoPromptAndSeed(t *testing.T) {
	f := newServiceFixture(t)
	f.createActiveScript(t)

	loc := models.SceneLocator{ActIndex: 0, SceneIndex: 0}

	// 先生成场景图片作为种子
	if err := f.assets.GenerateSceneImage(context.Background(), loc, "p", "", models.AspectRatio16x9); err != nil {
		t.Fatalf("图片生成失败: %v", err)
	}

	if err := f.assets.GenerateSceneVideo(context.Background(), loc, models.AspectRatio16x9); err != nil {
		t.Fatalf("视频生成失败: %v", err)
	}

	expectedPrompt := "Cinematic shot for a movie scene. Location: Alley (Night). Action: Rain falls. Visual style: noir. Audio style: jazz."
	if f.provider.lastVideoRequest.Prompt != expectedPrompt {
		t.Errorf("视频提示词不正确:\n期望: %s\n实际: %s", expectedPrompt, f.provider.lastVideoRequest.Prompt)
	}

	seed := f.provider.lastVideoRequest.SeedImage
	if seed == nil {
		t.Fatal("场景已有图片时应该传入种子图")
	}
	if !bytes.Equal(seed.Data, []byte("png-bytes")) {
		t.Error("种子图载荷应该是场景图片的字节")
	}
	if seed.MimeType != "image/png" {
		t.Errorf("种子图媒体类型不正确: %s", seed.MimeType)
	}

	if f.scripts.Active().SceneAt(loc).GeneratedVideoID == "" {
		t.Error("活动文档应该持有生成视频的引用")
	}
}

// TestGenerateSceneVideoSeedMissing 测试种子图缺失时的退化继续
func TestGenerateSceneVideoSeedMissing(t *testing.T) {
	f := newServiceFixture(t)
	doc := f.createActiveScript(t)

	// 场景引用一个已不存在的图片
	updated := doc.Clone()
	updated.Acts[0].Scenes[0].GeneratedImageID = "deleted-image"
	if err := f.scripts.SaveActive(updated); err != nil {
		t.Fatalf("保存剧本失败: %v", err)
	}

	loc := models.SceneLocator{ActIndex: 0, SceneIndex: 0}
	if err := f.assets.GenerateSceneVideo(context.Background(), loc, models.AspectRatio16x9); err != nil {
		t.Fatalf("种子图缺失不应导致生成失败: %v", err)
	}

	if f.provider.lastVideoRequest.SeedImage != nil {
		t.Error("种子图缺失时应该无种子继续生成")
	}
	if f.scripts.Active().SceneAt(loc).GeneratedVideoID == "" {
		t.Error("退化生成仍应提交视频引用")
	}
}

// TestCancelGenerating 测试取消只清除可见状态
func TestCancelGenerating(t *testing.T) {
	f := newServiceFixture(t)
	doc := f.createActiveScript(t)

	// 模拟生成中的可见状态
	inFlight := doc.Clone()
	inFlight.Acts[0].Scenes[0].IsGeneratingImage = true
	f.scripts.Publish(inFlight)

	loc := models.SceneLocator{ActIndex: 0, SceneIndex: 0}
	f.assets.CancelGenerateSceneImage(loc)

	active := f.scripts.Active()
	if active.SceneAt(loc).IsGeneratingImage {
		t.Error("取消后生成标志应该已清除")
	}
	if active == inFlight {
		t.Error("取消应该发布新的文档实例")
	}
}

// TestDeleteSceneAssetIdempotent 测试场景资产删除和重复删除
func TestDeleteSceneAssetIdempotent(t *testing.T) {
	f := newServiceFixture(t)
	f.createActiveScript(t)

	loc := models.SceneLocator{ActIndex: 0, SceneIndex: 0}
	if err := f.assets.GenerateSceneImage(context.Background(), loc, "p", "", models.AspectRatio16x9); err != nil {
		t.Fatalf("图片生成失败: %v", err)
	}
	assetID := f.scripts.Active().SceneAt(loc).GeneratedImageID

	if err := f.assets.DeleteSceneImage(loc); err != nil {
		t.Fatalf("删除场景图片失败: %v", err)
	}

	// 记录和引用都已删除
	if _, err := f.images.Get(assetID); !errors.IsNotFoundError(err) {
		t.Error("删除后资产记录不应存在")
	}
	if f.scripts.Active().SceneAt(loc).GeneratedImageID != "" {
		t.Error("删除后场景不应保留引用")
	}

	// 引用已清除的持久化状态
	persisted, err := f.docs.Get(f.scripts.Active().ID)
	if err != nil {
		t.Fatalf("读取持久化文档失败: %v", err)
	}
	if persisted.SceneAt(loc).GeneratedImageID != "" {
		t.Error("引用清除应该已持久化")
	}

	// 第二次删除是空操作
	notifications := f.observer.count
	if err := f.assets.DeleteSceneImage(loc); err != nil {
		t.Errorf("重复删除应该是空操作，实际返回错误: %v", err)
	}
	if f.observer.count != notifications {
		t.Error("空操作的删除不应广播资产变更")
	}
}

// TestDeleteAssetFromGallery 测试资产优先的删除路径
func TestDeleteAssetFromGallery(t *testing.T) {
	f := newServiceFixture(t)
	f.createActiveScript(t)

	loc := models.SceneLocator{ActIndex: 0, SceneIndex: 0}
	if err := f.assets.GenerateSceneImage(context.Background(), loc, "p", "", models.AspectRatio16x9); err != nil {
		t.Fatalf("图片生成失败: %v", err)
	}

	active := f.scripts.Active()
	assetID := active.SceneAt(loc).GeneratedImageID
	scriptID := active.ID

	if err := f.assets.DeleteAssetFromGallery(models.AssetKindImage, assetID, scriptID); err != nil {
		t.Fatalf("资产库删除失败: %v", err)
	}

	// 记录已删除，文档引用已修复，内存视图已同步
	if _, err := f.images.Get(assetID); !errors.IsNotFoundError(err) {
		t.Error("删除后资产记录不应存在")
	}
	persisted, err := f.docs.Get(scriptID)
	if err != nil {
		t.Fatalf("读取持久化文档失败: %v", err)
	}
	if persisted.SceneAt(loc).GeneratedImageID != "" {
		t.Error("持久化文档的悬空引用应该已清除")
	}
	if f.scripts.Active().SceneAt(loc).GeneratedImageID != "" {
		t.Error("活动文档的悬空引用应该已清除")
	}
}

// TestDeleteAssetFromGalleryNonActiveScript 测试针对非活动剧本的资产库删除
func TestDeleteAssetFromGalleryNonActiveScript(t *testing.T) {
	f := newServiceFixture(t)

	// 持久化一个带引用的剧本，但不设为活动文档
	assetID, err := f.images.Add([]byte{1}, "image/png", "placeholder")
	if err != nil {
		t.Fatalf("保存资产失败: %v", err)
	}

	doc := &models.ScriptDocument{
		Title: "Dormant",
		Acts: []models.Act{
			{ActNumber: 1, Scenes: []models.Scene{{SceneNumber: 1, GeneratedImageID: assetID}}},
		},
	}
	scriptID, err := f.docs.Add(doc)
	if err != nil {
		t.Fatalf("保存剧本失败: %v", err)
	}
	f.scripts.Publish(nil)

	notificationsBefore := f.observer.count
	if err := f.assets.DeleteAssetFromGallery(models.AssetKindImage, assetID, scriptID); err != nil {
		t.Fatalf("资产库删除失败: %v", err)
	}

	persisted, err := f.docs.Get(scriptID)
	if err != nil {
		t.Fatalf("读取持久化文档失败: %v", err)
	}
	if persisted.Acts[0].Scenes[0].GeneratedImageID != "" {
		t.Error("非活动剧本的悬空引用应该已清除")
	}
	if f.scripts.Active() != nil {
		t.Error("删除非活动剧本的资产不应改变活动文档")
	}
	if f.observer.count != notificationsBefore+1 {
		t.Errorf("删除应该恰好广播一次，实际: %d", f.observer.count-notificationsBefore)
	}
}

// TestDeleteAssetFromGalleryOwnerMissing 测试所属剧本已删除时的资产库删除
func TestDeleteAssetFromGalleryOwnerMissing(t *testing.T) {
	f := newServiceFixture(t)

	id, err := f.images.Add([]byte{1}, "image/png", "gone-script")
	if err != nil {
		t.Fatalf("保存资产失败: %v", err)
	}

	if err := f.assets.DeleteAssetFromGallery(models.AssetKindImage, id, "gone-script"); err != nil {
		t.Fatalf("所属剧本缺失不应导致删除失败: %v", err)
	}

	if _, err := f.images.Get(id); !errors.IsNotFoundError(err) {
		t.Error("资产记录应该已删除")
	}
}

// TestListAssetsMergedNewestFirst 测试资产库列表合并两类资产并按时间倒序
func TestListAssetsMergedNewestFirst(t *testing.T) {
	f := newServiceFixture(t)

	if _, err := f.images.Add([]byte{1}, "image/png", "s1"); err != nil {
		t.Fatalf("保存图片失败: %v", err)
	}
	if _, err := f.videos.Add([]byte{2}, "video/mp4", "s1"); err != nil {
		t.Fatalf("保存视频失败: %v", err)
	}

	infos, err := f.assets.ListAssets()
	if err != nil {
		t.Fatalf("列出资产失败: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("资产数量不正确，期望: 2，实际: %d", len(infos))
	}
	for i := 1; i < len(infos); i++ {
		if infos[i].CreatedAt.After(infos[i-1].CreatedAt) {
			t.Error("资产列表应该按创建时间倒序")
		}
	}
}

// TestCascadeDeleteScript 测试删除剧本时级联删除其资产
func TestCascadeDeleteScript(t *testing.T) {
	f := newServiceFixture(t)
	f.createActiveScript(t)

	loc := models.SceneLocator{ActIndex: 0, SceneIndex: 0}
	if err := f.assets.GenerateSceneImage(context.Background(), loc, "p", "", models.AspectRatio16x9); err != nil {
		t.Fatalf("图片生成失败: %v", err)
	}
	if err := f.assets.GenerateSceneVideo(context.Background(), loc, models.AspectRatio16x9); err != nil {
		t.Fatalf("视频生成失败: %v", err)
	}

	scriptID := f.scripts.Active().ID
	if err := f.scripts.DeleteScript(scriptID); err != nil {
		t.Fatalf("删除剧本失败: %v", err)
	}

	if _, err := f.docs.Get(scriptID); !errors.IsNotFoundError(err) {
		t.Error("剧本文档应该已删除")
	}
	imageInfos, _ := f.images.ListAll()
	videoInfos, _ := f.videos.ListAll()
	if len(imageInfos) != 0 || len(videoInfos) != 0 {
		t.Errorf("级联删除后不应留下资产，图片: %d，视频: %d", len(imageInfos), len(videoInfos))
	}
	if f.scripts.Active() != nil {
		t.Error("删除活动剧本后活动文档应该清空")
	}
}
