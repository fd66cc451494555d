// internal/services/export_service_test.go
package services

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/Corphon/CineGenieMCP/internal/errors"
	"github.com/Corphon/CineGenieMCP/internal/models"
)

func newExportFixture(t *testing.T) (*serviceFixture, *ExportService) {
	t.Helper()

	f := newServiceFixture(t)
	return f, NewExportService(f.docs, f.images, f.videos)
}

// TestExportAll 测试全量导出
func TestExportAll(t *testing.T) {
	f, export := newExportFixture(t)
	f.createActiveScript(t)

	result, err := export.ExportAll()
	if err != nil {
		t.Fatalf("导出失败: %v", err)
	}

	if result.ContentType != "application/json" {
		t.Errorf("导出内容类型不正确: %s", result.ContentType)
	}
	if result.Size != int64(len(result.Data)) {
		t.Error("导出大小应该与数据长度一致")
	}

	var docs []models.ScriptDocument
	if err := json.Unmarshal(result.Data, &docs); err != nil {
		t.Fatalf("导出内容应该是剧本数组: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("导出的剧本数量不正确，期望: 1，实际: %d", len(docs))
	}
	if docs[0].Title != "Neon Rain" {
		t.Errorf("导出的标题不正确: %s", docs[0].Title)
	}
}

// TestExportBundle 测试单剧本打包导出的归档内容
func TestExportBundle(t *testing.T) {
	f, export := newExportFixture(t)
	f.createActiveScript(t)

	loc := models.SceneLocator{ActIndex: 0, SceneIndex: 0}
	if err := f.assets.GenerateSceneImage(context.Background(), loc, "p", "", models.AspectRatio16x9); err != nil {
		t.Fatalf("图片生成失败: %v", err)
	}
	if err := f.assets.GenerateSceneVideo(context.Background(), loc, models.AspectRatio16x9); err != nil {
		t.Fatalf("视频生成失败: %v", err)
	}

	result, err := export.ExportBundle(f.scripts.Active().ID)
	if err != nil {
		t.Fatalf("打包导出失败: %v", err)
	}
	if result.ContentType != "application/zip" {
		t.Errorf("归档内容类型不正确: %s", result.ContentType)
	}
	if result.FileName != "neon_rain.zip" {
		t.Errorf("归档文件名不正确: %s", result.FileName)
	}

	reader, err := zip.NewReader(bytes.NewReader(result.Data), int64(len(result.Data)))
	if err != nil {
		t.Fatalf("解析归档失败: %v", err)
	}

	entries := make(map[string][]byte)
	for _, file := range reader.File {
		rc, err := file.Open()
		if err != nil {
			t.Fatalf("打开归档条目失败: %v", err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("读取归档条目失败: %v", err)
		}
		entries[file.Name] = data
	}

	if _, ok := entries["script.json"]; !ok {
		t.Error("归档应该包含 script.json")
	}
	if !bytes.Equal(entries["scene_1_1.png"], []byte("png-bytes")) {
		t.Error("归档的图片条目应该是生成的载荷")
	}
	if !bytes.Equal(entries["scene_1_1.mp4"], []byte("mp4-bytes")) {
		t.Error("归档的视频条目应该是生成的载荷")
	}
}

// TestExportBundleSkipsMissingAssets 测试引用缺失时跳过归档条目
func TestExportBundleSkipsMissingAssets(t *testing.T) {
	f, export := newExportFixture(t)
	doc := f.createActiveScript(t)

	// 场景引用一个已不存在的资产
	updated := doc.Clone()
	updated.Acts[0].Scenes[0].GeneratedImageID = "gone"
	if err := f.scripts.SaveActive(updated); err != nil {
		t.Fatalf("保存剧本失败: %v", err)
	}

	result, err := export.ExportBundle(updated.ID)
	if err != nil {
		t.Fatalf("打包导出失败: %v", err)
	}

	reader, err := zip.NewReader(bytes.NewReader(result.Data), int64(len(result.Data)))
	if err != nil {
		t.Fatalf("解析归档失败: %v", err)
	}
	if len(reader.File) != 1 {
		t.Errorf("缺失引用应该被跳过，归档只含 script.json，实际条目数: %d", len(reader.File))
	}
}

// TestImportSingleAndArray 测试导入单个对象和数组
func TestImportSingleAndArray(t *testing.T) {
	_, export := newExportFixture(t)

	single := []byte(`{"title":"Solo","acts":[{"act_number":1,"scenes":[]}]}`)
	summary, err := export.Import(single)
	if err != nil {
		t.Fatalf("导入单个对象失败: %v", err)
	}
	if summary.Imported != 1 {
		t.Errorf("导入数量不正确，期望: 1，实际: %d", summary.Imported)
	}

	array := []byte(`[
		{"title":"A","acts":[{"act_number":1,"scenes":[]}]},
		{"title":"B","acts":[{"act_number":1,"scenes":[]}]}
	]`)
	summary, err = export.Import(array)
	if err != nil {
		t.Fatalf("导入数组失败: %v", err)
	}
	if summary.Imported != 2 {
		t.Errorf("导入数量不正确，期望: 2，实际: %d", summary.Imported)
	}
}

// TestExportImportRoundTrip 测试导出再导入的往返（ID之外等价）
func TestExportImportRoundTrip(t *testing.T) {
	f, export := newExportFixture(t)
	original := f.createActiveScript(t)

	result, err := export.ExportAll()
	if err != nil {
		t.Fatalf("导出失败: %v", err)
	}

	summary, err := export.Import(result.Data)
	if err != nil {
		t.Fatalf("回导失败: %v", err)
	}
	if summary.Imported != 1 {
		t.Fatalf("回导数量不正确，期望: 1，实际: %d", summary.Imported)
	}

	docs, err := f.docs.ListAll()
	if err != nil {
		t.Fatalf("列出文档失败: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("回导后文档数量不正确，期望: 2，实际: %d", len(docs))
	}

	var reimported *models.ScriptDocument
	for _, doc := range docs {
		if doc.ID != original.ID {
			reimported = doc
		}
	}
	if reimported == nil {
		t.Fatal("回导的文档应该拿到新ID")
	}
	if reimported.Title != original.Title || len(reimported.Acts) != len(original.Acts) {
		t.Error("回导的文档应该与原文档内容等价")
	}
}

// TestImportStripsIDs 测试导入时剥离候选自带的ID
func TestImportStripsIDs(t *testing.T) {
	f, export := newExportFixture(t)

	existing := f.createActiveScript(t)

	// 候选带着已有文档的ID，导入后必须生成新ID而不是覆盖
	payload := []byte(`{"id":"` + existing.ID + `","title":"Impostor","acts":[{"act_number":1,"scenes":[]}]}`)
	if _, err := export.Import(payload); err != nil {
		t.Fatalf("导入失败: %v", err)
	}

	original, err := f.docs.Get(existing.ID)
	if err != nil {
		t.Fatalf("读取原文档失败: %v", err)
	}
	if original.Title != "Neon Rain" {
		t.Error("导入不应覆盖已有文档")
	}

	docs, _ := f.docs.ListAll()
	if len(docs) != 2 {
		t.Errorf("导入后文档数量不正确，期望: 2，实际: %d", len(docs))
	}
}

// TestImportAtomicity 测试任一候选形状非法时整批中止
func TestImportAtomicity(t *testing.T) {
	f, export := newExportFixture(t)

	payload := []byte(`[
		{"title":"Good1","acts":[]},
		{"title":"NoActs"},
		{"title":"Good2","acts":[]}
	]`)

	_, err := export.Import(payload)
	if err == nil {
		t.Fatal("包含非法候选的导入应该失败")
	}
	if !errors.IsImportShapeError(err) {
		t.Errorf("错误类型应该是import_shape_error，实际: %v", err)
	}

	docs, listErr := f.docs.ListAll()
	if listErr != nil {
		t.Fatalf("列出文档失败: %v", listErr)
	}
	if len(docs) != 0 {
		t.Errorf("中止的导入不应留下任何文档，实际: %d", len(docs))
	}
}

// TestImportUnreadable 测试无法读取的导入输入
func TestImportUnreadable(t *testing.T) {
	_, export := newExportFixture(t)

	cases := [][]byte{
		nil,
		[]byte("   "),
		[]byte("{not json"),
		[]byte("[{broken"),
	}

	for _, data := range cases {
		if _, err := export.Import(data); err == nil {
			t.Errorf("非法输入 %q 应该导入失败", data)
		}
	}
}

// TestSafeArchiveName 测试标题到归档名的转换
func TestSafeArchiveName(t *testing.T) {
	cases := map[string]string{
		"Neon Rain":     "neon_rain",
		"A/B\\C":        "a_b_c",
		"":              "script",
		"Already_Clean": "already_clean",
	}

	for title, want := range cases {
		if got := safeArchiveName(title); got != want {
			t.Errorf("safeArchiveName(%q) = %q，期望 %q", title, got, want)
		}
	}
}
