// internal/gen/providers/google/google.go
package google

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Corphon/CineGenieMCP/internal/gen"
	"github.com/Corphon/CineGenieMCP/internal/models"
)

func init() {
	gen.Register("google", func() gen.Provider {
		return &Provider{
			baseURL: "https://generativelanguage.googleapis.com/v1beta",
		}
	})
}

// Provider 基于 Gemini REST API 的生成提供者
// 文本走 generateContent，图片走 Imagen predict，视频走 Veo 长时操作
type Provider struct {
	apiKey       string
	baseURL      string
	client       *http.Client
	textModel    string
	imageModel   string
	videoModel   string
	pollInterval time.Duration
}

func (p *Provider) Initialize(config map[string]string) error {
	apiKey, exists := config["api_key"]
	if !exists || apiKey == "" {
		return errors.New("google_api密钥未提供")
	}

	p.apiKey = apiKey
	p.client = &http.Client{}
	p.pollInterval = 5 * time.Second

	if model, exists := config["text_model"]; exists && model != "" {
		p.textModel = model
	} else {
		p.textModel = "gemini-2.5-flash"
	}

	if model, exists := config["image_model"]; exists && model != "" {
		p.imageModel = model
	} else {
		p.imageModel = "imagen-3.0-generate-002"
	}

	if model, exists := config["video_model"]; exists && model != "" {
		p.videoModel = model
	} else {
		p.videoModel = "veo-2.0-generate-001"
	}

	if baseURL, exists := config["base_url"]; exists && baseURL != "" {
		p.baseURL = baseURL
	}

	return nil
}

func (p *Provider) GetName() string {
	return "google gemini"
}

// postJSON 发送请求并返回响应体，非 200 时解析 API 错误信息
func (p *Provider) postJSON(ctx context.Context, url string, body interface{}) ([]byte, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, _ := io.ReadAll(httpResp.Body)

	if httpResp.StatusCode != http.StatusOK {
		var errorResp map[string]interface{}
		if err := json.Unmarshal(respBody, &errorResp); err == nil {
			if errorObj, ok := errorResp["error"].(map[string]interface{}); ok {
				return nil, fmt.Errorf("google gemini API错误(%d): %v",
					httpResp.StatusCode, errorObj["message"])
			}
		}
		return nil, fmt.Errorf("google gemini API错误(%d): %s", httpResp.StatusCode, string(respBody))
	}

	return respBody, nil
}

// generateText 调用 generateContent 并返回合并后的文本
func (p *Provider) generateText(ctx context.Context, prompt, systemPrompt string, jsonOutput bool) (string, error) {
	requestBody := map[string]interface{}{
		"contents": []map[string]interface{}{
			{"role": "user", "parts": []map[string]string{{"text": prompt}}},
		},
	}

	if systemPrompt != "" {
		requestBody["systemInstruction"] = map[string]interface{}{
			"parts": []map[string]string{{"text": systemPrompt}},
		}
	}

	if jsonOutput {
		requestBody["generationConfig"] = map[string]interface{}{
			"responseMimeType": "application/json",
		}
	}

	apiURL := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.baseURL, p.textModel, p.apiKey)

	respBody, err := p.postJSON(ctx, apiURL, requestBody)
	if err != nil {
		return "", err
	}

	var response struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}

	if err := json.Unmarshal(respBody, &response); err != nil {
		return "", err
	}

	if len(response.Candidates) == 0 {
		return "", errors.New("google gemini未返回任何结果")
	}

	var resultText string
	for _, part := range response.Candidates[0].Content.Parts {
		resultText += part.Text
	}

	return resultText, nil
}

const scriptSystemPrompt = `You are a professional screenwriter. Respond with a single JSON object describing a movie script with this exact shape:
{"title": string, "logline": string, "genre": [string], "setting": {"defaultAspectRatio": "16:9"}, "acts": [{"act_number": number, "summary": string, "scenes": [{"scene_number": number, "location": string, "time": string, "action": string, "visual_style": string, "audio_style": string}]}]}
Act numbers start at 1 and are unique; scene numbers start at 1 within each act. Do not include any other fields or commentary.`

// GenerateScript 生成完整剧本文档
func (p *Provider) GenerateScript(ctx context.Context, req gen.ScriptRequest) (*models.ScriptDocument, error) {
	systemPrompt := scriptSystemPrompt
	if req.Language != "" {
		systemPrompt += fmt.Sprintf(" Write all textual content in the language %s.", req.Language)
	}

	text, err := p.generateText(ctx, req.Prompt, systemPrompt, true)
	if err != nil {
		return nil, err
	}

	var doc models.ScriptDocument
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &doc); err != nil {
		return nil, fmt.Errorf("解析生成的剧本JSON失败: %w", err)
	}

	// 生成结果不携带存储ID
	doc.ID = ""

	if len(doc.Acts) == 0 {
		return nil, errors.New("生成的剧本缺少幕结构")
	}

	return &doc, nil
}

// SuggestPlotPoints 根据故事梗概生成情节要点建议
func (p *Provider) SuggestPlotPoints(ctx context.Context, logline string, language string) ([]string, error) {
	systemPrompt := "You are a story development assistant. Respond with a JSON array of 3 to 5 short plot point suggestions (strings), nothing else."
	if language != "" {
		systemPrompt += fmt.Sprintf(" Write the suggestions in the language %s.", language)
	}

	text, err := p.generateText(ctx, logline, systemPrompt, true)
	if err != nil {
		return nil, err
	}

	var suggestions []string
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &suggestions); err != nil {
		return nil, fmt.Errorf("解析情节建议失败: %w", err)
	}

	return suggestions, nil
}

// GenerateImage 通过 Imagen predict 接口生成场景图片
func (p *Provider) GenerateImage(ctx context.Context, req gen.ImageRequest) (*gen.MediaResult, error) {
	model := req.Model
	if model == "" {
		model = p.imageModel
	}

	parameters := map[string]interface{}{
		"sampleCount": 1,
	}
	if req.AspectRatio != "" {
		parameters["aspectRatio"] = string(req.AspectRatio)
	}
	if req.NegativePrompt != "" {
		parameters["negativePrompt"] = req.NegativePrompt
	}

	requestBody := map[string]interface{}{
		"instances":  []map[string]interface{}{{"prompt": req.Prompt}},
		"parameters": parameters,
	}

	apiURL := fmt.Sprintf("%s/models/%s:predict?key=%s", p.baseURL, model, p.apiKey)

	respBody, err := p.postJSON(ctx, apiURL, requestBody)
	if err != nil {
		return nil, err
	}

	var response struct {
		Predictions []struct {
			BytesBase64Encoded string `json:"bytesBase64Encoded"`
			MimeType           string `json:"mimeType"`
		} `json:"predictions"`
	}

	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, err
	}

	if len(response.Predictions) == 0 {
		return nil, errors.New("google imagen未返回任何图片")
	}

	data, err := base64.StdEncoding.DecodeString(response.Predictions[0].BytesBase64Encoded)
	if err != nil {
		return nil, fmt.Errorf("解码图片数据失败: %w", err)
	}

	mediaType := response.Predictions[0].MimeType
	if mediaType == "" {
		mediaType = "image/png"
	}

	return &gen.MediaResult{Data: data, MediaType: mediaType}, nil
}

// GenerateVideo 通过 Veo 长时操作接口生成场景视频
// 提交后轮询操作状态直到完成，再下载视频载荷
func (p *Provider) GenerateVideo(ctx context.Context, req gen.VideoRequest) (*gen.MediaResult, error) {
	model := req.Model
	if model == "" {
		model = p.videoModel
	}

	instance := map[string]interface{}{
		"prompt": req.Prompt,
	}
	if req.SeedImage != nil {
		// 种子首帧按 API 要求以 base64 编码传入
		instance["image"] = map[string]interface{}{
			"bytesBase64Encoded": base64.StdEncoding.EncodeToString(req.SeedImage.Data),
			"mimeType":           req.SeedImage.MimeType,
		}
	}

	parameters := map[string]interface{}{}
	if req.AspectRatio != "" {
		parameters["aspectRatio"] = string(req.AspectRatio)
	}

	requestBody := map[string]interface{}{
		"instances":  []map[string]interface{}{instance},
		"parameters": parameters,
	}

	apiURL := fmt.Sprintf("%s/models/%s:predictLongRunning?key=%s", p.baseURL, model, p.apiKey)

	respBody, err := p.postJSON(ctx, apiURL, requestBody)
	if err != nil {
		return nil, err
	}

	var opResp struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(respBody, &opResp); err != nil {
		return nil, err
	}
	if opResp.Name == "" {
		return nil, errors.New("google veo未返回操作名称")
	}

	videoURI, err := p.pollVideoOperation(ctx, opResp.Name)
	if err != nil {
		return nil, err
	}

	return p.downloadVideo(ctx, videoURI)
}

// pollVideoOperation 轮询长时操作直到完成，返回视频下载地址
func (p *Provider) pollVideoOperation(ctx context.Context, name string) (string, error) {
	apiURL := fmt.Sprintf("%s/%s?key=%s", p.baseURL, name, p.apiKey)

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(p.pollInterval):
		}

		httpReq, err := http.NewRequestWithContext(ctx, "GET", apiURL, nil)
		if err != nil {
			return "", err
		}

		httpResp, err := p.client.Do(httpReq)
		if err != nil {
			return "", err
		}
		respBody, _ := io.ReadAll(httpResp.Body)
		httpResp.Body.Close()

		if httpResp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("google veo操作查询失败(%d): %s", httpResp.StatusCode, string(respBody))
		}

		var opStatus struct {
			Done  bool `json:"done"`
			Error *struct {
				Message string `json:"message"`
			} `json:"error"`
			Response struct {
				GenerateVideoResponse struct {
					GeneratedSamples []struct {
						Video struct {
							URI string `json:"uri"`
						} `json:"video"`
					} `json:"generatedSamples"`
				} `json:"generateVideoResponse"`
			} `json:"response"`
		}

		if err := json.Unmarshal(respBody, &opStatus); err != nil {
			return "", err
		}

		if !opStatus.Done {
			continue
		}

		if opStatus.Error != nil {
			return "", fmt.Errorf("google veo生成失败: %s", opStatus.Error.Message)
		}

		samples := opStatus.Response.GenerateVideoResponse.GeneratedSamples
		if len(samples) == 0 {
			return "", errors.New("google veo未返回任何视频")
		}

		return samples[0].Video.URI, nil
	}
}

// downloadVideo 下载生成的视频载荷
func (p *Provider) downloadVideo(ctx context.Context, uri string) (*gen.MediaResult, error) {
	// 下载地址同样需要携带密钥
	sep := "?"
	if strings.Contains(uri, "?") {
		sep = "&"
	}

	httpReq, err := http.NewRequestWithContext(ctx, "GET", uri+sep+"key="+p.apiKey, nil)
	if err != nil {
		return nil, err
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("下载视频失败(%d): %s", httpResp.StatusCode, string(body))
	}

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}

	mediaType := httpResp.Header.Get("Content-Type")
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = "video/mp4"
	}

	return &gen.MediaResult{Data: data, MediaType: mediaType}, nil
}
