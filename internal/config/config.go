// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/Corphon/CineGenieMCP/internal/utils"
	"github.com/joho/godotenv"
)

// 当前配置的单例实例
var (
	currentConfig *AppConfig
	configMutex   sync.RWMutex
	configFile    string
	secretKey     string
)

// AppConfig 包含应用程序的所有配置
// 生成器 API 密钥集中保存在这里，通过 UpdateAPIKey/SaveConfig 持久化，
// 所有需要密钥的调用显式地从配置取值，不存在散落的全局可变状态
type AppConfig struct {
	// 基础配置
	Port      string `json:"port"`
	DataDir   string `json:"data_dir"`
	LogDir    string `json:"log_dir"`
	DebugMode bool   `json:"debug_mode"`

	// 生成器相关配置
	GeminiAPIKey string            `json:"gemini_api_key,omitempty"`
	GenConfig    map[string]string `json:"gen_config"`
}

// Config 存储从环境变量加载的基础配置
type Config struct {
	Port         string
	GeminiAPIKey string
	DataDir      string
	LogDir       string
	DebugMode    bool
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	// 尝试加载.env文件（可选）
	godotenv.Load()

	config := &Config{
		Port:         getEnv("PORT", "8080"),
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		DataDir:      getEnvPath("DATA_DIR", "data"),
		LogDir:       getEnvPath("LOG_DIR", "logs"),
		DebugMode:    getEnvBool("DEBUG_MODE", true),
	}

	if config.GeminiAPIKey == "" {
		// 只记录警告，不返回错误：密钥也可以之后通过设置接口写入
		log.Println("警告: 未设置Gemini API密钥，生成功能需要先在设置中配置密钥")
	}

	return config, nil
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvPath 获取环境变量表示的路径，如果不存在则返回默认值
func getEnvPath(key, defaultValue string) string {
	path := getEnv(key, defaultValue)

	// 确保目录存在
	if _, err := os.Stat(path); os.IsNotExist(err) {
		err = os.MkdirAll(path, 0755)
		if err != nil {
			fmt.Printf("警告: 创建目录失败 %s: %v\n", path, err)
		}
	}

	return path
}

// getEnvBool 获取布尔类型环境变量
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	return value == "true" || value == "1" || value == "yes"
}

// loadOrCreateSecret 加载或生成配置加密密钥
// 密钥保存在数据目录的 .secret 文件中，首次启动时生成
func loadOrCreateSecret(dataDir string) (string, error) {
	secretFile := filepath.Join(dataDir, ".secret")

	if data, err := os.ReadFile(secretFile); err == nil && len(data) > 0 {
		return string(data), nil
	}

	key, err := utils.GenerateSecureKey(32)
	if err != nil {
		return "", fmt.Errorf("生成配置密钥失败: %w", err)
	}

	encoded := fmt.Sprintf("%x", key)
	if err := os.WriteFile(secretFile, []byte(encoded), 0600); err != nil {
		return "", fmt.Errorf("保存配置密钥失败: %w", err)
	}

	return encoded, nil
}

// InitConfig 初始化配置管理器
func InitConfig(dataDir string) error {
	configFile = filepath.Join(dataDir, "config.json")

	baseConfig, err := Load()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("创建数据目录失败: %w", err)
	}

	secretKey, err = loadOrCreateSecret(dataDir)
	if err != nil {
		return err
	}

	configMutex.Lock()
	defer configMutex.Unlock()

	currentConfig = &AppConfig{
		Port:         baseConfig.Port,
		DataDir:      baseConfig.DataDir,
		LogDir:       baseConfig.LogDir,
		DebugMode:    baseConfig.DebugMode,
		GeminiAPIKey: baseConfig.GeminiAPIKey,
		GenConfig: map[string]string{
			"text_model":  "gemini-2.5-flash",
			"image_model": "imagen-3.0-generate-002",
			"video_model": "veo-2.0-generate-001",
		},
	}

	// 尝试从文件加载已保存的配置
	if _, err := os.Stat(configFile); !os.IsNotExist(err) {
		data, err := os.ReadFile(configFile)
		if err == nil {
			var savedConfig AppConfig
			if json.Unmarshal(data, &savedConfig) == nil {
				// 合并配置：保留文件中的生成器设置，基础配置以环境为准
				savedConfig.Port = baseConfig.Port
				savedConfig.DataDir = baseConfig.DataDir
				savedConfig.LogDir = baseConfig.LogDir
				savedConfig.DebugMode = baseConfig.DebugMode

				// 文件中的密钥以密文保存，解密失败时按明文处理（旧格式迁移）
				if savedConfig.GeminiAPIKey != "" {
					if plain, err := utils.Decrypt(savedConfig.GeminiAPIKey, secretKey); err == nil {
						savedConfig.GeminiAPIKey = plain
					}
				}

				// 文件中没有密钥时回退到环境变量的密钥
				if savedConfig.GeminiAPIKey == "" {
					savedConfig.GeminiAPIKey = baseConfig.GeminiAPIKey
				}
				if savedConfig.GenConfig == nil {
					savedConfig.GenConfig = currentConfig.GenConfig
				}

				currentConfig = &savedConfig
			}
		}
	}

	// 保存初始配置到文件
	return saveConfigLocked()
}

// GetCurrentConfig 返回当前配置的副本
func GetCurrentConfig() *AppConfig {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if currentConfig == nil {
		// 紧急情况，返回一个基本配置
		baseConfig, _ := Load()
		return &AppConfig{
			Port:         baseConfig.Port,
			DataDir:      baseConfig.DataDir,
			LogDir:       baseConfig.LogDir,
			DebugMode:    baseConfig.DebugMode,
			GeminiAPIKey: baseConfig.GeminiAPIKey,
			GenConfig:    map[string]string{},
		}
	}

	configCopy := *currentConfig
	if currentConfig.GenConfig != nil {
		configCopy.GenConfig = make(map[string]string, len(currentConfig.GenConfig))
		for k, v := range currentConfig.GenConfig {
			configCopy.GenConfig[k] = v
		}
	}
	return &configCopy
}

// UpdateAPIKey 更新生成器 API 密钥并持久化
// 传入空字符串表示清除密钥
func UpdateAPIKey(apiKey string) error {
	configMutex.Lock()
	defer configMutex.Unlock()

	if currentConfig == nil {
		return fmt.Errorf("配置系统未初始化")
	}

	currentConfig.GeminiAPIKey = apiKey

	return saveConfigLocked()
}

// UpdateGenConfig 更新生成器模型配置
func UpdateGenConfig(genConfig map[string]string) error {
	configMutex.Lock()
	defer configMutex.Unlock()

	if currentConfig == nil {
		return fmt.Errorf("配置系统未初始化")
	}

	currentConfig.GenConfig = genConfig

	return saveConfigLocked()
}

// SaveConfig 保存当前配置到文件
func SaveConfig() error {
	configMutex.Lock()
	defer configMutex.Unlock()

	return saveConfigLocked()
}

// saveConfigLocked 在持有写锁的前提下保存配置
func saveConfigLocked() error {
	if currentConfig == nil {
		return fmt.Errorf("没有配置可保存")
	}

	dir := filepath.Dir(configFile)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建配置目录失败: %w", err)
		}
	}

	// API密钥以密文落盘，内存中的配置保持明文
	toSave := *currentConfig
	if toSave.GeminiAPIKey != "" && secretKey != "" {
		encrypted, err := utils.Encrypt(toSave.GeminiAPIKey, secretKey)
		if err != nil {
			return fmt.Errorf("加密API密钥失败: %w", err)
		}
		toSave.GeminiAPIKey = encrypted
	}

	data, err := json.MarshalIndent(&toSave, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	return os.WriteFile(configFile, data, 0644)
}
