package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"

	"gemini-vision/src/secret"
)

const (
	AppName          = "gemini-vision"
	APIKeyEnvVar     = "GEMINI_API_KEY"
	APIKeyPathEnvVar = "GEMINI_API_KEY_FILE"
	EnvPathEnvVar    = "GEMINI_VISION_ENV"
	DefaultModel     = "gemini-2.5-flash"

	defaultDeadlineSec = 60
	defaultJPEGQuality = 80
	defaultPortStart   = 49500
	defaultPortEnd     = 49550
)

// Where the API key was found.
const (
	KeySourceNone    = ""
	KeySourceKeyring = "keyring"
	KeySourceFile    = "file"
	KeySourceEnv     = "env"
)

type LoadOptions struct {
	APIKeyPathOverride string
	// Keyring is consulted first for the API key. Nil uses the platform keychain.
	Keyring secret.Store
}

type Config struct {
	APIKey             string
	APIKeySource       string
	APIKeyPath         string
	Model              string
	BaseURL            string
	Prompt             string
	EnableFileLogging  bool
	Hotkey             string
	AnalyzeDeadlineSec int
	JPEGQuality        int
	MaxImageDimension  int
	PortStart          int
	PortEnd            int
}

func Load() (*Config, error) {
	return LoadWithOptions(LoadOptions{})
}

func LoadWithOptions(opts LoadOptions) (*Config, error) {
	// Load configuration from sources in priority order:
	// 1) .env in the application (executable) directory
	// 2) the file named by GEMINI_VISION_ENV
	// 3) gemini-vision/config.env in the XDG config directories
	envPath := resolveEnvPath()
	dotenvValues := readDotenvValues(envPath)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	}

	apiKeyPath := resolveAPIKeyPath(opts, dotenvValues)
	keyring := opts.Keyring
	if keyring == nil {
		keyring = secret.NewKeyringStore()
	}
	apiKey, source := resolveAPIKey(keyring, apiKeyPath)

	quality := getEnvInt("JPEG_QUALITY", defaultJPEGQuality)
	if quality > 100 {
		quality = 100
	}

	portStart := getEnvInt("SINGLEINSTANCE_PORT_START", defaultPortStart)
	portEnd := getEnvInt("SINGLEINSTANCE_PORT_END", defaultPortEnd)
	if portEnd < portStart {
		portStart, portEnd = defaultPortStart, defaultPortEnd
	}

	cfg := &Config{
		APIKey:             apiKey,
		APIKeySource:       source,
		APIKeyPath:         apiKeyPath,
		Model:              getEnvWithDefault("MODEL", DefaultModel),
		BaseURL:            os.Getenv("GEMINI_BASE_URL"),
		Prompt:             os.Getenv("PROMPT"),
		EnableFileLogging:  strings.ToLower(os.Getenv("ENABLE_FILE_LOGGING")) == "true",
		Hotkey:             getEnvWithDefault("HOTKEY", DefaultHotkey()),
		AnalyzeDeadlineSec: getEnvInt("ANALYZE_DEADLINE_SEC", defaultDeadlineSec),
		JPEGQuality:        quality,
		MaxImageDimension:  getEnvInt("MAX_IMAGE_DIMENSION", 0),
		PortStart:          portStart,
		PortEnd:            portEnd,
	}

	return cfg, nil
}

// DefaultHotkey is Cmd+Shift+S on macOS and Ctrl+Shift+S elsewhere.
func DefaultHotkey() string {
	if runtime.GOOS == "darwin" {
		return "Cmd+Shift+S"
	}
	return "Ctrl+Shift+S"
}

// DefaultAPIKeyPath is the key file under the user's XDG config directory.
func DefaultAPIKeyPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, "api_key")
}

// KeyStore returns the stores consulted for the API key, in precedence order.
func (c *Config) KeyStore(keyring secret.Store) secret.Chain {
	if keyring == nil {
		keyring = secret.NewKeyringStore()
	}
	return secret.Chain{keyring, secret.FileStore{Path: c.APIKeyPath}}
}

func resolveEnvPath() string {
	if execPath, err := os.Executable(); err == nil {
		exeEnv := filepath.Join(filepath.Dir(execPath), ".env")
		if _, err := os.Stat(exeEnv); err == nil {
			return exeEnv
		}
	}

	if alt := os.Getenv(EnvPathEnvVar); alt != "" {
		if _, err := os.Stat(alt); err == nil {
			return alt
		}
	}

	if p, err := xdg.SearchConfigFile(filepath.Join(AppName, "config.env")); err == nil {
		return p
	}

	return ""
}

func readDotenvValues(envPath string) map[string]string {
	if envPath == "" {
		return map[string]string{}
	}

	values, err := godotenv.Read(envPath)
	if err != nil {
		return map[string]string{}
	}

	return values
}

func resolveAPIKeyPath(opts LoadOptions, dotenvValues map[string]string) string {
	keyPath := DefaultAPIKeyPath()

	if envPath := strings.TrimSpace(os.Getenv(APIKeyPathEnvVar)); envPath != "" {
		keyPath = envPath
	}

	if dotenvPath := strings.TrimSpace(dotenvValues[APIKeyPathEnvVar]); dotenvPath != "" {
		keyPath = dotenvPath
	}

	if overridePath := strings.TrimSpace(opts.APIKeyPathOverride); overridePath != "" {
		keyPath = overridePath
	}

	return keyPath
}

func resolveAPIKey(keyring secret.Store, keyPath string) (string, string) {
	if key, ok := keyring.Load(); ok {
		return key, KeySourceKeyring
	}
	if key, ok := (secret.FileStore{Path: keyPath}).Load(); ok {
		return key, KeySourceFile
	}
	if key := strings.TrimSpace(os.Getenv(APIKeyEnvVar)); key != "" {
		return key, KeySourceEnv
	}
	return "", KeySourceNone
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n >= 0 {
			return n
		}
	}
	return defaultValue
}
