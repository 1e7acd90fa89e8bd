package config

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chatclient/internal/logger"
	"gopkg.in/yaml.v3"
)

// loadEnv читает .env только вне production (в сборке для прода конфиг только из env).
func loadEnv() {
	if os.Getenv("APP_ENV") == "production" {
		return
	}
	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for i := 0; i < 5; i++ {
		path := dir + "/.env"
		f, err := os.Open(path)
		if err == nil {
			loadEnvFrom(f)
			f.Close()
			return
		}
		parent := strings.TrimSuffix(dir, "/")
		if idx := strings.LastIndex(parent, "/"); idx <= 0 {
			return
		} else {
			dir = parent[:idx]
			if dir == "" {
				dir = "/"
			}
		}
	}
}

func loadEnvFrom(f *os.File) {
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		if key == "" {
			continue
		}
		if len(val) >= 2 && (val[0] == '"' && val[len(val)-1] == '"' || val[0] == '\'' && val[len(val)-1] == '\'') {
			val = val[1 : len(val)-1]
		}
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

// Config содержит настройки клиента: адреса бэкенда, размеры страниц, таймауты.
// Приоритет: переменные окружения > YAML-файл > значения по умолчанию.
type Config struct {
	// Бэкенд
	BaseURL   string `yaml:"base_url"`
	SocketURL string `yaml:"socket_url"`

	// REST
	RequestTimeout       time.Duration `yaml:"-"`
	MessagePageSize      int           `yaml:"message_page_size"`
	ConversationPageSize int           `yaml:"conversation_page_size"`

	// WebSocket
	WSWriteTimeout   time.Duration `yaml:"-"`
	WSPongTimeout    time.Duration `yaml:"-"`
	WSMaxMessageSize int           `yaml:"ws_max_message_size"`
	WSSendBufferSize int           `yaml:"ws_send_buffer_size"`

	// Ввод/присутствие
	TypingIdle   time.Duration `yaml:"-"`
	PresenceTick time.Duration `yaml:"-"`

	// Локальное хранилище (токен авторизации)
	TokenDBPath string `yaml:"token_db_path"`

	// Логирование
	LogLevel string `yaml:"log_level"`
}

// yamlConfig — промежуточная структура для парсинга YAML (интервалы в единицах, удобных для файла).
type yamlConfig struct {
	BaseURL              string `yaml:"base_url"`
	SocketURL            string `yaml:"socket_url"`
	RequestTimeout       int    `yaml:"request_timeout"`
	MessagePageSize      int    `yaml:"message_page_size"`
	ConversationPageSize int    `yaml:"conversation_page_size"`
	WSWriteTimeout       int    `yaml:"ws_write_timeout"`
	WSPongTimeout        int    `yaml:"ws_pong_timeout"`
	WSMaxMessageSize     int    `yaml:"ws_max_message_size"`
	WSSendBufferSize     int    `yaml:"ws_send_buffer_size"`
	TypingIdleMS         int    `yaml:"typing_idle_ms"`
	PresenceTick         int    `yaml:"presence_tick"`
	TokenDBPath          string `yaml:"token_db_path"`
	LogLevel             string `yaml:"log_level"`
}

// Load загружает конфигурацию.
// Сначала подгружаются переменные из .env (если есть), затем YAML и env (env имеет приоритет).
func Load() *Config {
	loadEnv()
	// Значения по умолчанию
	yc := yamlConfig{
		BaseURL:              "http://localhost:3000",
		SocketURL:            "ws://localhost:3000/ws",
		RequestTimeout:       10,
		MessagePageSize:      20,
		ConversationPageSize: 10,
		WSWriteTimeout:       10,
		WSPongTimeout:        60,
		WSMaxMessageSize:     4096,
		WSSendBufferSize:     64,
		TypingIdleMS:         1000,
		PresenceTick:         60,
		TokenDBPath:          "chatclient.db",
		LogLevel:             "info",
	}

	// Загрузка конфигурации: CONFIG_PATH → config/client.yaml
	paths := []string{os.Getenv("CONFIG_PATH"), "config/client.yaml"}
	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, &yc); err != nil {
			logger.Errorf("config: ошибка парсинга %s: %v (используются значения по умолчанию)", path, err)
		} else {
			logger.Infof("config: загружен %s", path)
		}
		break
	}

	cfg := &Config{
		BaseURL:              strings.TrimSuffix(envStr("API_BASE_URL", yc.BaseURL), "/"),
		SocketURL:            envStr("SOCKET_URL", yc.SocketURL),
		RequestTimeout:       time.Duration(envInt("REQUEST_TIMEOUT", yc.RequestTimeout)) * time.Second,
		MessagePageSize:      envInt("MESSAGE_PAGE_SIZE", yc.MessagePageSize),
		ConversationPageSize: envInt("CONVERSATION_PAGE_SIZE", yc.ConversationPageSize),
		WSWriteTimeout:       time.Duration(envInt("WS_WRITE_TIMEOUT", yc.WSWriteTimeout)) * time.Second,
		WSPongTimeout:        time.Duration(envInt("WS_PONG_TIMEOUT", yc.WSPongTimeout)) * time.Second,
		WSMaxMessageSize:     envInt("WS_MAX_MESSAGE_SIZE", yc.WSMaxMessageSize),
		WSSendBufferSize:     envInt("WS_SEND_BUFFER_SIZE", yc.WSSendBufferSize),
		TypingIdle:           time.Duration(envInt("TYPING_IDLE_MS", yc.TypingIdleMS)) * time.Millisecond,
		PresenceTick:         time.Duration(envInt("PRESENCE_TICK", yc.PresenceTick)) * time.Second,
		TokenDBPath:          envStr("TOKEN_DB_PATH", yc.TokenDBPath),
		LogLevel:             envStr("LOG_LEVEL", yc.LogLevel),
	}

	if cfg.MessagePageSize <= 0 {
		cfg.MessagePageSize = 20
	}
	if cfg.ConversationPageSize <= 0 {
		cfg.ConversationPageSize = 10
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.TypingIdle <= 0 {
		cfg.TypingIdle = time.Second
	}
	if cfg.PresenceTick <= 0 {
		cfg.PresenceTick = time.Minute
	}

	return cfg
}

// envStr возвращает значение переменной окружения или fallback.
func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envInt возвращает числовое значение переменной окружения или fallback.
func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
