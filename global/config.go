package global

import (
	"os"
	"time"

	"github.com/mitchellh/mapstructure"
)

// AppConfig 客户端核心配置
type AppConfig struct {
	APIBaseURL string `mapstructure:"api_base_url"` // REST endpoint, e.g. http://127.0.0.1:8080
	WSURL      string `mapstructure:"ws_url"`       // socket endpoint, e.g. ws://127.0.0.1:8080/ws

	PageLimit int `mapstructure:"page_limit"` // messages per history page

	ReconnectAttempts int           `mapstructure:"reconnect_attempts"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay"`
	PingInterval      time.Duration `mapstructure:"ping_interval"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
}

func (c *AppConfig) Norm() {
	if c.APIBaseURL == "" {
		c.APIBaseURL = "http://127.0.0.1:8080"
	}
	if c.WSURL == "" {
		c.WSURL = "ws://127.0.0.1:8080/ws"
	}
	if c.PageLimit <= 0 {
		c.PageLimit = 30
	}
	if c.ReconnectAttempts <= 0 {
		c.ReconnectAttempts = 5
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 15 * time.Second
	}
}

// DefaultConfig 环境变量覆盖默认值
func DefaultConfig() AppConfig {
	c := AppConfig{}
	if v := os.Getenv("CONNEKTX_API_URL"); v != "" {
		c.APIBaseURL = v
	}
	if v := os.Getenv("CONNEKTX_WS_URL"); v != "" {
		c.WSURL = v
	}
	c.Norm()
	return c
}

// DecodeConfig builds a config from a loose map (parsed yaml/json or remote
// config payload), then applies defaults.
func DecodeConfig(raw map[string]interface{}) (AppConfig, error) {
	var c AppConfig
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
		Result:     &c,
	})
	if err != nil {
		return c, err
	}
	if err := dec.Decode(raw); err != nil {
		return c, err
	}
	c.Norm()
	return c, nil
}

func GetJwtSecret() []byte {
	if v := os.Getenv("CONNEKTX_JWT_SECRET"); v != "" {
		return []byte(v)
	}
	return []byte("mN9b1f8zPq+W2xjX/45sKcVd0TfyoG+3Hp5Z8q9Rj1o=")
}
