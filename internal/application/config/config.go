package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/pion/webrtc/v4"
)

// Config конфигурация relay-сервера.
type Config struct {
	Debug  bool   `env:"DEBUG" envDefault:"false"`
	Port   string `env:"PORT" envDefault:"3000"`
	Domain string `env:"DOMAIN" envDefault:"http://localhost:3000"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`

	StaticDir string `env:"STATIC_DIR" envDefault:"web"`

	StunURLs []string `env:"STUN_URLS" envDefault:"stun:stun.l.google.com:19302"`

	Turn TurnConfig

	StunServer webrtc.ICEServer
}

// TurnConfig настройки встроенного TURN-сервера и выдачи временных кредов.
type TurnConfig struct {
	Enabled  bool   `env:"TURN_ENABLED" envDefault:"false"`
	PublicIP string `env:"TURN_PUBLIC_IP" envDefault:"0.0.0.0"`
	Host     string `env:"TURN_HOST"`
	Port     int    `env:"TURN_PORT" envDefault:"3478"`
	Realm    string `env:"TURN_REALM" envDefault:"voicechat"`

	// Secret - нужен для генерации временных кредов для клиентов
	Secret string `env:"TURN_SECRET"`
}

func New() (*Config, error) {
	c, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if c.Turn.Enabled && c.Turn.Secret == "" {
		return nil, fmt.Errorf("TURN_SECRET is required when TURN_ENABLED is set")
	}

	c.StunServer = webrtc.ICEServer{URLs: c.StunURLs}

	return &c, nil
}

// TurnURLs адреса TURN-сервера для ICE конфигурации.
func (c *Config) TurnURLs() []string {
	host := c.Turn.Host
	if host == "" {
		host = c.Turn.PublicIP
	}

	return []string{
		fmt.Sprintf("turn:%s:%d?transport=udp", host, c.Turn.Port),
		fmt.Sprintf("turn:%s:%d?transport=tcp", host, c.Turn.Port),
	}
}
