package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode     string `mapstructure:"mode"`
	Port     int    `mapstructure:"port"`
	Room     string `mapstructure:"room"`
	Role     string `mapstructure:"role"`
	Username string `mapstructure:"username"`

	Transport      string   `mapstructure:"transport"`
	BrokerURL      string   `mapstructure:"broker_url"`
	STUNServers    []string `mapstructure:"stun_servers"`
	TURNServer     string   `mapstructure:"turn_server"`
	TURNUsername   string   `mapstructure:"turn_username"`
	TURNCredential string   `mapstructure:"turn_credential"`

	Topology string `mapstructure:"topology"`
	Capture  bool   `mapstructure:"capture"`

	JoinAttempts          int           `mapstructure:"join_attempts"`
	JoinRetryInterval     time.Duration `mapstructure:"join_retry_interval"`
	DialTimeout           time.Duration `mapstructure:"dial_timeout"`
	RecallDelay           time.Duration `mapstructure:"recall_delay"`
	RelayFailThreshold    int           `mapstructure:"relay_fail_threshold"`
	ScreenRequestAttempts int           `mapstructure:"screen_request_attempts"`
	ScreenRequestCooldown time.Duration `mapstructure:"screen_request_cooldown"`
	StaggerInterval       time.Duration `mapstructure:"stagger_interval"`
	InactivityGrace       time.Duration `mapstructure:"inactivity_grace"`
	TransitionDelay       time.Duration `mapstructure:"transition_delay"`

	RecordInterval time.Duration `mapstructure:"record_interval"`
	RecordWidth    int           `mapstructure:"record_width"`
	RecordHeight   int           `mapstructure:"record_height"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("room", "default")
	v.SetDefault("role", "joiner")
	v.SetDefault("username", "guest")

	v.SetDefault("transport", "webrtc")
	v.SetDefault("broker_url", "ws://localhost:9000/ws")
	v.SetDefault("stun_servers", []string{"stun:stun.l.google.com:19302"})

	v.SetDefault("topology", "mesh")
	v.SetDefault("capture", false)

	v.SetDefault("join_attempts", 5)
	v.SetDefault("join_retry_interval", "3s")
	v.SetDefault("dial_timeout", "10s")
	v.SetDefault("recall_delay", "1s")
	v.SetDefault("relay_fail_threshold", 2)
	v.SetDefault("screen_request_attempts", 3)
	v.SetDefault("screen_request_cooldown", "2s")
	v.SetDefault("stagger_interval", "150ms")
	v.SetDefault("inactivity_grace", "4s")
	v.SetDefault("transition_delay", "500ms")

	v.SetDefault("record_interval", "1s")
	v.SetDefault("record_width", 1280)
	v.SetDefault("record_height", 720)
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Room: %s | Role: %s | Transport: %s | Port: %d\n", cfg.Room, cfg.Role, cfg.Transport, cfg.Port)
	return &cfg, nil
}

// Default returns the built-in defaults without touching the filesystem.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(err)
	}
	return &cfg
}
