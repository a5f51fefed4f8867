package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	LLM struct {
		URL      string        `mapstructure:"url"`
		Token    string        `mapstructure:"token"`
		Model    string        `mapstructure:"model"`
		Language string        `mapstructure:"language"`
		Timeout  time.Duration `mapstructure:"timeout"`
	} `mapstructure:"llm"`
	Listing struct {
		URL     string        `mapstructure:"url"`
		Year    int           `mapstructure:"year"`
		Product string        `mapstructure:"product"`
		Rows    int           `mapstructure:"rows"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"listing"`
	Browser struct {
		Enabled    bool          `mapstructure:"enabled"`
		DriverPath string        `mapstructure:"driver_path"`
		Headless   bool          `mapstructure:"headless"`
		Settle     time.Duration `mapstructure:"settle"`
	} `mapstructure:"browser"`
	Detail struct {
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"detail"`
	Store struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"store"`
	Report struct {
		Dir string `mapstructure:"dir"`
		PDF bool   `mapstructure:"pdf"`
	} `mapstructure:"report"`
	Mirror struct {
		Driver string `mapstructure:"driver"`
		DSN    string `mapstructure:"dsn"`
	} `mapstructure:"mirror"`
	Notify struct {
		NATSURL string `mapstructure:"nats_url"`
		Subject string `mapstructure:"subject"`
	} `mapstructure:"notify"`
	Metrics struct {
		File string `mapstructure:"file"`
	} `mapstructure:"metrics"`
	Server struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`
	Debug struct {
		File string `mapstructure:"file"`
	} `mapstructure:"debug"`
	Pace    time.Duration `mapstructure:"pace"`
	Verbose bool          `mapstructure:"verbose"`
}

func SetDefaults(v *viper.Viper) {
	// empty defaults make these keys visible to env lookup during Unmarshal
	for _, key := range []string{"llm.url", "llm.token", "llm.model", "browser.driver_path", "mirror.driver", "mirror.dsn", "notify.nats_url", "metrics.file"} {
		v.SetDefault(key, "")
	}
	v.SetDefault("llm.language", "Korean")
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("listing.url", "https://access.redhat.com")
	v.SetDefault("listing.year", 0)
	v.SetDefault("listing.product", "Red Hat Enterprise Linux")
	v.SetDefault("listing.rows", 1000)
	v.SetDefault("listing.timeout", 60*time.Second)
	v.SetDefault("browser.enabled", false)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.settle", 15*time.Second)
	v.SetDefault("detail.timeout", 15*time.Second)
	v.SetDefault("store.path", "cve_data.json")
	v.SetDefault("report.dir", ".")
	v.SetDefault("report.pdf", false)
	v.SetDefault("notify.subject", "errata.advisory.new")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("debug.file", "debug_page.html")
	v.SetDefault("pace", 500*time.Millisecond)
	v.SetDefault("verbose", false)
}

// 优先级：flag > ERRATA_* env > config file > default
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	// a missing .env is normal
	_ = godotenv.Load()

	SetDefaults(v)
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName("config")
	}
	v.SetEnvPrefix("ERRATA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		fmt.Fprintln(os.Stderr, "Using config file:", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Mirror.DSN != "" && cfg.Mirror.Driver == "" {
		cfg.Mirror.Driver = "mysql"
	}
	return &cfg, nil
}
