package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all wifiwatch configuration.
type Config struct {
	Scan    ScanConfig    `mapstructure:"scan"`
	Capture CaptureConfig `mapstructure:"capture"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Report  ReportConfig  `mapstructure:"report"`
}

// ScanConfig controls beacon scanning on the wireless interface.
type ScanConfig struct {
	Interface        string        `mapstructure:"interface"`
	Duration         time.Duration `mapstructure:"duration"`
	ProgressInterval time.Duration `mapstructure:"progress_interval"`
	Freshness        time.Duration `mapstructure:"freshness"`
}

// CaptureConfig controls packet capture sessions.
type CaptureConfig struct {
	Interface    string        `mapstructure:"interface"` // empty selects the first device found
	PollInterval time.Duration `mapstructure:"poll_interval"`
	PageSize     int           `mapstructure:"page_size"`
	SnapLen      int           `mapstructure:"snaplen"`
	Promiscuous  bool          `mapstructure:"promiscuous"`
	BPF          string        `mapstructure:"bpf"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// MetricsConfig controls the prometheus endpoint. An empty Listen disables it.
type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

// ReportConfig controls where session reports are written.
type ReportConfig struct {
	Dir string `mapstructure:"dir"`
}

// Defaults returns a Config populated with the built-in defaults.
func Defaults() Config {
	return Config{
		Scan: ScanConfig{
			Interface:        "wlan0",
			Duration:         10 * time.Second,
			ProgressInterval: 500 * time.Millisecond,
			Freshness:        10 * time.Second,
		},
		Capture: CaptureConfig{
			PollInterval: 3 * time.Second,
			PageSize:     10,
			SnapLen:      65535,
			Promiscuous:  true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			File:   filepath.Join(os.TempDir(), "wifiwatch.log"),
		},
		Report: ReportConfig{Dir: "."},
	}
}

// Load reads configuration from an optional TOML file and the environment.
// Env var overrides use prefix WIFIWATCH_ (e.g. WIFIWATCH_CAPTURE_POLL_INTERVAL=1s).
// When path is empty, WIFIWATCH_CONFIG and then ~/.config/wifiwatch/config.toml are tried.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, Defaults())

	v.SetConfigType("toml")
	if path == "" {
		path = os.Getenv("WIFIWATCH_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "wifiwatch"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("WIFIWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing default file is fine; an explicit one must exist and parse.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects values the session managers cannot run with.
func (c Config) Validate() error {
	if c.Capture.PollInterval <= 0 {
		return fmt.Errorf("capture.poll_interval must be positive, got %s", c.Capture.PollInterval)
	}
	if c.Capture.PageSize <= 0 {
		return fmt.Errorf("capture.page_size must be positive, got %d", c.Capture.PageSize)
	}
	if c.Scan.Duration <= 0 {
		return fmt.Errorf("scan.duration must be positive, got %s", c.Scan.Duration)
	}
	if c.Scan.ProgressInterval <= 0 {
		return fmt.Errorf("scan.progress_interval must be positive, got %s", c.Scan.ProgressInterval)
	}
	return nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("scan.interface", d.Scan.Interface)
	v.SetDefault("scan.duration", d.Scan.Duration)
	v.SetDefault("scan.progress_interval", d.Scan.ProgressInterval)
	v.SetDefault("scan.freshness", d.Scan.Freshness)
	v.SetDefault("capture.interface", d.Capture.Interface)
	v.SetDefault("capture.poll_interval", d.Capture.PollInterval)
	v.SetDefault("capture.page_size", d.Capture.PageSize)
	v.SetDefault("capture.snaplen", d.Capture.SnapLen)
	v.SetDefault("capture.promiscuous", d.Capture.Promiscuous)
	v.SetDefault("capture.bpf", d.Capture.BPF)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("metrics.listen", d.Metrics.Listen)
	v.SetDefault("report.dir", d.Report.Dir)
}
