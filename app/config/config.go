package config

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	MusicBrainz MusicBrainzConfig `mapstructure:"musicbrainz"`
	LastFM      LastFMConfig      `mapstructure:"lastfm"`
	Lidarr      LidarrConfig      `mapstructure:"lidarr"`
	Slskd       SlskdConfig       `mapstructure:"slskd"`
	Download    DownloadConfig    `mapstructure:"download"`
	Notify      NotifyConfig      `mapstructure:"notify"`
	Watcher     WatcherConfig     `mapstructure:"watcher"`
}

type ServerConfig struct {
	Port     string `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`      // json 或 text
	Output     string `mapstructure:"output"`      // stdout 或 file
	MaxSize    int    `mapstructure:"max_size"`    // 兆字节
	MaxBackups int    `mapstructure:"max_backups"` // 备份数量
	MaxAge     int    `mapstructure:"max_age"`     // 天数
	Compress   bool   `mapstructure:"compress"`    // 是否压缩旧文件
}

type JWTConfig struct {
	Secret     string `mapstructure:"secret"`      // JWT 密钥
	ExpireTime int    `mapstructure:"expire_time"` // 过期时间（小时）
	Issuer     string `mapstructure:"issuer"`      // 签发者
}

// MusicBrainzConfig MusicBrainz 元数据服务配置
type MusicBrainzConfig struct {
	API       string `mapstructure:"api"`        // API 地址
	UserAgent string `mapstructure:"user_agent"` // MusicBrainz 要求的 UA 标识
}

// LastFMConfig Last.fm 名称纠正服务配置
type LastFMConfig struct {
	API    string `mapstructure:"api"`
	APIKey string `mapstructure:"api_key"`
}

// LidarrConfig Lidarr 下载管理器配置
type LidarrConfig struct {
	URL              string `mapstructure:"url"`
	APIKey           string `mapstructure:"api_key"`
	RootPath         string `mapstructure:"root_path"`          // 音乐库根目录
	DiscoveryPath    string `mapstructure:"discovery_path"`     // 每周发现目录
	QualityProfileID int    `mapstructure:"quality_profile_id"` // 质量配置ID
}

// SlskdConfig slskd 点对点下载配置
type SlskdConfig struct {
	Enabled bool   `mapstructure:"enabled"` // 启用后优先走 slskd 渠道
	URL     string `mapstructure:"url"`
	APIKey  string `mapstructure:"api_key"`
}

// DownloadConfig 下载任务编排与对账相关参数
type DownloadConfig struct {
	ReconcileIntervalSeconds int     `mapstructure:"reconcile_interval_seconds"` // 对账周期
	MaxEmptyTicks            int     `mapstructure:"max_empty_ticks"`            // 连续空转多少次后停止
	StaleTimeoutMinutes      int     `mapstructure:"stale_timeout_minutes"`      // processing 超时阈值
	RecentFailureSeconds     int     `mapstructure:"recent_failure_seconds"`     // 失败任务合并窗口
	BatchTimeoutMinutes      int     `mapstructure:"batch_timeout_minutes"`      // 批次强制完成超时
	CompletedWindowMinutes   int     `mapstructure:"completed_window_minutes"`   // Lidarr 完成记录回看窗口
	RetentionDays            int     `mapstructure:"retention_days"`             // 终态任务保留天数
	MaxRetryCount            int     `mapstructure:"max_retry_count"`            // 单任务最大重试次数
	SimilarityThreshold      float64 `mapstructure:"similarity_threshold"`       // 模糊匹配最低相似度
}

// NotifyConfig 通知推送配置
type NotifyConfig struct {
	WebhookURL string `mapstructure:"webhook_url"` // 为空时不推送
}

// WatcherConfig 音乐目录监控配置
type WatcherConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"` // 监控的音乐根目录
}

func Load() *Config {
	setDefaults()

	// 读取配置
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("未找到配置文件，使用默认配置")
		} else {
			log.Fatalf("读取配置文件出错: %v", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		log.Fatalf("无法解码配置: %v", err)
	}

	// 验证配置
	if err := validateConfig(&config); err != nil {
		log.Fatalf("配置验证失败: %v", err)
	}

	return &config
}

// setDefaults 设置默认配置
func setDefaults() {
	viper.SetDefault("server.port", "5288")

	// 日志默认配置
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.max_size", 100)
	viper.SetDefault("log.max_backups", 3)
	viper.SetDefault("log.max_age", 28)
	viper.SetDefault("log.compress", true)

	// JWT默认配置
	viper.SetDefault("jwt.secret", "your-secret-key-change-in-production")
	viper.SetDefault("jwt.expire_time", 24) // 24小时
	viper.SetDefault("jwt.issuer", "tune-fusion")

	// 元数据服务默认配置
	viper.SetDefault("musicbrainz.api", "https://musicbrainz.org/ws/2")
	viper.SetDefault("musicbrainz.user_agent", "tune-fusion/1.0 (self-hosted)")
	viper.SetDefault("lastfm.api", "https://ws.audioscrobbler.com/2.0")

	// 下载编排默认配置
	viper.SetDefault("download.reconcile_interval_seconds", 30)
	viper.SetDefault("download.max_empty_ticks", 3)
	viper.SetDefault("download.stale_timeout_minutes", 30)
	viper.SetDefault("download.recent_failure_seconds", 30)
	viper.SetDefault("download.batch_timeout_minutes", 120)
	viper.SetDefault("download.completed_window_minutes", 15)
	viper.SetDefault("download.retention_days", 30)
	viper.SetDefault("download.max_retry_count", 3)
	viper.SetDefault("download.similarity_threshold", 0.75)
}

// validateConfig 验证配置的有效性
func validateConfig(config *Config) error {
	if config.Server.Port == "" {
		return fmt.Errorf("服务器端口未设置")
	}
	if config.JWT.Secret == "" {
		return fmt.Errorf("JWT密钥未设置")
	}
	if config.Download.SimilarityThreshold <= 0 || config.Download.SimilarityThreshold > 1 {
		return fmt.Errorf("相似度阈值必须在 (0, 1] 区间内")
	}
	return nil
}

// ReconcileInterval 对账周期
func (c *DownloadConfig) ReconcileInterval() time.Duration {
	return time.Duration(c.ReconcileIntervalSeconds) * time.Second
}

// StaleTimeout processing 任务超时阈值
func (c *DownloadConfig) StaleTimeout() time.Duration {
	return time.Duration(c.StaleTimeoutMinutes) * time.Minute
}

// RecentFailureWindow 失败任务合并窗口
func (c *DownloadConfig) RecentFailureWindow() time.Duration {
	return time.Duration(c.RecentFailureSeconds) * time.Second
}

// BatchTimeout 批次强制完成超时
func (c *DownloadConfig) BatchTimeout() time.Duration {
	return time.Duration(c.BatchTimeoutMinutes) * time.Minute
}
