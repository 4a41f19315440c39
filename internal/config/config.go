package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port          int    `yaml:"port"`
		PublicBaseURL string `yaml:"publicBaseURL"`
	} `yaml:"server"`

	OpenAI struct {
		APIKey string `yaml:"apiKey"`
		Model  string `yaml:"model"`
	} `yaml:"openai"`

	Stripe struct {
		SecretKey      string `yaml:"secretKey"`
		PublishableKey string `yaml:"publishableKey"`
		WebhookSecret  string `yaml:"webhookSecret"`
	} `yaml:"stripe"`

	// Admin keys guard the operator endpoints (archive listing, metrics);
	// with none configured those routes answer 404.
	Admin struct {
		APIKeys []string `yaml:"apiKeys"`
	} `yaml:"admin"`

	Uploads struct {
		Dir       string `yaml:"dir"`
		MaxSizeMB int64  `yaml:"maxSizeMB"`
	} `yaml:"uploads"`

	Reports struct {
		Dir string `yaml:"dir"`
	} `yaml:"reports"`

	Cache struct {
		ResultTTLMinutes int `yaml:"resultTTLMinutes"`
		UploadTTLMinutes int `yaml:"uploadTTLMinutes"`
		SweepMinutes     int `yaml:"sweepMinutes"`
	} `yaml:"cache"`

	Scraper struct {
		TimeoutSeconds int `yaml:"timeoutSeconds"`
	} `yaml:"scraper"`

	// Database is optional; when host is empty the analysis archive is disabled.
	Database struct {
		Driver   string `yaml:"driver"` // mysql | postgres
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
	} `yaml:"database"`

	// Minio is optional; when endpoint is empty uploads stay on local disk only.
	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	// SMTP is optional; when host is empty report mails are skipped.
	SMTP struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		From     string `yaml:"from"`
	} `yaml:"smtp"`
}

// Load baca file config.yaml
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Uploads.Dir == "" {
		c.Uploads.Dir = "/tmp/autopruefer_uploads"
	}
	if c.Uploads.MaxSizeMB == 0 {
		c.Uploads.MaxSizeMB = 10
	}
	if c.Reports.Dir == "" {
		c.Reports.Dir = "/tmp/autopruefer_reports"
	}
	if c.Cache.ResultTTLMinutes == 0 {
		c.Cache.ResultTTLMinutes = 60
	}
	if c.Cache.UploadTTLMinutes == 0 {
		c.Cache.UploadTTLMinutes = 60
	}
	if c.Cache.SweepMinutes == 0 {
		c.Cache.SweepMinutes = 10
	}
	if c.Scraper.TimeoutSeconds == 0 {
		c.Scraper.TimeoutSeconds = 10
	}
}

// ResultTTL as duration
func (c *Config) ResultTTL() time.Duration {
	return time.Duration(c.Cache.ResultTTLMinutes) * time.Minute
}

func (c *Config) UploadTTL() time.Duration {
	return time.Duration(c.Cache.UploadTTLMinutes) * time.Minute
}

func (c *Config) SweepEvery() time.Duration {
	return time.Duration(c.Cache.SweepMinutes) * time.Minute
}

func (c *Config) ArchiveEnabled() bool {
	return c.Database.Host != ""
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// Helper untuk build DSN Postgres
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
	)
}
