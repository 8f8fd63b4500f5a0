package internal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Security      SecurityConfig      `mapstructure:"security"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Pipelines     PipelinesConfig     `mapstructure:"pipelines"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	Source          string        `mapstructure:"source"`
}

type SecurityConfig struct {
	AccessTokenSecret    string        `mapstructure:"access_token_secret"`
	RefreshTokenSecret   string        `mapstructure:"refresh_token_secret"`
	AccessTokenDuration  time.Duration `mapstructure:"access_token_duration"`
	RefreshTokenDuration time.Duration `mapstructure:"refresh_token_duration"`
	BCryptCost           int           `mapstructure:"bcrypt_cost"`
}

// StorageConfig describes where project directories live. UploadRoot is the
// path the service itself reads and writes. HostUploadRoot is the same
// directory as seen by the Docker daemon; when the service runs inside a
// container the two differ, and volume mounts for pipeline containers must
// use the host-side path.
type StorageConfig struct {
	UploadRoot     string `mapstructure:"upload_root"`
	HostUploadRoot string `mapstructure:"host_upload_root"`
}

type PipelinesConfig struct {
	DockerBinary      string        `mapstructure:"docker_binary"`
	InvocationTimeout time.Duration `mapstructure:"invocation_timeout"`
	Doc2MDImage       string        `mapstructure:"doc2md_image"`
	VerifyBibTeXImage string        `mapstructure:"verifybibtex_image"`
	XML2YAMLImage     string        `mapstructure:"xml2yaml_image"`
	TypesettingImage  string        `mapstructure:"typesetting_image"`
	Tex2PDFImage      string        `mapstructure:"tex2pdf_image"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("storage config: %v", err))
	}

	if err := c.Pipelines.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("pipelines config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	if c.Source == "" {
		return errors.New("source is required")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *SecurityConfig) Validate() error {
	if len(c.AccessTokenSecret) < 32 {
		return errors.New("access_token_secret must be at least 32 characters")
	}
	if len(c.RefreshTokenSecret) < 32 {
		return errors.New("refresh_token_secret must be at least 32 characters")
	}
	return nil
}

func (c *StorageConfig) Validate() error {
	if c.UploadRoot == "" {
		return errors.New("upload_root is required")
	}
	return nil
}

// HostPath maps a path relative to UploadRoot onto the host-side directory
// used for container volume mounts. Falls back to the service-side path when
// no host root is configured.
func (c *StorageConfig) HostPath(rel string) string {
	root := c.HostUploadRoot
	if root == "" {
		root = c.UploadRoot
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		absRoot = root
	}
	return filepath.Join(absRoot, rel)
}

func (c *PipelinesConfig) Validate() error {
	if c.InvocationTimeout < 0 {
		return errors.New("invocation_timeout cannot be negative")
	}
	return nil
}

// Image returns the configured container image for a pipeline identifier.
func (c *PipelinesConfig) Image(pipeline string) string {
	switch pipeline {
	case "doc2md":
		return c.Doc2MDImage
	case "verifybibtex":
		return c.VerifyBibTeXImage
	case "xml2yaml":
		return c.XML2YAMLImage
	case "dw":
		return c.TypesettingImage
	case "tex2pdf":
		return c.Tex2PDFImage
	}
	return ""
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

// LoadConfigFromEnv builds a Config purely from environment variables for
// container deployments where no config file is mounted.
func LoadConfigFromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              8080,
			BaseURL:           getEnv("BASE_URL", "http://localhost:8080"),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			Source:          os.Getenv("DATABASE_URL"),
		},
		Security: SecurityConfig{
			AccessTokenSecret:    os.Getenv("ACCESS_TOKEN_SECRET"),
			RefreshTokenSecret:   os.Getenv("REFRESH_TOKEN_SECRET"),
			AccessTokenDuration:  15 * time.Minute,
			RefreshTokenDuration: 7 * 24 * time.Hour,
			BCryptCost:           12,
		},
		Storage: StorageConfig{
			UploadRoot:     getEnv("UPLOAD_ROOT", "uploads"),
			HostUploadRoot: os.Getenv("HOST_UPLOAD_ROOT"),
		},
		Pipelines: PipelinesConfig{
			DockerBinary:      getEnv("DOCKER_BINARY", "docker"),
			InvocationTimeout: 15 * time.Minute,
			Doc2MDImage:       os.Getenv("DOC2MD_IMAGE"),
			VerifyBibTeXImage: os.Getenv("VERIFYBIBTEX_IMAGE"),
			XML2YAMLImage:     os.Getenv("XML2YAML_IMAGE"),
			TypesettingImage:  os.Getenv("TYPESETTING_IMAGE"),
			Tex2PDFImage:      os.Getenv("TEX2PDF_IMAGE"),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
	}
}
