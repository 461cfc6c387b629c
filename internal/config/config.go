// internal/config/config.go
//
// This package handles configuration and the ~/.auralynx directory structure.
// Settings come from config.yaml, then .env files, then AURALYNX_* variables.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kingrea/auralynx/internal/api"
)

const (
	// HomeDirName is the directory created under the user's home.
	HomeDirName = ".auralynx"

	// HomeEnv overrides the home directory.
	HomeEnv = "AURALYNX_HOME"

	defaultTimeout = 5 * time.Minute
)

const defaultSettingsYAML = `# auralynx configuration
version: 1

api:
  # Backend base URL. AURALYNX_API_URL overrides this value.
  base_url: http://localhost:8000/api
  timeout: 5m
  # Extra attempts for idempotent requests (GET and the generation steps).
  retries: 0
  # Requests per second; 0 disables throttling.
  rate_limit: 0
  debug: false

genres:
  default: pop

export:
  # Where downloaded songs are written. Relative paths resolve against this directory.
  dir: songs
  # Optional S3 upload target. AURALYNX_S3_* variables override these values.
  s3:
    bucket: ""
    region: ""

capture:
  bin: ffmpeg
  # Leave format and device empty to use the platform default input.
  format: ""
  device: ""
`

// APISettings configures the backend client.
type APISettings struct {
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
	Retries   int           `yaml:"retries"`
	RateLimit float64       `yaml:"rate_limit"`
	Debug     bool          `yaml:"debug"`
}

// GenreSettings captures genre preferences.
type GenreSettings struct {
	Default string `yaml:"default"`
}

// S3Settings selects the optional upload bucket.
type S3Settings struct {
	Bucket   string `yaml:"bucket"`
	Region   string `yaml:"region"`
	Key      string `yaml:"key,omitempty"`
	Secret   string `yaml:"secret,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}

// ExportSettings configures where finished songs go.
type ExportSettings struct {
	Dir string     `yaml:"dir"`
	S3  S3Settings `yaml:"s3"`
}

// CaptureSettings configures the voice recorder.
type CaptureSettings struct {
	Bin    string `yaml:"bin"`
	Format string `yaml:"format"`
	Device string `yaml:"device"`
}

// Settings models ~/.auralynx/config.yaml.
type Settings struct {
	Version int             `yaml:"version"`
	API     APISettings     `yaml:"api"`
	Genres  GenreSettings   `yaml:"genres"`
	Export  ExportSettings  `yaml:"export"`
	Capture CaptureSettings `yaml:"capture"`
}

// Config holds the runtime configuration.
type Config struct {
	// Home is the auralynx state directory (usually ~/.auralynx).
	Home string

	Settings Settings
}

// HomeDir resolves the state directory from AURALYNX_HOME or the user's home.
func HomeDir() (string, error) {
	if dir := strings.TrimSpace(os.Getenv(HomeEnv)); dir != "" {
		return filepath.Clean(dir), nil
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home directory: %w", err)
	}
	return filepath.Join(userHome, HomeDirName), nil
}

// InitDir creates the directory structure under home.
//
// Structure created:
// ~/.auralynx/
// ├── config.yaml
// ├── auralynx.db   <- settings and run history (created by the store)
// ├── logs/         <- journey log
// ├── recordings/   <- voice takes
// ├── songs/        <- default download directory
// └── templates/    <- fallback lyric template plugins
func InitDir(home string) error {
	dirs := []string{
		filepath.Join(home, "logs"),
		filepath.Join(home, "recordings"),
		filepath.Join(home, "songs"),
		filepath.Join(home, "templates"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return ensureSettings(filepath.Join(home, "config.yaml"))
}

// NewConfig loads settings for home. Missing files fall back to defaults.
func NewConfig(home string) (*Config, error) {
	if strings.TrimSpace(home) == "" {
		return nil, fmt.Errorf("config: home directory is required")
	}
	cfg := &Config{
		Home:     filepath.Clean(home),
		Settings: defaultSettings(),
	}
	if err := loadDotEnv(".env", filepath.Join(cfg.Home, ".env")); err != nil {
		return nil, err
	}
	if err := cfg.loadSettings(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load resolves the home directory, creates it and loads settings.
func Load() (*Config, error) {
	// A .env in the working directory may set AURALYNX_HOME.
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}
	home, err := HomeDir()
	if err != nil {
		return nil, err
	}
	if err := InitDir(home); err != nil {
		return nil, fmt.Errorf("config: init %s: %w", home, err)
	}
	return NewConfig(home)
}

// LogsDir returns the path to the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.Home, "logs")
}

// RecordingsDir returns the path voice takes are written to.
func (c *Config) RecordingsDir() string {
	return filepath.Join(c.Home, "recordings")
}

// TemplatesDir returns the lyric template plugin directory.
func (c *Config) TemplatesDir() string {
	return filepath.Join(c.Home, "templates")
}

// DatabasePath returns the SQLite file location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Home, "auralynx.db")
}

// ExportDir returns the resolved download directory.
func (c *Config) ExportDir() string {
	return c.Settings.Export.Dir
}

// SettingsPath returns the on-disk location of config.yaml.
func (c *Config) SettingsPath() string {
	return filepath.Join(c.Home, "config.yaml")
}

// DefaultGenre returns the configured default genre.
func (c *Config) DefaultGenre() string {
	return c.Settings.Genres.Default
}

// SetDefaultGenre updates the default genre and persists it to config.yaml.
func (c *Config) SetDefaultGenre(genre string) error {
	genre = strings.ToLower(strings.TrimSpace(genre))
	if !api.IsGenre(genre) {
		return fmt.Errorf("config: unknown genre %q", genre)
	}
	if c.Settings.Genres.Default == genre {
		return nil
	}
	if err := c.writeSetting([]string{"genres", "default"}, genre); err != nil {
		return err
	}
	c.Settings.Genres.Default = genre
	return nil
}

func (c *Config) loadSettings() error {
	path := c.SettingsPath()
	parsed := defaultSettings()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return fmt.Errorf("config: read %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	parsed.applyEnv()
	parsed.applyDefaults()
	parsed.normalize(c.Home)
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Settings = parsed
	return nil
}

func defaultSettings() Settings {
	return Settings{
		Version: 1,
		API: APISettings{
			BaseURL: api.DefaultBaseURL,
			Timeout: defaultTimeout,
		},
		Genres:  GenreSettings{Default: api.DefaultGenre},
		Export:  ExportSettings{Dir: "songs"},
		Capture: CaptureSettings{Bin: "ffmpeg"},
	}
}

func (s *Settings) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(api.BaseURLEnv)); v != "" {
		s.API.BaseURL = v
	}
	overrides := map[string]*string{
		"AURALYNX_S3_BUCKET":   &s.Export.S3.Bucket,
		"AURALYNX_S3_REGION":   &s.Export.S3.Region,
		"AURALYNX_S3_KEY":      &s.Export.S3.Key,
		"AURALYNX_S3_SECRET":   &s.Export.S3.Secret,
		"AURALYNX_S3_ENDPOINT": &s.Export.S3.Endpoint,
	}
	for key, field := range overrides {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*field = v
		}
	}
}

func (s *Settings) applyDefaults() {
	if s.Version == 0 {
		s.Version = 1
	}
	if s.API.Timeout <= 0 {
		s.API.Timeout = defaultTimeout
	}
	if strings.TrimSpace(s.Genres.Default) == "" {
		s.Genres.Default = api.DefaultGenre
	}
	if strings.TrimSpace(s.Export.Dir) == "" {
		s.Export.Dir = "songs"
	}
	if strings.TrimSpace(s.Capture.Bin) == "" {
		s.Capture.Bin = "ffmpeg"
	}
}

func (s *Settings) normalize(base string) {
	s.API.BaseURL = api.NormalizeBase(s.API.BaseURL)
	s.Genres.Default = strings.ToLower(strings.TrimSpace(s.Genres.Default))
	s.Export.Dir = resolvePath(base, s.Export.Dir)
	s.Export.S3.Bucket = strings.TrimSpace(s.Export.S3.Bucket)
	s.Export.S3.Region = strings.TrimSpace(s.Export.S3.Region)
	s.Capture.Bin = strings.TrimSpace(s.Capture.Bin)
	s.Capture.Format = strings.TrimSpace(s.Capture.Format)
	s.Capture.Device = strings.TrimSpace(s.Capture.Device)
}

func (s *Settings) validate() error {
	if s.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if !strings.HasPrefix(s.API.BaseURL, "http://") && !strings.HasPrefix(s.API.BaseURL, "https://") {
		return fmt.Errorf("api.base_url must be an http(s) URL, got %q", s.API.BaseURL)
	}
	if s.API.Retries < 0 {
		return fmt.Errorf("api.retries must be >= 0")
	}
	if s.API.RateLimit < 0 {
		return fmt.Errorf("api.rate_limit must be >= 0")
	}
	if !api.IsGenre(s.Genres.Default) {
		return fmt.Errorf("genres.default must be one of %s", strings.Join(api.Genres, ", "))
	}
	if (s.Export.S3.Key == "") != (s.Export.S3.Secret == "") {
		return fmt.Errorf("export.s3 key and secret must be set together")
	}
	return nil
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "~/") {
		if userHome, err := os.UserHomeDir(); err == nil {
			return filepath.Join(userHome, trimmed[2:])
		}
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

// loadDotEnv loads each existing file. Variables already set in the
// environment win.
func loadDotEnv(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: stat %s: %w", path, err)
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("config: load %s: %w", path, err)
		}
	}
	return nil
}

func ensureSettings(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultSettingsYAML), 0o644)
}

// writeSetting sets one scalar in config.yaml and leaves every other key,
// and its comments, as they are on disk. Environment overrides never reach
// the file.
func (c *Config) writeSetting(path []string, value string) error {
	if c == nil {
		return fmt.Errorf("config: nil receiver")
	}
	file := c.SettingsPath()
	data, err := os.ReadFile(file)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		data = []byte(defaultSettingsYAML)
	case err != nil:
		return fmt.Errorf("config: read %s: %w", file, err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("config: parse %s: %w", file, err)
	}
	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return fmt.Errorf("config: %s is not a mapping", file)
	}
	node := doc.Content[0]
	for _, key := range path {
		node = mappingValue(node, key)
		if node == nil {
			return fmt.Errorf("config: %s is not a mapping", strings.Join(path, "."))
		}
	}
	node.Kind = yaml.ScalarNode
	node.Tag = "!!str"
	node.Style = 0
	node.Value = value
	node.Content = nil

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("config: encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("config: encode config: %w", err)
	}
	if err := os.MkdirAll(c.Home, 0o755); err != nil {
		return fmt.Errorf("config: ensure home dir: %w", err)
	}
	mode := fs.FileMode(0o644)
	if info, err := os.Stat(file); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(file, buf.Bytes(), mode); err != nil {
		return fmt.Errorf("config: write config: %w", err)
	}
	return nil
}

// mappingValue returns the value node for key in m, adding an empty mapping
// when the key is missing. It returns nil when m is not a mapping.
func mappingValue(m *yaml.Node, key string) *yaml.Node {
	if m.Kind != yaml.MappingNode {
		if m.Kind != yaml.ScalarNode || m.Value != "" {
			return nil
		}
		m.Kind = yaml.MappingNode
		m.Tag = "!!map"
		m.Value = ""
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	value := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, value)
	return value
}
