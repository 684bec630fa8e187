package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ErrAPIKeyRequired is returned by Validate when no TMDB key is configured.
var ErrAPIKeyRequired = errors.New("tmdb api key is required")

// ServerSettings controls the HTTP listener.
type ServerSettings struct {
	Listen string `json:"listen"`
	// AllowedOrigins are public origins trusted for CORS in addition to
	// local and private-network ones.
	AllowedOrigins []string `json:"allowedOrigins,omitempty"`
	// TrustedProxies are addresses or CIDR ranges whose X-Forwarded-For
	// and X-Real-IP headers are believed. Empty trusts no proxy.
	TrustedProxies []string `json:"trustedProxies,omitempty"`
}

// TMDBSettings configures the media database client.
type TMDBSettings struct {
	APIKey   string `json:"apiKey"`
	Language string `json:"language"`
	BaseURL  string `json:"baseUrl"`
	// ClientTimeoutSeconds bounds a single outbound request; 0 disables.
	// Unset means defaultClientTimeoutSeconds.
	ClientTimeoutSeconds *int `json:"clientTimeoutSeconds,omitempty"`
}

const defaultClientTimeoutSeconds = 15

// ClientTimeout returns the outbound request timeout; zero means none.
func (t TMDBSettings) ClientTimeout() time.Duration {
	if t.ClientTimeoutSeconds == nil {
		return defaultClientTimeoutSeconds * time.Second
	}
	return time.Duration(*t.ClientTimeoutSeconds) * time.Second
}

// CacheSettings configures the metadata caches.
type CacheSettings struct {
	Dir                  string `json:"dir"`
	TTLHours             int    `json:"ttlHours"`
	EnrichmentTTLMinutes int    `json:"enrichmentTtlMinutes"`
	BatchConcurrency     int    `json:"batchConcurrency"`
}

// AuthSettings configures sessions and the login route.
type AuthSettings struct {
	Path                string `json:"path"`
	CookieName          string `json:"cookieName"`
	StorageDir          string `json:"storageDir"`
	SessionDurationDays int    `json:"sessionDurationDays"`
	LoginPerMinute      int    `json:"loginPerMinute"`
	SecureCookie        bool   `json:"secureCookie"`
}

// LogSettings configures the rotating log file. An empty File logs to
// stdout only.
type LogSettings struct {
	File       string `json:"file"`
	MaxSizeMB  int    `json:"maxSizeMb"`
	MaxBackups int    `json:"maxBackups"`
	MaxAgeDays int    `json:"maxAgeDays"`
}

// Settings is the full persisted configuration.
type Settings struct {
	Server ServerSettings `json:"server"`
	TMDB   TMDBSettings   `json:"tmdb"`
	Cache  CacheSettings  `json:"cache"`
	Auth   AuthSettings   `json:"auth"`
	Log    LogSettings    `json:"log"`
}

// DefaultSettings returns the settings used when no file exists.
func DefaultSettings() Settings {
	return Settings{
		Server: ServerSettings{Listen: ":7777"},
		TMDB: TMDBSettings{
			Language:             "en-US",
			BaseURL:              "https://api.themoviedb.org/3",
			ClientTimeoutSeconds: intPtr(defaultClientTimeoutSeconds),
		},
		Cache: CacheSettings{
			Dir:                  "cache",
			TTLHours:             24,
			EnrichmentTTLMinutes: 10,
			BatchConcurrency:     4,
		},
		Auth: AuthSettings{
			Path:                "/auth",
			CookieName:          "marquee_session",
			StorageDir:          "data",
			SessionDurationDays: 30,
			LoginPerMinute:      5,
		},
		Log: LogSettings{
			MaxSizeMB:  20,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
	}
}

// Validate reports configuration that would make the service unusable.
func (s Settings) Validate() error {
	if strings.TrimSpace(s.TMDB.APIKey) == "" {
		return ErrAPIKeyRequired
	}
	if !strings.HasPrefix(s.Auth.Path, "/") {
		return fmt.Errorf("auth path must start with '/': %q", s.Auth.Path)
	}
	if t := s.TMDB.ClientTimeoutSeconds; t != nil && *t < 0 {
		return fmt.Errorf("tmdb client timeout must not be negative: %d", *t)
	}
	return nil
}

func intPtr(v int) *int {
	return &v
}

// Manager loads and saves settings from a JSON file.
type Manager struct {
	mu     sync.Mutex
	path   string
	lookup func(string) (string, bool)
}

// NewManager returns a manager for the settings file at path.
func NewManager(path string) *Manager {
	return &Manager{path: path, lookup: os.LookupEnv}
}

// Path returns the settings file location.
func (m *Manager) Path() string {
	return m.path
}

// Load reads the settings file, fills zero values from DefaultSettings and
// applies environment overrides. A missing file yields the defaults.
func (m *Manager) Load() (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	settings := DefaultSettings()
	data, err := os.ReadFile(m.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Settings{}, fmt.Errorf("read settings: %w", err)
	default:
		var fromFile Settings
		if err := json.Unmarshal(data, &fromFile); err != nil {
			return Settings{}, fmt.Errorf("decode settings: %w", err)
		}
		settings = merge(settings, fromFile)
	}

	m.applyEnv(&settings)
	return settings, nil
}

// Init writes DefaultSettings to the settings file when none exists yet.
// It reports whether a file was created.
func (m *Manager) Init() (bool, error) {
	if _, err := os.Stat(m.path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("stat settings: %w", err)
	}
	if err := m.Save(DefaultSettings()); err != nil {
		return false, err
	}
	return true, nil
}

// Save writes settings atomically.
func (m *Manager) Save(settings Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if dir := filepath.Dir(m.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create settings dir: %w", err)
		}
	}
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}

func (m *Manager) applyEnv(s *Settings) {
	if v, ok := m.lookup("TMDB_API_KEY"); ok && strings.TrimSpace(v) != "" {
		s.TMDB.APIKey = strings.TrimSpace(v)
	}
	if v, ok := m.lookup("MARQUEE_LISTEN"); ok && strings.TrimSpace(v) != "" {
		s.Server.Listen = strings.TrimSpace(v)
	}
	if v, ok := m.lookup("MARQUEE_DATA_DIR"); ok && strings.TrimSpace(v) != "" {
		dir := strings.TrimSpace(v)
		s.Auth.StorageDir = dir
		s.Cache.Dir = filepath.Join(dir, "cache")
	}
}

// merge overlays the non-zero fields of override onto base. Pointer fields
// are overlaid whenever the file sets them, zero included.
func merge(base, override Settings) Settings {
	str := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	num := func(dst *int, v int) {
		if v > 0 {
			*dst = v
		}
	}

	str(&base.Server.Listen, override.Server.Listen)
	if len(override.Server.AllowedOrigins) > 0 {
		base.Server.AllowedOrigins = override.Server.AllowedOrigins
	}
	if len(override.Server.TrustedProxies) > 0 {
		base.Server.TrustedProxies = override.Server.TrustedProxies
	}

	str(&base.TMDB.APIKey, override.TMDB.APIKey)
	str(&base.TMDB.Language, override.TMDB.Language)
	str(&base.TMDB.BaseURL, override.TMDB.BaseURL)
	if override.TMDB.ClientTimeoutSeconds != nil {
		base.TMDB.ClientTimeoutSeconds = intPtr(*override.TMDB.ClientTimeoutSeconds)
	}

	str(&base.Cache.Dir, override.Cache.Dir)
	num(&base.Cache.TTLHours, override.Cache.TTLHours)
	num(&base.Cache.EnrichmentTTLMinutes, override.Cache.EnrichmentTTLMinutes)
	num(&base.Cache.BatchConcurrency, override.Cache.BatchConcurrency)

	str(&base.Auth.Path, override.Auth.Path)
	str(&base.Auth.CookieName, override.Auth.CookieName)
	str(&base.Auth.StorageDir, override.Auth.StorageDir)
	num(&base.Auth.SessionDurationDays, override.Auth.SessionDurationDays)
	num(&base.Auth.LoginPerMinute, override.Auth.LoginPerMinute)
	base.Auth.SecureCookie = base.Auth.SecureCookie || override.Auth.SecureCookie

	str(&base.Log.File, override.Log.File)
	num(&base.Log.MaxSizeMB, override.Log.MaxSizeMB)
	num(&base.Log.MaxBackups, override.Log.MaxBackups)
	num(&base.Log.MaxAgeDays, override.Log.MaxAgeDays)

	return base
}
