package notifclient

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

const (
	MinPaginationLimit     = 1
	MaxPaginationLimit     = 100
	DefaultPaginationLimit = 20

	preferencesKey = "notification_preferences"
)

type Preferences struct {
	NotificationsMuted bool     `json:"notificationsMuted"`
	SelectedChannels   []string `json:"selectedChannels"`
	SoundEnabled       bool     `json:"soundEnabled"`
	PaginationLimit    int      `json:"paginationLimit"`
}

func DefaultPreferences() Preferences {
	return Preferences{
		NotificationsMuted: false,
		SelectedChannels:   []string{"in_app"},
		SoundEnabled:       true,
		PaginationLimit:    DefaultPaginationLimit,
	}
}

func (p Preferences) clone() Preferences {
	p.SelectedChannels = append([]string(nil), p.SelectedChannels...)
	return p
}

// normalize repairs values a hand-edited file may carry.
func (p Preferences) normalize() Preferences {
	if p.PaginationLimit < MinPaginationLimit || p.PaginationLimit > MaxPaginationLimit {
		p.PaginationLimit = DefaultPaginationLimit
	}
	if p.SelectedChannels == nil {
		p.SelectedChannels = []string{}
	}
	return p
}

func ValidatePaginationLimit(limit int) error {
	if limit < MinPaginationLimit || limit > MaxPaginationLimit {
		return newError(KindValidation, fmt.Sprintf("pagination limit must be between %d and %d, got %d", MinPaginationLimit, MaxPaginationLimit, limit), nil)
	}
	return nil
}

// PreferenceStore is durable client storage for the preferences object.
type PreferenceStore interface {
	Load() (Preferences, error)
	Save(Preferences) error
}

// FileStore keeps the serialized preferences under a single key of a viper-managed YAML file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultPreferencesPath returns ~/.config/notifcli/preferences.yaml.
func DefaultPreferencesPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "preferences.yaml")
	}
	return filepath.Join(home, ".config", "notifcli", "preferences.yaml")
}

func (s *FileStore) open() *viper.Viper {
	v := viper.New()
	v.SetConfigFile(s.path)
	v.SetConfigType("yaml")
	return v
}

// Load returns defaults when nothing has been stored yet.
func (s *FileStore) Load() (Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.open()
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return DefaultPreferences(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return DefaultPreferences(), nil
		}
		return DefaultPreferences(), fmt.Errorf("reading preferences %s: %w", s.path, err)
	}

	raw := v.GetString(preferencesKey)
	if raw == "" {
		return DefaultPreferences(), nil
	}

	prefs := DefaultPreferences()
	if err := json.Unmarshal([]byte(raw), &prefs); err != nil {
		return DefaultPreferences(), fmt.Errorf("parsing preferences %s: %w", s.path, err)
	}
	return prefs.normalize(), nil
}

func (s *FileStore) Save(prefs Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating preferences directory %s: %w", dir, err)
	}

	raw, err := json.Marshal(prefs)
	if err != nil {
		return err
	}

	v := s.open()
	v.Set(preferencesKey, string(raw))
	if err := v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("writing preferences to %s: %w", s.path, err)
	}
	return nil
}
