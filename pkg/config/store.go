package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Store is a raw key lookup over the loaded configuration
type Store interface {
	// Get returns the trimmed value at key and whether it is non-empty
	Get(key string) (string, bool)
}

// ViperStore serves lookups from a viper instance, so env overrides apply
type ViperStore struct {
	v *viper.Viper
}

// NewStore wraps v
func NewStore(v *viper.Viper) *ViperStore {
	return &ViperStore{v: v}
}

// Get implements Store
func (s *ViperStore) Get(key string) (string, bool) {
	if s == nil || s.v == nil {
		return "", false
	}
	val := strings.TrimSpace(s.v.GetString(key))
	return val, val != ""
}

// MapStore is a fixed Store, handy for embedding and tests
type MapStore map[string]string

// Get implements Store
func (m MapStore) Get(key string) (string, bool) {
	val := strings.TrimSpace(m[key])
	return val, val != ""
}
