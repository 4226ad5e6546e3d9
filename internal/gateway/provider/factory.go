package provider

import (
	"sync"
)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// RegisterFactory registers a provider factory under a type name. Later
// registrations for the same name win, which lets tests swap in doubles.
func RegisterFactory(providerType string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[providerType] = f
}

// GetFactory returns the factory registered for providerType.
func GetFactory(providerType string) (Factory, error) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	f, ok := factories[providerType]
	if !ok {
		return nil, ErrUnknownProvider.Msg("unknown provider type: " + providerType)
	}
	return f, nil
}
