package enums

import (
	"fmt"
	"strings"
)

// StorePlatform identifies which app store a subscription originates from.
type StorePlatform string

const (
	StorePlatformPlay     StorePlatform = "play"
	StorePlatformAppStore StorePlatform = "appstore"
)

// String implements fmt.Stringer.
func (p StorePlatform) String() string {
	return string(p)
}

// IsValid reports whether the value is known.
func (p StorePlatform) IsValid() bool {
	return p == StorePlatformPlay || p == StorePlatformAppStore
}

// ParseStorePlatform normalizes the billing aggregator's store vocabulary.
// The webhook path sends upper-case identifiers (PLAY_STORE, APP_STORE) while
// customer-info snapshots send lower-case ones.
func ParseStorePlatform(value string) (StorePlatform, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "play_store", "play", "android":
		return StorePlatformPlay, nil
	case "app_store", "appstore", "ios":
		return StorePlatformAppStore, nil
	}
	return "", fmt.Errorf("unsupported store %q", value)
}
