// Package identity issues the pseudo-user identifier used when no
// authenticated session is present. The identifier is created lazily on
// first access and cached in the caller-provided storage indefinitely; the
// same value comes back on every subsequent access until the stored value
// is externally cleared.
package identity

import (
	"strings"

	"github.com/google/uuid"
)

// GuestIDKey is the fixed storage key the guest identifier lives under.
// For browser clients this is the cookie name.
const GuestIDKey = "ai_tools_guest_id"

const guestIDPrefix = "guest_"

// Store is the persistent key-value storage the guest identifier is cached
// in. HTTP handlers back it with the client's cookie jar; tests use a map.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string)
}

// GetOrCreate returns the guest identifier from the store, synthesizing and
// persisting a new one when absent. The identifier is random and
// human-unreadable; it is a single-browser pseudo-identity, not a
// cryptographic one.
func GetOrCreate(store Store) string {
	if id, ok := store.Get(GuestIDKey); ok && id != "" {
		return id
	}
	id := newGuestID()
	store.Set(GuestIDKey, id)
	return id
}

func newGuestID() string {
	return guestIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:13]
}
