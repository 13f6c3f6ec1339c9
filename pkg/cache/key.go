package cache

import (
	"strconv"
	"strings"
)

// keyPrefix namespaces every key this package writes.
const keyPrefix = "userlink"

// KindLink is the key kind for fetched external links.
const KindLink = "link"

// Key identifies one cached value.
type Key struct {
	// Kind is the value family, e.g. KindLink
	Kind string

	// ID is the user identifier
	ID int64
}

// LinkKey returns the key under which the link of user id is cached.
func LinkKey(id int64) Key {
	return Key{Kind: KindLink, ID: id}
}

// String generates a deterministic key string.
// Format: userlink:kind:id
//
// Example:
//
//	userlink:link:42
func (k Key) String() string {
	parts := []string{keyPrefix}

	if kind := strings.Trim(k.Kind, ": "); kind != "" {
		parts = append(parts, kind)
	}

	parts = append(parts, strconv.FormatInt(k.ID, 10))

	return strings.Join(parts, ":")
}
