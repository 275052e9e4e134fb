package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Holder is the persisted record of a process holding a scope lock.
type Holder struct {
	ID         string    `json:"id"`
	Scope      []string  `json:"scope"`
	PID        int       `json:"pid"`
	Command    string    `json:"command,omitempty"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// ScopeID derives a stable, filesystem-safe identifier for scope.
// Elements are length-prefixed before hashing, so element boundaries are
// part of the identity.
func ScopeID(scope []string) string {
	h := sha256.New()
	for _, e := range scope {
		fmt.Fprintf(h, "%d:%s", len(e), e)
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// FormatScope renders scope for display.
func FormatScope(scope []string) string {
	return strings.Join(scope, "/")
}

// HolderIndex is the top-level DB structure of the holder registry.
type HolderIndex struct {
	Holders map[string]*Holder `json:"holders"` // holder ID → record
}

// Init implements storage.Initer.
func (idx *HolderIndex) Init() {
	if idx.Holders == nil {
		idx.Holders = make(map[string]*Holder)
	}
}
