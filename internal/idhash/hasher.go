// Package idhash pseudonymizes user ids and keeps the inverse mapping so
// session ids can be translated back to the original user.
package idhash

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"go.uber.org/zap"

	sderrors "github.com/sitdown/sitdown/internal/errors"
	"github.com/sitdown/sitdown/internal/logging"
	"github.com/sitdown/sitdown/internal/sessionize"
)

// DefaultKeepLen is the default truncated hash length.
const DefaultKeepLen = 15

// Options controls hash length.
type Options struct {
	// Truncate shortens hashes to KeepLen hex characters
	Truncate bool
	// KeepLen is the truncated length
	KeepLen int
}

// DefaultOptions returns truncation to DefaultKeepLen characters.
func DefaultOptions() Options {
	return Options{Truncate: true, KeepLen: DefaultKeepLen}
}

// Hasher maps user ids to hex SHA-256 digests and remembers the reverse
// mapping. It is safe for concurrent use.
type Hasher struct {
	opts   Options
	logger *zap.Logger

	mu         sync.RWMutex
	originals  map[string]string // hash -> original user id
	collisions int
}

// NewHasher creates an empty hasher.
func NewHasher(opts Options, logger *zap.Logger) *Hasher {
	if opts.Truncate && opts.KeepLen <= 0 {
		opts.KeepLen = DefaultKeepLen
	}
	return &Hasher{
		opts:      opts,
		logger:    logging.WithComponent(logging.OrNop(logger), "idhash"),
		originals: make(map[string]string),
	}
}

// HashUserID returns the hash of id and records it. When a truncated hash is
// already mapped to a different id a collision is logged and counted, and
// the newer id takes the entry.
func (h *Hasher) HashUserID(id string) string {
	hash := h.digest(id)

	h.mu.Lock()
	defer h.mu.Unlock()
	if prev, ok := h.originals[hash]; ok && prev != id {
		h.collisions++
		h.logger.Warn("hash collision",
			zap.String("hash", hash),
			zap.String("user_id", id),
			zap.String("previous_user_id", prev))
	}
	h.originals[hash] = id
	return hash
}

func (h *Hasher) digest(id string) string {
	sum := sha256.Sum256([]byte(id))
	full := hex.EncodeToString(sum[:])
	if h.opts.Truncate && h.opts.KeepLen < len(full) {
		return full[:h.opts.KeepLen]
	}
	return full
}

// OriginalUserID returns the user id a hash was produced from.
func (h *Hasher) OriginalUserID(hash string) (string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	id, ok := h.originals[hash]
	if !ok {
		return "", sderrors.NewIDMapError(sderrors.CodeUnknownHash,
			fmt.Sprintf("unknown user hash %q", hash), nil)
	}
	return id, nil
}

// HashSessionID rewrites "{user}_{n}" as "{hash(user)}_{n}".
func (h *Hasher) HashSessionID(sessionID string) (string, error) {
	user, ordinal, err := sessionize.ParseSessionID(sessionID)
	if err != nil {
		return "", err
	}
	return sessionize.FormatSessionID(h.HashUserID(user), ordinal), nil
}

// OriginalSessionID rewrites "{hash}_{n}" as "{user}_{n}".
func (h *Hasher) OriginalSessionID(sessionID string) (string, error) {
	hash, ordinal, err := sessionize.ParseSessionID(sessionID)
	if err != nil {
		return "", err
	}
	user, err := h.OriginalUserID(hash)
	if err != nil {
		return "", err
	}
	return sessionize.FormatSessionID(user, ordinal), nil
}

// Collisions returns how many collisions have been observed.
func (h *Hasher) Collisions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.collisions
}

// Len returns the number of known hashes.
func (h *Hasher) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.originals)
}

// Snapshot returns a copy of the hash to user id map.
func (h *Hasher) Snapshot() map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]string, len(h.originals))
	for k, v := range h.originals {
		out[k] = v
	}
	return out
}

// Load merges the entries held by store into the hasher. Entries already in
// memory win. A store with no snapshot yet leaves the hasher unchanged.
func (h *Hasher) Load(ctx context.Context, store Store) error {
	entries, err := store.Load(ctx)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for hash, id := range entries {
		if _, ok := h.originals[hash]; !ok {
			h.originals[hash] = id
		}
	}
	h.logger.Debug("hash map loaded", zap.Int("entries", len(entries)))
	return nil
}

// Save writes the current map to store.
func (h *Hasher) Save(ctx context.Context, store Store) error {
	snapshot := h.Snapshot()
	if err := store.Save(ctx, snapshot); err != nil {
		return err
	}
	h.logger.Debug("hash map saved", zap.Int("entries", len(snapshot)))
	return nil
}
