package authkit

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrNonceNotFound indicates the nonce was never issued or was already consumed.
	ErrNonceNotFound = errors.New("nonce.not_found")
	// ErrNonceExpired indicates the nonce outlived its TTL.
	ErrNonceExpired = errors.New("nonce.expired")
	// ErrNonceSubjectMismatch indicates the nonce was issued to a different subject.
	ErrNonceSubjectMismatch = errors.New("nonce.subject_mismatch")
)

// NonceStore issues one-time tokens. Login requests bind them into Google ID tokens and the
// Strava authorization flow uses subject-bound ones as OAuth state.
type NonceStore interface {
	Issue(ctx context.Context) (string, error)
	Consume(ctx context.Context, token string) error
	IssueFor(ctx context.Context, subject string) (string, error)
	ConsumeFor(ctx context.Context, token string, subject string) error
}

type nonceEntry struct {
	expiresAt time.Time
	subject   string
}

type memoryNonceStore struct {
	mutex     sync.Mutex
	entries   map[string]nonceEntry
	ttl       time.Duration
	clock     Clock
	tokenSize int
}

// NewMemoryNonceStore constructs an in-memory NonceStore.
func NewMemoryNonceStore(ttl time.Duration, clock Clock) NonceStore {
	if clock == nil {
		clock = systemClock{}
	}
	return &memoryNonceStore{
		entries:   make(map[string]nonceEntry),
		ttl:       ttl,
		clock:     clock,
		tokenSize: 32,
	}
}

func (store *memoryNonceStore) Issue(ctx context.Context) (string, error) {
	return store.IssueFor(ctx, "")
}

func (store *memoryNonceStore) Consume(ctx context.Context, token string) error {
	return store.ConsumeFor(ctx, token, "")
}

func (store *memoryNonceStore) IssueFor(ctx context.Context, subject string) (string, error) {
	buffer := make([]byte, store.tokenSize)
	if _, err := rand.Read(buffer); err != nil {
		return "", fmt.Errorf("nonce.random: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buffer)
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.purgeExpiredLocked()
	store.entries[token] = nonceEntry{expiresAt: store.clock.Now().Add(store.ttl), subject: subject}
	return token, nil
}

// ConsumeFor invalidates the token whatever the outcome, so a mismatched subject burns it.
func (store *memoryNonceStore) ConsumeFor(ctx context.Context, token string, subject string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	defer store.purgeExpiredLocked()
	entry, ok := store.entries[token]
	if !ok {
		return ErrNonceNotFound
	}
	delete(store.entries, token)
	if store.clock.Now().After(entry.expiresAt) {
		return ErrNonceExpired
	}
	if entry.subject != subject {
		return ErrNonceSubjectMismatch
	}
	return nil
}

func (store *memoryNonceStore) purgeExpiredLocked() {
	now := store.clock.Now()
	for token, entry := range store.entries {
		if now.After(entry.expiresAt) {
			delete(store.entries, token)
		}
	}
}
