package service

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fpbe/auth-engine/internal/kv"
	"github.com/fpbe/auth-engine/internal/model"
)

const (
	retiredKeyPrefix = "retiredkey:"

	// keyStoreTimeout bounds every store round trip the key manager
	// makes; a hung store must never stall signing or verification.
	keyStoreTimeout = 2 * time.Second
)

// SigningKeyPair is the active asymmetric key. Retired pairs keep only
// the public half, for the grace window after rotation.
type SigningKeyPair struct {
	ID         string
	PrivateKey *rsa.PrivateKey
	PublicKey  *rsa.PublicKey
	CreatedAt  time.Time
}

type retiredKey struct {
	ID        string
	PublicKey *rsa.PublicKey
	ExpiresAt time.Time
}

// keyring is an immutable snapshot: one active pair plus the retired
// set. Rotation builds a fresh keyring and swaps the pointer, so
// concurrent readers always see a consistent view and never a
// half-built one.
type keyring struct {
	active  *SigningKeyPair
	retired []retiredKey
}

type KeyManager struct {
	mu   sync.RWMutex
	ring *keyring

	store            kv.Store
	rotationInterval time.Duration
	gracePeriod      time.Duration
	now              func() time.Time
	generate         func() (*rsa.PrivateKey, error)
}

type KeyManagerConfig struct {
	Store            kv.Store
	RotationInterval time.Duration
	GracePeriod      time.Duration
	Now              func() time.Time
	// Generate overrides key generation; tests inject small or
	// precomputed keys here.
	Generate func() (*rsa.PrivateKey, error)
}

func NewKeyManager(cfg KeyManagerConfig) (*KeyManager, error) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Generate == nil {
		cfg.Generate = func() (*rsa.PrivateKey, error) {
			return rsa.GenerateKey(rand.Reader, 2048)
		}
	}
	m := &KeyManager{
		store:            cfg.Store,
		rotationInterval: cfg.RotationInterval,
		gracePeriod:      cfg.GracePeriod,
		now:              cfg.Now,
		generate:         cfg.Generate,
	}
	pair, err := m.newPair()
	if err != nil {
		return nil, err
	}
	m.ring = &keyring{active: pair}
	return m, nil
}

func (m *KeyManager) newPair() (*SigningKeyPair, error) {
	priv, err := m.generate()
	if err != nil {
		return nil, err
	}
	return &SigningKeyPair{
		ID:         uuid.NewString(),
		PrivateKey: priv,
		PublicKey:  &priv.PublicKey,
		CreatedAt:  m.now(),
	}, nil
}

// ActiveKey returns the current signing pair. Memory-only, never
// blocks on I/O.
func (m *KeyManager) ActiveKey() *SigningKeyPair {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ring.active
}

// Lookup resolves a key id to its public key: the active key first,
// then unexpired retired entries, then the persisted public half (a
// peer process may have rotated). Retired entries past their grace
// window are ignored.
func (m *KeyManager) Lookup(ctx context.Context, keyID string) (*rsa.PublicKey, error) {
	m.mu.RLock()
	ring := m.ring
	m.mu.RUnlock()

	if ring.active.ID == keyID {
		return ring.active.PublicKey, nil
	}
	now := m.now()
	for _, rk := range ring.retired {
		if rk.ID == keyID && now.Before(rk.ExpiresAt) {
			return rk.PublicKey, nil
		}
	}

	if m.store != nil {
		readCtx, cancel := context.WithTimeout(ctx, keyStoreTimeout)
		defer cancel()
		der, err := m.store.Get(readCtx, retiredKeyPrefix+keyID)
		switch {
		case err == nil:
			pub, perr := x509.ParsePKIXPublicKey(der)
			if perr == nil {
				if rsaPub, ok := pub.(*rsa.PublicKey); ok {
					return rsaPub, nil
				}
			}
			// A corrupt entry is as unresolvable as a missing one.
		case errors.Is(err, model.ErrNotFound):
		case errors.Is(err, context.DeadlineExceeded):
			return nil, fmt.Errorf("%w: signing key lookup timed out", model.ErrTransient)
		default:
			return nil, fmt.Errorf("%w: signing key lookup failed: %v", model.ErrTransient, err)
		}
	}
	return nil, model.ErrInvalidKey
}

// Rotate generates a fresh pair and swaps it in. The outgoing public
// key is persisted before the swap so tokens signed moments earlier
// stay verifiable across processes; a persistence failure aborts the
// rotation and the next tick retries. Persistence runs outside the
// write lock and under a timeout, so readers keep signing and
// verifying while the store round trip is in flight.
func (m *KeyManager) Rotate(ctx context.Context) error {
	next, err := m.newPair()
	if err != nil {
		return err
	}

	m.mu.RLock()
	outgoing := m.ring.active
	m.mu.RUnlock()

	if m.store != nil {
		der, err := x509.MarshalPKIXPublicKey(outgoing.PublicKey)
		if err != nil {
			return err
		}
		setCtx, cancel := context.WithTimeout(ctx, keyStoreTimeout)
		defer cancel()
		if err := m.store.Set(setCtx, retiredKeyPrefix+outgoing.ID, der, m.gracePeriod); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ring.active.ID != outgoing.ID {
		// A concurrent rotation already retired this key and persisted
		// its own outgoing half; swapping again would double-rotate.
		return nil
	}
	m.ring = rotateKeyring(m.ring, next, m.now(), m.gracePeriod)
	log.Printf("[keys] rotated signing key: active=%s retired=%s grace=%s", next.ID, outgoing.ID, m.gracePeriod)
	return nil
}

// rotateKeyring moves the active pair into the retired set, stamped
// with now+grace, and drops entries whose grace already elapsed. Pure,
// so rotation semantics are testable without clocks or stores.
func rotateKeyring(ring *keyring, next *SigningKeyPair, now time.Time, grace time.Duration) *keyring {
	retired := make([]retiredKey, 0, len(ring.retired)+1)
	retired = append(retired, retiredKey{
		ID:        ring.active.ID,
		PublicKey: ring.active.PublicKey,
		ExpiresAt: now.Add(grace),
	})
	for _, rk := range ring.retired {
		if now.Before(rk.ExpiresAt) {
			retired = append(retired, rk)
		}
	}
	return &keyring{active: next, retired: retired}
}

// Run triggers rotation on the configured interval until the context
// is cancelled. Runs alongside request-serving goroutines; readers go
// through the snapshot and are never blocked by a rotation in
// progress.
func (m *KeyManager) Run(ctx context.Context) {
	if m.rotationInterval <= 0 {
		return
	}
	ticker := time.NewTicker(m.rotationInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Rotate(ctx); err != nil {
				log.Printf("[keys] rotation failed, will retry next interval: %v", err)
			}
		}
	}
}
