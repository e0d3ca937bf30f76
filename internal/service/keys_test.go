package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fpbe/auth-engine/internal/kv"
	"github.com/fpbe/auth-engine/internal/model"
)

func newTestKeyManager(t *testing.T, clock *fakeClock, store kv.Store) *KeyManager {
	t.Helper()
	m, err := NewKeyManager(KeyManagerConfig{
		Store:            store,
		RotationInterval: 24 * time.Hour,
		GracePeriod:      time.Hour,
		Now:              clock.Now,
		Generate:         testKeyGen,
	})
	if err != nil {
		t.Fatalf("NewKeyManager: %v", err)
	}
	return m
}

func TestKeyManagerActiveKeyLookup(t *testing.T) {
	clock := newFakeClock()
	m := newTestKeyManager(t, clock, kv.NewMemory(clock.Now))

	active := m.ActiveKey()
	if active == nil || active.PrivateKey == nil {
		t.Fatal("expected an active key pair with a private half")
	}

	pub, err := m.Lookup(context.Background(), active.ID)
	if err != nil {
		t.Fatalf("Lookup(active): %v", err)
	}
	if pub.N.Cmp(active.PublicKey.N) != 0 {
		t.Fatal("lookup returned a different public key")
	}

	if _, err := m.Lookup(context.Background(), "no-such-key"); !errors.Is(err, model.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestKeyManagerRotationKeepsRetiredKeyForGrace(t *testing.T) {
	clock := newFakeClock()
	m := newTestKeyManager(t, clock, kv.NewMemory(clock.Now))

	old := m.ActiveKey()
	if err := m.Rotate(context.Background()); err != nil {
		t.Fatalf("Rotate: %v", err)
	}

	next := m.ActiveKey()
	if next.ID == old.ID {
		t.Fatal("rotation did not swap the active key")
	}

	// Mid-grace: the retired public key still resolves.
	clock.Advance(30 * time.Minute)
	if _, err := m.Lookup(context.Background(), old.ID); err != nil {
		t.Fatalf("Lookup(retired, mid-grace): %v", err)
	}

	// Past the grace window it is gone.
	clock.Advance(2 * time.Hour)
	if _, err := m.Lookup(context.Background(), old.ID); !errors.Is(err, model.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey after grace elapsed, got %v", err)
	}
}

func TestKeyManagerPersistsRetiredPublicKey(t *testing.T) {
	clock := newFakeClock()
	store := kv.NewMemory(clock.Now)
	m := newTestKeyManager(t, clock, store)

	old := m.ActiveKey()
	if err := m.Rotate(context.Background()); err != nil {
		t.Fatalf("Rotate: %v", err)
	}

	if _, err := store.Get(context.Background(), retiredKeyPrefix+old.ID); err != nil {
		t.Fatalf("expected retired public key persisted before eviction: %v", err)
	}
}

func TestRotateKeyringIsPureAndEvictsExpired(t *testing.T) {
	clock := newFakeClock()
	now := clock.Now()

	a := &SigningKeyPair{ID: "a", CreatedAt: now}
	b := &SigningKeyPair{ID: "b", CreatedAt: now}
	c := &SigningKeyPair{ID: "c", CreatedAt: now}

	ring := &keyring{active: a}
	ring = rotateKeyring(ring, b, now, time.Hour)
	ring = rotateKeyring(ring, c, now.Add(2*time.Hour), time.Hour)

	if ring.active.ID != "c" {
		t.Fatalf("expected active c, got %s", ring.active.ID)
	}
	if len(ring.retired) != 1 || ring.retired[0].ID != "b" {
		t.Fatalf("expected only b retired (a's grace elapsed), got %+v", ring.retired)
	}
}

// gatedPersistStore holds every Set until released, simulating a slow
// or hung store during rotation persistence.
type gatedPersistStore struct {
	kv.Store
	release chan struct{}
}

func (s *gatedPersistStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	select {
	case <-s.release:
		return s.Store.Set(ctx, key, value, ttl)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestRotationPersistDoesNotBlockReaders(t *testing.T) {
	clock := newFakeClock()
	store := &gatedPersistStore{Store: kv.NewMemory(clock.Now), release: make(chan struct{})}
	m := newTestKeyManager(t, clock, store)
	old := m.ActiveKey()

	rotateDone := make(chan error, 1)
	go func() { rotateDone <- m.Rotate(context.Background()) }()

	readsDone := make(chan struct{})
	go func() {
		defer close(readsDone)
		for i := 0; i < 50; i++ {
			if m.ActiveKey() == nil {
				t.Error("nil active key while rotation persistence is in flight")
				return
			}
			if _, err := m.Lookup(context.Background(), old.ID); err != nil {
				t.Errorf("Lookup while rotation persistence is in flight: %v", err)
				return
			}
		}
	}()

	select {
	case <-readsDone:
	case <-time.After(time.Second):
		t.Fatal("readers blocked behind rotation persistence")
	}

	close(store.release)
	if err := <-rotateDone; err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if m.ActiveKey().ID == old.ID {
		t.Fatal("rotation did not swap after persistence completed")
	}
}

func TestRotationPersistTimeoutAborts(t *testing.T) {
	clock := newFakeClock()
	store := &gatedPersistStore{Store: kv.NewMemory(clock.Now), release: make(chan struct{})}
	m := newTestKeyManager(t, clock, store)
	old := m.ActiveKey()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := m.Rotate(ctx); err == nil {
		t.Fatal("expected rotation to fail when persistence cannot complete")
	}
	if m.ActiveKey().ID != old.ID {
		t.Fatal("aborted rotation must not swap the active key")
	}
}

// outageStore fails every read, simulating an unreachable store.
type outageStore struct{ kv.Store }

func (s outageStore) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func TestKeyLookupStoreOutageIsTransient(t *testing.T) {
	clock := newFakeClock()
	m := newTestKeyManager(t, clock, outageStore{kv.NewMemory(clock.Now)})

	_, err := m.Lookup(context.Background(), "key-rotated-by-a-peer")
	if !errors.Is(err, model.ErrTransient) {
		t.Fatalf("expected ErrTransient during a store outage, got %v", err)
	}
	if errors.Is(err, model.ErrInvalidKey) {
		t.Fatal("a store outage must not read as an unknown key")
	}

	// The active key resolves from memory regardless of the store.
	if _, err := m.Lookup(context.Background(), m.ActiveKey().ID); err != nil {
		t.Fatalf("Lookup(active) during outage: %v", err)
	}
}

func TestKeyManagerConcurrentRotationAndLookup(t *testing.T) {
	clock := newFakeClock()
	m := newTestKeyManager(t, clock, kv.NewMemory(clock.Now))

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 10; i++ {
			if err := m.Rotate(context.Background()); err != nil {
				t.Errorf("Rotate: %v", err)
				return
			}
		}
		close(stop)
	}()

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				active := m.ActiveKey()
				if active == nil || active.PrivateKey == nil || active.PublicKey == nil {
					t.Error("observed a torn active key")
					return
				}
				if _, err := m.Lookup(context.Background(), active.ID); err != nil {
					// The key may have rotated out past grace between the
					// two reads; anything else is a real failure.
					if !errors.Is(err, model.ErrInvalidKey) {
						t.Errorf("Lookup: %v", err)
						return
					}
				}
			}
		}()
	}

	wg.Wait()
}
