package service

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"sync"
	"time"

	"github.com/fpbe/auth-engine/internal/model"
)

// fakeClock is a manually advanced clock shared by services and the
// in-memory key-value store in tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// testKeyGen trades key size for test speed.
func testKeyGen() (*rsa.PrivateKey, error) {
	return rsa.GenerateKey(rand.Reader, 1024)
}

type fakeCredentialRepo struct {
	mu      sync.Mutex
	records map[string]*model.CredentialRecord
}

func newFakeCredentialRepo() *fakeCredentialRepo {
	return &fakeCredentialRepo{records: make(map[string]*model.CredentialRecord)}
}

func (r *fakeCredentialRepo) CreateCredential(_ context.Context, subjectID, passwordHash string) (*model.CredentialRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[subjectID]; ok {
		return nil, model.ErrConflict
	}
	rec := &model.CredentialRecord{SubjectID: subjectID, PasswordHash: passwordHash}
	r.records[subjectID] = rec
	copied := *rec
	return &copied, nil
}

func (r *fakeCredentialRepo) GetCredential(_ context.Context, subjectID string) (*model.CredentialRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[subjectID]
	if !ok {
		return nil, model.ErrNotFound
	}
	copied := *rec
	return &copied, nil
}

func (r *fakeCredentialRepo) UpdateCredentialAttempts(_ context.Context, rec *model.CredentialRecord, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.records[rec.SubjectID]
	if !ok {
		return model.ErrNotFound
	}
	if stored.Version != expectedVersion {
		return model.ErrConflict
	}
	copied := *rec
	copied.Version = expectedVersion + 1
	r.records[rec.SubjectID] = &copied
	rec.Version = copied.Version
	return nil
}

type fakeDeviceRepo struct {
	mu       sync.Mutex
	bindings map[string]*model.DeviceBinding
}

func newFakeDeviceRepo() *fakeDeviceRepo {
	return &fakeDeviceRepo{bindings: make(map[string]*model.DeviceBinding)}
}

func (r *fakeDeviceRepo) GetDeviceBinding(_ context.Context, subjectID, deviceID string) (*model.DeviceBinding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bindings[subjectID+"|"+deviceID]
	if !ok {
		return nil, model.ErrNotFound
	}
	copied := *b
	return &copied, nil
}

func (r *fakeDeviceRepo) UpsertDeviceBinding(_ context.Context, b *model.DeviceBinding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *b
	r.bindings[b.SubjectID+"|"+b.DeviceID] = &copied
	return nil
}

type fakeTemplateRepo struct {
	mu        sync.Mutex
	templates map[string]*model.BiometricTemplate
}

func newFakeTemplateRepo() *fakeTemplateRepo {
	return &fakeTemplateRepo{templates: make(map[string]*model.BiometricTemplate)}
}

func (r *fakeTemplateRepo) GetBiometricTemplate(_ context.Context, subjectID, deviceID string) (*model.BiometricTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.templates[subjectID+"|"+deviceID]
	if !ok {
		return nil, model.ErrNotFound
	}
	copied := *t
	return &copied, nil
}

func (r *fakeTemplateRepo) UpsertBiometricTemplate(_ context.Context, t *model.BiometricTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *t
	r.templates[t.SubjectID+"|"+t.DeviceID] = &copied
	return nil
}

func (r *fakeTemplateRepo) TouchBiometricTemplate(_ context.Context, subjectID, deviceID string, usedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.templates[subjectID+"|"+deviceID]; ok {
		at := usedAt
		t.LastUsedAt = &at
	}
	return nil
}

func (r *fakeTemplateRepo) DeleteBiometricTemplate(_ context.Context, subjectID, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.templates, subjectID+"|"+deviceID)
	return nil
}
