package service

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/fpbe/auth-engine/internal/kv"
	"github.com/fpbe/auth-engine/internal/model"
)

const (
	bioAttemptPrefix = "bioattempts:"
	bioAttemptWindow = time.Hour

	// Liveness floor: a replayed static capture produces a nearly
	// constant vector; live captures carry sensor noise.
	livenessMinVariance = 1e-4
)

// BiometricTemplateRepo persists encrypted templates.
type BiometricTemplateRepo interface {
	GetBiometricTemplate(ctx context.Context, subjectID, deviceID string) (*model.BiometricTemplate, error)
	UpsertBiometricTemplate(ctx context.Context, t *model.BiometricTemplate) error
	TouchBiometricTemplate(ctx context.Context, subjectID, deviceID string, usedAt time.Time) error
	DeleteBiometricTemplate(ctx context.Context, subjectID, deviceID string) error
}

// BiometricVault encrypts, stores and matches biometric templates.
// Plaintext template bytes never leave the synchronous scope of a
// call, are never logged, and never persist.
type BiometricVault struct {
	repo           BiometricTemplateRepo
	counters       kv.Store
	aead           cipher.AEAD
	minQuality     float64
	matchThreshold float64
	maxAttempts    int
	now            func() time.Time
}

type BiometricVaultConfig struct {
	Repo           BiometricTemplateRepo
	Counters       kv.Store
	Key            []byte // 32 bytes, AES-256-GCM
	MinQuality     float64
	MatchThreshold float64
	MaxAttempts    int
	Now            func() time.Time
}

type EnrollmentResult struct {
	TemplateHash string
	QualityScore float64
	EnrolledAt   time.Time
}

func NewBiometricVault(cfg BiometricVaultConfig) (*BiometricVault, error) {
	if len(cfg.Key) != 32 {
		return nil, errors.New("biometric vault key must be 32 bytes")
	}
	block, err := aes.NewCipher(cfg.Key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if cfg.MatchThreshold <= 0 {
		cfg.MatchThreshold = cfg.MinQuality
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &BiometricVault{
		repo:           cfg.Repo,
		counters:       cfg.Counters,
		aead:           aead,
		minQuality:     cfg.MinQuality,
		matchThreshold: cfg.MatchThreshold,
		maxAttempts:    cfg.MaxAttempts,
		now:            cfg.Now,
	}, nil
}

// Enroll gates on quality, encrypts the raw template under the vault
// key with a fresh nonce, and supersedes any prior template for the
// (subject, device) pair.
func (v *BiometricVault) Enroll(ctx context.Context, subjectID, deviceID, rawTemplate, templateType string) (*EnrollmentResult, error) {
	vector, err := DecodeTemplate(rawTemplate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidInput, err)
	}

	quality := templateQuality(vector)
	if quality < v.minQuality {
		return nil, model.ErrLowQuality
	}

	plaintext := encodeVector(vector)
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	sealed := v.aead.Seal(nil, nonce, plaintext, nil)
	tagStart := len(sealed) - v.aead.Overhead()

	hash := sha256.Sum256(plaintext)
	now := v.now()
	record := &model.BiometricTemplate{
		SubjectID:    subjectID,
		DeviceID:     deviceID,
		Type:         templateType,
		CipherText:   sealed[:tagStart],
		IV:           nonce,
		AuthTag:      sealed[tagStart:],
		TemplateHash: hash[:],
		QualityScore: quality,
		EnrolledAt:   now,
	}
	if err := v.repo.UpsertBiometricTemplate(ctx, record); err != nil {
		return nil, err
	}

	return &EnrollmentResult{
		TemplateHash: fmt.Sprintf("%x", hash[:8]),
		QualityScore: quality,
		EnrolledAt:   now,
	}, nil
}

// Verify matches a presented template against the stored one. The
// attempt counter is bumped before anything else so two concurrent
// calls cannot both slip under the limit; success resets it.
func (v *BiometricVault) Verify(ctx context.Context, subjectID, deviceID, presentedTemplate string) (bool, error) {
	counterKey := bioAttemptPrefix + subjectID + ":" + deviceID
	count, windowLeft, err := v.counters.Increment(ctx, counterKey, bioAttemptWindow)
	if err != nil {
		return false, fmt.Errorf("%w: attempt counter unavailable: %v", model.ErrTransient, err)
	}
	if count > int64(v.maxAttempts) {
		return false, &model.TooManyAttemptsError{RetryAfter: windowLeft}
	}

	presented, err := DecodeTemplate(presentedTemplate)
	if err != nil {
		return false, fmt.Errorf("%w: %v", model.ErrInvalidInput, err)
	}

	if !passesLiveness(presented) {
		return false, model.ErrLivenessFailed
	}

	record, err := v.repo.GetBiometricTemplate(ctx, subjectID, deviceID)
	if err != nil {
		return false, err
	}

	sealed := make([]byte, 0, len(record.CipherText)+len(record.AuthTag))
	sealed = append(sealed, record.CipherText...)
	sealed = append(sealed, record.AuthTag...)
	plaintext, err := v.aead.Open(nil, record.IV, sealed, nil)
	if err != nil {
		log.Printf("[biometric] SECURITY: template integrity failure for subject=%s device=%s", subjectID, deviceID)
		return false, model.ErrIntegrityFailure
	}
	hash := sha256.Sum256(plaintext)
	if subtle.ConstantTimeCompare(hash[:], record.TemplateHash) != 1 {
		log.Printf("[biometric] SECURITY: template hash mismatch for subject=%s device=%s", subjectID, deviceID)
		return false, model.ErrIntegrityFailure
	}

	stored, err := decodeVector(plaintext)
	if err != nil {
		return false, model.ErrIntegrityFailure
	}

	score := cosineSimilarity(stored, presented)
	if score < v.matchThreshold {
		return false, nil
	}

	if err := v.counters.Delete(ctx, counterKey); err != nil {
		log.Printf("[biometric] failed to reset attempt counter for subject=%s: %v", subjectID, err)
	}
	if err := v.repo.TouchBiometricTemplate(ctx, subjectID, deviceID, v.now()); err != nil {
		log.Printf("[biometric] failed to record template use for subject=%s: %v", subjectID, err)
	}
	return true, nil
}

// Revoke removes the enrolled template for the pair.
func (v *BiometricVault) Revoke(ctx context.Context, subjectID, deviceID string) error {
	return v.repo.DeleteBiometricTemplate(ctx, subjectID, deviceID)
}

// DecodeTemplate parses the wire form: base64 of little-endian
// float32s.
func DecodeTemplate(raw string) ([]float32, error) {
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, err
	}
	return decodeVector(data)
}

// EncodeTemplate is the inverse of DecodeTemplate.
func EncodeTemplate(vector []float32) string {
	return base64.StdEncoding.EncodeToString(encodeVector(vector))
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, errors.New("template must be a non-empty float32 vector")
	}
	vector := make([]float32, len(data)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector, nil
}

func encodeVector(vector []float32) []byte {
	data := make([]byte, len(vector)*4)
	for i, f := range vector {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(f))
	}
	return data
}

// templateQuality is the mean magnitude of the vector clamped to
// [0, 1]: weak captures come through as near-zero energy.
func templateQuality(vector []float32) float64 {
	var sum float64
	for _, f := range vector {
		sum += math.Abs(float64(f))
	}
	quality := sum / float64(len(vector))
	if quality > 1 {
		quality = 1
	}
	return quality
}

func passesLiveness(vector []float32) bool {
	if len(vector) < 2 {
		return false
	}
	var mean float64
	for _, f := range vector {
		mean += float64(f)
	}
	mean /= float64(len(vector))

	var variance float64
	for _, f := range vector {
		d := float64(f) - mean
		variance += d * d
	}
	variance /= float64(len(vector))
	return variance >= livenessMinVariance
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
