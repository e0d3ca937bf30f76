package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/fpbe/auth-engine/internal/model"
)

type Fingerprint struct {
	Platform       string
	OSVersion      string
	AppVersion     string
	DeviceUniqueID string
	// RiskSignal is supplied by an external risk feed, 0 (clean) to 1.
	RiskSignal float64
}

type Assessment struct {
	TrustScore float64
	RiskLevel  string
	Factors    []string
}

const (
	RiskLevelLow    = "low"
	RiskLevelMedium = "medium"
	RiskLevelHigh   = "high"
)

var knownPlatforms = map[string]struct{}{
	"ios":     {},
	"android": {},
	"web":     {},
}

// DeviceBindingRepo persists (subject, device) bindings.
type DeviceBindingRepo interface {
	GetDeviceBinding(ctx context.Context, subjectID, deviceID string) (*model.DeviceBinding, error)
	UpsertDeviceBinding(ctx context.Context, b *model.DeviceBinding) error
}

// DeviceTrustAssessor scores device fingerprints and maintains
// bindings. Scoring is deterministic: the same fingerprint always
// produces the same score and factor list.
type DeviceTrustAssessor struct {
	repo      DeviceBindingRepo
	threshold float64
	now       func() time.Time
}

func NewDeviceTrustAssessor(repo DeviceBindingRepo, threshold float64, now func() time.Time) *DeviceTrustAssessor {
	if now == nil {
		now = time.Now
	}
	return &DeviceTrustAssessor{repo: repo, threshold: threshold, now: now}
}

func (a *DeviceTrustAssessor) Threshold() float64 { return a.threshold }

func (a *DeviceTrustAssessor) Assess(fp Fingerprint) Assessment {
	score := 1.0
	var factors []string

	if _, ok := knownPlatforms[strings.ToLower(fp.Platform)]; !ok {
		score -= 0.3
		factors = append(factors, "unrecognized platform")
	}
	if strings.TrimSpace(fp.DeviceUniqueID) == "" {
		score -= 0.4
		factors = append(factors, "missing device identifier")
	}
	if strings.TrimSpace(fp.OSVersion) == "" {
		score -= 0.1
		factors = append(factors, "missing os version")
	}
	if strings.TrimSpace(fp.AppVersion) == "" {
		score -= 0.1
		factors = append(factors, "missing app version")
	}

	risk := fp.RiskSignal
	if risk < 0 {
		risk = 0
	}
	if risk > 1 {
		risk = 1
	}
	if risk > 0 {
		score -= 0.5 * risk
		factors = append(factors, "external risk signal")
	}

	if score < 0 {
		score = 0
	}

	level := RiskLevelHigh
	switch {
	case score >= a.threshold:
		level = RiskLevelLow
	case score >= 0.4:
		level = RiskLevelMedium
	}

	return Assessment{TrustScore: score, RiskLevel: level, Factors: factors}
}

// Hash canonicalizes the fingerprint for embedding in token claims.
func (fp Fingerprint) Hash() string {
	canonical := strings.Join([]string{
		strings.ToLower(fp.Platform),
		fp.OSVersion,
		fp.AppVersion,
		fp.DeviceUniqueID,
	}, "|")
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// Bind records or refreshes the binding after a successful
// authentication. Trusted flips true only with an acceptable score.
func (a *DeviceTrustAssessor) Bind(ctx context.Context, subjectID, deviceID string, score float64) error {
	binding := &model.DeviceBinding{
		SubjectID:  subjectID,
		DeviceID:   deviceID,
		TrustScore: score,
		Trusted:    score >= a.threshold,
		LastSeenAt: a.now(),
	}
	return a.repo.UpsertDeviceBinding(ctx, binding)
}

func (a *DeviceTrustAssessor) IsBound(ctx context.Context, subjectID, deviceID string) (bool, error) {
	binding, err := a.repo.GetDeviceBinding(ctx, subjectID, deviceID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return binding.Trusted, nil
}
