package service

import (
	"context"
	"testing"
)

func goodFingerprint() Fingerprint {
	return Fingerprint{
		Platform:       "ios",
		OSVersion:      "17.4",
		AppVersion:     "2.3.1",
		DeviceUniqueID: "device-1",
	}
}

func TestAssessIsDeterministic(t *testing.T) {
	a := NewDeviceTrustAssessor(newFakeDeviceRepo(), 0.7, nil)
	fp := Fingerprint{Platform: "android", OSVersion: "14", AppVersion: "2.0.0", DeviceUniqueID: "d", RiskSignal: 0.3}

	first := a.Assess(fp)
	for i := 0; i < 5; i++ {
		if got := a.Assess(fp); got.TrustScore != first.TrustScore || got.RiskLevel != first.RiskLevel {
			t.Fatalf("assessment varies between calls: %+v vs %+v", first, got)
		}
	}
}

func TestAssessCleanDeviceScoresHigh(t *testing.T) {
	a := NewDeviceTrustAssessor(newFakeDeviceRepo(), 0.7, nil)

	got := a.Assess(goodFingerprint())
	if got.TrustScore != 1.0 {
		t.Fatalf("expected full score for a clean fingerprint, got %v", got.TrustScore)
	}
	if got.RiskLevel != RiskLevelLow {
		t.Fatalf("expected low risk, got %s", got.RiskLevel)
	}
	if len(got.Factors) != 0 {
		t.Fatalf("expected no deduction factors, got %v", got.Factors)
	}
}

func TestAssessDeductions(t *testing.T) {
	a := NewDeviceTrustAssessor(newFakeDeviceRepo(), 0.7, nil)

	fp := goodFingerprint()
	fp.Platform = "toaster"
	fp.DeviceUniqueID = ""
	got := a.Assess(fp)

	if got.TrustScore >= 0.7 {
		t.Fatalf("expected score below threshold, got %v", got.TrustScore)
	}
	if got.RiskLevel == RiskLevelLow {
		t.Fatal("expected elevated risk level")
	}
	if len(got.Factors) != 2 {
		t.Fatalf("expected two deduction factors, got %v", got.Factors)
	}
}

func TestAssessRiskSignalClamped(t *testing.T) {
	a := NewDeviceTrustAssessor(newFakeDeviceRepo(), 0.7, nil)

	fp := goodFingerprint()
	fp.RiskSignal = 5.0
	got := a.Assess(fp)
	if got.TrustScore != 0.5 {
		t.Fatalf("expected clamped risk deduction to land at 0.5, got %v", got.TrustScore)
	}

	fp.RiskSignal = -1.0
	if got := a.Assess(fp); got.TrustScore != 1.0 {
		t.Fatalf("negative risk must not add trust, got %v", got.TrustScore)
	}
}

func TestFingerprintHashStable(t *testing.T) {
	fp := goodFingerprint()
	if fp.Hash() != fp.Hash() {
		t.Fatal("hash must be stable")
	}
	other := fp
	other.DeviceUniqueID = "device-2"
	if fp.Hash() == other.Hash() {
		t.Fatal("distinct fingerprints must hash differently")
	}
}

func TestBindAndIsBound(t *testing.T) {
	repo := newFakeDeviceRepo()
	clock := newFakeClock()
	a := NewDeviceTrustAssessor(repo, 0.7, clock.Now)
	ctx := context.Background()

	bound, err := a.IsBound(ctx, "alice", "device-1")
	if err != nil || bound {
		t.Fatalf("expected unbound device, got bound=%v err=%v", bound, err)
	}

	if err := a.Bind(ctx, "alice", "device-1", 0.9); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	bound, err = a.IsBound(ctx, "alice", "device-1")
	if err != nil || !bound {
		t.Fatalf("expected trusted binding, got bound=%v err=%v", bound, err)
	}

	// A low score records the binding but does not mark it trusted.
	if err := a.Bind(ctx, "alice", "device-2", 0.5); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	bound, err = a.IsBound(ctx, "alice", "device-2")
	if err != nil || bound {
		t.Fatalf("low-score binding must not be trusted, got bound=%v err=%v", bound, err)
	}
}
