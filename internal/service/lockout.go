package service

import (
	"time"

	"github.com/fpbe/auth-engine/internal/model"
)

// LockoutPolicy converts repeated authentication failures into a
// temporary lock with exponential backoff. Every method is a pure
// function over (failedAttempts, lockedUntil, now); persistence is the
// caller's job.
type LockoutPolicy struct {
	Threshold int
	BaseDelay time.Duration
	CapDelay  time.Duration
}

type LockoutState int

const (
	LockoutOpen LockoutState = iota
	LockoutLocked
	LockoutExpired // lock window passed, counter not yet reset
)

func (p LockoutPolicy) State(rec *model.CredentialRecord, now time.Time) LockoutState {
	if rec.LockedUntil == nil {
		return LockoutOpen
	}
	if now.Before(*rec.LockedUntil) {
		return LockoutLocked
	}
	return LockoutExpired
}

// Check gates an authentication attempt. While locked it rejects with
// the remaining window and the caller must not run any credential
// comparison. An expired lock is normalized to a fresh record (counter
// reset) before the attempt is evaluated.
func (p LockoutPolicy) Check(rec *model.CredentialRecord, now time.Time) error {
	switch p.State(rec, now) {
	case LockoutLocked:
		return &model.AccountLockedError{RetryAfter: rec.LockedUntil.Sub(now)}
	case LockoutExpired:
		rec.FailedAttempts = 0
		rec.LockedUntil = nil
	}
	return nil
}

// OnFailure counts a failed attempt and computes the lock window once
// the threshold is reached: min(base * 2^(attempts-threshold), cap).
func (p LockoutPolicy) OnFailure(rec *model.CredentialRecord, now time.Time) {
	rec.FailedAttempts++
	if rec.FailedAttempts >= p.Threshold {
		until := now.Add(p.lockDuration(rec.FailedAttempts))
		rec.LockedUntil = &until
	}
}

func (p LockoutPolicy) OnSuccess(rec *model.CredentialRecord, now time.Time) {
	rec.FailedAttempts = 0
	rec.LockedUntil = nil
	at := now
	rec.LastSuccessfulAuthAt = &at
}

func (p LockoutPolicy) lockDuration(attempts int) time.Duration {
	exp := attempts - p.Threshold
	if exp < 0 {
		exp = 0
	}
	d := p.BaseDelay
	for i := 0; i < exp; i++ {
		d *= 2
		if d >= p.CapDelay {
			return p.CapDelay
		}
	}
	if d > p.CapDelay {
		return p.CapDelay
	}
	return d
}
