package model

import "time"

// CredentialRecord is the per-subject authentication state. It is
// mutated on every attempt; Version backs the compare-and-swap that
// serializes concurrent attempts against the same subject.
type CredentialRecord struct {
	SubjectID            string
	PasswordHash         string
	FailedAttempts       int
	LockedUntil          *time.Time
	LastSuccessfulAuthAt *time.Time
	Version              int64
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// DeviceBinding associates a subject with a physical device. One row
// per (subject, device); Trusted flips true only after a successful
// authentication with an acceptable trust score.
type DeviceBinding struct {
	SubjectID  string
	DeviceID   string
	TrustScore float64
	Trusted    bool
	LastSeenAt time.Time
	CreatedAt  time.Time
}

// BiometricTemplate holds an enrolled template. Only the AEAD
// ciphertext and an integrity hash persist; plaintext never does.
type BiometricTemplate struct {
	SubjectID    string
	DeviceID     string
	Type         string
	CipherText   []byte
	IV           []byte
	AuthTag      []byte
	TemplateHash []byte
	QualityScore float64
	EnrolledAt   time.Time
	LastUsedAt   *time.Time
}

// SessionMetadata is recorded at issuance under the session correlator
// so revocation can recover the pair's remaining lifetime later.
type SessionMetadata struct {
	SubjectID string    `json:"subjectId"`
	DeviceID  string    `json:"deviceId"`
	IssuedAt  time.Time `json:"issuedAt"`
}
