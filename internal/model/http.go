package model

// Request/response shapes for the HTTP surface.

type FingerprintRequest struct {
	Platform       string  `json:"platform"`
	OSVersion      string  `json:"osVersion"`
	AppVersion     string  `json:"appVersion"`
	DeviceUniqueID string  `json:"deviceUniqueId"`
	RiskSignal     float64 `json:"riskSignal"`
}

type RegisterRequest struct {
	SubjectID string `json:"subjectId"`
	Password  string `json:"password"`
}

type LoginRequest struct {
	SubjectID   string             `json:"subjectId"`
	Password    string             `json:"password"`
	DeviceID    string             `json:"deviceId"`
	Fingerprint FingerprintRequest `json:"fingerprint"`
}

type BiometricLoginRequest struct {
	SubjectID   string             `json:"subjectId"`
	Template    string             `json:"template"`
	DeviceID    string             `json:"deviceId"`
	Fingerprint FingerprintRequest `json:"fingerprint"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
	DeviceID     string `json:"deviceId"`
}

type LogoutRequest struct {
	Token string `json:"token"`
}

type TokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

type BiometricEnrollRequest struct {
	DeviceID string `json:"deviceId"`
	Template string `json:"template"`
	Type     string `json:"type"`
}

type BiometricEnrollResponse struct {
	TemplateHash string  `json:"templateHash"`
	QualityScore float64 `json:"qualityScore"`
}

type DeviceAssessRequest struct {
	Fingerprint FingerprintRequest `json:"fingerprint"`
}

type DeviceAssessResponse struct {
	TrustScore float64  `json:"trustScore"`
	RiskLevel  string   `json:"riskLevel"`
	Factors    []string `json:"factors"`
}

type SessionResponse struct {
	SubjectID string `json:"subjectId"`
	SessionID string `json:"sessionId"`
	DeviceID  string `json:"deviceId"`
	Kind      string `json:"kind"`
	ExpiresAt int64  `json:"expiresAt"`
}

type ErrorResponse struct {
	Error      string `json:"error"`
	RetryAfter int64  `json:"retryAfter,omitempty"`
}

type StatusResponse struct {
	Status string `json:"status"`
}
