package domain

import "time"

// VerificationLengthBase selects the instant the verified window is counted from.
type VerificationLengthBase string

const (
	// LengthBaseRequestCreation counts the window from the request's creation.
	LengthBaseRequestCreation VerificationLengthBase = "REQUEST_CREATION"
	// LengthBaseVerification counts the window from the moment the accept token is used.
	LengthBaseVerification VerificationLengthBase = "VERIFICATION"
)

// Valid reports whether b is a known base.
func (b VerificationLengthBase) Valid() bool {
	return b == LengthBaseRequestCreation || b == LengthBaseVerification
}

// TokenUsageResult is the verification engine's outcome for a presented token.
type TokenUsageResult string

const (
	TokenVerified TokenUsageResult = "VERIFIED"
	TokenRejected TokenUsageResult = "REJECTED"
	TokenFailed   TokenUsageResult = "FAILED"
)

// TokenKind distinguishes the two tokens issued per verification request.
type TokenKind string

const (
	TokenKindAccept TokenKind = "accept"
	TokenKindReject TokenKind = "reject"
)

// VerifiableData is the engine's verification subject.
type VerifiableData struct {
	VerifiableDataID string     `json:"id" dynamodbav:"verifiable_data_id"`
	VerifiedUntil    *time.Time `json:"verified_until,omitempty" dynamodbav:"verified_until,omitempty"`
	InvalidatedAt    *time.Time `json:"invalidated_at,omitempty" dynamodbav:"invalidated_at,omitempty"`
	CreatedAt        time.Time  `json:"created" dynamodbav:"created_at"`
}

// VerificationRequestRecord is one issued accept/reject pair and its parameters.
type VerificationRequestRecord struct {
	VerificationRequestID string                 `json:"id" dynamodbav:"verification_request_id"`
	VerifiableDataID      string                 `json:"verifiable_data_id" dynamodbav:"verifiable_data_id"`
	TokenValidityEndDate  time.Time              `json:"token_validity_end_date" dynamodbav:"token_validity_end_date"`
	VerificationLength    int64                  `json:"verification_length" dynamodbav:"verification_length"`
	LengthBase            VerificationLengthBase `json:"verification_length_base" dynamodbav:"verification_length_base"`
	CreatedAt             time.Time              `json:"created" dynamodbav:"created_at"`
	AcceptTokenHash       string                 `json:"-" dynamodbav:"accept_token_hash"`
	RejectTokenHash       string                 `json:"-" dynamodbav:"reject_token_hash"`
}

// SiblingOf returns the hash of the other token of the pair, or "" when
// tokenHash belongs to neither side.
func (r *VerificationRequestRecord) SiblingOf(tokenHash string) string {
	switch tokenHash {
	case r.AcceptTokenHash:
		return r.RejectTokenHash
	case r.RejectTokenHash:
		return r.AcceptTokenHash
	}
	return ""
}

// VerificationToken is the stored form of an issued token. Only the hash is persisted.
type VerificationToken struct {
	TokenHash             string     `json:"-" dynamodbav:"token_hash"`
	VerificationRequestID string     `json:"verification_request_id" dynamodbav:"verification_request_id"`
	VerifiableDataID      string     `json:"verifiable_data_id" dynamodbav:"verifiable_data_id"`
	Kind                  TokenKind  `json:"kind" dynamodbav:"kind"`
	ExpiresAt             time.Time  `json:"expires_at" dynamodbav:"expires_at"`
	UsedAt                *time.Time `json:"used_at,omitempty" dynamodbav:"used_at,omitempty"`
	RevokedAt             *time.Time `json:"revoked_at,omitempty" dynamodbav:"revoked_at,omitempty"`
}

// Usable reports whether the token can still be consumed at now.
func (t *VerificationToken) Usable(now time.Time) bool {
	return t.UsedAt == nil && t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// VerificationRequest is what the engine hands back after issuing tokens.
// The token values are plain and exist only here and in the outgoing mail.
type VerificationRequest struct {
	VerificationRequestID string
	AcceptToken           string
	RejectToken           string
}

// VerifiableDataCreation is the result of creating a new subject with its first request.
type VerifiableDataCreation struct {
	VerifiableDataID string
	Request          *VerificationRequest
}

// VerificationResult is the engine's answer to a presented token.
type VerificationResult struct {
	VerifiableDataID string
	Outcome          TokenUsageResult
}
