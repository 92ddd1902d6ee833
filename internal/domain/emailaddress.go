package domain

import "time"

// EmailAddress is the stored email address record.
// VerifiableDataID stays nil until the first verification request is created
// and is only cleared by deleting the record.
type EmailAddress struct {
	EmailAddressID   int64     `json:"id" dynamodbav:"email_address_id"`
	EmailAddress     string    `json:"email_address" dynamodbav:"email_address"`
	VerifiableDataID *string   `json:"verifiable_data_id,omitempty" dynamodbav:"verifiable_data_id,omitempty"`
	CreatedAt        time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt        time.Time `json:"updated" dynamodbav:"updated_at"`
}

// HasVerifiableData reports whether a verification subject is attached.
func (e *EmailAddress) HasVerifiableData() bool {
	return e.VerifiableDataID != nil && *e.VerifiableDataID != ""
}

// ConfirmationResult is the outcome of presenting a token for an email address.
type ConfirmationResult string

const (
	ConfirmationSuccess  ConfirmationResult = "SUCCESS"
	ConfirmationRejected ConfirmationResult = "REJECTED"
	ConfirmationFailed   ConfirmationResult = "FAILED"
)

// EmailVerificationResult is returned by VerifyEmailAddress.
// EmailAddressID is nil whenever the token could not be mapped to exactly one record.
type EmailVerificationResult struct {
	EmailAddressID *int64             `json:"email_address_id"`
	Result         ConfirmationResult `json:"result"`
}

// VerificationParams carries the inputs of CreateVerificationRequest.
// A nil MessageTemplate is absent; an empty one is a legal (empty) body.
type VerificationParams struct {
	MessageTemplate      *string
	TokenValidityEndDate time.Time
	VerificationLength   int64 // seconds
	LengthBase           VerificationLengthBase
}

type SaveEmailAddressRequest struct {
	EmailAddress string `json:"email_address" validate:"required"`
}

type CreateVerificationRequestBody struct {
	MessageTemplate        *string   `json:"message_template" validate:"required_without=TemplateKey"`
	TemplateKey            string    `json:"template_key" validate:"required_without=MessageTemplate"`
	TokenValidityEndDate   time.Time `json:"token_validity_end_date"`
	VerificationLength     int64     `json:"verification_length"`
	VerificationLengthBase string    `json:"verification_length_base" validate:"required,oneof=REQUEST_CREATION VERIFICATION"`
}
