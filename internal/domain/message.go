package domain

// MessagePart is one body part of an outgoing message.
type MessagePart struct {
	ContentType string
	Body        string
}

// Message is an outgoing mail handed to the dispatcher.
type Message struct {
	From    string
	To      string
	Subject string
	Parts   []MessagePart
}

// VerificationEvent is published after a token has been resolved.
type VerificationEvent struct {
	Event          string             `json:"event"`
	EmailAddressID *int64             `json:"email_address_id,omitempty"`
	Result         ConfirmationResult `json:"result"`
	OccurredAt     string             `json:"occurred_at"`
}
