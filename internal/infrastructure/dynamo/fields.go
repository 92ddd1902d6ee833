package dynamo

// DynamoDB attribute names used in update and condition expressions across all repos.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldEmailAddressID   = "email_address_id"
	fieldVerifiableDataID = "verifiable_data_id"
	fieldVerifiedUntil    = "verified_until"
	fieldInvalidatedAt    = "invalidated_at"
	fieldTokenHash        = "token_hash"
	fieldUsedAt           = "used_at"
	fieldRevokedAt        = "revoked_at"
	fieldUpdatedAt        = "updated_at"
	fieldCounterName      = "counter_name"
	fieldCounterValue     = "counter_value"
	fieldLockKey          = "lock_key"
	fieldLockOwner        = "owner"
	fieldLockExpiresAt    = "expires_at"

	indexVerifiableDataID = "verifiable_data_id-index"
)
