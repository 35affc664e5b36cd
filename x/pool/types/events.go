package types

// Event types
const (
	EventTypePoolCreated     = "pool_created"
	EventTypeDonationMade    = "donation_made"
	EventTypeFundsWithdrawn  = "funds_withdrawn"
	EventTypePoolDeactivated = "pool_deactivated"
)

// Event attribute keys
const (
	AttributeKeyPoolID            = "pool_id"
	AttributeKeyCreator           = "creator"
	AttributeKeyTitle             = "title"
	AttributeKeyDescription       = "description"
	AttributeKeyImageURI          = "image_uri"
	AttributeKeyCreatorPercentage = "creator_percentage"
	AttributeKeyMemberCount       = "member_count"
	AttributeKeyDonor             = "donor"
	AttributeKeyAmount            = "amount"
	AttributeKeyNewTotalBalance   = "new_total_balance"
	AttributeKeyMember            = "member"
	AttributeKeyRecipient         = "recipient"
	AttributeKeyTotalWithdrawn    = "total_withdrawn"
	AttributeKeyDeactivatedBy     = "deactivated_by"
	AttributeKeyDenom             = "denom"
)

// IsLedgerEvent reports whether an event type is one the ledger emits
func IsLedgerEvent(eventType string) bool {
	switch eventType {
	case EventTypePoolCreated, EventTypeDonationMade, EventTypeFundsWithdrawn, EventTypePoolDeactivated:
		return true
	}
	return false
}
