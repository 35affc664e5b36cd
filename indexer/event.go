package indexer

import (
	"fmt"
	"strconv"
	"time"

	"cosmossdk.io/math"

	"github.com/openalpha/sharepool/x/pool/types"
)

// Event is one ledger event as delivered to consumers. Seq is assigned by the
// ledger service and is strictly increasing across all pools.
type Event struct {
	Seq        uint64            `json:"seq"`
	Type       string            `json:"type"`
	PoolID     uint64            `json:"pool_id"`
	Height     int64             `json:"height"`
	Time       time.Time         `json:"time"`
	Attributes map[string]string `json:"attributes"`
}

// Attr returns an attribute value or the empty string
func (e Event) Attr(key string) string {
	if e.Attributes == nil {
		return ""
	}
	return e.Attributes[key]
}

// AmountAttr parses a non-negative integer attribute
func (e Event) AmountAttr(key string) (math.Int, error) {
	raw := e.Attr(key)
	amt, ok := math.NewIntFromString(raw)
	if !ok || amt.IsNegative() {
		return math.Int{}, fmt.Errorf("event %d: invalid %s %q", e.Seq, key, raw)
	}
	return amt, nil
}

// Validate checks the fields every consumer relies on
func (e Event) Validate() error {
	if e.Seq == 0 {
		return fmt.Errorf("event has no sequence")
	}
	if !types.IsLedgerEvent(e.Type) {
		return fmt.Errorf("event %d: unknown type %q", e.Seq, e.Type)
	}
	if e.PoolID == 0 {
		return fmt.Errorf("event %d: missing pool id", e.Seq)
	}
	if raw := e.Attr(types.AttributeKeyPoolID); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || id != e.PoolID {
			return fmt.Errorf("event %d: pool id attribute %q does not match %d", e.Seq, raw, e.PoolID)
		}
	}
	return nil
}

// Subject returns the bus subject for the event under prefix
func (e Event) Subject(prefix string) string {
	return prefix + "." + e.Type
}
