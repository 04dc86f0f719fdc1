package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates all domain event types.
type EventType string

const (
	EventAccountFrozen       EventType = "arena.account.frozen"
	EventTransactionPosted   EventType = "arena.ledger.transaction.posted"
	EventSettlementCommitted EventType = "arena.ledger.settlement.committed"
	EventSettlementRolledBk  EventType = "arena.ledger.settlement.rolled_back"
	EventMatchCancelled      EventType = "arena.match.cancelled"
	EventMatchCompleted      EventType = "arena.match.completed"
	EventShadowMismatch      EventType = "arena.validation.shadow_mismatch"
	EventLagSwitchFlagged    EventType = "arena.jitter.lag_switch_flagged"
)

// AggregateType enumerates the aggregate root types for outbox events.
type AggregateType string

const (
	AggregateAccount AggregateType = "account"
	AggregateLedger  AggregateType = "ledger"
	AggregateMatch   AggregateType = "match"
)

// OutboxDraft is the payload written to the event_outbox table and relayed
// to Kafka by the outbox consumer.
type OutboxDraft struct {
	EventID       uuid.UUID       `json:"eventId"`
	AggregateType AggregateType   `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	EventType     EventType       `json:"eventType"`
	PartitionKey  string          `json:"partitionKey"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurredAt"`
}

func newDraft(agg AggregateType, aggID string, kind EventType, payload any) OutboxDraft {
	raw, _ := json.Marshal(payload)
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: agg,
		AggregateID:   aggID,
		EventType:     kind,
		PartitionKey:  aggID,
		Payload:       raw,
		OccurredAt:    time.Now(),
	}
}

// NewTransactionPostedEvent creates the standard ledger event for a chain entry.
func NewTransactionPostedEvent(tx *Transaction) OutboxDraft {
	return newDraft(AggregateLedger, tx.AccountID.String(), EventTransactionPosted, tx)
}

// NewSettlementEvent creates the commit or rollback event for a settlement entry.
func NewSettlementEvent(entry *SettlementEntry) OutboxDraft {
	kind := EventSettlementCommitted
	if entry.Status == SettlementRolledBack {
		kind = EventSettlementRolledBk
	}
	return newDraft(AggregateLedger, entry.MatchID.String(), kind, entry)
}

// NewAccountFrozenEvent creates the alert emitted when an integrity check fails.
func NewAccountFrozenEvent(accountID uuid.UUID, reason string) OutboxDraft {
	return newDraft(AggregateAccount, accountID.String(), EventAccountFrozen, map[string]string{
		"account_id": accountID.String(),
		"reason":     reason,
	})
}

// NewMatchLifecycleEvent creates a terminal match event.
func NewMatchLifecycleEvent(matchID uuid.UUID, kind EventType, detail map[string]string) OutboxDraft {
	return newDraft(AggregateMatch, matchID.String(), kind, detail)
}
