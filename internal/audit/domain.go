package audit

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Action enumerates audited operations.
type Action string

const (
	ActionCreate       Action = "create"
	ActionUpdate       Action = "update"
	ActionDelete       Action = "delete"
	ActionApprove      Action = "approve"
	ActionReject       Action = "reject"
	ActionUnlock       Action = "unlock"
	ActionLogin        Action = "login"
	ActionLogout       Action = "logout"
	ActionPeriodClose  Action = "period_close"
	ActionPeriodReopen Action = "period_reopen"
)

var validActions = map[Action]struct{}{
	ActionCreate: {}, ActionUpdate: {}, ActionDelete: {}, ActionApprove: {}, ActionReject: {},
	ActionUnlock: {}, ActionLogin: {}, ActionLogout: {}, ActionPeriodClose: {}, ActionPeriodReopen: {},
}

// Valid reports whether the action is known.
func (a Action) Valid() bool {
	_, ok := validActions[a]
	return ok
}

// Entry is one append-only audit record.
type Entry struct {
	ID         uuid.UUID       `json:"id"`
	TenantID   int64           `json:"tenant_id,omitempty"`
	UserID     int64           `json:"user_id,omitempty"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Action     Action          `json:"action"`
	OldValue   json.RawMessage `json:"old_value,omitempty"`
	NewValue   json.RawMessage `json:"new_value,omitempty"`
	IPAddress  string          `json:"ip_address,omitempty"`
	UserAgent  string          `json:"user_agent,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// Event builds an entry for an entity identified by a numeric id.
// oldValue and newValue are snapshotted as JSON; nil values are omitted.
func Event(entityType string, entityID int64, action Action, oldValue, newValue any) Entry {
	return Entry{
		EntityType: entityType,
		EntityID:   strconv.FormatInt(entityID, 10),
		Action:     action,
		OldValue:   Snapshot(oldValue),
		NewValue:   Snapshot(newValue),
	}
}

// Snapshot marshals v, returning nil for nil input or unmarshalable values.
func Snapshot(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}

// Filters narrows GetLogs and Export queries. Zero values mean "any".
type Filters struct {
	TenantID   *int64
	UserID     *int64
	EntityType string
	EntityID   string
	Action     Action
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}

// Page is one page of logs plus the total matching count.
type Page struct {
	Logs  []Entry `json:"logs"`
	Total int     `json:"total"`
}

// UserCount is an entry of the top-users ranking.
type UserCount struct {
	UserID int64 `json:"user_id"`
	Count  int64 `json:"count"`
}

// Stats summarises audit volume.
type Stats struct {
	Total    int64            `json:"total"`
	ByAction map[Action]int64 `json:"by_action"`
	TopUsers []UserCount      `json:"top_users"`
}
