package model

import (
	"fmt"
	"strings"
)

// NotificationType identifies what a notification is about.
type NotificationType int

const (
	NotificationCanActivate NotificationType = iota + 1
	NotificationDisputeCreated
	NotificationAppealPossible
	NotificationRulingAppealed
	NotificationTokenShift
	NotificationArbitrationReward
	NotificationCanRepartition
)

func (t NotificationType) String() string {
	switch t {
	case NotificationCanActivate:
		return "CanActivate"
	case NotificationDisputeCreated:
		return "DisputeCreated"
	case NotificationAppealPossible:
		return "AppealPossible"
	case NotificationRulingAppealed:
		return "RulingAppealed"
	case NotificationTokenShift:
		return "TokenShift"
	case NotificationArbitrationReward:
		return "ArbitrationReward"
	case NotificationCanRepartition:
		return "CanRepartition"
	default:
		return fmt.Sprintf("notification(%d)", int(t))
	}
}

// Notification is a user-facing message derived from a ledger event.
type Notification struct {
	TxHash           string                 `json:"txHash"`
	LogIndex         uint64                 `json:"logIndex"`
	NotificationType NotificationType       `json:"notificationType"`
	Message          string                 `json:"message"`
	Data             map[string]interface{} `json:"data,omitempty"`
	Read             bool                   `json:"read"`
}

// Is reports whether n was produced by the log (txHash, logIndex).
func (n Notification) Is(txHash string, logIndex uint64) bool {
	return n.LogIndex == logIndex && strings.EqualFold(n.TxHash, txHash)
}
