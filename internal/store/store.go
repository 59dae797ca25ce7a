package store

import (
	"context"

	"disputeSync/internal/model"
)

// Store is the remote metadata store keyed by account address.
// Every write performs a shallow field merge on top of the posted sub-resource.
type Store interface {
	GetProfile(ctx context.Context, account string) (*model.Profile, error)
	CreateProfile(ctx context.Context, account string) (*model.Profile, error)
	UpdateContract(ctx context.Context, account, contract string, body model.Fields) error
	UpdateDispute(ctx context.Context, account, arbitrator string, disputeID uint64, body model.Fields) error
	AddDraws(ctx context.Context, account, arbitrator string, disputeID uint64, draws []uint64, appeal uint64) error
	PutNotification(ctx context.Context, account, txHash string, n model.Notification) error
	MarkNotificationRead(ctx context.Context, account, txHash string, logIndex uint64, read bool) error
	UpdateLastBlock(ctx context.Context, account string, block uint64) error
	UpdateSessions(ctx context.Context, account string, sessions map[string]uint64) error
}
