package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"disputeSync/internal/model"
	"disputeSync/internal/store"
)

const schema = `
	CREATE TABLE IF NOT EXISTS account_profiles (
		address    TEXT PRIMARY KEY,
		doc        JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)
`

// Store keeps account profiles as JSONB documents in Postgres.
// Writes lock the row and apply the same merge semantics as the remote store.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the profile table if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return transport("ensure schema", err)
	}
	return nil
}

func (s *Store) GetProfile(ctx context.Context, account string) (*model.Profile, error) {
	var doc []byte
	row := s.pool.QueryRow(ctx, `SELECT doc FROM account_profiles WHERE address=$1`, model.AddressKey(account))
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("profile %s: %w", account, store.ErrNotFound)
		}
		return nil, transport("get profile", err)
	}
	return decodeProfile(doc)
}

func (s *Store) CreateProfile(ctx context.Context, account string) (*model.Profile, error) {
	doc, err := json.Marshal(model.NewProfile(account))
	if err != nil {
		return nil, fmt.Errorf("marshal profile: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO account_profiles (address, doc, created_at, updated_at)
		VALUES ($1, $2::jsonb, now(), now())
		ON CONFLICT (address) DO NOTHING
	`, model.AddressKey(account), string(doc))
	if err != nil {
		return nil, transport("create profile", err)
	}
	return s.GetProfile(ctx, account)
}

func (s *Store) UpdateContract(ctx context.Context, account, contract string, body model.Fields) error {
	return s.update(ctx, account, "update contract", func(p *model.Profile) error {
		return store.ApplyContract(p, contract, body)
	})
}

func (s *Store) UpdateDispute(ctx context.Context, account, arbitrator string, disputeID uint64, body model.Fields) error {
	return s.update(ctx, account, "update dispute", func(p *model.Profile) error {
		return store.ApplyDispute(p, arbitrator, disputeID, body)
	})
}

func (s *Store) AddDraws(ctx context.Context, account, arbitrator string, disputeID uint64, draws []uint64, appeal uint64) error {
	return s.update(ctx, account, "add draws", func(p *model.Profile) error {
		return store.ApplyDraws(p, arbitrator, disputeID, draws, appeal)
	})
}

func (s *Store) PutNotification(ctx context.Context, account, txHash string, n model.Notification) error {
	return s.update(ctx, account, "put notification", func(p *model.Profile) error {
		store.ApplyNotification(p, txHash, n)
		return nil
	})
}

func (s *Store) MarkNotificationRead(ctx context.Context, account, txHash string, logIndex uint64, read bool) error {
	return s.update(ctx, account, "mark notification read", func(p *model.Profile) error {
		return store.ApplyRead(p, txHash, logIndex, read)
	})
}

func (s *Store) UpdateLastBlock(ctx context.Context, account string, block uint64) error {
	return s.update(ctx, account, "update last block", func(p *model.Profile) error {
		store.ApplyLastBlock(p, block)
		return nil
	})
}

func (s *Store) UpdateSessions(ctx context.Context, account string, sessions map[string]uint64) error {
	return s.update(ctx, account, "update session", func(p *model.Profile) error {
		store.ApplySessions(p, sessions)
		return nil
	})
}

func (s *Store) update(ctx context.Context, account, op string, apply func(p *model.Profile) error) error {
	key := model.AddressKey(account)
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var doc []byte
		row := tx.QueryRow(ctx, `SELECT doc FROM account_profiles WHERE address=$1 FOR UPDATE`, key)
		if err := row.Scan(&doc); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("profile %s: %w", account, store.ErrNotFound)
			}
			return transport(op, err)
		}

		profile, err := decodeProfile(doc)
		if err != nil {
			return err
		}
		if err := apply(profile); err != nil {
			return err
		}

		next, err := json.Marshal(profile)
		if err != nil {
			return fmt.Errorf("marshal profile: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE account_profiles SET doc = $2::jsonb, updated_at = now() WHERE address = $1
		`, key, string(next)); err != nil {
			return transport(op, err)
		}
		return nil
	})
	if err != nil {
		if store.IsNotFound(err) || store.IsTransport(err) {
			return err
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func decodeProfile(doc []byte) (*model.Profile, error) {
	var profile model.Profile
	if err := json.Unmarshal(doc, &profile); err != nil {
		return nil, fmt.Errorf("decode profile: %w: %v", store.ErrMalformedResponse, err)
	}
	return &profile, nil
}

func transport(op string, err error) error {
	return &store.TransportError{Op: op, Err: err}
}
