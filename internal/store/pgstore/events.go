package pgstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"
	"github.com/jackc/pgx/v5"

	"transfer-core/internal/domain"
)

// eventChainLockKey serializes event_log appends per database so the hash
// chain stays linear under concurrent commits.
const eventChainLockKey int64 = 0x7472616e73666572 // "transfer"

type accountCreatedPayload struct {
	AccountID string `json:"account_id"`
	Balance   string `json:"balance"`
	Verified  bool   `json:"verified"`
}

type transferPostedPayload struct {
	TransferID string `json:"transfer_id"`
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	Amount     string `json:"amount"`
	Reason     string `json:"reason"`
}

// jcsPayload returns both representations stored in event_log:
// plain JSON bytes for the jsonb column and the RFC 8785 canonical form
// that feeds the hash chain.
func jcsPayload(v any) (payloadJSON json.RawMessage, payloadCanonical string, err error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, "", err
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return nil, "", err
	}
	return raw, string(canon), nil
}

func chainHash(prev, canonical string) string {
	sum := sha256.Sum256([]byte(prev + "|" + canonical))
	return hex.EncodeToString(sum[:])
}

// insertEvent is the single entry point for event_log appends. Each row
// carries hash = sha256(prev_hash + "|" + payload_canonical), verifiable
// offline with cmd/proof-verify.
func insertEvent(ctx context.Context, tx pgx.Tx, eventType, aggregateID string, payload any) error {
	if strings.TrimSpace(eventType) == "" || strings.TrimSpace(aggregateID) == "" {
		return domain.ErrStorage
	}

	payloadJSON, payloadCanonical, err := jcsPayload(payload)
	if err != nil {
		return storeErr("canonicalize event", err)
	}

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, eventChainLockKey); err != nil {
		return storeErr("event chain lock", err)
	}

	var prev string
	err = tx.QueryRow(ctx,
		`SELECT hash FROM event_log ORDER BY seq DESC LIMIT 1`,
	).Scan(&prev)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return storeErr("event chain head", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO event_log(event_id, event_type, aggregate_id, payload_json, payload_canonical, prev_hash, hash)
		 VALUES($1,$2,$3,$4::jsonb,$5,$6,$7)`,
		uuid.New(), eventType, aggregateID, payloadJSON, payloadCanonical, prev, chainHash(prev, payloadCanonical),
	)
	if err != nil {
		return storeErr("insert event", err)
	}
	return nil
}
