package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/gowebpki/jcs"

	"transfer-core/internal/domain"
)

// dedupShape is the canonical request shape hashed for deduplication.
// No floats, no maps; amounts travel as strings so the hash is stable
// across decimal representations of the same value.
type dedupShape struct {
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	Amount     string `json:"amount"`
	Reason     string `json:"reason"`
	DedupKey   string `json:"dedup_key"`
}

func hashRequest(req domain.TransferRequest) (string, error) {
	raw, err := json.Marshal(dedupShape{
		SenderID:   req.SenderID.String(),
		ReceiverID: req.ReceiverID.String(),
		Amount:     req.Amount.String(),
		Reason:     req.Reason,
		DedupKey:   req.DedupKey,
	})
	if err != nil {
		return "", err
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return "", err
	}
	h := sha256.Sum256(canon)
	return hex.EncodeToString(h[:]), nil
}
