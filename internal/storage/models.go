package storage

import (
	"time"

	"github.com/google/uuid"

	"wallet-score/internal/domain"
)

// ScoringRecord is one persisted scoring result. Version increases by one per
// (address, chain) pair. RequestAddress is what the caller sent, Address the
// resolved wallet.
type ScoringRecord struct {
	ID             uuid.UUID
	RequestID      string
	RequestAddress string
	Address        string
	Chain          string
	ChainID        uint64
	ScoreType      domain.ScoreType
	Score          float64
	MintedScore    uint16
	Version        int
	Stats          domain.WalletStats
	CreatedAt      time.Time
}
