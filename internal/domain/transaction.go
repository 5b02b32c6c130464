package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawTransaction is a normal or internal transaction. Value is in minor units.
type RawTransaction struct {
	Hash            string
	BlockNumber     uint64
	Timestamp       time.Time
	From            string
	To              string
	Value           decimal.Decimal
	ContractAddress string
	IsError         bool
}

// TokenTransferEvent is an ERC-20, ERC-721 or ERC-1155 transfer. Value is in minor units.
type TokenTransferEvent struct {
	Hash            string
	BlockNumber     uint64
	Timestamp       time.Time
	From            string
	To              string
	ContractAddress string
	TokenID         string
	TokenSymbol     string
	TokenDecimals   int32
	Value           decimal.Decimal
}
