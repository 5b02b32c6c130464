package stats

import (
	"strings"

	"github.com/shopspring/decimal"

	"wallet-score/internal/domain"
	"wallet-score/internal/units"
)

// NFTSummary is the realised value of the wallet's NFT trades in native units.
type NFTSummary struct {
	SoldSum         decimal.Decimal
	BoughtResoldSum decimal.Decimal
	BoughtHeldSum   decimal.Decimal
	Holding         int
	Collections     int
}

// Trading is the net realised profit of resold tokens.
func (n NFTSummary) Trading() decimal.Decimal {
	return n.SoldSum.Sub(n.BoughtResoldSum)
}

// Worth extrapolates the realised sell/buy ratio onto tokens still held.
func (n NFTSummary) Worth() decimal.Decimal {
	return NftWorth(n.SoldSum, n.BoughtResoldSum, n.BoughtHeldSum)
}

// NftWorth returns soldSum / boughtResoldSum * boughtHeldSum, or zero when nothing resold was bought.
func NftWorth(soldSum, boughtResoldSum, boughtHeldSum decimal.Decimal) decimal.Decimal {
	if boughtResoldSum.IsZero() {
		return decimal.Zero
	}
	return soldSum.Div(boughtResoldSum).Mul(boughtHeldSum)
}

type nftKey struct {
	contract string
	tokenID  string
}

// NFTActivity partitions transfers into sold, bought-and-resold and bought-and-held,
// valuing each side by the internal transactions that share a transfer's hash.
func NFTActivity(address string, transfers []domain.TokenTransferEvent, internal []domain.RawTransaction, decimals int32) NFTSummary {
	sold := make(map[nftKey]struct{})
	var soldEvents, bought []domain.TokenTransferEvent
	for _, e := range transfers {
		switch {
		case strings.EqualFold(e.From, address):
			sold[keyOf(e)] = struct{}{}
			soldEvents = append(soldEvents, e)
		case strings.EqualFold(e.To, address):
			bought = append(bought, e)
		}
	}

	var resold, held []domain.TokenTransferEvent
	heldKeys := make(map[nftKey]struct{})
	collections := make(map[string]struct{})
	for _, e := range bought {
		if _, ok := sold[keyOf(e)]; ok {
			resold = append(resold, e)
			continue
		}
		held = append(held, e)
		heldKeys[keyOf(e)] = struct{}{}
		collections[strings.ToLower(e.ContractAddress)] = struct{}{}
	}

	return NFTSummary{
		SoldSum:         valueByHash(soldEvents, internal, decimals),
		BoughtResoldSum: valueByHash(resold, internal, decimals),
		BoughtHeldSum:   valueByHash(held, internal, decimals),
		Holding:         len(heldKeys),
		Collections:     len(collections),
	}
}

func keyOf(e domain.TokenTransferEvent) nftKey {
	return nftKey{contract: strings.ToLower(e.ContractAddress), tokenID: e.TokenID}
}

func valueByHash(events []domain.TokenTransferEvent, internal []domain.RawTransaction, decimals int32) decimal.Decimal {
	if len(events) == 0 {
		return decimal.Zero
	}
	hashes := make(map[string]struct{}, len(events))
	for _, e := range events {
		hashes[strings.ToLower(e.Hash)] = struct{}{}
	}
	total := decimal.Zero
	for _, tx := range internal {
		if _, ok := hashes[strings.ToLower(tx.Hash)]; ok {
			total = total.Add(units.ToNative(tx.Value, decimals))
		}
	}
	return total
}
