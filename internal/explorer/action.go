package explorer

import "fmt"

// Action selects the account endpoint of an Etherscan-compatible API.
type Action string

const (
	ActionTxList         Action = "txlist"
	ActionTxListInternal Action = "txlistinternal"
	ActionTokenTx        Action = "tokentx"
	ActionTokenNFTTx     Action = "tokennfttx"
	ActionToken1155Tx    Action = "token1155tx"

	actionBalance      Action = "balance"
	actionTokenBalance Action = "tokenbalance"
)

// Paginated reports whether the action returns a paginated list.
func (a Action) Paginated() bool {
	switch a {
	case ActionTxList, ActionTxListInternal, ActionTokenTx, ActionTokenNFTTx, ActionToken1155Tx:
		return true
	default:
		return false
	}
}

func (a Action) validate() error {
	if !a.Paginated() {
		return fmt.Errorf("explorer: action %q is not a list action", string(a))
	}
	return nil
}
