package cli

import (
	"github.com/spf13/pflag"

	"wallet-score/internal/domain"
)

// addDataFlags binds the optional data selectors shared by every scoring command.
func addDataFlags(fs *pflag.FlagSet, f *domain.Flags) {
	fs.BoolVar(&f.Lending, "lending", false, "Include lending positions")
	fs.BoolVar(&f.Governance, "governance", false, "Include governance activity")
	fs.BoolVar(&f.Social, "social", false, "Include the social profile")
	fs.BoolVar(&f.Greysafe, "greysafe", false, "Check Greysafe scam reports")
	fs.BoolVar(&f.Chainalysis, "chainalysis", false, "Check the Chainalysis sanctions list")
	fs.BoolVar(&f.Hapi, "hapi", false, "Check the HAPI risk score")
	fs.BoolVar(&f.TokenBalances, "token-balances", false, "Value ERC-20 holdings")
	fs.BoolVar(&f.SwapPairs, "swap-pairs", false, "List DEX pairs for held tokens")
	fs.IntVar(&f.SwapPairsFirst, "swap-pairs-first", 0, "Swap pairs page size (defaults to config)")
	fs.IntVar(&f.SwapPairsSkip, "swap-pairs-skip", 0, "Swap pairs to skip")
}
