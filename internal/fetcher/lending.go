package fetcher

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"wallet-score/internal/chain"
	"wallet-score/internal/domain"
	"wallet-score/internal/metrics"
)

const (
	aavePoolABIJSON = `[{"inputs":[{"internalType":"address","name":"user","type":"address"}],"name":"getUserAccountData","outputs":[{"internalType":"uint256","name":"totalCollateralBase","type":"uint256"},{"internalType":"uint256","name":"totalDebtBase","type":"uint256"},{"internalType":"uint256","name":"availableBorrowsBase","type":"uint256"},{"internalType":"uint256","name":"currentLiquidationThreshold","type":"uint256"},{"internalType":"uint256","name":"ltv","type":"uint256"},{"internalType":"uint256","name":"healthFactor","type":"uint256"}],"stateMutability":"view","type":"function"}]`

	aaveProtocol     = "aave-v3"
	baseCurrencyExp  = -8
	basisPointsExp   = -4
	healthFactorExp  = -18
	accountDataCalls = "getUserAccountData"
)

var aavePoolABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(aavePoolABIJSON))
	if err != nil {
		panic("failed to parse Aave pool ABI: " + err.Error())
	}
	aavePoolABI = parsed
}

// LendingOptions parameterise the on-chain lending reader.
type LendingOptions struct {
	Timeout time.Duration
}

// Lending reads Aave v3 account data through each chain's RPC endpoint.
type Lending struct {
	opts      LendingOptions
	logger    zerolog.Logger
	clients   map[string]*ethclient.Client
	clientMux sync.Mutex
}

// NewLending builds a lending reader.
func NewLending(opts LendingOptions, logger zerolog.Logger) *Lending {
	return &Lending{
		opts:    opts,
		logger:  logger.With().Str("component", "lending").Logger(),
		clients: make(map[string]*ethclient.Client),
	}
}

// GetData returns the wallet's Aave position. Chains without a pool or RPC endpoint,
// and wallets without collateral or debt, yield domain.ErrNoData.
func (l *Lending) GetData(ctx context.Context, address string, info chain.Info) (*domain.LendingStats, error) {
	if info.RPCURL == "" || info.AavePool == "" {
		return nil, domain.ErrNoData
	}

	timeout := l.opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	stats, err := l.accountData(ctx, address, info)
	outcome := metrics.Success
	switch {
	case errors.Is(err, domain.ErrNoData):
		outcome = metrics.NoData
	case err != nil:
		outcome = metrics.Error
	}
	metrics.RecordUpstream(time.Since(started), aaveProtocol, accountDataCalls, outcome)
	return stats, err
}

func (l *Lending) accountData(ctx context.Context, address string, info chain.Info) (*domain.LendingStats, error) {
	client, err := l.getClient(ctx, info.RPCURL)
	if err != nil {
		return nil, domain.Upstream(aaveProtocol, err)
	}

	pool := common.HexToAddress(info.AavePool)
	payload, err := aavePoolABI.Pack(accountDataCalls, common.HexToAddress(address))
	if err != nil {
		return nil, err
	}

	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &pool, Data: payload}, nil)
	if err != nil {
		return nil, domain.Upstream(aaveProtocol, err)
	}

	outputs, err := aavePoolABI.Unpack(accountDataCalls, res)
	if err != nil {
		return nil, domain.Upstream(aaveProtocol, fmt.Errorf("decode %s: %w", accountDataCalls, err))
	}
	if len(outputs) != 6 {
		return nil, domain.Upstream(aaveProtocol, errors.New("unexpected getUserAccountData response"))
	}

	values := make([]*big.Int, len(outputs))
	for i, o := range outputs {
		v, ok := o.(*big.Int)
		if !ok {
			return nil, domain.Upstream(aaveProtocol, errors.New("failed to decode getUserAccountData output"))
		}
		values[i] = v
	}

	if values[0].Sign() == 0 && values[1].Sign() == 0 {
		return nil, domain.ErrNoData
	}

	return &domain.LendingStats{
		Protocol:             aaveProtocol,
		TotalCollateralUSD:   decimal.NewFromBigInt(values[0], baseCurrencyExp),
		TotalDebtUSD:         decimal.NewFromBigInt(values[1], baseCurrencyExp),
		AvailableBorrowsUSD:  decimal.NewFromBigInt(values[2], baseCurrencyExp),
		LiquidationThreshold: decimal.NewFromBigInt(values[3], basisPointsExp),
		LTV:                  decimal.NewFromBigInt(values[4], basisPointsExp),
		HealthFactor:         healthFactor(values[1], values[5]),
	}, nil
}

// healthFactor is zero without debt, where Aave reports the uint256 maximum.
func healthFactor(debt, raw *big.Int) decimal.Decimal {
	if debt.Sign() == 0 {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, healthFactorExp)
}

func (l *Lending) getClient(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	l.clientMux.Lock()
	defer l.clientMux.Unlock()

	if client, ok := l.clients[rpcURL]; ok {
		return client, nil
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	l.clients[rpcURL] = client
	return client, nil
}

// Close releases the RPC connections.
func (l *Lending) Close() {
	l.clientMux.Lock()
	defer l.clientMux.Unlock()
	for url, c := range l.clients {
		c.Close()
		delete(l.clients, url)
	}
}
