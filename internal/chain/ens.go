package chain

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"wallet-score/internal/domain"
)

const (
	ensRegistryAddress = "0x00000000000C2E074eC69A0dFb2997BA6C7d2e1e"

	ensRegistryABIJSON = `[{"inputs":[{"internalType":"bytes32","name":"node","type":"bytes32"}],"name":"resolver","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"}]`
	ensResolverABIJSON = `[{"inputs":[{"internalType":"bytes32","name":"node","type":"bytes32"}],"name":"addr","outputs":[{"internalType":"address payable","name":"","type":"address"}],"stateMutability":"view","type":"function"}]`
)

var (
	ensRegistryABI abi.ABI
	ensResolverABI abi.ABI

	errNoResolver = errors.New("name has no resolver")
	errUnresolved = errors.New("name resolves to the zero address")
)

func init() {
	parsed, err := abi.JSON(strings.NewReader(ensRegistryABIJSON))
	if err != nil {
		panic("failed to parse ENS registry ABI: " + err.Error())
	}
	ensRegistryABI = parsed

	parsed, err = abi.JSON(strings.NewReader(ensResolverABIJSON))
	if err != nil {
		panic("failed to parse ENS resolver ABI: " + err.Error())
	}
	ensResolverABI = parsed
}

// ENSOptions parameterise the ENS resolver.
type ENSOptions struct {
	RPCURL  string
	Timeout time.Duration
}

// ENSResolver resolves ENS names through the registry contract.
type ENSResolver struct {
	opts      ENSOptions
	logger    zerolog.Logger
	client    *ethclient.Client
	clientMux sync.Mutex
}

// NewENSResolver builds a resolver. The RPC connection is dialled on first use.
func NewENSResolver(opts ENSOptions, logger zerolog.Logger) *ENSResolver {
	return &ENSResolver{opts: opts, logger: logger.With().Str("component", "ens").Logger()}
}

// Resolve returns the checksummed address a name points to.
func (r *ENSResolver) Resolve(ctx context.Context, name string) (string, error) {
	if r.opts.RPCURL == "" {
		return "", domain.InvalidAddress(name, errors.New("ens rpc url not configured"))
	}

	timeout := r.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := r.getClient(ctx)
	if err != nil {
		return "", domain.Upstream("ens", err)
	}

	node := Namehash(name)

	resolver, err := callAddress(ctx, client, ensRegistryABI, common.HexToAddress(ensRegistryAddress), "resolver", node)
	if err != nil {
		return "", domain.Upstream("ens", err)
	}
	if resolver == (common.Address{}) {
		return "", domain.InvalidAddress(name, errNoResolver)
	}

	resolved, err := callAddress(ctx, client, ensResolverABI, resolver, "addr", node)
	if err != nil {
		return "", domain.Upstream("ens", err)
	}
	if resolved == (common.Address{}) {
		return "", domain.InvalidAddress(name, errUnresolved)
	}

	r.logger.Debug().Str("name", name).Str("address", resolved.Hex()).Msg("ens name resolved")
	return resolved.Hex(), nil
}

// Namehash implements the EIP-137 name hash over lower-cased labels.
func Namehash(name string) [32]byte {
	var node [32]byte
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return node
	}
	labels := strings.Split(name, ".")
	for i := len(labels) - 1; i >= 0; i-- {
		label := crypto.Keccak256([]byte(labels[i]))
		copy(node[:], crypto.Keccak256(node[:], label))
	}
	return node
}

func callAddress(ctx context.Context, client *ethclient.Client, contract abi.ABI, to common.Address, method string, node [32]byte) (common.Address, error) {
	payload, err := contract.Pack(method, node)
	if err != nil {
		return common.Address{}, err
	}

	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: payload}, nil)
	if err != nil {
		return common.Address{}, err
	}

	outputs, err := contract.Unpack(method, res)
	if err != nil {
		return common.Address{}, err
	}
	if len(outputs) != 1 {
		return common.Address{}, errors.New("unexpected " + method + " response")
	}

	addr, ok := outputs[0].(common.Address)
	if !ok {
		return common.Address{}, errors.New("failed to decode " + method + " output")
	}
	return addr, nil
}

func (r *ENSResolver) getClient(ctx context.Context) (*ethclient.Client, error) {
	r.clientMux.Lock()
	defer r.clientMux.Unlock()

	if r.client != nil {
		return r.client, nil
	}

	client, err := ethclient.DialContext(ctx, r.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	r.client = client
	return client, nil
}
