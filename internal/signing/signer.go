// Package signing produces EIP-712 score attestations that soulbound-token
// contracts verify before minting.
package signing

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"wallet-score/internal/domain"
)

var (
	// EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)
	domainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"),
	)

	// ScoreAttestation(address wallet,uint16 score,uint8 scoreType,uint256 chainId,uint256 flags,uint256 deadline)
	attestationTypeHash = ethcrypto.Keccak256(
		[]byte("ScoreAttestation(address wallet,uint16 score,uint8 scoreType,uint256 chainId,uint256 flags,uint256 deadline)"),
	)
)

// Options configure a Signer.
type Options struct {
	PrivateKey    string
	DomainName    string
	DomainVersion string
	Validity      time.Duration
}

// Request is what gets attested.
type Request struct {
	Address     string
	MintedScore uint16
	ChainID     uint64
	ScoreType   domain.ScoreType
	Contract    string
	Data        domain.DataMask
	// Deadline defaults to now plus the configured validity.
	Deadline time.Time
}

// Signer signs score attestations with one secp256k1 key.
type Signer struct {
	opts       Options
	privateKey *ecdsa.PrivateKey
	address    common.Address
	now        func() time.Time
}

// New builds a signer. An empty key yields a signer whose every Sign call fails,
// so scoring can still be served read-only.
func New(opts Options) (*Signer, error) {
	if opts.DomainName == "" {
		opts.DomainName = "WalletScore"
	}
	if opts.DomainVersion == "" {
		opts.DomainVersion = "1"
	}
	if opts.Validity <= 0 {
		opts.Validity = time.Hour
	}

	s := &Signer{opts: opts, now: time.Now}
	keyHex := strings.TrimPrefix(strings.TrimSpace(opts.PrivateKey), "0x")
	if keyHex == "" {
		return s, nil
	}
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("signing: invalid private key: %w", err)
	}
	s.privateKey = pk
	s.address = ethcrypto.PubkeyToAddress(pk.PublicKey)
	return s, nil
}

// Address is the signer's address, zero when no key is configured.
func (s *Signer) Address() common.Address {
	return s.address
}

// Sign attests the request and returns the signature plus human-readable messages.
func (s *Signer) Sign(ctx context.Context, req Request) (*domain.Signature, []string, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if s.privateKey == nil {
		return nil, nil, domain.NewError(domain.CodeSignatureFailure, "signer key is not configured", nil)
	}
	if !common.IsHexAddress(req.Contract) {
		return nil, nil, domain.NewError(domain.CodeSignatureFailure,
			fmt.Sprintf("no soulbound contract for %s score on chain %d", req.ScoreType, req.ChainID), nil)
	}
	if req.Deadline.IsZero() {
		req.Deadline = s.now().Add(s.opts.Validity)
	}

	digest := s.Digest(req)
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return nil, nil, domain.NewError(domain.CodeSignatureFailure, "signing failed", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}

	signature := &domain.Signature{
		Signature: "0x" + hex.EncodeToString(sig),
		Signer:    s.address.Hex(),
		Contract:  common.HexToAddress(req.Contract).Hex(),
		Deadline:  req.Deadline.Unix(),
		Data:      req.Data,
	}
	messages := []string{
		fmt.Sprintf("Signed %s score %d for %s on chain %d, valid until %s.",
			req.ScoreType, req.MintedScore, common.HexToAddress(req.Address).Hex(), req.ChainID,
			req.Deadline.UTC().Format(time.RFC3339)),
	}
	return signature, messages, nil
}

// Digest is the EIP-712 hash the contract recovers the signer from.
func (s *Signer) Digest(req Request) []byte {
	domainSep := ethcrypto.Keccak256(
		concatBytes(
			domainTypeHash,
			ethcrypto.Keccak256([]byte(s.opts.DomainName)),
			ethcrypto.Keccak256([]byte(s.opts.DomainVersion)),
			uint256(new(big.Int).SetUint64(req.ChainID)),
			common.LeftPadBytes(common.HexToAddress(req.Contract).Bytes(), 32),
		),
	)

	structHash := ethcrypto.Keccak256(
		concatBytes(
			attestationTypeHash,
			common.LeftPadBytes(common.HexToAddress(req.Address).Bytes(), 32),
			uint256(big.NewInt(int64(req.MintedScore))),
			uint256(big.NewInt(int64(req.ScoreType.Ordinal()))),
			uint256(new(big.Int).SetUint64(req.ChainID)),
			uint256(new(big.Int).SetUint64(uint64(req.Data))),
			uint256(big.NewInt(req.Deadline.Unix())),
		),
	)

	return ethcrypto.Keccak256(concatBytes([]byte{0x19, 0x01}, domainSep, structHash))
}

// Recover returns the address that produced a hex signature over req.
func (s *Signer) Recover(req Request, signature string) (common.Address, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil {
		return common.Address{}, err
	}
	if len(sig) != 65 {
		return common.Address{}, errors.New("signature must be 65 bytes")
	}
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(s.Digest(req), sig)
	if err != nil {
		return common.Address{}, err
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

func uint256(v *big.Int) []byte {
	return common.LeftPadBytes(v.Bytes(), 32)
}

func concatBytes(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
