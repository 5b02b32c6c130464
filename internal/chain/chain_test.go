package chain

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"wallet-score/internal/config"
	"wallet-score/internal/domain"
	"wallet-score/internal/explorer"
)

func TestValidateAddress(t *testing.T) {
	const checksummed = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

	cases := []struct {
		in      string
		want    string
		invalid bool
	}{
		{in: checksummed, want: checksummed},
		{in: "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", want: checksummed},
		{in: "0x5AAEB6053F3E94C9B9A09F33669435E7EF1BEAED", want: checksummed},
		{in: "0x5aaeb6053F3E94C9b9A09f33669435E7Ef1BeAed", invalid: true},
		{in: "5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", invalid: true},
		{in: "0x1234", invalid: true},
		{in: "", invalid: true},
	}
	for _, tc := range cases {
		got, err := ValidateAddress(tc.in)
		if tc.invalid {
			if !errors.Is(err, domain.ErrInvalidAddress) {
				t.Fatalf("ValidateAddress(%q) should fail with invalid address, got %v", tc.in, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ValidateAddress(%q) unexpected error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ValidateAddress(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestIsName(t *testing.T) {
	if !IsName("vitalik.eth") || !IsName("sub.domain.eth") {
		t.Fatal("ens names should be detected")
	}
	if IsName("0xabc.eth") || IsName("vitalik") || IsName("a..eth") {
		t.Fatal("non-names should not be detected")
	}
}

func TestNamehash(t *testing.T) {
	cases := map[string]string{
		"":        "0000000000000000000000000000000000000000000000000000000000000000",
		"eth":     "93cdeb708b7545dc668eb9280176169d1c33cfd8ed6f04690a0bcc88a93fc4ae",
		"foo.eth": "de9b09fd7c5f901e23a3f19fecc54828e9c848539801e86591bd9801b019f84f",
	}
	for name, want := range cases {
		got := Namehash(name)
		if hex.EncodeToString(got[:]) != want {
			t.Fatalf("Namehash(%q) = %x, want %s", name, got, want)
		}
	}
}

func TestResolveNameUnsupported(t *testing.T) {
	evm := NewEVM(EVMOptions{Info: Info{Name: "polygon", ChainID: 137}}, zerolog.Nop())
	if _, err := evm.ResolveName(context.Background(), "vitalik.eth"); !errors.Is(err, domain.ErrInvalidAddress) {
		t.Fatalf("expected invalid address, got %v", err)
	}
}

func TestRegistryFromConfig(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	reg := FromConfig(cfg, zerolog.Nop())

	a, err := reg.Lookup("Polygon")
	if err != nil {
		t.Fatalf("lookup by name: %v", err)
	}
	if a.Info().ChainID != 137 {
		t.Fatalf("unexpected chain id %d", a.Info().ChainID)
	}

	b, err := reg.Lookup("42161")
	if err != nil || b.Info().Name != "arbitrum" {
		t.Fatalf("lookup by id failed: %v", err)
	}

	if _, err := reg.Lookup("solana"); !errors.Is(err, domain.ErrMissingRequiredInput) {
		t.Fatalf("unknown chain should be a client error, got %v", err)
	}
	if len(reg.Names()) != len(cfg.Chains) {
		t.Fatalf("unexpected registry size %d", len(reg.Names()))
	}
}

func TestNFTTransfersMergesStandards(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var result []map[string]string
		switch r.URL.Query().Get("action") {
		case "tokennfttx":
			result = []map[string]string{{"blockNumber": "2", "timeStamp": "200", "hash": "0x2", "tokenID": "1", "contractAddress": "0xA"}}
		case "token1155tx":
			result = []map[string]string{{"blockNumber": "1", "timeStamp": "100", "hash": "0x1", "tokenID": "9", "contractAddress": "0xB", "tokenValue": "3"}}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "1", "message": "OK", "result": result})
	}))
	defer srv.Close()

	client := explorer.NewClient(explorer.Options{BaseURL: srv.URL, PageSize: 10, Timeout: time.Second}, zerolog.Nop())
	evm := NewEVM(EVMOptions{Info: Info{Name: "ethereum", ChainID: 1, NativeDecimals: 18}, Explorer: client, ERC1155: true}, zerolog.Nop())

	events, err := evm.NFTTransfers(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("NFTTransfers: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Hash != "0x1" || events[0].ContractAddress != "0xb" {
		t.Fatalf("events should be sorted by time and normalised: %+v", events[0])
	}
}
