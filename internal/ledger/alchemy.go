// Package ledger fetches raw account activity over an Alchemy-style
// JSON-RPC endpoint.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/opensource-finance/harrier/internal/domain"
)

var weiPerEther = new(big.Float).SetFloat64(1e18)

// Client implements domain.LedgerClient against an Alchemy-compatible
// node: alchemy_getAssetTransfers for history, eth_getBalance for the
// current balance.
type Client struct {
	rpc          *rpc.Client
	timeout      time.Duration
	maxTransfers int
	logger       *slog.Logger
}

// assetTransfer is the wire shape of one alchemy_getAssetTransfers row.
type assetTransfer struct {
	Category    string   `json:"category"`
	Value       *float64 `json:"value"`
	From        string   `json:"from"`
	To          string   `json:"to"`
	RawContract struct {
		Address string `json:"address"`
	} `json:"rawContract"`
	Metadata struct {
		BlockTimestamp string `json:"blockTimestamp"`
	} `json:"metadata"`
}

type transfersResult struct {
	Transfers []assetTransfer `json:"transfers"`
}

// transferFilter is the request shape of alchemy_getAssetTransfers.
type transferFilter struct {
	FromBlock        string   `json:"fromBlock"`
	ToBlock          string   `json:"toBlock"`
	FromAddress      string   `json:"fromAddress,omitempty"`
	ToAddress        string   `json:"toAddress,omitempty"`
	Category         []string `json:"category"`
	WithMetadata     bool     `json:"withMetadata"`
	ExcludeZeroValue bool     `json:"excludeZeroValue"`
	MaxCount         string   `json:"maxCount"`
}

var transferCategories = []string{"external", "erc20", "erc721", "erc1155"}

// New dials the configured JSON-RPC endpoint.
func New(cfg domain.LedgerConfig, logger *slog.Logger) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("ledger RPC URL is required")
	}
	c, err := rpc.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial ledger RPC: %w", err)
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	maxTransfers := cfg.MaxTransfers
	if maxTransfers <= 0 {
		maxTransfers = 1000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{rpc: c, timeout: timeout, maxTransfers: maxTransfers, logger: logger}, nil
}

// Close releases the RPC connection.
func (c *Client) Close() {
	c.rpc.Close()
}

// FetchActivity implements domain.LedgerClient. An account with no
// transfers returns empty lists, not an error.
func (c *Client) FetchActivity(ctx context.Context, address string) (*domain.AccountActivity, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	sent, err := c.transfers(ctx, transferFilter{
		FromBlock:    "0x0",
		ToBlock:      "latest",
		FromAddress:  address,
		Category:     transferCategories,
		WithMetadata: true,
		MaxCount:     fmt.Sprintf("0x%x", c.maxTransfers),
	}, domain.DirectionSent)
	if err != nil {
		return nil, fmt.Errorf("fetch sent transfers for %s: %w", address, err)
	}

	received, err := c.transfers(ctx, transferFilter{
		FromBlock:    "0x0",
		ToBlock:      "latest",
		ToAddress:    address,
		Category:     transferCategories,
		WithMetadata: true,
		MaxCount:     fmt.Sprintf("0x%x", c.maxTransfers),
	}, domain.DirectionReceived)
	if err != nil {
		return nil, fmt.Errorf("fetch received transfers for %s: %w", address, err)
	}

	balance, err := c.balance(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("fetch balance for %s: %w", address, err)
	}

	c.logger.Debug("fetched account activity",
		"address", address, "sent", len(sent), "received", len(received))

	return &domain.AccountActivity{
		Address:   address,
		Sent:      sent,
		Received:  received,
		Balance:   balance,
		FetchedAt: time.Now().UTC(),
	}, nil
}

func (c *Client) transfers(ctx context.Context, filter transferFilter, dir domain.Direction) ([]domain.TransferRecord, error) {
	var result transfersResult
	if err := c.rpc.CallContext(ctx, &result, "alchemy_getAssetTransfers", filter); err != nil {
		return nil, err
	}

	records := make([]domain.TransferRecord, 0, len(result.Transfers))
	for _, t := range result.Transfers {
		r := domain.TransferRecord{
			Direction:     dir,
			Category:      domain.Category(t.Category),
			TokenContract: strings.ToLower(t.RawContract.Address),
		}
		if t.Value != nil {
			r.Value = *t.Value
		}
		if dir == domain.DirectionSent {
			r.Counterparty = strings.ToLower(t.To)
		} else {
			r.Counterparty = strings.ToLower(t.From)
		}
		if t.Metadata.BlockTimestamp != "" {
			if ts, err := time.Parse(time.RFC3339, t.Metadata.BlockTimestamp); err == nil {
				r.Timestamp = ts
			}
		}
		records = append(records, r)
	}
	return records, nil
}

func (c *Client) balance(ctx context.Context, address string) (float64, error) {
	var hexBalance string
	if err := c.rpc.CallContext(ctx, &hexBalance, "eth_getBalance", address, "latest"); err != nil {
		return 0, err
	}
	wei, ok := new(big.Int).SetString(strings.TrimPrefix(hexBalance, "0x"), 16)
	if !ok {
		return 0, fmt.Errorf("malformed balance %q", hexBalance)
	}
	ether, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), weiPerEther).Float64()
	return ether, nil
}
