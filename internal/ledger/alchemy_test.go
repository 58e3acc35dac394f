package ledger

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/opensource-finance/harrier/internal/domain"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

func rpcServer(t *testing.T, transfers func(filter map[string]any) any, balance string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode rpc request: %v", err)
			return
		}
		var result any
		switch req.Method {
		case "alchemy_getAssetTransfers":
			var filter map[string]any
			if err := json.Unmarshal(req.Params[0], &filter); err != nil {
				t.Errorf("decode filter: %v", err)
			}
			result = transfers(filter)
		case "eth_getBalance":
			result = balance
		default:
			t.Errorf("unexpected method %s", req.Method)
		}
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestFetchActivity(t *testing.T) {
	t.Run("maps transfers and balance", func(t *testing.T) {
		srv := rpcServer(t, func(filter map[string]any) any {
			if _, sent := filter["fromAddress"]; sent {
				return map[string]any{"transfers": []map[string]any{
					{
						"category": "external",
						"value":    1.5,
						"from":     "0xABC",
						"to":       "0xDEF",
						"metadata": map[string]any{"blockTimestamp": "2024-03-01T12:00:00Z"},
					},
					{
						"category":    "erc20",
						"value":       10.0,
						"from":        "0xABC",
						"to":          "0x123",
						"rawContract": map[string]any{"address": "0xTOKEN"},
					},
				}}
			}
			return map[string]any{"transfers": []map[string]any{
				{
					"category": "external",
					"value":    nil,
					"from":     "0x999",
					"to":       "0xABC",
				},
			}}
		}, "0xde0b6b3a7640000") // 1 ether in wei
		defer srv.Close()

		c, err := New(domain.LedgerConfig{RPCURL: srv.URL, TimeoutSeconds: 5}, nil)
		if err != nil {
			t.Fatalf("new client: %v", err)
		}
		defer c.Close()

		a, err := c.FetchActivity(context.Background(), "0xABC")
		if err != nil {
			t.Fatalf("fetch: %v", err)
		}
		if len(a.Sent) != 2 || len(a.Received) != 1 {
			t.Fatalf("sent/received = %d/%d, want 2/1", len(a.Sent), len(a.Received))
		}
		if a.Sent[0].Counterparty != "0xdef" {
			t.Errorf("sent counterparty = %q, want lowercased to-address", a.Sent[0].Counterparty)
		}
		if a.Sent[0].Timestamp.IsZero() {
			t.Error("expected parsed block timestamp")
		}
		if a.Sent[1].TokenContract != "0xtoken" {
			t.Errorf("token contract = %q, want 0xtoken", a.Sent[1].TokenContract)
		}
		if a.Received[0].Counterparty != "0x999" {
			t.Errorf("received counterparty = %q, want from-address", a.Received[0].Counterparty)
		}
		if a.Received[0].Value != 0 {
			t.Errorf("null value = %v, want 0", a.Received[0].Value)
		}
		if math.Abs(a.Balance-1.0) > 1e-9 {
			t.Errorf("balance = %v, want 1.0", a.Balance)
		}
	})

	t.Run("no transfers is valid input", func(t *testing.T) {
		srv := rpcServer(t, func(map[string]any) any {
			return map[string]any{"transfers": []map[string]any{}}
		}, "0x0")
		defer srv.Close()

		c, err := New(domain.LedgerConfig{RPCURL: srv.URL, TimeoutSeconds: 5}, nil)
		if err != nil {
			t.Fatalf("new client: %v", err)
		}
		defer c.Close()

		a, err := c.FetchActivity(context.Background(), "0xEMPTY")
		if err != nil {
			t.Fatalf("fetch: %v", err)
		}
		if a.TotalTransfers() != 0 || a.Balance != 0 {
			t.Errorf("activity = %+v, want empty", a)
		}
	})

	t.Run("missing URL is rejected", func(t *testing.T) {
		if _, err := New(domain.LedgerConfig{}, nil); err == nil {
			t.Error("expected error for missing RPC URL")
		}
	})
}
