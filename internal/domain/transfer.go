// Package domain defines the core types and interfaces for Harrier.
package domain

import (
	"time"
)

// Direction indicates whether the scored account sent or received a transfer.
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// Category classifies a transfer by asset type.
type Category string

const (
	CategoryExternal Category = "external"
	CategoryInternal Category = "internal"
	CategoryERC20    Category = "erc20"
	CategoryERC721   Category = "erc721"
	CategoryERC1155  Category = "erc1155"
)

// IsToken reports whether the category is a token-contract interaction.
func (c Category) IsToken() bool {
	return c == CategoryERC20 || c == CategoryERC721 || c == CategoryERC1155
}

// TransferRecord is one immutable ledger transfer involving the scored account.
type TransferRecord struct {
	Direction    Direction `json:"direction"`
	Category     Category  `json:"category"`
	Value        float64   `json:"value"`
	Counterparty string    `json:"counterparty"`
	Timestamp    time.Time `json:"timestamp"`

	// TokenContract is set for erc20/erc721/erc1155 transfers.
	TokenContract string `json:"tokenContract,omitempty"`
}

// AccountActivity is the raw transfer history of an account as supplied
// by the ledger collaborator. Empty lists are valid input, not an error.
type AccountActivity struct {
	Address  string           `json:"address"`
	Sent     []TransferRecord `json:"sent"`
	Received []TransferRecord `json:"received"`
	Balance  float64          `json:"balance"`

	FetchedAt time.Time `json:"fetchedAt,omitempty"`
}

// TotalTransfers returns the combined sent+received transfer count.
func (a *AccountActivity) TotalTransfers() int {
	return len(a.Sent) + len(a.Received)
}
