package domain

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ChainID identifies a supported blockchain network
type ChainID int

const (
	ChainEthereumMainnet ChainID = 1
	ChainEthereumGoerli  ChainID = 5
	ChainBSCMainnet      ChainID = 56
	ChainPolygonMumbai   ChainID = 80001
	ChainArbitrumOne     ChainID = 42161
)

// SupportedChains lists every chain the indexer mirrors
var SupportedChains = []ChainID{
	ChainEthereumMainnet,
	ChainEthereumGoerli,
	ChainBSCMainnet,
	ChainPolygonMumbai,
	ChainArbitrumOne,
}

// IsSupportedChain checks if a chain is part of the closed supported set
func IsSupportedChain(chain ChainID) bool {
	for _, c := range SupportedChains {
		if c == chain {
			return true
		}
	}
	return false
}

// HistoryType classifies a ledger event
type HistoryType string

const (
	HistoryTypeDeposit      HistoryType = "DEPOSIT"
	HistoryTypeWeeklyCoupon HistoryType = "WEEKLY_COUPON"
	HistoryTypeOptionPayout HistoryType = "OPTION_PAYOUT"
	HistoryTypeWithdraw     HistoryType = "WITHDRAW"
)

// WithdrawType sub-classifies WITHDRAW ledger events
type WithdrawType string

const (
	WithdrawTypeNone      WithdrawType = "NONE"
	WithdrawTypePrincipal WithdrawType = "PRINCIPAL"
	WithdrawTypeCoupon    WithdrawType = "COUPON"
	WithdrawTypeOption    WithdrawType = "OPTION"
)

// EventKind tags a decoded chain event on the wire
type EventKind string

const (
	EventKindProductCreated EventKind = "product_created"
	EventKindProductUpdated EventKind = "product_updated"
	EventKindPauseChanged   EventKind = "pause_changed"
	EventKindDeposit        EventKind = "deposit"
	EventKindWeeklyCoupon   EventKind = "weekly_coupon"
	EventKindWithdraw       EventKind = "withdraw"
)

// NormalizeAddress normalizes an EVM address to its checksummed form
func NormalizeAddress(address string) string {
	if strings.HasPrefix(address, "0x") {
		return common.HexToAddress(address).String()
	}
	return address
}
