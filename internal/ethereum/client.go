// Package ethereum decodes vault contract logs into chain events and reads
// product configuration directly from the contracts.
package ethereum

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/plexlabs/vault-indexer/internal/adapter"
	"github.com/plexlabs/vault-indexer/internal/domain"
)

// Event signatures
var (
	// Factory: ProductCreated(address indexed product)
	productCreatedEventSignature = crypto.Keccak256Hash([]byte("ProductCreated(address)"))

	// Factory: ProductUpdated(address indexed product)
	productUpdatedEventSignature = crypto.Keccak256Hash([]byte("ProductUpdated(address)"))

	// Product: Deposit(address indexed user, uint256 amount, uint256 tokenId, uint256 supply)
	depositEventSignature = crypto.Keccak256Hash([]byte("Deposit(address,uint256,uint256,uint256)"))

	// Product: WeeklyCoupon(address indexed user, uint256 amount, uint256 tokenId, uint256 supply)
	weeklyCouponEventSignature = crypto.Keccak256Hash([]byte("WeeklyCoupon(address,uint256,uint256,uint256)"))

	// Product: WithdrawPrincipal(address indexed user, uint256 amount)
	withdrawPrincipalEventSignature = crypto.Keccak256Hash([]byte("WithdrawPrincipal(address,uint256)"))

	// Product: Paused(address account) / Unpaused(address account), account in data
	pausedEventSignature   = crypto.Keccak256Hash([]byte("Paused(address)"))
	unpausedEventSignature = crypto.Keccak256Hash([]byte("Unpaused(address)"))
)

// vaultEventSignatures lists every topic the subscriber filters on
var vaultEventSignatures = []common.Hash{
	productCreatedEventSignature,
	productUpdatedEventSignature,
	depositEventSignature,
	weeklyCouponEventSignature,
	withdrawPrincipalEventSignature,
	pausedEventSignature,
	unpausedEventSignature,
}

// productViewABI covers the read-only product configuration surface
const productViewABI = `[
	{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"underlying","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"maxCapacity","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"currentCapacity","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"status","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"issuanceCycle","outputs":[{"components":[
		{"name":"coupon","type":"uint256"},
		{"name":"strikePrice1","type":"uint256"},
		{"name":"strikePrice2","type":"uint256"},
		{"name":"strikePrice3","type":"uint256"},
		{"name":"strikePrice4","type":"uint256"},
		{"name":"tr1","type":"uint256"},
		{"name":"tr2","type":"uint256"},
		{"name":"issuanceDate","type":"uint256"},
		{"name":"maturityDate","type":"uint256"},
		{"name":"apr","type":"uint256"},
		{"name":"uri","type":"string"}
	],"name":"","type":"tuple"}],"stateMutability":"view","type":"function"}
]`

// issuanceCycle mirrors the on-chain issuance cycle tuple; it is stored as
// JSON without further interpretation
type issuanceCycle struct {
	Coupon       *big.Int `abi:"coupon" json:"coupon"`
	StrikePrice1 *big.Int `abi:"strikePrice1" json:"strikePrice1"`
	StrikePrice2 *big.Int `abi:"strikePrice2" json:"strikePrice2"`
	StrikePrice3 *big.Int `abi:"strikePrice3" json:"strikePrice3"`
	StrikePrice4 *big.Int `abi:"strikePrice4" json:"strikePrice4"`
	TR1          *big.Int `abi:"tr1" json:"tr1"`
	TR2          *big.Int `abi:"tr2" json:"tr2"`
	IssuanceDate *big.Int `abi:"issuanceDate" json:"issuanceDate"`
	MaturityDate *big.Int `abi:"maturityDate" json:"maturityDate"`
	APR          *big.Int `abi:"apr" json:"apr"`
	URI          string   `abi:"uri" json:"uri"`
}

// Client decodes vault logs and reads product state from the chain
type Client interface {
	// ParseEventLog parses a vault contract log into a chain event
	ParseEventLog(ctx context.Context, vLog types.Log) (*domain.ChainEvent, error)

	// ReadProduct reads the full product configuration from the contract
	ReadProduct(ctx context.Context, product common.Address, txHash string, blockNumber uint64) (*domain.ProductCreatedEvent, error)

	// SubscribeFilterLogs subscribes to filter logs
	SubscribeFilterLogs(ctx context.Context, query ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)

	// HeaderByNumber returns a header by number
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)

	// Close closes the connection
	Close()
}

type vaultClient struct {
	chainID domain.ChainID
	client  adapter.EthClient
	viewABI abi.ABI
}

// NewClient creates a vault chain client
func NewClient(chainID domain.ChainID, client adapter.EthClient) (Client, error) {
	viewABI, err := abi.JSON(strings.NewReader(productViewABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse product ABI: %w", err)
	}

	return &vaultClient{chainID: chainID, client: client, viewABI: viewABI}, nil
}

// SubscribeFilterLogs subscribes to filter logs
func (c *vaultClient) SubscribeFilterLogs(ctx context.Context, query ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return c.client.SubscribeFilterLogs(ctx, query, ch)
}

// HeaderByNumber returns a header by number
func (c *vaultClient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return c.client.HeaderByNumber(ctx, number)
}

// ParseEventLog parses a vault contract log into a chain event
func (c *vaultClient) ParseEventLog(ctx context.Context, vLog types.Log) (*domain.ChainEvent, error) {
	if len(vLog.Topics) == 0 {
		return nil, fmt.Errorf("log without topics in tx %s", vLog.TxHash.Hex())
	}

	event := &domain.ChainEvent{ChainID: c.chainID}

	switch vLog.Topics[0] {
	case productCreatedEventSignature, productUpdatedEventSignature:
		if len(vLog.Topics) != 2 {
			return nil, fmt.Errorf("malformed product log in tx %s", vLog.TxHash.Hex())
		}

		product := common.BytesToAddress(vLog.Topics[1].Bytes())
		created, err := c.ReadProduct(ctx, product, vLog.TxHash.Hex(), vLog.BlockNumber)
		if err != nil {
			return nil, fmt.Errorf("failed to read product %s: %w", product.Hex(), err)
		}

		event.Kind = domain.EventKindProductCreated
		if vLog.Topics[0] == productUpdatedEventSignature {
			event.Kind = domain.EventKindProductUpdated
		}
		event.ProductAddress = product.Hex()
		event.ProductCreated = created

	case depositEventSignature, weeklyCouponEventSignature:
		if len(vLog.Topics) != 2 || len(vLog.Data) < 96 {
			return nil, fmt.Errorf("malformed vault log in tx %s", vLog.TxHash.Hex())
		}

		event.Kind = domain.EventKindDeposit
		if vLog.Topics[0] == weeklyCouponEventSignature {
			event.Kind = domain.EventKindWeeklyCoupon
		}
		event.ProductAddress = vLog.Address.Hex()
		event.Vault = &domain.VaultEvent{
			UserAddress: common.BytesToAddress(vLog.Topics[1].Bytes()).Hex(),
			Amount:      new(big.Int).SetBytes(vLog.Data[0:32]).String(),
			TokenID:     new(big.Int).SetBytes(vLog.Data[32:64]).String(),
			Supply:      new(big.Int).SetBytes(vLog.Data[64:96]).String(),
			TxHash:      vLog.TxHash.Hex(),
			BlockNumber: vLog.BlockNumber,
		}

	case withdrawPrincipalEventSignature:
		if len(vLog.Topics) != 2 || len(vLog.Data) < 32 {
			return nil, fmt.Errorf("malformed withdraw log in tx %s", vLog.TxHash.Hex())
		}

		event.Kind = domain.EventKindWithdraw
		event.ProductAddress = vLog.Address.Hex()
		event.Vault = &domain.VaultEvent{
			UserAddress: common.BytesToAddress(vLog.Topics[1].Bytes()).Hex(),
			Amount:      new(big.Int).SetBytes(vLog.Data[0:32]).String(),
			TxHash:      vLog.TxHash.Hex(),
			BlockNumber: vLog.BlockNumber,
		}

	case pausedEventSignature, unpausedEventSignature:
		event.Kind = domain.EventKindPauseChanged
		event.ProductAddress = vLog.Address.Hex()
		event.Pause = &domain.PauseChangedEvent{
			Address:  vLog.Address.Hex(),
			IsPaused: vLog.Topics[0] == pausedEventSignature,
		}

	default:
		return nil, fmt.Errorf("unknown event signature: %s", vLog.Topics[0].Hex())
	}

	return event, nil
}

// ReadProduct reads the full product configuration from the contract
func (c *vaultClient) ReadProduct(ctx context.Context, product common.Address, txHash string, blockNumber uint64) (*domain.ProductCreatedEvent, error) {
	name, err := c.callString(ctx, product, "name")
	if err != nil {
		return nil, err
	}

	underlying, err := c.callString(ctx, product, "underlying")
	if err != nil {
		return nil, err
	}

	maxCapacity, err := c.callUint256(ctx, product, "maxCapacity")
	if err != nil {
		return nil, err
	}

	currentCapacity, err := c.callUint256(ctx, product, "currentCapacity")
	if err != nil {
		return nil, err
	}

	status, err := c.callUint8(ctx, product, "status")
	if err != nil {
		return nil, err
	}

	cycle, err := c.callIssuanceCycle(ctx, product)
	if err != nil {
		return nil, err
	}

	return &domain.ProductCreatedEvent{
		Address:         product.Hex(),
		Name:            name,
		Underlying:      underlying,
		MaxCapacity:     maxCapacity.String(),
		Status:          int(status),
		CurrentCapacity: currentCapacity.String(),
		IssuanceCycle:   cycle,
		TxHash:          txHash,
		BlockNumber:     blockNumber,
	}, nil
}

func (c *vaultClient) call(ctx context.Context, contract common.Address, method string) ([]byte, error) {
	data, err := c.viewABI.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	result, err := c.client.CallContract(ctx, ethereum.CallMsg{
		To:   &contract,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}

	return result, nil
}

func (c *vaultClient) callString(ctx context.Context, contract common.Address, method string) (string, error) {
	result, err := c.call(ctx, contract, method)
	if err != nil {
		return "", err
	}

	var out string
	if err := c.viewABI.UnpackIntoInterface(&out, method, result); err != nil {
		return "", fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	return out, nil
}

func (c *vaultClient) callUint256(ctx context.Context, contract common.Address, method string) (*big.Int, error) {
	result, err := c.call(ctx, contract, method)
	if err != nil {
		return nil, err
	}

	var out *big.Int
	if err := c.viewABI.UnpackIntoInterface(&out, method, result); err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	return out, nil
}

func (c *vaultClient) callUint8(ctx context.Context, contract common.Address, method string) (uint8, error) {
	result, err := c.call(ctx, contract, method)
	if err != nil {
		return 0, err
	}

	var out uint8
	if err := c.viewABI.UnpackIntoInterface(&out, method, result); err != nil {
		return 0, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	return out, nil
}

func (c *vaultClient) callIssuanceCycle(ctx context.Context, contract common.Address) (json.RawMessage, error) {
	result, err := c.call(ctx, contract, "issuanceCycle")
	if err != nil {
		return nil, err
	}

	var cycle issuanceCycle
	if err := c.viewABI.UnpackIntoInterface(&cycle, "issuanceCycle", result); err != nil {
		return nil, fmt.Errorf("failed to unpack issuanceCycle: %w", err)
	}

	raw, err := json.Marshal(cycle)
	if err != nil {
		return nil, fmt.Errorf("failed to encode issuance cycle: %w", err)
	}

	return raw, nil
}

// Close closes the connection
func (c *vaultClient) Close() {
	c.client.Close()
}
