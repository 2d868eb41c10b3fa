package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/kilolend/lvm/internal/logger"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidConfig     = errors.New("invalid chain client configuration")
	ErrDialFailed        = errors.New("RPC connection failed")
	ErrCallFailed        = errors.New("contract call failed")
	ErrDecodeFailed      = errors.New("contract output decode failed")
	ErrUnexpectedOutput  = errors.New("unexpected contract output")
	ErrLogQueryFailed    = errors.New("log query failed")
	ErrInvalidBlockRange = errors.New("invalid block range")
)

// Backend is the subset of ethclient.Client the monitor uses.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]ethtypes.Log, error)
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Config holds the configuration for creating a new chain Client.
type Config struct {
	Backend       Backend
	RatePerSecond float64
	CallTimeout   time.Duration
	Comptroller   common.Address
	Vault         common.Address
}

// Client performs read-only calls against the lending protocol, the vault and ERC-20 tokens.
// Every call waits on a shared token bucket and runs under its own timeout.
type Client struct {
	backend     Backend
	limiter     *rate.Limiter
	callTimeout time.Duration
	abis        ABIs
	comptroller common.Address
	vault       common.Address
	logger      zerolog.Logger
	closeFn     func()
}

// Dial connects to a JSON-RPC endpoint and wraps it in a Client.
func Dial(ctx context.Context, rpcURL string, cfg Config) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, errors.Join(ErrDialFailed, err)
	}
	cfg.Backend = eth
	c, err := NewClient(cfg)
	if err != nil {
		eth.Close()
		return nil, err
	}
	c.closeFn = eth.Close
	return c, nil
}

// NewClient creates a Client over an existing backend.
func NewClient(cfg Config) (*Client, error) {
	if err := validateClientConfig(cfg); err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}

	abis, err := ParseABIs()
	if err != nil {
		return nil, err
	}

	burst := int(cfg.RatePerSecond)
	if burst < 1 {
		burst = 1
	}

	c := &Client{
		backend:     cfg.Backend,
		limiter:     rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst),
		callTimeout: cfg.CallTimeout,
		abis:        abis,
		comptroller: cfg.Comptroller,
		vault:       cfg.Vault,
		logger:      logger.GetForComponent("chain_client"),
	}

	c.logger.Debug().
		Float64("ratePerSecond", cfg.RatePerSecond).
		Dur("callTimeout", cfg.CallTimeout).
		Str("comptroller", cfg.Comptroller.Hex()).
		Str("vault", cfg.Vault.Hex()).
		Msg("Chain client initialized")

	return c, nil
}

func validateClientConfig(cfg Config) error {
	if cfg.Backend == nil {
		return fmt.Errorf("backend cannot be nil")
	}
	if cfg.RatePerSecond <= 0 {
		return fmt.Errorf("rate per second must be positive")
	}
	if cfg.CallTimeout <= 0 {
		return fmt.Errorf("call timeout must be positive")
	}
	if cfg.Comptroller == (common.Address{}) {
		return fmt.Errorf("comptroller address cannot be zero")
	}
	if cfg.Vault == (common.Address{}) {
		return fmt.Errorf("vault address cannot be zero")
	}
	return nil
}

// Close releases the underlying RPC connection if the client owns one.
func (c *Client) Close() {
	if c.closeFn != nil {
		c.closeFn()
	}
}

// Comptroller returns the comptroller address the client reads from.
func (c *Client) Comptroller() common.Address {
	return c.comptroller
}

// ChainID is the startup connectivity check.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	callCtx, cancel, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	id, err := c.backend.ChainID(callCtx)
	if err != nil {
		return nil, fmt.Errorf("%w: eth_chainId: %w", ErrCallFailed, err)
	}
	return id, nil
}

// BlockNumber returns the latest block height.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	callCtx, cancel, err := c.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer cancel()

	n, err := c.backend.BlockNumber(callCtx)
	if err != nil {
		return 0, fmt.Errorf("%w: eth_blockNumber: %w", ErrCallFailed, err)
	}
	return n, nil
}

// NativeBalance returns the account's native KAIA balance in wei.
func (c *Client) NativeBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	callCtx, cancel, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	bal, err := c.backend.BalanceAt(callCtx, account, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: eth_getBalance: %w", ErrCallFailed, err)
	}
	return bal, nil
}

// TokenBalance returns an ERC-20 balance in the token's smallest unit.
func (c *Client) TokenBalance(ctx context.Context, token, account common.Address) (*big.Int, error) {
	out, err := c.call(ctx, c.abis.ERC20, token, "balanceOf", account)
	if err != nil {
		return nil, err
	}
	return bigAt(out, 0, "balanceOf")
}

// acquire waits for a rate-limit token and derives the per-call timeout context.
func (c *Client) acquire(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, fmt.Errorf("%w: rate limiter: %w", ErrCallFailed, err)
	}
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	return callCtx, cancel, nil
}

// call packs, executes and unpacks a single view call.
func (c *Client) call(ctx context.Context, contract abi.ABI, to common.Address, method string, args ...interface{}) ([]interface{}, error) {
	input, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: pack %s: %w", ErrCallFailed, method, err)
	}

	callCtx, cancel, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	raw, err := c.backend.CallContract(callCtx, ethereum.CallMsg{To: &to, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s on %s: %w", ErrCallFailed, method, to.Hex(), err)
	}

	out, err := contract.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s on %s: %w", ErrDecodeFailed, method, to.Hex(), err)
	}
	return out, nil
}

func bigAt(out []interface{}, i int, method string) (*big.Int, error) {
	if i >= len(out) {
		return nil, fmt.Errorf("%w: %s returned %d values, wanted index %d", ErrUnexpectedOutput, method, len(out), i)
	}
	v, ok := out[i].(*big.Int)
	if !ok || v == nil {
		return nil, fmt.Errorf("%w: %s value %d is %T, not *big.Int", ErrUnexpectedOutput, method, i, out[i])
	}
	return v, nil
}

func boolAt(out []interface{}, i int, method string) (bool, error) {
	if i >= len(out) {
		return false, fmt.Errorf("%w: %s returned %d values, wanted index %d", ErrUnexpectedOutput, method, len(out), i)
	}
	v, ok := out[i].(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s value %d is %T, not bool", ErrUnexpectedOutput, method, i, out[i])
	}
	return v, nil
}
