package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/parapool/agent/internal/config"
)

// Backend is the slice of the RPC surface the client needs. *ethclient.Client
// satisfies it; tests substitute a simulated backend.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// PoolView is the decoded read of a single on-chain pool.
type PoolView struct {
	PoolID          uint64
	Variant         Variant
	Insured         common.Address
	Description     string
	EvidenceURL     string
	CoverageAmount  *big.Int
	PremiumAmount   *big.Int
	TotalCollateral *big.Int
	Deadline        int64
	DepositDeadline int64
	RawStatus       uint8
	Phase           Phase
	ClaimApproved   bool
}

// PoolAccounting mirrors getPoolAccounting.
type PoolAccounting struct {
	PremiumPaid *big.Int
	Collateral  *big.Int
	Payouts     *big.Int
	FeesAccrued *big.Int
}

// CreateParams are the inputs to pool creation on either variant.
type CreateParams struct {
	Description    string
	EvidenceURL    string
	CoverageAmount *big.Int
	PremiumAmount  *big.Int
	Deadline       int64
}

// DepositWindow is how long before the deadline collateral deposits close.
const DepositWindow = 7200 // seconds

// Client talks to both contract generations with a single wallet. Writes
// are serialized behind writeMu so the wallet nonce increases monotonically
// even when the commerce queue and the heartbeat both want the chain.
type Client struct {
	backend   Backend
	chainID   *big.Int
	key       *ecdsa.PrivateKey
	wallet    common.Address
	cfg       config.ChainConfig
	contracts map[Variant]*bind.BoundContract
	addrs     map[Variant]common.Address
	writeMu   sync.Mutex
	log       *slog.Logger
}

// New builds a client for the configured variants. At least one contract
// address must be present (config validation guarantees it).
func New(backend Backend, cfg config.ChainConfig, key *ecdsa.PrivateKey) (*Client, error) {
	if key == nil {
		return nil, fmt.Errorf("chain: nil signing key")
	}
	c := &Client{
		backend:   backend,
		chainID:   big.NewInt(cfg.ChainID),
		key:       key,
		wallet:    crypto.PubkeyToAddress(key.PublicKey),
		cfg:       cfg,
		contracts: make(map[Variant]*bind.BoundContract),
		addrs:     make(map[Variant]common.Address),
		log:       slog.Default().With("component", "chain"),
	}
	if cfg.LegacyAddress != "" {
		addr := common.HexToAddress(cfg.LegacyAddress)
		c.addrs[VariantLegacy] = addr
		c.contracts[VariantLegacy] = bind.NewBoundContract(addr, parsedLegacyABI, backend, backend, backend)
	}
	if cfg.CurrentAddress != "" {
		addr := common.HexToAddress(cfg.CurrentAddress)
		c.addrs[VariantCurrent] = addr
		c.contracts[VariantCurrent] = bind.NewBoundContract(addr, parsedCurrentABI, backend, backend, backend)
	}
	return c, nil
}

// WalletAddress is the oracle wallet derived from the signing key.
func (c *Client) WalletAddress() common.Address { return c.wallet }

// ContractAddress returns the deployed address for a variant.
func (c *Client) ContractAddress(v Variant) (common.Address, bool) {
	addr, ok := c.addrs[v]
	return addr, ok
}

// Configured reports whether the variant has a deployed contract wired in.
func (c *Client) Configured(v Variant) bool {
	_, ok := c.contracts[v]
	return ok
}

// Variants lists the configured variants, Legacy first.
func (c *Client) Variants() []Variant {
	var out []Variant
	for _, v := range []Variant{VariantLegacy, VariantCurrent} {
		if c.Configured(v) {
			out = append(out, v)
		}
	}
	return out
}

// VerifyOracle compares the wallet to the contract's configured oracle.
// A mismatch is reported, not fatal: the controller degrades to read-only
// oracle operations.
func (c *Client) VerifyOracle(ctx context.Context, v Variant) error {
	var out []interface{}
	if err := c.call(ctx, v, "oracle", &out); err != nil {
		return err
	}
	configured := *abi.ConvertType(out[0], new(common.Address)).(*common.Address)
	if configured != c.wallet {
		return fmt.Errorf("%w: contract %s expects %s, wallet is %s",
			ErrNotOracle, v, configured.Hex(), c.wallet.Hex())
	}
	return nil
}

// CreatePool creates a pool and returns the contract-assigned id. On
// Current the premium is funded in the same transaction and the pool comes
// back OPEN; on Legacy it comes back PENDING awaiting premium funding.
func (c *Client) CreatePool(ctx context.Context, v Variant, p CreateParams) (uint64, common.Hash, error) {
	receipt, err := c.transact(ctx, v, createMethod(v),
		p.Description, p.EvidenceURL, p.CoverageAmount, p.PremiumAmount, big.NewInt(p.Deadline))
	if err != nil {
		return 0, common.Hash{}, fmt.Errorf("create pool on %s: %w", v, err)
	}
	id, err := c.poolIDFromReceipt(v, receipt)
	if err != nil {
		return 0, receipt.TxHash, err
	}
	c.log.Info("pool created", "variant", v, "pool_id", id, "tx", receipt.TxHash.Hex())
	return id, receipt.TxHash, nil
}

// ResolvePool submits the oracle decision. Oracle-gated on the contract.
func (c *Client) ResolvePool(ctx context.Context, v Variant, poolID uint64, claimApproved bool) (common.Hash, error) {
	receipt, err := c.transact(ctx, v, "resolvePool", new(big.Int).SetUint64(poolID), claimApproved)
	if err != nil {
		return common.Hash{}, fmt.Errorf("resolve pool %s/%d: %w", v, poolID, err)
	}
	return receipt.TxHash, nil
}

// CancelAndRefund cancels an underfunded pool past its deposit deadline.
// Permissionless on the contract.
func (c *Client) CancelAndRefund(ctx context.Context, v Variant, poolID uint64) (common.Hash, error) {
	receipt, err := c.transact(ctx, v, "cancelAndRefund", new(big.Int).SetUint64(poolID))
	if err != nil {
		return common.Hash{}, fmt.Errorf("cancel pool %s/%d: %w", v, poolID, err)
	}
	return receipt.TxHash, nil
}

// EmergencyResolve denies the claim on a pool stuck 24h past its deadline.
// Permissionless on the contract; always resolves claimApproved=false.
func (c *Client) EmergencyResolve(ctx context.Context, v Variant, poolID uint64) (common.Hash, error) {
	receipt, err := c.transact(ctx, v, "emergencyResolve", new(big.Int).SetUint64(poolID))
	if err != nil {
		return common.Hash{}, fmt.Errorf("emergency resolve %s/%d: %w", v, poolID, err)
	}
	return receipt.TxHash, nil
}

// GetPool reads and decodes one pool.
func (c *Client) GetPool(ctx context.Context, v Variant, poolID uint64) (*PoolView, error) {
	var out []interface{}
	if err := c.call(ctx, v, "getPool", &out, new(big.Int).SetUint64(poolID)); err != nil {
		return nil, fmt.Errorf("get pool %s/%d: %w", v, poolID, err)
	}
	view := &PoolView{
		PoolID:          poolID,
		Variant:         v,
		Insured:         *abi.ConvertType(out[0], new(common.Address)).(*common.Address),
		Description:     *abi.ConvertType(out[1], new(string)).(*string),
		EvidenceURL:     *abi.ConvertType(out[2], new(string)).(*string),
		CoverageAmount:  *abi.ConvertType(out[3], new(*big.Int)).(**big.Int),
		PremiumAmount:   *abi.ConvertType(out[4], new(*big.Int)).(**big.Int),
		TotalCollateral: *abi.ConvertType(out[5], new(*big.Int)).(**big.Int),
		RawStatus:       *abi.ConvertType(out[7], new(uint8)).(*uint8),
		ClaimApproved:   *abi.ConvertType(out[8], new(bool)).(*bool),
	}
	deadline := *abi.ConvertType(out[6], new(*big.Int)).(**big.Int)
	view.Deadline = deadline.Int64()
	view.DepositDeadline = view.Deadline - DepositWindow
	phase, err := DecodePhase(v, view.RawStatus)
	if err != nil {
		return nil, err
	}
	view.Phase = phase
	return view, nil
}

// GetPoolAccounting reads the premium/collateral/payout ledger of a pool.
func (c *Client) GetPoolAccounting(ctx context.Context, v Variant, poolID uint64) (*PoolAccounting, error) {
	var out []interface{}
	if err := c.call(ctx, v, "getPoolAccounting", &out, new(big.Int).SetUint64(poolID)); err != nil {
		return nil, fmt.Errorf("get accounting %s/%d: %w", v, poolID, err)
	}
	return &PoolAccounting{
		PremiumPaid: *abi.ConvertType(out[0], new(*big.Int)).(**big.Int),
		Collateral:  *abi.ConvertType(out[1], new(*big.Int)).(**big.Int),
		Payouts:     *abi.ConvertType(out[2], new(*big.Int)).(**big.Int),
		FeesAccrued: *abi.ConvertType(out[3], new(*big.Int)).(**big.Int),
	}, nil
}

// GetPoolParticipants lists the collateral providers of a pool.
func (c *Client) GetPoolParticipants(ctx context.Context, v Variant, poolID uint64) ([]common.Address, error) {
	var out []interface{}
	if err := c.call(ctx, v, "getPoolParticipants", &out, new(big.Int).SetUint64(poolID)); err != nil {
		return nil, fmt.Errorf("get participants %s/%d: %w", v, poolID, err)
	}
	return *abi.ConvertType(out[0], new([]common.Address)).(*[]common.Address), nil
}

// NextPoolID returns the id the contract will assign next; pool ids below
// it all exist. Drives cold-start reconciliation.
func (c *Client) NextPoolID(ctx context.Context, v Variant) (uint64, error) {
	var out []interface{}
	if err := c.call(ctx, v, "nextPoolId", &out); err != nil {
		return 0, fmt.Errorf("next pool id on %s: %w", v, err)
	}
	next := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	return next.Uint64(), nil
}

// RequiredPremium reads the outstanding premium for a PENDING Legacy pool.
func (c *Client) RequiredPremium(ctx context.Context, poolID uint64) (*big.Int, error) {
	var out []interface{}
	if err := c.call(ctx, VariantLegacy, "getRequiredPremium", &out, new(big.Int).SetUint64(poolID)); err != nil {
		return nil, fmt.Errorf("required premium for %d: %w", poolID, err)
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// --- internals ---

func (c *Client) contract(v Variant) (*bind.BoundContract, error) {
	ct, ok := c.contracts[v]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotConfigured, v)
	}
	return ct, nil
}

func (c *Client) call(ctx context.Context, v Variant, method string, out *[]interface{}, args ...interface{}) error {
	ct, err := c.contract(v)
	if err != nil {
		return err
	}
	return c.withRetry(ctx, method, func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.ReadTimeout)
		defer cancel()
		return ct.Call(&bind.CallOpts{Context: callCtx}, out, method, args...)
	})
}

// transact submits one write and waits for its receipt. One outstanding
// transaction per wallet, ever; the mutex is the nonce ordering.
func (c *Client) transact(ctx context.Context, v Variant, method string, args ...interface{}) (*types.Receipt, error) {
	ct, err := c.contract(v)
	if err != nil {
		return nil, err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	var receipt *types.Receipt
	err = c.withRetry(ctx, method, func() error {
		writeCtx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
		defer cancel()

		opts, err := bind.NewKeyedTransactorWithChainID(c.key, c.chainID)
		if err != nil {
			return err
		}
		opts.Context = writeCtx

		tx, err := ct.Transact(opts, method, args...)
		if err != nil {
			return err
		}
		receipt, err = bind.WaitMined(writeCtx, c.backend, tx)
		if err != nil {
			return err
		}
		if receipt.Status != types.ReceiptStatusSuccessful {
			return fmt.Errorf("%w: %s tx %s", ErrReverted, method, tx.Hash().Hex())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// withRetry runs fn with exponential backoff on transient RPC failures.
// Reverts and context cancellation break out immediately.
func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	backoff := 500 * time.Millisecond
	attempts := c.cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		c.log.Warn("transient RPC error, retrying", "op", op, "attempt", i+1, "err", err)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, attempts, err)
}

// poolIDFromReceipt pulls the assigned id out of the PoolCreated event.
func (c *Client) poolIDFromReceipt(v Variant, receipt *types.Receipt) (uint64, error) {
	addr := c.addrs[v]
	created := contractABI(v).Events["PoolCreated"]
	for _, lg := range receipt.Logs {
		if lg.Address != addr || len(lg.Topics) < 2 || lg.Topics[0] != created.ID {
			continue
		}
		return new(big.Int).SetBytes(lg.Topics[1].Bytes()).Uint64(), nil
	}
	return 0, fmt.Errorf("tx %s: no PoolCreated event in receipt", receipt.TxHash.Hex())
}
