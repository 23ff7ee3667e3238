// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package devnet assembles complete in-process chains from a config: one
// ledger per chain with its gateway, operator set, gas service, price feed,
// pools and routers, and a relayer connecting them.
package devnet

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/xroute"
	"github.com/luxfi/xroute/aggregator"
	"github.com/luxfi/xroute/auth"
	"github.com/luxfi/xroute/config"
	"github.com/luxfi/xroute/gasservice"
	"github.com/luxfi/xroute/gateway"
	"github.com/luxfi/xroute/oracle"
	"github.com/luxfi/xroute/pool"
	"github.com/luxfi/xroute/relayer"
	"github.com/luxfi/xroute/router"
	"github.com/luxfi/xroute/settlement"
	"github.com/luxfi/xroute/state"
	"github.com/luxfi/xroute/token"
)

const priceTTL = time.Minute

var ErrUnknownChain = errors.New("unknown chain")

// Chain is one ledger and everything deployed on it. Router operations
// must go through Do so the relayer and callers never overlap.
type Chain struct {
	Name        string
	ID          uint64
	Ledger      *token.MemLedger
	Gateway     *gateway.Gateway
	Signer      auth.BatchSigner
	GasService  *gasservice.Service
	Prices      *oracle.StaticFeed
	Bridge      *router.BridgeRouter
	Swap        *router.SwapRouter
	Pool        *pool.Pool
	Aggregator  *aggregator.PoolAggregator
	Lockers     map[common.Address]*token.Locker
	BridgeAddr  common.Address
	SwapAddr    common.Address
	GasAddr     common.Address
	SettleToken common.Address

	mu sync.Mutex
}

// Do runs fn holding the chain lock.
func (c *Chain) Do(fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fn()
}

type Devnet struct {
	log    log.Logger
	cfg    *config.Config
	owner  common.Address
	chains []*Chain
	byName map[string]*Chain
	stores []io.Closer
}

// New builds every chain in cfg. The first operator key owns every router
// and gas service, whichever authorizer signs command batches.
func New(logger log.Logger, cfg *config.Config) (*Devnet, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	keys, err := cfg.OperatorKeys()
	if err != nil {
		return nil, err
	}
	d := &Devnet{
		log:    logger,
		cfg:    cfg,
		owner:  xroute.PubkeyToAddress(keys[0].PublicKey),
		byName: make(map[string]*Chain, len(cfg.Chains)),
	}
	for i := range cfg.Chains {
		chain, err := d.buildChain(&cfg.Chains[i])
		if err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("chain %s: %w", cfg.Chains[i].Name, err)
		}
		d.chains = append(d.chains, chain)
		d.byName[chain.Name] = chain
	}
	if err := d.connect(); err != nil {
		_ = d.Close()
		return nil, err
	}
	if err := d.fund(); err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

// Owner is the admin of every router and gas service.
func (d *Devnet) Owner() common.Address {
	return d.owner
}

// Chains returns the chains in config order.
func (d *Devnet) Chains() []*Chain {
	return d.chains
}

func (d *Devnet) Chain(name string) (*Chain, error) {
	c, ok := d.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChain, name)
	}
	return c, nil
}

// TokenAddress returns the address of symbol on chain.
func (d *Devnet) TokenAddress(symbol, chain string) (common.Address, error) {
	return d.cfg.TokenAddress(symbol, chain)
}

// Close releases durable stores.
func (d *Devnet) Close() error {
	var errs []error
	for _, s := range d.stores {
		errs = append(errs, s.Close())
	}
	d.stores = nil
	return errors.Join(errs...)
}

// NewRelayer returns a relayer with every chain as both source and
// destination.
func (d *Devnet) NewRelayer(registerer prometheus.Registerer) (*relayer.Relayer, error) {
	checkpoints, err := d.store("relayer", "checkpoint")
	if err != nil {
		return nil, err
	}
	r, err := relayer.New(d.log, relayer.Config{
		PollInterval: time.Duration(d.cfg.PollIntervalMS) * time.Millisecond,
		RetryTimeout: time.Duration(d.cfg.RetryTimeoutMS) * time.Millisecond,
		MaxBatchSize: d.cfg.MaxBatchSize,
		State:        checkpoints,
	}, registerer)
	if err != nil {
		return nil, err
	}
	for _, c := range d.chains {
		if err := r.AddSource(c.Gateway); err != nil {
			return nil, err
		}
		routers := map[common.Address]relayer.Executor{
			c.BridgeAddr: &serialized{chain: c, exec: c.Bridge},
		}
		if c.Swap != nil {
			routers[c.SwapAddr] = &serialized{chain: c, exec: c.Swap}
		}
		if err := r.AddDestination(&relayer.Destination{
			Gateway: c.Gateway,
			Signer:  c.Signer,
			Routers: routers,
		}); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// serialized delivers through the chain lock.
type serialized struct {
	chain *Chain
	exec  relayer.Executor
}

func (s *serialized) Execute(req *router.ExecuteRequest) (*router.ExecuteResult, error) {
	var res *router.ExecuteResult
	err := s.chain.Do(func() error {
		var err error
		res, err = s.exec.Execute(req)
		return err
	})
	return res, err
}

// store opens the named store of a chain: a bolt file under the state
// directory, or memory when none is configured.
func (d *Devnet) store(chain, name string) (state.KV, error) {
	if d.cfg.StateDir == "" {
		return state.NewMemory(), nil
	}
	path := filepath.Join(d.cfg.StateDir, fmt.Sprintf("%s-%s.db", chain, name))
	kv, err := state.NewBolt(path, name)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	d.stores = append(d.stores, kv)
	return kv, nil
}

// batchAuth builds the signer the relayer proves batches with and the
// authorizer the gateway checks them against.
func (d *Devnet) batchAuth(logger log.Logger) (auth.BatchSigner, auth.Authorizer, error) {
	if d.cfg.Authorizer == config.AuthorizerBLS {
		keys, err := d.cfg.ValidatorKeys()
		if err != nil {
			return nil, nil, err
		}
		vdrs := make([]*auth.Validator, len(keys))
		for i, sk := range keys {
			vdrs[i] = auth.NewValidator(sk.PublicKey(), d.cfg.Validators.Weights[i])
		}
		set, err := auth.NewCanonicalValidatorSet(vdrs)
		if err != nil {
			return nil, nil, err
		}
		authorizer, err := auth.NewBLSAuth(set, d.cfg.Validators.QuorumNum, d.cfg.Validators.QuorumDen)
		if err != nil {
			return nil, nil, err
		}
		signer, err := auth.NewBLSSigner(set, keys...)
		if err != nil {
			return nil, nil, err
		}
		return signer, authorizer, nil
	}

	keys, err := d.cfg.OperatorKeys()
	if err != nil {
		return nil, nil, err
	}
	signer, err := auth.NewOperatorSigner(keys, d.cfg.Operators.Weights, d.cfg.Operators.Threshold)
	if err != nil {
		return nil, nil, err
	}
	authorizer, err := auth.NewOperatorAuth(logger, signer.Params())
	if err != nil {
		return nil, nil, err
	}
	return signer, authorizer, nil
}

func (d *Devnet) buildChain(cc *config.ChainConfig) (*Chain, error) {
	logger := d.log
	c := &Chain{
		Name:    cc.Name,
		ID:      cc.ChainID,
		Ledger:  token.NewMemLedger(),
		Prices:  oracle.NewStaticFeed(),
		Lockers: make(map[common.Address]*token.Locker),
	}
	// addresses were checked by Validate
	c.BridgeAddr, _ = config.ParseAddress(d.cfg.BridgeRouter)
	c.GasAddr, _ = config.ParseAddress(cc.GasService)

	signer, authorizer, err := d.batchAuth(logger)
	if err != nil {
		return nil, err
	}
	c.Signer = signer
	gatewayState, err := d.store(cc.Name, "gateway")
	if err != nil {
		return nil, err
	}
	c.Gateway = gateway.New(logger, cc.ChainID, cc.Name, authorizer, gatewayState)

	feeTiers, err := d.cfg.FeeTierTable()
	if err != nil {
		return nil, err
	}
	c.GasService = gasservice.New(logger, c.Ledger, c.GasAddr, d.owner, nil, feeTiers)

	feed := oracle.NewCachedFeed(c.Prices, priceTTL)
	bridgeState, err := d.store(cc.Name, "bridge")
	if err != nil {
		return nil, err
	}
	c.Bridge = router.NewBridgeRouter(logger, &router.Config{
		ChainID:    cc.ChainID,
		Address:    c.BridgeAddr,
		Owner:      d.owner,
		Ledger:     c.Ledger,
		Gateway:    c.Gateway,
		GasService: c.GasService,
		PriceFeed:  feed,
		State:      bridgeState,
	})

	if cc.SettlementToken != "" {
		if err := d.buildSwap(c, cc, feed); err != nil {
			return nil, err
		}
	}
	if err := d.deployTokens(c); err != nil {
		return nil, err
	}
	if err := d.deployPools(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (d *Devnet) buildSwap(c *Chain, cc *config.ChainConfig, feed oracle.PriceFeed) error {
	c.SwapAddr, _ = config.ParseAddress(d.cfg.SwapRouter)
	aggAddr, _ := config.ParseAddress(cc.Aggregator)
	settleToken, err := d.cfg.TokenAddress(cc.SettlementToken, cc.Name)
	if err != nil {
		return err
	}
	c.SettleToken = settleToken
	c.Aggregator = aggregator.NewPoolAggregator(c.Ledger, aggAddr)

	subsidyTiers, err := d.subsidyTiers()
	if err != nil {
		return err
	}
	usdMaxSubsidy, err := config.ParseAmount(d.cfg.USDMaxSubsidy)
	if err != nil {
		return err
	}
	debtThreshold, err := config.ParseAmount(d.cfg.DebtThreshold)
	if err != nil {
		return err
	}
	swapState, err := d.store(cc.Name, "swap")
	if err != nil {
		return err
	}
	c.Swap = router.NewSwapRouter(d.log, &router.SwapConfig{
		Config: router.Config{
			ChainID:    cc.ChainID,
			Address:    c.SwapAddr,
			Owner:      d.owner,
			Ledger:     c.Ledger,
			Gateway:    c.Gateway,
			GasService: c.GasService,
			PriceFeed:  feed,
			State:      swapState,
		},
		SettlementToken: settleToken,
		Aggregator:      c.Aggregator,
		SubsidyTiers:    subsidyTiers,
		USDMaxSubsidy:   usdMaxSubsidy,
		TVLPercentage:   d.cfg.TVLPercentage,
		DebtThreshold:   debtThreshold,
	})
	return nil
}

func (d *Devnet) subsidyTiers() (*settlement.TierTable, error) {
	if len(d.cfg.SubsidyTiers) == 0 {
		return settlement.NewTierTable([]settlement.Tier{{Rate: 0}})
	}
	return d.cfg.SubsidyTierTable()
}

// routers lists the router addresses deployed on c.
func (c *Chain) routers() []common.Address {
	if c.Swap == nil {
		return []common.Address{c.BridgeAddr}
	}
	return []common.Address{c.BridgeAddr, c.SwapAddr}
}

// deployTokens registers every token deployed on c. Locked tokens get a
// locker operated by the routers; the others are minted and burned by
// them.
func (d *Devnet) deployTokens(c *Chain) error {
	for i := range d.cfg.Tokens {
		tc := &d.cfg.Tokens[i]
		if _, ok := tc.Addresses[c.Name]; !ok {
			continue
		}
		addr, err := d.cfg.TokenAddress(tc.Symbol, c.Name)
		if err != nil {
			return err
		}
		price, err := config.ParseAmount(tc.Price)
		if err != nil {
			return err
		}
		c.Prices.SetPrice(addr, price)

		var minters []common.Address
		if !tc.Locks(c.Name) {
			minters = c.routers()
		}
		if err := c.Ledger.Register(addr, tc.Symbol, tc.Decimals, minters...); err != nil {
			return err
		}
		if tc.Locks(c.Name) {
			locker := token.NewLocker(lockerAddress(c.Name, tc.Symbol), token.NewAsset(c.Ledger, addr), c.routers()...)
			c.Lockers[addr] = locker
			if err := c.Bridge.SetLocker(d.owner, locker); err != nil {
				return err
			}
			if c.Swap != nil {
				if err := c.Swap.SetLocker(d.owner, locker); err != nil {
					return err
				}
			}
		}
		if c.Swap != nil && addr != c.SettleToken {
			if err := c.Swap.SetSupportedToken(d.owner, addr, true); err != nil {
				return err
			}
		}
	}
	return nil
}

// deployPools seeds every pool on c. The first pool trading the settlement
// asset prices swaps.
func (d *Devnet) deployPools(c *Chain) error {
	for _, pc := range d.cfg.Pools {
		if pc.Chain != c.Name {
			continue
		}
		addr, _ := config.ParseAddress(pc.Address)
		tokenA, err := d.cfg.TokenAddress(pc.TokenA, c.Name)
		if err != nil {
			return err
		}
		tokenB, err := d.cfg.TokenAddress(pc.TokenB, c.Name)
		if err != nil {
			return err
		}
		p, err := pool.New(c.Ledger, addr, tokenA, tokenB, pc.Fee)
		if err != nil {
			return err
		}
		for tok, amount := range map[common.Address]string{tokenA: pc.ReserveA, tokenB: pc.ReserveB} {
			reserve, err := config.ParseAmount(amount)
			if err != nil {
				return err
			}
			if err := c.Ledger.Fund(tok, addr, reserve); err != nil {
				return err
			}
		}
		if c.Aggregator != nil {
			c.Aggregator.AddPool(p)
		}
		if c.Swap != nil && c.Pool == nil && (tokenA == c.SettleToken || tokenB == c.SettleToken) {
			c.Pool = p
			if err := c.Swap.SetPool(d.owner, p); err != nil {
				return err
			}
		}
	}
	return nil
}

// connect registers every chain with every router and links bridge peers:
// a token is its own peer on every chain it is deployed on.
func (d *Devnet) connect() error {
	for _, c := range d.chains {
		for _, other := range d.chains {
			for _, r := range c.admins() {
				if err := r.SetChain(d.owner, other.ID, other.Name); err != nil {
					return err
				}
			}
		}
	}
	for _, tc := range d.cfg.Tokens {
		for _, c := range d.chains {
			local, err := d.cfg.TokenAddress(tc.Symbol, c.Name)
			if err != nil {
				continue
			}
			for _, other := range d.chains {
				if other == c {
					continue
				}
				remote, err := d.cfg.TokenAddress(tc.Symbol, other.Name)
				if err != nil {
					continue
				}
				if err := c.Bridge.SetPeer(d.owner, local, other.ID, remote); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// fund applies the genesis balances.
func (d *Devnet) fund() error {
	for _, acct := range d.cfg.Accounts {
		c, err := d.Chain(acct.Chain)
		if err != nil {
			return err
		}
		tok, err := d.cfg.TokenAddress(acct.Token, acct.Chain)
		if err != nil {
			return err
		}
		holder, _ := config.ParseAddress(acct.Address)
		amount, err := config.ParseAmount(acct.Amount)
		if err != nil {
			return err
		}
		if err := c.Ledger.Fund(tok, holder, amount); err != nil {
			return err
		}
	}
	return nil
}

// chainAdmin is the registry surface shared by both router variants.
type chainAdmin interface {
	SetChain(caller common.Address, id uint64, name string) error
}

func (c *Chain) admins() []chainAdmin {
	if c.Swap == nil {
		return []chainAdmin{c.Bridge}
	}
	return []chainAdmin{c.Bridge, c.Swap}
}

// lockerAddress derives a stable custody address for symbol on chain.
func lockerAddress(chain, symbol string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("locker"), []byte(chain), []byte(symbol)))
}

// Balance returns holder's balance of symbol on chain.
func (d *Devnet) Balance(chain, symbol string, holder common.Address) (*uint256.Int, error) {
	c, err := d.Chain(chain)
	if err != nil {
		return nil, err
	}
	tok, err := d.cfg.TokenAddress(symbol, chain)
	if err != nil {
		return nil, err
	}
	return c.Ledger.BalanceOf(tok, holder), nil
}
