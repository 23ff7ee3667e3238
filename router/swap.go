// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package router

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/math/set"

	"github.com/luxfi/xroute"
	"github.com/luxfi/xroute/aggregator"
	"github.com/luxfi/xroute/oracle"
	"github.com/luxfi/xroute/payload"
	"github.com/luxfi/xroute/pool"
	"github.com/luxfi/xroute/settlement"
	"github.com/luxfi/xroute/state"
	"github.com/luxfi/xroute/token"
)

var prefixSolvency = []byte("solvency")

// Pool pairs the settlement asset with its counter-asset.
type Pool interface {
	Address() common.Address
	Other(tok common.Address) (common.Address, error)
	ReserveOf(tok common.Address) (*uint256.Int, error)
	QuoteOut(tokenIn common.Address, amountIn *uint256.Int) (*uint256.Int, error)
	QuoteIn(tokenIn common.Address, amountOut *uint256.Int) (*uint256.Int, error)
	ImpliedPrice(tok common.Address, counterPrice *uint256.Int) (*uint256.Int, error)
}

var _ Pool = (*pool.Pool)(nil)

// SwapConfig configures a SwapRouter. TVLPercentage is in bps of the
// pool's settlement asset reserve; USD amounts carry six decimals.
type SwapConfig struct {
	Config
	SettlementToken common.Address
	Pool            Pool
	Aggregator      aggregator.Aggregator
	SubsidyTiers    *settlement.TierTable
	USDMaxSubsidy   *uint256.Int
	TVLPercentage   uint64
	DebtThreshold   *uint256.Int
}

// SwapRequest sells Details.SourceAmount of Details.SourceToken for at
// least Details.MinAmountOut of Details.DestinationToken paid to Receiver on
// another chain. Value must cover RelayGas.
type SwapRequest struct {
	Sender             common.Address
	Value              *uint256.Int
	RelayGas           *uint256.Int
	DestinationChainID uint64
	Receiver           common.Address
	Details            payload.SwapDetails
}

// Solvency tracks the settlement asset paid out against what came back
// in.
type Solvency struct {
	TotalSold       *uint256.Int
	TotalBoughtBack *uint256.Int
}

// SwapRouter settles swaps in its settlement asset. Deliveries of the
// settlement asset are paid out of custody; any other destination asset is
// bought with the settlement asset through the aggregator.
type SwapRouter struct {
	*core
	settlementToken common.Address

	// guarded by core.mu
	supported     set.Set[common.Address]
	pool          Pool
	aggregator    aggregator.Aggregator
	subsidyTiers  *settlement.TierTable
	usdMaxSubsidy *uint256.Int
	tvlBps        uint64
	debtThreshold *uint256.Int
}

func NewSwapRouter(logger log.Logger, cfg *SwapConfig) *SwapRouter {
	supported := set.NewSet[common.Address](1)
	supported.Add(cfg.SettlementToken)
	return &SwapRouter{
		core:            newCore(logger, &cfg.Config, xroute.ActionSwap),
		settlementToken: cfg.SettlementToken,
		supported:       supported,
		pool:            cfg.Pool,
		aggregator:      cfg.Aggregator,
		subsidyTiers:    cfg.SubsidyTiers,
		usdMaxSubsidy:   new(uint256.Int).Set(orZero(cfg.USDMaxSubsidy)),
		tvlBps:          cfg.TVLPercentage,
		debtThreshold:   new(uint256.Int).Set(orZero(cfg.DebtThreshold)),
	}
}

func (r *SwapRouter) SettlementToken() common.Address {
	return r.settlementToken
}

func (r *SwapRouter) SetSupportedToken(caller, tok common.Address, supported bool) error {
	if tok == token.Native {
		return ErrNativeToken
	}
	return r.onlyOwner(caller, func() error {
		if supported {
			r.supported.Add(tok)
		} else {
			r.supported.Remove(tok)
		}
		return nil
	})
}

func (r *SwapRouter) IsSupported(tok common.Address) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.supported.Contains(tok)
}

func (r *SwapRouter) SetPool(caller common.Address, p Pool) error {
	return r.onlyOwner(caller, func() error {
		r.pool = p
		return nil
	})
}

func (r *SwapRouter) SetAggregator(caller common.Address, agg aggregator.Aggregator) error {
	return r.onlyOwner(caller, func() error {
		r.aggregator = agg
		return nil
	})
}

func (r *SwapRouter) SetSubsidyTiers(caller common.Address, tiers *settlement.TierTable) error {
	return r.onlyOwner(caller, func() error {
		r.subsidyTiers = tiers
		return nil
	})
}

func (r *SwapRouter) SetUSDMaxSubsidy(caller common.Address, usd *uint256.Int) error {
	return r.onlyOwner(caller, func() error {
		r.usdMaxSubsidy = new(uint256.Int).Set(usd)
		return nil
	})
}

func (r *SwapRouter) SetTVLPercentage(caller common.Address, bps uint64) error {
	if bps > settlement.BasisPoints {
		return fmt.Errorf("%w: %d", settlement.ErrRateOutOfBounds, bps)
	}
	return r.onlyOwner(caller, func() error {
		r.tvlBps = bps
		return nil
	})
}

func (r *SwapRouter) SetDebtThreshold(caller common.Address, threshold *uint256.Int) error {
	return r.onlyOwner(caller, func() error {
		r.debtThreshold = new(uint256.Int).Set(threshold)
		return nil
	})
}

// Solvency returns the running settlement asset totals.
func (r *SwapRouter) Solvency() (*Solvency, error) {
	s := &Solvency{}
	found, err := state.GetRecord(r.journal, state.Key(prefixSolvency, nil), s)
	if err != nil {
		return nil, err
	}
	if !found {
		return &Solvency{TotalSold: new(uint256.Int), TotalBoughtBack: new(uint256.Int)}, nil
	}
	return s, nil
}

// updateSolvency applies fn to the totals through the journal.
func (r *SwapRouter) updateSolvency(fn func(*Solvency) error) error {
	s, err := r.Solvency()
	if err != nil {
		return err
	}
	if err := fn(s); err != nil {
		return err
	}
	return state.PutRecord(r.journal, state.Key(prefixSolvency, nil), s)
}

// checkSolvency holds while totalSold + amount < totalBoughtBack +
// debtThreshold.
func (r *SwapRouter) checkSolvency(amount *uint256.Int) error {
	s, err := r.Solvency()
	if err != nil {
		return err
	}
	r.mu.Lock()
	debt := new(uint256.Int).Set(r.debtThreshold)
	r.mu.Unlock()

	out, overflow := new(uint256.Int).AddOverflow(s.TotalSold, amount)
	if overflow {
		return fmt.Errorf("%w: %w", ErrCircuitBreaker, settlement.ErrOverflow)
	}
	in, overflow := new(uint256.Int).AddOverflow(s.TotalBoughtBack, debt)
	if overflow {
		in.SetAllOne()
	}
	if !out.Lt(in) {
		return fmt.Errorf("%w: sold %s + %s, bought back %s + threshold %s",
			ErrCircuitBreaker, s.TotalSold, amount, s.TotalBoughtBack, debt)
	}
	return nil
}

// Send takes the fee and custody of the remainder and dispatches a swap
// message.
func (r *SwapRouter) Send(req *SwapRequest) (*SendResult, error) {
	if err := r.enter(); err != nil {
		return nil, err
	}
	defer r.exit()

	if err := checkRelayGas(req.Value, req.RelayGas, false); err != nil {
		return nil, err
	}
	destChain, err := r.resolveDestination(req.DestinationChainID)
	if err != nil {
		return nil, err
	}

	d := req.Details
	if d.SourceToken == token.Native {
		return nil, ErrNativeToken
	}
	if !r.IsSupported(d.SourceToken) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedToken, d.SourceToken)
	}
	if d.SourceAmount == nil || d.SourceAmount.IsZero() {
		return nil, ErrZeroAmount
	}

	fee, remaining, usd, err := r.quoteFee(d.SourceToken, d.SourceAmount)
	if err != nil {
		return nil, err
	}
	if remaining.IsZero() {
		return nil, ErrZeroAmount
	}

	details := &payload.SwapDetails{
		SourceToken:      d.SourceToken,
		SourceAmount:     remaining,
		DestinationToken: d.DestinationToken,
		MinAmountOut:     orZero(d.MinAmountOut),
	}
	o := &outbound{
		sender:      req.Sender,
		receiver:    req.Receiver,
		destChainID: req.DestinationChainID,
		destChain:   destChain,
		token:       d.SourceToken,
		amount:      remaining,
		fee:         fee,
		usdValue:    usd,
		details:     details.Bytes(),
		value:       orZero(req.Value),
	}
	if d.SourceToken == r.settlementToken {
		o.bookkeeping = func() error {
			return r.updateSolvency(func(s *Solvency) error {
				s.TotalBoughtBack.Add(s.TotalBoughtBack, remaining)
				return nil
			})
		}
	}
	return r.send(o)
}

// Execute applies a gateway-approved message: a swap delivery or the
// cancel of a swap this router sent.
func (r *SwapRouter) Execute(req *ExecuteRequest) (*ExecuteResult, error) {
	return r.execute(req, r.route)
}

// onRefund reverses the buy-back booked when settlement asset was sent.
func (r *SwapRouter) onRefund(sent *SentMessage) error {
	if sent.SourceToken != r.settlementToken {
		return nil
	}
	return r.updateSolvency(func(s *Solvency) error {
		if s.TotalBoughtBack.Lt(sent.SourceAmount) {
			s.TotalBoughtBack.Clear()
			return nil
		}
		s.TotalBoughtBack.Sub(s.TotalBoughtBack, sent.SourceAmount)
		return nil
	})
}

// swapParams is a consistent copy of the settlement configuration.
type swapParams struct {
	pool          Pool
	aggregator    aggregator.Aggregator
	subsidyTiers  *settlement.TierTable
	usdMaxSubsidy *uint256.Int
	tvlBps        uint64
	priceFeed     oracle.PriceFeed
}

func (r *SwapRouter) params() *swapParams {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &swapParams{
		pool:          r.pool,
		aggregator:    r.aggregator,
		subsidyTiers:  r.subsidyTiers,
		usdMaxSubsidy: new(uint256.Int).Set(r.usdMaxSubsidy),
		tvlBps:        r.tvlBps,
		priceFeed:     r.priceFeed,
	}
}

// route checks the action type before the destination chain.
func (r *SwapRouter) route(msg *xroute.Message, id ids.ID, sourceChainID uint64, sourceChain string) (*delivery, error) {
	if msg.ActionType == xroute.ActionCancel {
		return r.cancelAck(msg, sourceChainID, r.onRefund)
	}
	if msg.ActionType != xroute.ActionSwap {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAction, msg.ActionType)
	}
	if err := r.requireNotReceived(id); err != nil {
		return nil, err
	}
	if msg.DestinationChainID != r.chainID {
		return r.cancellation(msg, id, sourceChainID, sourceChain,
			fmt.Sprintf("wrong destination chain %d", msg.DestinationChainID)), nil
	}

	d, err := payload.ParseSwapDetails(msg.Details)
	if err != nil {
		return r.cancellation(msg, id, sourceChainID, sourceChain, "invalid swap details"), nil
	}
	if !r.IsSupported(d.DestinationToken) {
		return r.cancellation(msg, id, sourceChainID, sourceChain,
			fmt.Sprintf("unsupported destination token %s", d.DestinationToken)), nil
	}

	q, err := r.quote(msg, d)
	var cancel *cancelError
	switch {
	case errors.As(err, &cancel):
		return r.cancellation(msg, id, sourceChainID, sourceChain, cancel.reason), nil
	case err != nil:
		return nil, err
	}

	if d.DestinationToken == r.settlementToken {
		return r.settle(msg, id, sourceChainID, sourceChain, func() (*MessageCompleted, error) {
			return r.payOut(id, msg.Receiver, q.amount)
		}), nil
	}
	return r.settle(msg, id, sourceChainID, sourceChain, func() (*MessageCompleted, error) {
		return r.offRamp(id, msg.Receiver, d, q)
	}), nil
}

// swapQuote is the settlement asset amount a delivery will release.
type swapQuote struct {
	amount     *uint256.Int
	aggregator aggregator.Aggregator
}

// quote prices a swap delivery. Business-rule failures come back as
// *cancelError; anything else is a hard failure, including the solvency
// circuit breaker.
func (r *SwapRouter) quote(msg *xroute.Message, d *payload.SwapDetails) (*swapQuote, error) {
	p := r.params()
	if p.pool == nil {
		return nil, ErrNoPool
	}
	if p.priceFeed == nil {
		return nil, oracle.ErrNoPrice
	}
	counter, err := p.pool.Other(r.settlementToken)
	if err != nil {
		return nil, err
	}
	counterPrice, err := p.priceFeed.Price(counter)
	if err != nil {
		return nil, err
	}
	counterDecimals, err := r.ledger.Decimals(counter)
	if err != nil {
		return nil, err
	}
	settlementDecimals, err := r.ledger.Decimals(r.settlementToken)
	if err != nil {
		return nil, err
	}
	settlementPrice, err := p.pool.ImpliedPrice(r.settlementToken, counterPrice)
	if err != nil {
		return nil, cancelWith("price unavailable: %v", err)
	}

	usd := orZero(msg.USDValue)
	counterAmount, err := settlement.FromUSD(usd, counterPrice, counterDecimals)
	if err != nil {
		return nil, cancelWith("%v", err)
	}

	q := &swapQuote{aggregator: p.aggregator}
	if d.DestinationToken == r.settlementToken {
		// the settlement asset the same value would buy in the pool
		out, err := p.pool.QuoteOut(counter, counterAmount)
		if err != nil {
			return nil, cancelWith("%v", err)
		}
		if out.Lt(d.MinAmountOut) {
			return nil, cancelWith("insufficient output amount: %s < %s", out, d.MinAmountOut)
		}
		q.amount = out
	} else {
		if p.aggregator == nil {
			return nil, ErrNoAggregator
		}
		if p.subsidyTiers == nil {
			return nil, ErrNoTiers
		}
		reserve, err := p.pool.ReserveOf(r.settlementToken)
		if err != nil {
			return nil, err
		}
		base, ok, err := settlement.BoundedAmountInByTVL(reserve, settlementPrice, settlementDecimals, usd, p.tvlBps)
		if err != nil {
			return nil, cancelWith("%v", err)
		}
		if !ok {
			return nil, cancelWith("amount %s exceeds tvl bound", base)
		}

		subsidyUSD, err := settlement.ApplyBps(usd, p.subsidyTiers.RateAtMost(usd))
		if err != nil {
			return nil, err
		}
		bonus, err := settlement.FromUSD(settlement.ApplySubsidyCap(subsidyUSD, p.usdMaxSubsidy), settlementPrice, settlementDecimals)
		if err != nil {
			return nil, cancelWith("%v", err)
		}
		ceiling, overflow := new(uint256.Int).AddOverflow(base, bonus)
		if overflow {
			return nil, settlement.ErrOverflow
		}

		q.amount = base
		if d.DestinationToken == counter {
			// the subsidy only tops up a buy of the counter-asset
			needed, err := p.pool.QuoteIn(r.settlementToken, counterAmount)
			if err != nil {
				return nil, cancelWith("%v", err)
			}
			q.amount = settlement.Min(needed, ceiling)
		}
	}

	if err := r.checkSolvency(q.amount); err != nil {
		return nil, err
	}
	return q, nil
}

// payOut releases settlement asset straight to the receiver.
func (r *SwapRouter) payOut(id ids.ID, receiver common.Address, amount *uint256.Int) (*MessageCompleted, error) {
	if err := r.sold(amount); err != nil {
		return nil, err
	}
	if err := r.releaseCustody(r.settlementToken, receiver, amount); err != nil {
		return nil, err
	}
	return &MessageCompleted{MessageID: id, Receiver: receiver, Token: r.settlementToken, Amount: amount}, nil
}

// offRamp sells settlement asset for the destination asset through the
// aggregator. An aggregator failure puts the asset back in custody and
// cancels with the aggregator's reason.
func (r *SwapRouter) offRamp(id ids.ID, receiver common.Address, d *payload.SwapDetails, q *swapQuote) (*MessageCompleted, error) {
	if err := r.sold(q.amount); err != nil {
		return nil, err
	}
	if err := r.releaseCustody(r.settlementToken, r.address, q.amount); err != nil {
		return nil, err
	}
	agg := q.aggregator
	if err := r.ledger.Approve(r.settlementToken, r.address, agg.Address(), q.amount); err != nil {
		return nil, errors.Join(err, r.restoreCustody(r.settlementToken, q.amount))
	}

	out, err := agg.Swap(&aggregator.Request{
		Caller:       r.address,
		TokenIn:      r.settlementToken,
		TokenOut:     d.DestinationToken,
		AmountIn:     q.amount,
		MinAmountOut: d.MinAmountOut,
		Receiver:     receiver,
	})
	if err != nil {
		reason := aggregator.ReasonOf(err)
		r.log.Warn("aggregator swap failed",
			log.Stringer("messageID", id),
			log.String("reason", reason),
		)
		resetErr := r.ledger.Approve(r.settlementToken, r.address, agg.Address(), new(uint256.Int))
		if rerr := errors.Join(resetErr, r.restoreCustody(r.settlementToken, q.amount)); rerr != nil {
			return nil, rerr
		}
		return nil, cancelWith("%s", reason)
	}
	return &MessageCompleted{MessageID: id, Receiver: receiver, Token: d.DestinationToken, Amount: out}, nil
}

func (r *SwapRouter) sold(amount *uint256.Int) error {
	return r.updateSolvency(func(s *Solvency) error {
		s.TotalSold.Add(s.TotalSold, amount)
		return nil
	})
}
