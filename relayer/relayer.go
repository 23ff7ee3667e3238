// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package relayer carries contract calls between gateways. Each pass reads
// the new outbound calls of every source gateway, approves them on their
// destination gateway with a signed command batch and hands the approved
// payload to the destination router.
package relayer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/xroute/cache"
	"github.com/luxfi/xroute/gateway"
	"github.com/luxfi/xroute/payload"
	"github.com/luxfi/xroute/relayer/checkpoint"
	"github.com/luxfi/xroute/router"
	"github.com/luxfi/xroute/state"
	"github.com/luxfi/xroute/utils"
)

const (
	defaultPollInterval = time.Second
	defaultRetryTimeout = 10 * time.Second
	defaultMaxBatchSize = 32
	defaultCacheSize    = 4096
)

var (
	ErrDuplicateSource      = errors.New("source already registered")
	ErrDuplicateDestination = errors.New("destination already registered")
)

// Source is a gateway whose outbound calls are relayed.
type Source interface {
	ChainName() string
	ContractCalls(from uint64) []gateway.ContractCall
}

// BatchExecutor accepts signed command batches.
type BatchExecutor interface {
	ChainID() uint64
	ChainName() string
	Execute(data, proof []byte) (*gateway.BatchReport, error)
}

// Signer produces the proof for a batch.
type Signer interface {
	SignBatch(data []byte) ([]byte, error)
}

// Executor delivers an approved call to a router.
type Executor interface {
	Execute(req *router.ExecuteRequest) (*router.ExecuteResult, error)
}

var (
	_ Source        = (*gateway.Gateway)(nil)
	_ BatchExecutor = (*gateway.Gateway)(nil)
	_ Executor      = (*router.BridgeRouter)(nil)
	_ Executor      = (*router.SwapRouter)(nil)
)

// Destination is a chain the relayer delivers to. Routers are keyed by
// the address calls are sent to.
type Destination struct {
	Gateway BatchExecutor
	Signer  Signer
	Routers map[common.Address]Executor
}

// Config tunes a relayer. When State is set, each source's resume point
// is persisted there.
type Config struct {
	PollInterval time.Duration
	RetryTimeout time.Duration
	MaxBatchSize int
	CacheSize    int
	State        state.KV
}

// Outcome is what happened to one contract call in a pass.
type Outcome struct {
	SourceChain      string
	DestinationChain string
	Index            uint64
	CommandID        ids.ID
	Result           *router.ExecuteResult
	Err              error
}

// Report lists the outcomes of a pass.
type Report struct {
	Outcomes []Outcome
}

// Count returns the number of delivered calls that ended in status.
func (r *Report) Count(status router.Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err == nil && o.Result != nil && o.Result.Status == status {
			n++
		}
	}
	return n
}

// Failed returns the number of calls that were not delivered.
func (r *Report) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

type source struct {
	gateway Source
	cursor  uint64
}

// pending is a call waiting for delivery.
type pending struct {
	source string
	call   gateway.ContractCall
}

type Relayer struct {
	log     log.Logger
	cfg     Config
	metrics *Metrics

	// relayed remembers delivered calls so a pass that restarts behind one
	// does not deliver it again.
	relayed *cache.LRUCache[ids.ID, struct{}]

	checkpoints *checkpoint.Manager

	lock         sync.Mutex
	sources      map[string]*source
	destinations map[string]*Destination
}

func New(logger log.Logger, cfg Config, registerer prometheus.Registerer) (*Relayer, error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.RetryTimeout <= 0 {
		cfg.RetryTimeout = defaultRetryTimeout
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = defaultMaxBatchSize
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultCacheSize
	}
	relayed, err := cache.NewLRUCache[ids.ID, struct{}](cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	var checkpoints *checkpoint.Manager
	if cfg.State != nil {
		checkpoints = checkpoint.NewManager(logger, cfg.State)
	}
	return &Relayer{
		log:          logger,
		checkpoints:  checkpoints,
		cfg:          cfg,
		metrics:      NewMetrics(registerer),
		relayed:      relayed,
		sources:      make(map[string]*source),
		destinations: make(map[string]*Destination),
	}, nil
}

func (r *Relayer) AddSource(src Source) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	name := src.ChainName()
	if _, ok := r.sources[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateSource, name)
	}
	var cursor uint64
	if r.checkpoints != nil {
		var err error
		if cursor, err = r.checkpoints.Cursor(name); err != nil {
			return err
		}
	}
	r.sources[name] = &source{gateway: src, cursor: cursor}
	return nil
}

func (r *Relayer) AddDestination(d *Destination) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	name := d.Gateway.ChainName()
	if _, ok := r.destinations[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateDestination, name)
	}
	r.destinations[name] = d
	return nil
}

// Run relays every PollInterval until ctx is done.
func (r *Relayer) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		report, err := r.RelayOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.log.Error("relay pass failed", log.Err(err))
		} else if n := len(report.Outcomes); n > 0 {
			r.log.Info("relay pass",
				log.Int("calls", n),
				log.Int("completed", report.Count(router.StatusCompleted)),
				log.Int("canceled", report.Count(router.StatusCanceled)),
				log.Int("failed", report.Failed()),
			)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RelayOnce delivers every call not yet relayed. Destinations are served
// concurrently. A call that could not be delivered is retried by the next
// pass.
func (r *Relayer) RelayOnce(ctx context.Context) (*Report, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	byDestination := make(map[string][]pending)
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)

	// last[source] is one past the highest index collected this pass
	last := make(map[string]uint64)
	report := &Report{}
	for _, name := range names {
		src := r.sources[name]
		for _, call := range src.gateway.ContractCalls(src.cursor) {
			last[name] = call.Index + 1
			if r.relayed.Contains(commandID(call)) {
				continue
			}
			if _, ok := r.destinations[call.DestinationChain]; !ok {
				r.log.Warn("no destination for contract call",
					log.String("sourceChain", name),
					log.String("destinationChain", call.DestinationChain),
					log.Uint64("index", call.Index),
				)
				r.metrics.failed(name, call.DestinationChain, failureUnknownDestination)
				r.relayed.Add(commandID(call), struct{}{})
				continue
			}
			byDestination[call.DestinationChain] = append(byDestination[call.DestinationChain], pending{source: name, call: call})
		}
	}

	var (
		mu       sync.Mutex
		outcomes []Outcome
	)
	eg, ctx := errgroup.WithContext(ctx)
	for destName, calls := range byDestination {
		dest := r.destinations[destName]
		eg.Go(func() error {
			out, err := r.relayTo(ctx, dest, calls)
			mu.Lock()
			outcomes = append(outcomes, out...)
			mu.Unlock()
			return err
		})
	}
	err := eg.Wait()

	// a source resumes from its first undelivered call
	for _, name := range names {
		next, ok := last[name]
		if !ok {
			continue
		}
		for _, o := range outcomes {
			// calls that can never be delivered are remembered and skipped
			if o.Err != nil && o.SourceChain == name && !r.relayed.Contains(o.CommandID) {
				next = min(next, o.Index)
			}
		}
		r.sources[name].cursor = next
		if r.checkpoints != nil {
			if err := r.checkpoints.Commit(name, next); err != nil {
				r.log.Error("failed to commit relay cursor", log.String("sourceChain", name), log.Err(err))
			}
		}
	}

	sort.SliceStable(outcomes, func(i, j int) bool {
		if outcomes[i].SourceChain != outcomes[j].SourceChain {
			return outcomes[i].SourceChain < outcomes[j].SourceChain
		}
		return outcomes[i].Index < outcomes[j].Index
	})
	report.Outcomes = outcomes
	return report, err
}

// relayTo approves calls on dest in batches and delivers each approved
// call. It only returns an error when ctx is done.
func (r *Relayer) relayTo(ctx context.Context, dest *Destination, calls []pending) ([]Outcome, error) {
	var outcomes []Outcome
	for start := 0; start < len(calls); start += r.cfg.MaxBatchSize {
		end := min(start+r.cfg.MaxBatchSize, len(calls))
		out, err := r.relayBatch(ctx, dest, calls[start:end])
		outcomes = append(outcomes, out...)
		if err != nil {
			return outcomes, err
		}
	}
	return outcomes, nil
}

func (r *Relayer) relayBatch(ctx context.Context, dest *Destination, calls []pending) ([]Outcome, error) {
	destName := dest.Gateway.ChainName()
	outcomes := make([]Outcome, 0, len(calls))
	fail := func(p pending, reason string, err error) {
		r.metrics.failed(p.source, destName, reason)
		outcomes = append(outcomes, Outcome{
			SourceChain:      p.source,
			DestinationChain: destName,
			Index:            p.call.Index,
			CommandID:        commandID(p.call),
			Err:              err,
		})
	}

	var (
		commandIDs []ids.ID
		commands   []string
		params     [][]byte
		batched    []pending
	)
	for _, p := range calls {
		if !common.IsHexAddress(p.call.DestinationAddress) {
			fail(p, failureMalformedCall, fmt.Errorf("destination address %q", p.call.DestinationAddress))
			r.relayed.Add(commandID(p.call), struct{}{})
			continue
		}
		approve := &payload.ApproveContractCallParams{
			SourceChain:      p.source,
			SourceAddress:    p.call.Sender.Hex(),
			ContractAddress:  common.HexToAddress(p.call.DestinationAddress),
			PayloadHash:      p.call.PayloadHash,
			SourceTxHash:     p.call.SourceTxHash,
			SourceEventIndex: p.call.Index,
		}
		commandIDs = append(commandIDs, commandID(p.call))
		commands = append(commands, payload.CommandApproveContractCall)
		params = append(params, approve.Bytes())
		batched = append(batched, p)
	}
	if len(batched) == 0 {
		return outcomes, nil
	}

	batch, err := payload.NewBatchData(dest.Gateway.ChainID(), commandIDs, commands, params)
	if err != nil {
		return outcomes, err
	}
	data := batch.Bytes()

	start := time.Now()
	proof, err := dest.Signer.SignBatch(data)
	if err != nil {
		for _, p := range batched {
			fail(p, failureSign, err)
		}
		return outcomes, nil
	}

	var report *gateway.BatchReport
	operation := func() error {
		var err error
		report, err = dest.Gateway.Execute(data, proof)
		if errors.Is(err, gateway.ErrInvalidProof) || errors.Is(err, gateway.ErrInvalidChainID) {
			return backoff.Permanent(err)
		}
		return err
	}
	err = utils.WithRetriesTimeout(ctx, r.log, operation, r.cfg.RetryTimeout, "submit batch to "+destName)
	if err != nil {
		r.log.Error("failed to submit batch",
			log.String("destinationChain", destName),
			log.Int("commands", len(batched)),
			log.Err(err),
		)
		for _, p := range batched {
			fail(p, failureSubmit, err)
		}
		return outcomes, ctx.Err()
	}
	r.metrics.submitBatchLatencyMS.WithLabelValues(destName).Set(float64(time.Since(start).Milliseconds()))

	for i, p := range batched {
		res := report.Results[i]
		// an approval executed by an earlier pass may still be unclaimed
		if res.Status != gateway.CommandExecuted && res.Status != gateway.CommandSkippedExecuted {
			fail(p, failureCommand, errors.Join(fmt.Errorf("command %s %s", res.CommandID, res.Status), res.Err))
			continue
		}
		outcomes = append(outcomes, r.deliver(dest, destName, p))
	}
	return outcomes, nil
}

// deliver hands an approved call to its router.
func (r *Relayer) deliver(dest *Destination, destName string, p pending) Outcome {
	id := commandID(p.call)
	outcome := Outcome{
		SourceChain:      p.source,
		DestinationChain: destName,
		Index:            p.call.Index,
		CommandID:        id,
	}

	exec, ok := dest.Routers[common.HexToAddress(p.call.DestinationAddress)]
	if !ok {
		outcome.Err = fmt.Errorf("no router at %s on %s", p.call.DestinationAddress, destName)
		r.metrics.failed(p.source, destName, failureNoRouter)
		r.relayed.Add(id, struct{}{})
		return outcome
	}

	result, err := exec.Execute(&router.ExecuteRequest{
		CommandID:     id,
		SourceChain:   p.source,
		SourceAddress: p.call.Sender.Hex(),
		Payload:       p.call.Payload,
	})
	if errors.Is(err, router.ErrAlreadyReceived) {
		// delivered before; nothing left to do
		r.relayed.Add(id, struct{}{})
		return outcome
	}
	if err != nil {
		r.log.Error("failed to execute contract call",
			log.String("sourceChain", p.source),
			log.String("destinationChain", destName),
			log.Stringer("commandID", id),
			log.Err(err),
		)
		r.metrics.failed(p.source, destName, failureExecute)
		outcome.Err = err
		return outcome
	}

	r.relayed.Add(id, struct{}{})
	r.metrics.relayedCallCount.WithLabelValues(p.source, destName).Inc()
	switch result.Status {
	case router.StatusCompleted:
		r.metrics.completedMessageCount.WithLabelValues(p.source, destName).Inc()
	case router.StatusCanceled:
		r.metrics.canceledMessageCount.WithLabelValues(p.source, destName).Inc()
	}
	outcome.Result = result
	return outcome
}

// commandID derives the gateway command id of a call. Source tx hashes
// commit to the source chain id and event index, so ids do not collide
// across chains.
func commandID(call gateway.ContractCall) ids.ID {
	return ids.ID(call.SourceTxHash)
}
