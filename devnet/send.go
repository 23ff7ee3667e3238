// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package devnet

import (
	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/xroute/router"
)

// SendBridge approves the bridge router and gas service for the full
// source amount on behalf of the sender, then sends.
func (c *Chain) SendBridge(req *router.BridgeRequest) (*router.SendResult, error) {
	var res *router.SendResult
	err := c.Do(func() error {
		if err := c.approve(req.Details.SourceToken, req.Sender, c.BridgeAddr, req.Details.SourceAmount); err != nil {
			return err
		}
		var err error
		res, err = c.Bridge.Send(req)
		return err
	})
	return res, err
}

// SendSwap is SendBridge for the swap router.
func (c *Chain) SendSwap(req *router.SwapRequest) (*router.SendResult, error) {
	var res *router.SendResult
	err := c.Do(func() error {
		if err := c.approve(req.Details.SourceToken, req.Sender, c.SwapAddr, req.Details.SourceAmount); err != nil {
			return err
		}
		var err error
		res, err = c.Swap.Send(req)
		return err
	})
	return res, err
}

func (c *Chain) approve(tok, owner, spender common.Address, amount *uint256.Int) error {
	if err := c.Ledger.Approve(tok, owner, spender, amount); err != nil {
		return err
	}
	return c.Ledger.Approve(tok, owner, c.GasAddr, amount)
}
