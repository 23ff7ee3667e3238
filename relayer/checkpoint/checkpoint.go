// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package checkpoint

import (
	"fmt"
	"sync"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"

	"github.com/luxfi/xroute/state"
)

var prefixCursor = []byte("relayer-cursor")

// Manager persists where each source chain's relay resumes: the index of
// its first contract call not yet delivered.
type Manager struct {
	log log.Logger
	kv  state.KV

	lock      sync.Mutex
	committed map[string]uint64
}

func NewManager(logger log.Logger, kv state.KV) *Manager {
	return &Manager{
		log:       logger,
		kv:        kv,
		committed: make(map[string]uint64),
	}
}

// Cursor returns the stored resume point of source, zero when none was
// committed.
func (m *Manager) Cursor(source string) (uint64, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if cursor, ok := m.committed[source]; ok {
		return cursor, nil
	}
	var cursor uint64
	if _, err := state.GetRecord(m.kv, key(source), &cursor); err != nil {
		return 0, fmt.Errorf("failed to read cursor of %s: %w", source, err)
	}
	m.committed[source] = cursor
	m.log.Info("loaded relay cursor",
		log.String("sourceChain", source),
		log.Uint64("cursor", cursor),
	)
	return cursor, nil
}

// Commit stores cursor for source. Cursors only move forward; an
// unchanged or lower cursor is not written.
func (m *Manager) Commit(source string, cursor uint64) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if cursor <= m.committed[source] {
		return nil
	}
	if err := state.PutRecord(m.kv, key(source), cursor); err != nil {
		return fmt.Errorf("failed to write cursor of %s: %w", source, err)
	}
	m.committed[source] = cursor
	m.log.Debug("committed relay cursor",
		log.String("sourceChain", source),
		log.Uint64("cursor", cursor),
	)
	return nil
}

func key(source string) common.Hash {
	return state.Key(prefixCursor, []byte(source))
}
