package account

import (
	"sync"

	"go.uber.org/zap"

	"github.com/versemarket/versex/pkg/exchange/market"
	"github.com/versemarket/versex/pkg/exchange/order"
)

// Manager tracks all accounts' positions in a thread-safe manner.
// Uses an in-memory cache + Pebble persistence so positions survive
// restarts even though the books do not.
type Manager struct {
	log *zap.Logger

	mu       sync.RWMutex
	accounts map[string]*Account
	store    *Store // nil disables persistence (tests)
}

// NewManager creates a manager persisting to a Pebble database at dbPath.
// An empty path keeps positions in memory only.
func NewManager(log *zap.Logger, dbPath string) (*Manager, error) {
	m := &Manager{
		log:      log.Named("account"),
		accounts: make(map[string]*Account),
	}
	if dbPath != "" {
		store, err := NewStore(dbPath)
		if err != nil {
			return nil, err
		}
		m.store = store
	}
	return m, nil
}

// Close closes the underlying database
func (m *Manager) Close() error {
	if m.store == nil {
		return nil
	}
	return m.store.Close()
}

// Get retrieves an account, loading from Pebble or creating it on first use
func (m *Manager) Get(id string) *Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLocked(id)
}

func (m *Manager) getLocked(id string) *Account {
	acc, exists := m.accounts[id]
	if exists {
		return acc
	}

	if m.store != nil {
		loaded, err := m.store.LoadAccount(id)
		if err != nil {
			m.log.Warn("failed to load account", zap.String("account", id), zap.Error(err))
		}
		acc = loaded
	}
	if acc == nil {
		acc = NewAccount(id)
	}

	m.accounts[id] = acc
	return acc
}

// ApplyTrade updates both sides' positions for a fill, each at its own
// order's leverage. Called by the matching core for every trade, after
// the book mutation is finalized.
func (m *Manager) ApplyTrade(t *order.Trade, makerLeverage, takerLeverage int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.applySide(t.TakerAccount, t.VerseID, t.Outcome, t.TakerSide, t.Qty, t.Price, takerLeverage, t.TakerFee)
	m.applySide(t.MakerAccount, t.VerseID, t.Outcome, t.TakerSide.Opposite(), t.Qty, t.Price, makerLeverage, t.MakerFee)
}

func (m *Manager) applySide(accID, verseID string, outcome uint8, side order.Side, qty, price, leverage, fee int64) {
	acc := m.getLocked(accID)

	key := positionKey(verseID, outcome)
	pos, ok := acc.Positions[key]
	if !ok {
		pos = &Position{VerseID: verseID, Outcome: outcome}
		acc.Positions[key] = pos
	}

	acc.RealizedPnL += pos.applyFill(side, qty, price, leverage)
	if pos.Size == 0 {
		delete(acc.Positions, key)
	}

	if fee >= 0 {
		acc.FeesPaid += fee
	} else {
		acc.FeesEarned += -fee
	}
	acc.Volume += qty * price / market.PriceScale
	acc.TradeCount++

	if m.store != nil {
		if err := m.store.SaveAccount(acc); err != nil {
			m.log.Warn("failed to persist account", zap.String("account", accID), zap.Error(err))
		}
	}
}

// Position returns the account's position on a verse outcome, or nil
func (m *Manager) Position(accID, verseID string, outcome uint8) *Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	acc, ok := m.accounts[accID]
	if !ok {
		return nil
	}
	return acc.Positions[positionKey(verseID, outcome)]
}

// Positions returns a copy of all open positions for an account
func (m *Manager) Positions(accID string) []*Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	acc, ok := m.accounts[accID]
	if !ok {
		return nil
	}
	out := make([]*Position, 0, len(acc.Positions))
	for _, p := range acc.Positions {
		cp := *p
		out = append(out, &cp)
	}
	return out
}

// Exposure returns the account's total open notional
func (m *Manager) Exposure(accID string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	acc, ok := m.accounts[accID]
	if !ok {
		return 0
	}
	return acc.Exposure()
}
