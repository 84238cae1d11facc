// Package session owns the wallet session lifecycle: restore, provider
// reconciliation, connect, network enforcement and disconnect.
package session

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/aitradehq/tradeflow/internal/chain"
	"github.com/aitradehq/tradeflow/internal/domain"
)

// Store is the persistence surface the manager needs.
type Store interface {
	Load() (*domain.WalletSession, error)
	Save(session domain.WalletSession) error
	Clear() error
}

// Manager guards the wallet session. All mutations go through it; concurrent
// writers resolve last-writer-wins under the lock.
type Manager struct {
	mu       sync.Mutex
	session  domain.WalletSession
	provider chain.Provider
	store    Store
	target   chain.Params
	logger   *zap.Logger
}

// NewManager creates a session manager targeting the given network.
func NewManager(provider chain.Provider, store Store, target chain.Params, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		provider: provider,
		store:    store,
		target:   target,
		logger:   logger.With(zap.String("component", "session")),
	}
}

// Current returns a copy of the session.
func (m *Manager) Current() domain.WalletSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Restore loads the persisted session without touching the provider. A load
// failure leaves the manager disconnected rather than failing startup.
func (m *Manager) Restore() domain.WalletSession {
	saved, err := m.store.Load()
	if err != nil {
		m.logger.Warn("failed to restore session, starting disconnected", zap.Error(err))
		return domain.WalletSession{}
	}
	if saved == nil {
		return domain.WalletSession{}
	}

	m.mu.Lock()
	m.session = *saved
	m.mu.Unlock()

	m.logger.Info("session restored", zap.String("address", saved.ShortAddress()))
	return *saved
}

// ReconcileWithProvider checks the restored session against what the provider
// actually reports. The provider always wins: a vanished or different account
// replaces the persisted one, and no accounts at all means disconnected.
// Safe to call repeatedly; reconciling an already consistent session is a
// no-op.
func (m *Manager) ReconcileWithProvider(ctx context.Context) (domain.WalletSession, error) {
	accounts, err := m.provider.Accounts(ctx)
	if err != nil {
		// Provider unreachable: keep the persisted session rather than
		// logging the user out on a transient failure.
		m.logger.Warn("provider unavailable during reconcile, keeping persisted session", zap.Error(err))
		return m.Current(), nil
	}

	if len(accounts) == 0 {
		return m.clearSession("provider reports no authorized accounts")
	}

	chainID, err := m.provider.ChainID(ctx)
	if err != nil {
		m.logger.Warn("chain id query failed during reconcile", zap.Error(err))
		chainID = m.Current().ChainID
	}

	m.mu.Lock()
	if m.session.Address == accounts[0] && m.session.ChainID == chainID {
		session := m.session
		m.mu.Unlock()
		return session, nil
	}
	m.session.Address = accounts[0]
	m.session.ChainID = chainID
	session := m.session
	m.mu.Unlock()

	if err := m.store.Save(session); err != nil {
		m.logger.Warn("failed to persist reconciled session", zap.Error(err))
	}
	m.logger.Info("session reconciled with provider",
		zap.String("address", session.ShortAddress()),
		zap.Int64("chain_id", session.ChainID))
	return session, nil
}

// Connect runs the provider's authorization flow and persists the result.
func (m *Manager) Connect(ctx context.Context) (domain.WalletSession, error) {
	accounts, err := m.provider.RequestAccounts(ctx)
	if err != nil {
		switch {
		case errors.Is(err, chain.ErrRejected):
			return domain.WalletSession{}, domain.NewFault(domain.FaultUserRejected, "wallet connection was rejected")
		case errors.Is(err, chain.ErrNoProvider):
			return domain.WalletSession{}, domain.NewFault(domain.FaultProviderAbsent, "no wallet provider is available")
		}
		return domain.WalletSession{}, errors.Wrap(err, "request accounts")
	}
	if len(accounts) == 0 {
		return domain.WalletSession{}, domain.NewFault(domain.FaultProviderAbsent, "provider returned no accounts")
	}

	if err := m.EnsureNetwork(ctx); err != nil {
		return domain.WalletSession{}, err
	}

	m.mu.Lock()
	m.session.Address = accounts[0]
	m.session.ChainID = m.target.ID
	session := m.session
	m.mu.Unlock()

	if err := m.store.Save(session); err != nil {
		m.logger.Warn("failed to persist session", zap.Error(err))
	}
	m.logger.Info("wallet connected", zap.String("address", session.ShortAddress()))
	return session, nil
}

// EnsureNetwork moves the provider to the target chain, registering it first
// when the provider does not know it yet.
func (m *Manager) EnsureNetwork(ctx context.Context) error {
	current, err := m.provider.ChainID(ctx)
	if err == nil && current == m.target.ID {
		return nil
	}

	err = m.provider.SwitchChain(ctx, m.target.ID)
	if errors.Is(err, chain.ErrUnknownChain) {
		if err := m.provider.AddChain(ctx, m.target); err != nil {
			return domain.NewFault(domain.FaultWrongNetwork, "failed to add network %s: %v", m.target.Name, err)
		}
		err = m.provider.SwitchChain(ctx, m.target.ID)
	}
	if err != nil {
		if errors.Is(err, chain.ErrRejected) {
			return domain.NewFault(domain.FaultUserRejected, "network switch was rejected")
		}
		return domain.NewFault(domain.FaultWrongNetwork, "failed to switch to %s: %v", m.target.Name, err)
	}
	return nil
}

// Disconnect clears the session locally. The provider keeps its own
// authorization state; only our side forgets the address.
func (m *Manager) Disconnect() (domain.WalletSession, error) {
	return m.clearSession("user disconnected")
}

func (m *Manager) clearSession(reason string) (domain.WalletSession, error) {
	m.mu.Lock()
	m.session = domain.WalletSession{}
	m.mu.Unlock()

	if err := m.store.Clear(); err != nil {
		return domain.WalletSession{}, errors.Wrap(err, "clear persisted session")
	}
	m.logger.Info("session cleared", zap.String("reason", reason))
	return domain.WalletSession{}, nil
}
