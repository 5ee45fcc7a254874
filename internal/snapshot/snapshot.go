package snapshot

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ackinacki-farmer/internal/storage"
	"github.com/ackinacki-farmer/internal/types"
	log "github.com/sirupsen/logrus"
)

// Manager holds the status of the latest completed round.
type Manager struct {
	current   atomic.Value // stores *types.Snapshot
	storage   storage.Storage
	persistMu sync.Mutex
	pending   sync.WaitGroup
}

// NewManager returns a manager persisting to store. store may be nil.
func NewManager(store storage.Storage) *Manager {
	m := &Manager{storage: store}

	m.current.Store(&types.Snapshot{
		Accounts: []types.AccountStatus{},
		Updated:  time.Now(),
	})

	return m
}

// Update atomically swaps the current snapshot and persists it in the
// background.
func (m *Manager) Update(accounts []types.AccountStatus, stats types.Stats) {
	snap := &types.Snapshot{
		Accounts: accounts,
		Stats:    stats,
		Updated:  time.Now(),
	}

	m.current.Store(snap)
	log.Debugf("Snapshot updated: round %d, %d accounts", stats.Round, len(accounts))

	m.pending.Add(1)
	go func() {
		defer m.pending.Done()
		m.persist(snap)
	}()
}

// Get returns the current snapshot (atomic read)
func (m *Manager) Get() *types.Snapshot {
	return m.current.Load().(*types.Snapshot)
}

func (m *Manager) GetStats() types.Stats {
	return m.Get().Stats
}

// Accounts returns a copy of the per-account statuses.
func (m *Manager) Accounts() []types.AccountStatus {
	snap := m.Get()
	out := make([]types.AccountStatus, len(snap.Accounts))
	copy(out, snap.Accounts)
	return out
}

// Account returns the status of the account at index.
func (m *Manager) Account(index int) (types.AccountStatus, bool) {
	for _, acct := range m.Get().Accounts {
		if acct.Index == index {
			return acct, true
		}
	}
	return types.AccountStatus{}, false
}

func (m *Manager) persist(snap *types.Snapshot) {
	if m.storage == nil {
		return
	}

	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	if err := m.storage.Save(snap); err != nil {
		log.Errorf("Failed to persist snapshot: %v", err)
	} else {
		log.Debugf("Snapshot persisted: round %d", snap.Stats.Round)
	}
}

// LoadFromStorage restores the last saved round so the status API has
// something to show before the first round completes.
func (m *Manager) LoadFromStorage() error {
	if m.storage == nil {
		return nil
	}

	snap, err := m.storage.Load()
	if err != nil {
		return err
	}
	if snap == nil {
		log.Info("No saved round status in storage")
		return nil
	}

	m.current.Store(snap)
	log.Infof("Loaded round %d status for %d accounts from storage", snap.Stats.Round, len(snap.Accounts))
	return nil
}

// Close waits for in-flight persistence.
func (m *Manager) Close() {
	m.pending.Wait()
}
