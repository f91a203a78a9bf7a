// Package state persists campaign registry state through a storage.Database.
// The manager keeps an authoritative in-memory working set with a mutation
// journal, so the registry can snapshot and revert mid-operation, and writes
// dirty records back to the database on Commit.
package state

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sync"

	"rewardnet/native/campaign"
	"rewardnet/storage"
)

const (
	prefixCampaign = "campaign/c/"
	prefixPayout   = "campaign/p/"
	prefixFee      = "campaign/f/"
	prefixTotals   = "campaign/t/"
	prefixVault    = "campaign/v/"
	prefixAccount  = "campaign/a/"
)

// CreditHook lets integrations veto or redirect an outbound account credit,
// mirroring tokens that report failure instead of reverting. A nil hook means
// every credit lands in the manager's own balance records.
type CreditHook func(asset campaign.AssetID, addr [20]byte, amount *big.Int) error

type totalsRecord struct {
	Payouts *big.Int `json:"payouts"`
	Fees    *big.Int `json:"fees"`
}

// Manager implements the registry's state surface. Callers must serialize
// mutating operations; accessor reads are internally locked.
type Manager struct {
	mu sync.RWMutex

	db storage.Database

	campaigns map[campaign.CampaignID]*campaign.Campaign
	payouts   map[string]*big.Int
	fees      map[string]*big.Int
	totals    map[string]*totalsRecord
	vaults    map[string]*big.Int
	accounts  map[string]*big.Int

	creditHook CreditHook

	journal []func()
	dirty   map[string]struct{}
}

// NewManager loads all persisted registry state from db into memory.
func NewManager(db storage.Database) (*Manager, error) {
	m := &Manager{
		db:        db,
		campaigns: make(map[campaign.CampaignID]*campaign.Campaign),
		payouts:   make(map[string]*big.Int),
		fees:      make(map[string]*big.Int),
		totals:    make(map[string]*totalsRecord),
		vaults:    make(map[string]*big.Int),
		accounts:  make(map[string]*big.Int),
		dirty:     make(map[string]struct{}),
	}
	if db == nil {
		return m, nil
	}
	if err := m.loadAll(); err != nil {
		return nil, err
	}
	return m, nil
}

// SetCreditHook installs the outbound transfer seam. Intended for token
// adapters and tests.
func (m *Manager) SetCreditHook(hook CreditHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creditHook = hook
}

func (m *Manager) loadAll() error {
	if err := m.db.Iterate([]byte(prefixCampaign), func(key, value []byte) error {
		c := new(campaign.Campaign)
		if err := json.Unmarshal(value, c); err != nil {
			return fmt.Errorf("state: decode campaign %q: %w", key, err)
		}
		m.campaigns[c.ID] = c
		return nil
	}); err != nil {
		return err
	}
	loadAmounts := func(prefix string, into map[string]*big.Int) error {
		return m.db.Iterate([]byte(prefix), func(key, value []byte) error {
			amt := new(big.Int)
			if err := json.Unmarshal(value, amt); err != nil {
				return fmt.Errorf("state: decode amount %q: %w", key, err)
			}
			into[string(key[len(prefix):])] = amt
			return nil
		})
	}
	if err := loadAmounts(prefixPayout, m.payouts); err != nil {
		return err
	}
	if err := loadAmounts(prefixFee, m.fees); err != nil {
		return err
	}
	if err := loadAmounts(prefixVault, m.vaults); err != nil {
		return err
	}
	if err := loadAmounts(prefixAccount, m.accounts); err != nil {
		return err
	}
	return m.db.Iterate([]byte(prefixTotals), func(key, value []byte) error {
		rec := new(totalsRecord)
		if err := json.Unmarshal(value, rec); err != nil {
			return fmt.Errorf("state: decode totals %q: %w", key, err)
		}
		m.totals[string(key[len(prefixTotals):])] = rec
		return nil
	})
}

func assetKey(id campaign.CampaignID, asset campaign.AssetID) string {
	return fmt.Sprintf("%x/%x", id[:], asset[:])
}

func entryKey(id campaign.CampaignID, asset campaign.AssetID, key campaign.RecipientKey) string {
	return fmt.Sprintf("%x/%x/%x", id[:], asset[:], key[:])
}

func accountKey(asset campaign.AssetID, addr [20]byte) string {
	return fmt.Sprintf("%x/%x", asset[:], addr[:])
}

func clone(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// CampaignPut stores the campaign record.
func (m *Manager) CampaignPut(c *campaign.Campaign) error {
	if c == nil {
		return fmt.Errorf("state: nil campaign")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.campaigns[c.ID]
	id := c.ID
	m.journal = append(m.journal, func() {
		if prev == nil {
			delete(m.campaigns, id)
			return
		}
		m.campaigns[id] = prev
	})
	m.campaigns[id] = c.Clone()
	m.dirty[prefixCampaign+fmt.Sprintf("%x", id[:])] = struct{}{}
	return nil
}

// CampaignGet returns a copy of the stored campaign.
func (m *Manager) CampaignGet(id campaign.CampaignID) (*campaign.Campaign, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, false
	}
	return c.Clone(), true
}

func (m *Manager) getAmount(bucket map[string]*big.Int, key string) *big.Int {
	if v, ok := bucket[key]; ok {
		return clone(v)
	}
	return big.NewInt(0)
}

func (m *Manager) setAmount(bucket map[string]*big.Int, prefix, key string, amount *big.Int) {
	prev, had := bucket[key]
	m.journal = append(m.journal, func() {
		if !had {
			delete(bucket, key)
			return
		}
		bucket[key] = prev
	})
	bucket[key] = clone(amount)
	m.dirty[prefix+key] = struct{}{}
}

// PayoutAllocated returns the outstanding payout allocation for one key.
func (m *Manager) PayoutAllocated(id campaign.CampaignID, asset campaign.AssetID, key campaign.RecipientKey) *big.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getAmount(m.payouts, entryKey(id, asset, key))
}

// SetPayoutAllocated overwrites the payout allocation for one key.
func (m *Manager) SetPayoutAllocated(id campaign.CampaignID, asset campaign.AssetID, key campaign.RecipientKey, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setAmount(m.payouts, prefixPayout, entryKey(id, asset, key), amount)
	return nil
}

// FeeAllocated returns the outstanding fee allocation for one key.
func (m *Manager) FeeAllocated(id campaign.CampaignID, asset campaign.AssetID, key campaign.RecipientKey) *big.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getAmount(m.fees, entryKey(id, asset, key))
}

// SetFeeAllocated overwrites the fee allocation for one key.
func (m *Manager) SetFeeAllocated(id campaign.CampaignID, asset campaign.AssetID, key campaign.RecipientKey, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setAmount(m.fees, prefixFee, entryKey(id, asset, key), amount)
	return nil
}

// AllocatedTotals returns the aggregate allocation counters.
func (m *Manager) AllocatedTotals(id campaign.CampaignID, asset campaign.AssetID) (payouts, fees *big.Int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.totals[assetKey(id, asset)]
	if !ok {
		return big.NewInt(0), big.NewInt(0)
	}
	return clone(rec.Payouts), clone(rec.Fees)
}

// SetAllocatedTotals overwrites the aggregate allocation counters.
func (m *Manager) SetAllocatedTotals(id campaign.CampaignID, asset campaign.AssetID, payouts, fees *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := assetKey(id, asset)
	prev, had := m.totals[key]
	m.journal = append(m.journal, func() {
		if !had {
			delete(m.totals, key)
			return
		}
		m.totals[key] = prev
	})
	m.totals[key] = &totalsRecord{Payouts: clone(payouts), Fees: clone(fees)}
	m.dirty[prefixTotals+key] = struct{}{}
	return nil
}

// VaultBalance returns the vault's holdings for one asset.
func (m *Manager) VaultBalance(id campaign.CampaignID, asset campaign.AssetID) *big.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getAmount(m.vaults, assetKey(id, asset))
}

// VaultCredit increases the vault balance.
func (m *Manager) VaultCredit(id campaign.CampaignID, asset campaign.AssetID, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: invalid credit amount")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := assetKey(id, asset)
	next := new(big.Int).Add(m.getAmount(m.vaults, key), amount)
	m.setAmount(m.vaults, prefixVault, key, next)
	return nil
}

// VaultDebit decreases the vault balance, failing on overdraft.
func (m *Manager) VaultDebit(id campaign.CampaignID, asset campaign.AssetID, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: invalid debit amount")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := assetKey(id, asset)
	current := m.getAmount(m.vaults, key)
	if current.Cmp(amount) < 0 {
		return fmt.Errorf("state: vault overdraft")
	}
	m.setAmount(m.vaults, prefixVault, key, new(big.Int).Sub(current, amount))
	return nil
}

// CreditAccount completes an outbound transfer by crediting the recipient's
// balance record, or by delegating to the configured credit hook.
func (m *Manager) CreditAccount(asset campaign.AssetID, addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: invalid credit amount")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.creditHook != nil {
		if err := m.creditHook(asset, addr, amount); err != nil {
			return err
		}
	}
	key := accountKey(asset, addr)
	next := new(big.Int).Add(m.getAmount(m.accounts, key), amount)
	m.setAmount(m.accounts, prefixAccount, key, next)
	return nil
}

// AccountBalance returns the credited balance of an external account.
func (m *Manager) AccountBalance(asset campaign.AssetID, addr [20]byte) *big.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getAmount(m.accounts, accountKey(asset, addr))
}

// Snapshot returns a revision marker for the current journal position.
func (m *Manager) Snapshot() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.journal)
}

// RevertToSnapshot undoes every mutation recorded after the marker.
func (m *Manager) RevertToSnapshot(rev int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rev < 0 || rev > len(m.journal) {
		return
	}
	for i := len(m.journal) - 1; i >= rev; i-- {
		m.journal[i]()
	}
	m.journal = m.journal[:rev]
}

// Commit flushes every dirty record to the database and clears the journal.
// Callers invoke it after a registry operation returns successfully.
func (m *Manager) Commit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db == nil {
		m.journal = nil
		m.dirty = make(map[string]struct{})
		return nil
	}
	for fullKey := range m.dirty {
		value, err := m.encodeRecord(fullKey)
		if err != nil {
			return err
		}
		if value == nil {
			if err := m.db.Delete([]byte(fullKey)); err != nil {
				return err
			}
			continue
		}
		if err := m.db.Put([]byte(fullKey), value); err != nil {
			return err
		}
	}
	m.journal = nil
	m.dirty = make(map[string]struct{})
	return nil
}

func (m *Manager) encodeRecord(fullKey string) ([]byte, error) {
	lookupAmount := func(bucket map[string]*big.Int, key string) ([]byte, error) {
		v, ok := bucket[key]
		if !ok {
			return nil, nil
		}
		return json.Marshal(v)
	}
	switch {
	case len(fullKey) > len(prefixCampaign) && fullKey[:len(prefixCampaign)] == prefixCampaign:
		for id, c := range m.campaigns {
			if fmt.Sprintf("%x", id[:]) == fullKey[len(prefixCampaign):] {
				return json.Marshal(c)
			}
		}
		return nil, nil
	case len(fullKey) > len(prefixPayout) && fullKey[:len(prefixPayout)] == prefixPayout:
		return lookupAmount(m.payouts, fullKey[len(prefixPayout):])
	case len(fullKey) > len(prefixFee) && fullKey[:len(prefixFee)] == prefixFee:
		return lookupAmount(m.fees, fullKey[len(prefixFee):])
	case len(fullKey) > len(prefixVault) && fullKey[:len(prefixVault)] == prefixVault:
		return lookupAmount(m.vaults, fullKey[len(prefixVault):])
	case len(fullKey) > len(prefixAccount) && fullKey[:len(prefixAccount)] == prefixAccount:
		return lookupAmount(m.accounts, fullKey[len(prefixAccount):])
	case len(fullKey) > len(prefixTotals) && fullKey[:len(prefixTotals)] == prefixTotals:
		rec, ok := m.totals[fullKey[len(prefixTotals):]]
		if !ok {
			return nil, nil
		}
		return json.Marshal(rec)
	default:
		return nil, fmt.Errorf("state: unknown record key %q", fullKey)
	}
}
