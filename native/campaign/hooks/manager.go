// Package hooks ships concrete hook policies for the campaign registry. The
// manager policy is the simplest useful one: a manager address fixed at
// creation directs every payout explicitly, with an optional flat fee
// retained for a collector.
package hooks

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"rewardnet/native/campaign"
)

var (
	ErrUnauthorized          = errors.New("hooks: unauthorized")
	ErrUnknownCampaign       = errors.New("hooks: campaign not configured")
	ErrInvalidInstruction    = errors.New("hooks: invalid instruction payload")
	ErrInvalidFeeBps         = errors.New("hooks: fee bps out of range")
	ErrUnregisteredRecipient = errors.New("hooks: recipient code not registered")
	ErrFinalizeWindowOpen    = errors.New("hooks: attribution window still open")
)

// managerConfig is the per-campaign state the policy keeps. Everything the
// registry needs to account for lives in the registry; this is policy
// business only.
type managerConfig struct {
	manager       [20]byte
	feeCollector  [20]byte
	feeBps        uint32
	uri           string
	finalizeAfter int64
	windowSecs    int64
}

// Manager is a manager-directed hook policy. One instance serves any number
// of campaigns; per-campaign configuration is decoded from the creation
// payload. All instruction payloads are JSON.
type Manager struct {
	mu        sync.RWMutex
	registry  [20]byte
	builders  campaign.BuilderRegistry
	campaigns map[campaign.CampaignID]*managerConfig
	nowFn     func() int64
}

// NewManager binds the policy to the registry address whose callbacks it
// accepts. The builder registry may be nil when code-keyed payouts are not
// used.
func NewManager(registry [20]byte, builders campaign.BuilderRegistry) *Manager {
	return &Manager{
		registry:  registry,
		builders:  builders,
		campaigns: make(map[campaign.CampaignID]*managerConfig),
		nowFn:     func() int64 { return time.Now().Unix() },
	}
}

// SetNowFunc overrides the policy clock. Intended for tests.
func (m *Manager) SetNowFunc(now func() int64) {
	if now == nil {
		m.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	m.nowFn = now
}

func (m *Manager) authorize(ctx *campaign.HookContext) (*managerConfig, error) {
	if ctx == nil || ctx.Campaign == nil {
		return nil, ErrInvalidInstruction
	}
	if ctx.Registry != m.registry {
		return nil, ErrUnauthorized
	}
	m.mu.RLock()
	cfg, ok := m.campaigns[ctx.Campaign.ID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownCampaign
	}
	if ctx.Caller != cfg.manager {
		return nil, fmt.Errorf("%w: caller %x is not the campaign manager", ErrUnauthorized, ctx.Caller)
	}
	return cfg, nil
}

type createPayload struct {
	Manager        string `json:"manager"`
	FeeCollector   string `json:"feeCollector,omitempty"`
	FeeBps         uint32 `json:"feeBps,omitempty"`
	URI            string `json:"uri,omitempty"`
	FinalizeWindow int64  `json:"finalizeWindowSecs,omitempty"`
}

type entryPayload struct {
	Address string `json:"address,omitempty"`
	Code    string `json:"code,omitempty"`
	Amount  string `json:"amount"`
}

type instructionPayload struct {
	Entries      []entryPayload `json:"entries"`
	FeeImmediate bool           `json:"feeImmediate,omitempty"`
	URI          string         `json:"uri,omitempty"`
	To           string         `json:"to,omitempty"`
	Amount       string         `json:"amount,omitempty"`
}

func parseAddress(s string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil || len(raw) != 20 {
		return addr, fmt.Errorf("%w: bad address %q", ErrInvalidInstruction, s)
	}
	copy(addr[:], raw)
	return addr, nil
}

func parseAmount(s string) (*big.Int, error) {
	amt, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok || amt.Sign() < 0 {
		return nil, fmt.Errorf("%w: bad amount %q", ErrInvalidInstruction, s)
	}
	return amt, nil
}

// CodeKey derives the recipient key for a builder/referral code.
func CodeKey(code string) campaign.RecipientKey {
	return campaign.RecipientKey(ethcrypto.Keccak256Hash([]byte(strings.TrimSpace(code))))
}

// resolveEntry turns one payload entry into a ledger key and, when resolve is
// set, a payable address. Code-keyed entries must exist in the builder
// registry; address-keyed entries resolve to themselves.
func (m *Manager) resolveEntry(entry entryPayload, resolve bool) (campaign.RecipientKey, [20]byte, *big.Int, error) {
	var zero [20]byte
	amount, err := parseAmount(entry.Amount)
	if err != nil {
		return campaign.RecipientKey{}, zero, nil, err
	}
	if entry.Code != "" {
		key := CodeKey(entry.Code)
		if m.builders == nil || !m.builders.IsRegistered(key) {
			return campaign.RecipientKey{}, zero, nil, fmt.Errorf("%w: %q", ErrUnregisteredRecipient, entry.Code)
		}
		if !resolve {
			return key, zero, amount, nil
		}
		addr, ok := m.builders.ResolveAddress(key)
		if !ok {
			return campaign.RecipientKey{}, zero, nil, fmt.Errorf("%w: %q", ErrUnregisteredRecipient, entry.Code)
		}
		return key, addr, amount, nil
	}
	addr, err := parseAddress(entry.Address)
	if err != nil {
		return campaign.RecipientKey{}, zero, nil, err
	}
	return campaign.AddressKey(addr), addr, amount, nil
}

func decodeInstruction(data []byte) (*instructionPayload, error) {
	payload := new(instructionPayload)
	if len(data) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInstruction, err)
	}
	return payload, nil
}

// feeFor computes the flat policy fee over a payout total. The fee is keyed
// and addressed to the configured collector.
func (cfg *managerConfig) feeFor(total *big.Int, immediate bool) []campaign.FeeInstruction {
	if cfg.feeBps == 0 || total.Sign() == 0 {
		return nil
	}
	fee := new(big.Int).Mul(total, new(big.Int).SetUint64(uint64(cfg.feeBps)))
	fee.Div(fee, big.NewInt(10_000))
	if fee.Sign() == 0 {
		return nil
	}
	return []campaign.FeeInstruction{{
		Key:       campaign.AddressKey(cfg.feeCollector),
		To:        cfg.feeCollector,
		Amount:    fee,
		Immediate: immediate,
	}}
}

func (m *Manager) OnCreate(ctx *campaign.HookContext) error {
	if ctx == nil || ctx.Campaign == nil {
		return ErrInvalidInstruction
	}
	if ctx.Registry != m.registry {
		return ErrUnauthorized
	}
	payload := new(createPayload)
	if err := json.Unmarshal(ctx.Data, payload); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInstruction, err)
	}
	manager, err := parseAddress(payload.Manager)
	if err != nil {
		return err
	}
	if payload.FeeBps > 10_000 {
		return fmt.Errorf("%w: %d", ErrInvalidFeeBps, payload.FeeBps)
	}
	collector := manager
	if payload.FeeCollector != "" {
		collector, err = parseAddress(payload.FeeCollector)
		if err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.campaigns[ctx.Campaign.ID] = &managerConfig{
		manager:      manager,
		feeCollector: collector,
		feeBps:       payload.FeeBps,
		uri:          payload.URI,
		windowSecs:   payload.FinalizeWindow,
	}
	m.mu.Unlock()
	return nil
}

// OnUpdateStatus lets only the manager drive the lifecycle. Entering
// FINALIZING opens the attribution window; FINALIZED is refused until the
// window deadline has passed.
func (m *Manager) OnUpdateStatus(ctx *campaign.HookContext, from, to campaign.Status) error {
	cfg, err := m.authorize(ctx)
	if err != nil {
		return err
	}
	now := m.nowFn()
	switch to {
	case campaign.StatusFinalizing:
		m.mu.Lock()
		cfg.finalizeAfter = now + cfg.windowSecs
		m.mu.Unlock()
	case campaign.StatusFinalized:
		m.mu.RLock()
		deadline := cfg.finalizeAfter
		m.mu.RUnlock()
		if from == campaign.StatusFinalizing && now < deadline {
			return fmt.Errorf("%w: %d seconds remaining", ErrFinalizeWindowOpen, deadline-now)
		}
	}
	return nil
}

func (m *Manager) OnUpdateMetadata(ctx *campaign.HookContext) error {
	cfg, err := m.authorize(ctx)
	if err != nil {
		return err
	}
	payload, err := decodeInstruction(ctx.Data)
	if err != nil {
		return err
	}
	if payload.URI != "" {
		m.mu.Lock()
		cfg.uri = payload.URI
		m.mu.Unlock()
	}
	return nil
}

func (m *Manager) OnAllocate(ctx *campaign.HookContext) ([]campaign.PayoutInstruction, []campaign.FeeInstruction, error) {
	cfg, err := m.authorize(ctx)
	if err != nil {
		return nil, nil, err
	}
	payload, err := decodeInstruction(ctx.Data)
	if err != nil {
		return nil, nil, err
	}
	payouts := make([]campaign.PayoutInstruction, 0, len(payload.Entries))
	total := big.NewInt(0)
	for _, entry := range payload.Entries {
		key, _, amount, err := m.resolveEntry(entry, false)
		if err != nil {
			return nil, nil, err
		}
		total.Add(total, amount)
		payouts = append(payouts, campaign.PayoutInstruction{Key: key, Amount: amount})
	}
	return payouts, cfg.feeFor(total, false), nil
}

func (m *Manager) OnDeallocate(ctx *campaign.HookContext) ([]campaign.PayoutInstruction, []campaign.FeeInstruction, error) {
	_, err := m.authorize(ctx)
	if err != nil {
		return nil, nil, err
	}
	payload, err := decodeInstruction(ctx.Data)
	if err != nil {
		return nil, nil, err
	}
	payouts := make([]campaign.PayoutInstruction, 0, len(payload.Entries))
	for _, entry := range payload.Entries {
		key, _, amount, err := m.resolveEntry(entry, false)
		if err != nil {
			return nil, nil, err
		}
		payouts = append(payouts, campaign.PayoutInstruction{Key: key, Amount: amount})
	}
	return payouts, nil, nil
}

// OnDistribute resolves each ledger key to a payable address: embedded
// addresses resolve to themselves, builder codes through the registry.
func (m *Manager) OnDistribute(ctx *campaign.HookContext) ([]campaign.PayoutInstruction, error) {
	_, err := m.authorize(ctx)
	if err != nil {
		return nil, err
	}
	payload, err := decodeInstruction(ctx.Data)
	if err != nil {
		return nil, err
	}
	payouts := make([]campaign.PayoutInstruction, 0, len(payload.Entries))
	for _, entry := range payload.Entries {
		key, to, amount, err := m.resolveEntry(entry, true)
		if err != nil {
			return nil, err
		}
		payouts = append(payouts, campaign.PayoutInstruction{Key: key, To: to, Amount: amount})
	}
	return payouts, nil
}

func (m *Manager) OnSend(ctx *campaign.HookContext) ([]campaign.PayoutInstruction, []campaign.FeeInstruction, error) {
	cfg, err := m.authorize(ctx)
	if err != nil {
		return nil, nil, err
	}
	payload, err := decodeInstruction(ctx.Data)
	if err != nil {
		return nil, nil, err
	}
	payouts := make([]campaign.PayoutInstruction, 0, len(payload.Entries))
	total := big.NewInt(0)
	for _, entry := range payload.Entries {
		key, to, amount, err := m.resolveEntry(entry, true)
		if err != nil {
			return nil, nil, err
		}
		total.Add(total, amount)
		payouts = append(payouts, campaign.PayoutInstruction{Key: key, To: to, Amount: amount})
	}
	return payouts, cfg.feeFor(total, payload.FeeImmediate), nil
}

func (m *Manager) OnDistributeFees(ctx *campaign.HookContext) ([]campaign.FeeInstruction, error) {
	_, err := m.authorize(ctx)
	if err != nil {
		return nil, err
	}
	payload, err := decodeInstruction(ctx.Data)
	if err != nil {
		return nil, err
	}
	fees := make([]campaign.FeeInstruction, 0, len(payload.Entries))
	for _, entry := range payload.Entries {
		key, to, amount, err := m.resolveEntry(entry, true)
		if err != nil {
			return nil, err
		}
		fees = append(fees, campaign.FeeInstruction{Key: key, To: to, Amount: amount})
	}
	return fees, nil
}

func (m *Manager) OnWithdrawFunds(ctx *campaign.HookContext) (campaign.WithdrawInstruction, error) {
	_, err := m.authorize(ctx)
	if err != nil {
		return campaign.WithdrawInstruction{}, err
	}
	payload, err := decodeInstruction(ctx.Data)
	if err != nil {
		return campaign.WithdrawInstruction{}, err
	}
	to, err := parseAddress(payload.To)
	if err != nil {
		return campaign.WithdrawInstruction{}, err
	}
	amount, err := parseAmount(payload.Amount)
	if err != nil {
		return campaign.WithdrawInstruction{}, err
	}
	return campaign.WithdrawInstruction{To: to, Amount: amount}, nil
}

// CampaignURI returns the URI recorded at creation or via metadata updates.
func (m *Manager) CampaignURI(id campaign.CampaignID) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.campaigns[id]
	if !ok {
		return ""
	}
	return cfg.uri
}
