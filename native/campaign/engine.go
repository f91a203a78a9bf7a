package campaign

import (
	"fmt"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"rewardnet/core/events"
	"rewardnet/core/types"
	nativecommon "rewardnet/native/common"
)

const moduleName = "campaign"

// RegistryAddress is the module address the registry acts under. Vaults
// accept transfer instructions from this address only, and policy modules
// can verify callbacks originate from it.
var RegistryAddress = func() [20]byte {
	hash := ethcrypto.Keccak256([]byte("campaign/registry"))
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}()

// Engine is the campaign registry: it owns campaign identity, the lifecycle
// state machine and all allocation bookkeeping, creates vaults
// deterministically, and delegates authorization and amount computation to
// the campaign's hook policy. Policies never mutate ledger state; the engine
// alone writes counters and enforces solvency.
type Engine struct {
	state    engineState
	emitter  events.Emitter
	pauses   nativecommon.PauseView
	policies map[[20]byte]HookPolicy
	nowFn    func() int64
}

// NewEngine creates a registry engine with a no-op emitter. Callers wire the
// state backend via SetState and register policy modules before use.
func NewEngine() *Engine {
	return &Engine{
		emitter:  events.NoopEmitter{},
		policies: make(map[[20]byte]HookPolicy),
		nowFn:    func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetPauses wires the module pause view consulted by mutating operations.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// RegisterPolicy makes a hook policy addressable for campaign creation.
// Registering the same address twice replaces the module.
func (e *Engine) RegisterPolicy(addr [20]byte, policy HookPolicy) {
	if e == nil || policy == nil {
		return
	}
	e.policies[addr] = policy
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) guard() error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	return nativecommon.Guard(e.pauses, moduleName)
}

func (e *Engine) loadCampaign(id CampaignID) (*Campaign, error) {
	c, ok := e.state.CampaignGet(id)
	if !ok {
		return nil, ErrCampaignNotFound
	}
	return c, nil
}

func (e *Engine) policyFor(c *Campaign) (HookPolicy, error) {
	policy, ok := e.policies[c.Policy]
	if !ok {
		return nil, fmt.Errorf("%w: %x", ErrUnknownPolicy, c.Policy)
	}
	return policy, nil
}

func (e *Engine) hookContext(caller [20]byte, c *Campaign, asset AssetID, data []byte) *HookContext {
	return &HookContext{
		Registry: RegistryAddress,
		Caller:   caller,
		Campaign: c.Clone(),
		Asset:    asset,
		Data:     data,
	}
}

func (e *Engine) vault(c *Campaign) *Vault {
	return NewVault(c.ID, c.Vault, RegistryAddress, e.state)
}

// flush emits buffered events after an operation commits. Events never fire
// for an aborted call.
func (e *Engine) flush(pending []*types.Event) {
	if e.emitter == nil {
		return
	}
	for _, evt := range pending {
		if evt != nil {
			e.emitter.Emit(campaignEvent{evt: evt})
		}
	}
}

func requireSpendable(c *Campaign) error {
	if c.Status != StatusActive && c.Status != StatusFinalizing {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, c.Status)
	}
	return nil
}

// checkAmount screens an instruction amount. Zero amounts are silent no-ops
// across every operation; the boolean tells the caller to skip the entry.
func checkAmount(amount *big.Int) (skip bool, err error) {
	if amount == nil {
		return true, nil
	}
	if amount.Sign() < 0 {
		return false, ErrNegativeAmount
	}
	return amount.Sign() == 0, nil
}

// Create derives the campaign identity from (policy, nonce, payload),
// invokes the policy's creation callback and persists the campaign with
// status INACTIVE. Creation is idempotent: repeating the same derivation
// inputs returns the existing campaign without re-running the callback.
func (e *Engine) Create(caller [20]byte, policyAddr [20]byte, nonce [32]byte, payload []byte) (*Campaign, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	policy, ok := e.policies[policyAddr]
	if !ok {
		return nil, fmt.Errorf("%w: %x", ErrUnknownPolicy, policyAddr)
	}
	id := DeriveCampaignID(policyAddr, nonce, payload)
	if existing, ok := e.state.CampaignGet(id); ok {
		return existing.Clone(), nil
	}
	c := &Campaign{
		ID:        id,
		Policy:    policyAddr,
		Vault:     DeriveVaultAddress(id),
		Status:    StatusInactive,
		CreatedAt: e.now(),
	}
	if err := policy.OnCreate(e.hookContext(caller, c, NativeAsset, payload)); err != nil {
		return nil, err
	}
	if err := e.state.CampaignPut(c); err != nil {
		return nil, err
	}
	e.flush([]*types.Event{NewCreatedEvent(c)})
	return c.Clone(), nil
}

// UpdateStatus advances the campaign lifecycle. FINALIZED is terminal,
// FINALIZING may only advance to FINALIZED, and no-op transitions are
// rejected. The policy callback may veto any otherwise-legal transition.
func (e *Engine) UpdateStatus(caller [20]byte, id CampaignID, next Status, data []byte) error {
	if err := e.guard(); err != nil {
		return err
	}
	c, err := e.loadCampaign(id)
	if err != nil {
		return err
	}
	policy, err := e.policyFor(c)
	if err != nil {
		return err
	}
	if !c.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, next)
	}
	if err := policy.OnUpdateStatus(e.hookContext(caller, c, NativeAsset, data), c.Status, next); err != nil {
		return err
	}
	from := c.Status
	c.Status = next
	if err := e.state.CampaignPut(c); err != nil {
		return err
	}
	e.flush([]*types.Event{NewStatusUpdatedEvent(id, from, next)})
	return nil
}

// UpdateMetadata forwards a metadata change to the policy and records the
// change plus the resulting content URI in the event log. Campaign metadata
// itself is policy-side state; the registry stores none of it.
func (e *Engine) UpdateMetadata(caller [20]byte, id CampaignID, data []byte) error {
	if err := e.guard(); err != nil {
		return err
	}
	c, err := e.loadCampaign(id)
	if err != nil {
		return err
	}
	if c.Status == StatusFinalized {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, c.Status)
	}
	policy, err := e.policyFor(c)
	if err != nil {
		return err
	}
	if err := policy.OnUpdateMetadata(e.hookContext(caller, c, NativeAsset, data)); err != nil {
		return err
	}
	var dataHash [32]byte
	copy(dataHash[:], ethcrypto.Keccak256(data))
	e.flush([]*types.Event{
		NewMetadataUpdatedEvent(id, dataHash),
		NewURIUpdatedEvent(id, policy.CampaignURI(id)),
	})
	return nil
}

// Fund credits the campaign vault. Deposits are accepted in any status:
// extra cover never endangers solvency.
func (e *Engine) Fund(caller [20]byte, id CampaignID, asset AssetID, amount *big.Int) error {
	if err := e.guard(); err != nil {
		return err
	}
	if _, err := e.loadCampaign(id); err != nil {
		return err
	}
	amt := cloneBigInt(amount)
	if amt.Sign() < 0 {
		return ErrNegativeAmount
	}
	if amt.Sign() == 0 {
		return ErrZeroAmount
	}
	if err := e.state.VaultCredit(id, asset, amt); err != nil {
		return err
	}
	e.flush([]*types.Event{NewFundedEvent(id, asset, caller, amt)})
	return nil
}

// Allocate books policy-computed payout and fee promises into the ledger.
// No value moves; counters rise and the post-state must remain solvent.
func (e *Engine) Allocate(caller [20]byte, id CampaignID, asset AssetID, data []byte) error {
	if err := e.guard(); err != nil {
		return err
	}
	c, err := e.loadCampaign(id)
	if err != nil {
		return err
	}
	if err := requireSpendable(c); err != nil {
		return err
	}
	policy, err := e.policyFor(c)
	if err != nil {
		return err
	}
	payouts, fees, err := policy.OnAllocate(e.hookContext(caller, c, asset, data))
	if err != nil {
		return err
	}
	snap := e.state.Snapshot()
	pending := make([]*types.Event, 0, len(payouts)+len(fees))
	for _, p := range payouts {
		skip, err := checkAmount(p.Amount)
		if err != nil {
			e.state.RevertToSnapshot(snap)
			return err
		}
		if skip {
			continue
		}
		if err := e.addPayoutAllocated(id, asset, p.Key, p.Amount); err != nil {
			e.state.RevertToSnapshot(snap)
			return err
		}
		pending = append(pending, NewPayoutAllocatedEvent(id, asset, p.Key, p.Amount))
	}
	for _, f := range fees {
		skip, err := checkAmount(f.Amount)
		if err != nil {
			e.state.RevertToSnapshot(snap)
			return err
		}
		if skip {
			continue
		}
		if err := e.addFeeAllocated(id, asset, f.Key, f.Amount); err != nil {
			e.state.RevertToSnapshot(snap)
			return err
		}
		pending = append(pending, NewFeeAllocatedEvent(id, asset, f.Key, f.Amount))
	}
	if err := e.checkSolvency(id, asset, c.Status); err != nil {
		e.state.RevertToSnapshot(snap)
		return err
	}
	e.flush(pending)
	return nil
}

// Deallocate reverses ledger promises. Counters only shrink, so the call
// cannot endanger solvency and no post-check is needed.
func (e *Engine) Deallocate(caller [20]byte, id CampaignID, asset AssetID, data []byte) error {
	if err := e.guard(); err != nil {
		return err
	}
	c, err := e.loadCampaign(id)
	if err != nil {
		return err
	}
	if err := requireSpendable(c); err != nil {
		return err
	}
	policy, err := e.policyFor(c)
	if err != nil {
		return err
	}
	payouts, fees, err := policy.OnDeallocate(e.hookContext(caller, c, asset, data))
	if err != nil {
		return err
	}
	snap := e.state.Snapshot()
	pending := make([]*types.Event, 0, len(payouts)+len(fees))
	for _, p := range payouts {
		skip, err := checkAmount(p.Amount)
		if err != nil {
			e.state.RevertToSnapshot(snap)
			return err
		}
		if skip {
			continue
		}
		if err := e.subPayoutAllocated(id, asset, p.Key, p.Amount); err != nil {
			e.state.RevertToSnapshot(snap)
			return err
		}
		pending = append(pending, NewDeallocatedEvent(id, asset, p.Key, p.Amount, "payout"))
	}
	for _, f := range fees {
		skip, err := checkAmount(f.Amount)
		if err != nil {
			e.state.RevertToSnapshot(snap)
			return err
		}
		if skip {
			continue
		}
		if err := e.subFeeAllocated(id, asset, f.Key, f.Amount); err != nil {
			e.state.RevertToSnapshot(snap)
			return err
		}
		pending = append(pending, NewDeallocatedEvent(id, asset, f.Key, f.Amount, "fee"))
	}
	e.flush(pending)
	return nil
}

// Distribute converts existing allocations into transfers. Every instruction
// must be backed by an allocation on its key and every transfer must land; a
// single failure aborts the whole call.
func (e *Engine) Distribute(caller [20]byte, id CampaignID, asset AssetID, data []byte) error {
	if err := e.guard(); err != nil {
		return err
	}
	c, err := e.loadCampaign(id)
	if err != nil {
		return err
	}
	if err := requireSpendable(c); err != nil {
		return err
	}
	policy, err := e.policyFor(c)
	if err != nil {
		return err
	}
	payouts, err := policy.OnDistribute(e.hookContext(caller, c, asset, data))
	if err != nil {
		return err
	}
	vault := e.vault(c)
	snap := e.state.Snapshot()
	pending := make([]*types.Event, 0, len(payouts))
	for _, p := range payouts {
		skip, err := checkAmount(p.Amount)
		if err != nil {
			e.state.RevertToSnapshot(snap)
			return err
		}
		if skip {
			continue
		}
		if err := e.subPayoutAllocated(id, asset, p.Key, p.Amount); err != nil {
			e.state.RevertToSnapshot(snap)
			return err
		}
		ok, err := vault.SendTokens(RegistryAddress, asset, p.To, p.Amount)
		if err != nil {
			e.state.RevertToSnapshot(snap)
			return err
		}
		if !ok {
			e.state.RevertToSnapshot(snap)
			return fmt.Errorf("%w: payout to %x", ErrTransferFailed, p.To)
		}
		pending = append(pending, NewPayoutDistributedEvent(id, asset, p.Key, p.To, p.Amount))
	}
	if err := e.checkSolvency(id, asset, c.Status); err != nil {
		e.state.RevertToSnapshot(snap)
		return err
	}
	e.flush(pending)
	return nil
}

// Send pays out immediately without a prior allocation. Payout transfers
// must land; fee instructions flagged immediate are attempted and fall back
// to a ledger reservation when the recipient rejects them, with a distinct
// failure event. Unflagged fees are reserved outright.
func (e *Engine) Send(caller [20]byte, id CampaignID, asset AssetID, data []byte) error {
	if err := e.guard(); err != nil {
		return err
	}
	c, err := e.loadCampaign(id)
	if err != nil {
		return err
	}
	if err := requireSpendable(c); err != nil {
		return err
	}
	policy, err := e.policyFor(c)
	if err != nil {
		return err
	}
	if err := e.checkSolvency(id, asset, c.Status); err != nil {
		return err
	}
	payouts, fees, err := policy.OnSend(e.hookContext(caller, c, asset, data))
	if err != nil {
		return err
	}
	vault := e.vault(c)
	snap := e.state.Snapshot()
	pending := make([]*types.Event, 0, len(payouts)+len(fees))
	for _, p := range payouts {
		skip, err := checkAmount(p.Amount)
		if err != nil {
			e.state.RevertToSnapshot(snap)
			return err
		}
		if skip {
			continue
		}
		ok, err := vault.SendTokens(RegistryAddress, asset, p.To, p.Amount)
		if err != nil {
			e.state.RevertToSnapshot(snap)
			return err
		}
		if !ok {
			e.state.RevertToSnapshot(snap)
			return fmt.Errorf("%w: payout to %x", ErrTransferFailed, p.To)
		}
		pending = append(pending, NewPayoutSentEvent(id, asset, p.Key, p.To, p.Amount))
	}
	for _, f := range fees {
		skip, err := checkAmount(f.Amount)
		if err != nil {
			e.state.RevertToSnapshot(snap)
			return err
		}
		if skip {
			continue
		}
		if f.Immediate {
			ok, err := vault.SendTokens(RegistryAddress, asset, f.To, f.Amount)
			if err != nil {
				e.state.RevertToSnapshot(snap)
				return err
			}
			if ok {
				pending = append(pending, NewFeeSentEvent(id, asset, f.Key, f.To, f.Amount))
				continue
			}
			if err := e.addFeeAllocated(id, asset, f.Key, f.Amount); err != nil {
				e.state.RevertToSnapshot(snap)
				return err
			}
			pending = append(pending, NewFeeTransferFailedEvent(id, asset, f.Key, f.To, f.Amount))
			continue
		}
		if err := e.addFeeAllocated(id, asset, f.Key, f.Amount); err != nil {
			e.state.RevertToSnapshot(snap)
			return err
		}
		pending = append(pending, NewFeeAllocatedEvent(id, asset, f.Key, f.Amount))
	}
	if err := e.checkSolvency(id, asset, c.Status); err != nil {
		e.state.RevertToSnapshot(snap)
		return err
	}
	e.flush(pending)
	return nil
}

// DistributeFees pays out previously reserved fees. Unlike Distribute, a
// rejected transfer does not abort the call: the reservation is left
// untouched and a failure event fires so the fee can be retried later.
func (e *Engine) DistributeFees(caller [20]byte, id CampaignID, asset AssetID, data []byte) error {
	if err := e.guard(); err != nil {
		return err
	}
	c, err := e.loadCampaign(id)
	if err != nil {
		return err
	}
	policy, err := e.policyFor(c)
	if err != nil {
		return err
	}
	fees, err := policy.OnDistributeFees(e.hookContext(caller, c, asset, data))
	if err != nil {
		return err
	}
	vault := e.vault(c)
	snap := e.state.Snapshot()
	pending := make([]*types.Event, 0, len(fees))
	for _, f := range fees {
		skip, err := checkAmount(f.Amount)
		if err != nil {
			e.state.RevertToSnapshot(snap)
			return err
		}
		if skip {
			continue
		}
		entry := e.state.Snapshot()
		if err := e.subFeeAllocated(id, asset, f.Key, f.Amount); err != nil {
			e.state.RevertToSnapshot(snap)
			return err
		}
		ok, err := vault.SendTokens(RegistryAddress, asset, f.To, f.Amount)
		if err != nil {
			e.state.RevertToSnapshot(snap)
			return err
		}
		if !ok {
			e.state.RevertToSnapshot(entry)
			pending = append(pending, NewFeeTransferFailedEvent(id, asset, f.Key, f.To, f.Amount))
			continue
		}
		pending = append(pending, NewFeesDistributedEvent(id, asset, f.Key, f.To, f.Amount))
	}
	if err := e.checkSolvency(id, asset, c.Status); err != nil {
		e.state.RevertToSnapshot(snap)
		return err
	}
	e.flush(pending)
	return nil
}

// WithdrawFunds releases uncommitted vault funds to a policy-chosen
// recipient. While a campaign is live the withdrawal must leave every
// allocation covered; once FINALIZED only outstanding fees constrain it.
func (e *Engine) WithdrawFunds(caller [20]byte, id CampaignID, asset AssetID, data []byte) error {
	if err := e.guard(); err != nil {
		return err
	}
	c, err := e.loadCampaign(id)
	if err != nil {
		return err
	}
	policy, err := e.policyFor(c)
	if err != nil {
		return err
	}
	instr, err := policy.OnWithdrawFunds(e.hookContext(caller, c, asset, data))
	if err != nil {
		return err
	}
	amt := cloneBigInt(instr.Amount)
	if amt.Sign() < 0 {
		return ErrNegativeAmount
	}
	if amt.Sign() == 0 {
		return ErrZeroAmount
	}
	payouts, fees := e.state.AllocatedTotals(id, asset)
	required := new(big.Int).Set(fees)
	if c.Status != StatusFinalized {
		required.Add(required, payouts)
	}
	available := new(big.Int).Sub(e.state.VaultBalance(id, asset), required)
	if available.Cmp(amt) < 0 {
		return fmt.Errorf("%w: %s withdrawable, %s requested", ErrInsufficientBalance, available, amt)
	}
	vault := e.vault(c)
	snap := e.state.Snapshot()
	ok, err := vault.SendTokens(RegistryAddress, asset, instr.To, amt)
	if err != nil {
		e.state.RevertToSnapshot(snap)
		return err
	}
	if !ok {
		e.state.RevertToSnapshot(snap)
		return fmt.Errorf("%w: withdrawal to %x", ErrTransferFailed, instr.To)
	}
	if err := e.checkSolvency(id, asset, c.Status); err != nil {
		e.state.RevertToSnapshot(snap)
		return err
	}
	e.flush([]*types.Event{NewFundsWithdrawnEvent(id, asset, instr.To, amt)})
	return nil
}

// HasCampaign reports whether the campaign exists.
func (e *Engine) HasCampaign(id CampaignID) bool {
	if e == nil || e.state == nil {
		return false
	}
	_, ok := e.state.CampaignGet(id)
	return ok
}

// GetCampaign returns a copy of the campaign record.
func (e *Engine) GetCampaign(id CampaignID) (*Campaign, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	c, err := e.loadCampaign(id)
	if err != nil {
		return nil, err
	}
	return c.Clone(), nil
}

// CampaignStatus returns the campaign's lifecycle status.
func (e *Engine) CampaignStatus(id CampaignID) (Status, error) {
	c, err := e.GetCampaign(id)
	if err != nil {
		return 0, err
	}
	return c.Status, nil
}

// CampaignURI returns the policy-rendered metadata URI for the campaign.
func (e *Engine) CampaignURI(id CampaignID) (string, error) {
	if e == nil || e.state == nil {
		return "", ErrNilState
	}
	c, err := e.loadCampaign(id)
	if err != nil {
		return "", err
	}
	policy, err := e.policyFor(c)
	if err != nil {
		return "", err
	}
	return policy.CampaignURI(id), nil
}

// AllocatedTotals returns the aggregate payout and fee allocations for the
// campaign and asset.
func (e *Engine) AllocatedTotals(id CampaignID, asset AssetID) (payouts, fees *big.Int, err error) {
	if e == nil || e.state == nil {
		return nil, nil, ErrNilState
	}
	if _, err := e.loadCampaign(id); err != nil {
		return nil, nil, err
	}
	p, f := e.state.AllocatedTotals(id, asset)
	return cloneBigInt(p), cloneBigInt(f), nil
}

// PayoutAllocated returns the outstanding payout allocation for one key.
func (e *Engine) PayoutAllocated(id CampaignID, asset AssetID, key RecipientKey) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if _, err := e.loadCampaign(id); err != nil {
		return nil, err
	}
	return cloneBigInt(e.state.PayoutAllocated(id, asset, key)), nil
}

// FeeAllocated returns the outstanding fee allocation for one key.
func (e *Engine) FeeAllocated(id CampaignID, asset AssetID, key RecipientKey) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if _, err := e.loadCampaign(id); err != nil {
		return nil, err
	}
	return cloneBigInt(e.state.FeeAllocated(id, asset, key)), nil
}

// VaultBalance returns the campaign vault's holdings of the asset.
func (e *Engine) VaultBalance(id CampaignID, asset AssetID) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if _, err := e.loadCampaign(id); err != nil {
		return nil, err
	}
	return cloneBigInt(e.state.VaultBalance(id, asset)), nil
}
