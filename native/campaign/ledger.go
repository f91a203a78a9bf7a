package campaign

import (
	"fmt"
	"math/big"
)

// engineState is the persistence surface the registry mutates. The registry
// is the sole writer: policies and external callers reach this state only
// through the engine's public operations and accessors.
//
// Snapshot/RevertToSnapshot provide journaled rollback so a fatal error in
// the middle of a multi-step operation undoes every mutation the operation
// performed. The contract mirrors the go-ethereum StateDB revision scheme.
type engineState interface {
	CampaignPut(*Campaign) error
	CampaignGet(id CampaignID) (*Campaign, bool)

	PayoutAllocated(id CampaignID, asset AssetID, key RecipientKey) *big.Int
	SetPayoutAllocated(id CampaignID, asset AssetID, key RecipientKey, amount *big.Int) error
	FeeAllocated(id CampaignID, asset AssetID, key RecipientKey) *big.Int
	SetFeeAllocated(id CampaignID, asset AssetID, key RecipientKey, amount *big.Int) error
	AllocatedTotals(id CampaignID, asset AssetID) (payouts, fees *big.Int)
	SetAllocatedTotals(id CampaignID, asset AssetID, payouts, fees *big.Int) error

	VaultBalance(id CampaignID, asset AssetID) *big.Int
	VaultCredit(id CampaignID, asset AssetID, amount *big.Int) error
	VaultDebit(id CampaignID, asset AssetID, amount *big.Int) error
	CreditAccount(asset AssetID, addr [20]byte, amount *big.Int) error

	Snapshot() int
	RevertToSnapshot(int)
}

func (e *Engine) addPayoutAllocated(id CampaignID, asset AssetID, key RecipientKey, amount *big.Int) error {
	current := e.state.PayoutAllocated(id, asset, key)
	if err := e.state.SetPayoutAllocated(id, asset, key, new(big.Int).Add(current, amount)); err != nil {
		return err
	}
	payouts, fees := e.state.AllocatedTotals(id, asset)
	return e.state.SetAllocatedTotals(id, asset, new(big.Int).Add(payouts, amount), fees)
}

func (e *Engine) subPayoutAllocated(id CampaignID, asset AssetID, key RecipientKey, amount *big.Int) error {
	current := e.state.PayoutAllocated(id, asset, key)
	if current.Cmp(amount) < 0 {
		return fmt.Errorf("%w: payout key has %s, need %s", ErrInsufficientAllocated, current, amount)
	}
	if err := e.state.SetPayoutAllocated(id, asset, key, new(big.Int).Sub(current, amount)); err != nil {
		return err
	}
	payouts, fees := e.state.AllocatedTotals(id, asset)
	return e.state.SetAllocatedTotals(id, asset, new(big.Int).Sub(payouts, amount), fees)
}

func (e *Engine) addFeeAllocated(id CampaignID, asset AssetID, key RecipientKey, amount *big.Int) error {
	current := e.state.FeeAllocated(id, asset, key)
	if err := e.state.SetFeeAllocated(id, asset, key, new(big.Int).Add(current, amount)); err != nil {
		return err
	}
	payouts, fees := e.state.AllocatedTotals(id, asset)
	return e.state.SetAllocatedTotals(id, asset, payouts, new(big.Int).Add(fees, amount))
}

func (e *Engine) subFeeAllocated(id CampaignID, asset AssetID, key RecipientKey, amount *big.Int) error {
	current := e.state.FeeAllocated(id, asset, key)
	if current.Cmp(amount) < 0 {
		return fmt.Errorf("%w: fee key has %s, need %s", ErrInsufficientAllocated, current, amount)
	}
	if err := e.state.SetFeeAllocated(id, asset, key, new(big.Int).Sub(current, amount)); err != nil {
		return err
	}
	payouts, fees := e.state.AllocatedTotals(id, asset)
	return e.state.SetAllocatedTotals(id, asset, payouts, new(big.Int).Sub(fees, amount))
}

// checkSolvency asserts that the campaign's vault covers every outstanding
// allocation for the asset. Once a campaign is FINALIZED the unclaimed
// payout capacity becomes withdrawable, so only fees must remain covered.
func (e *Engine) checkSolvency(id CampaignID, asset AssetID, status Status) error {
	payouts, fees := e.state.AllocatedTotals(id, asset)
	required := new(big.Int).Set(fees)
	if status != StatusFinalized {
		required.Add(required, payouts)
	}
	balance := e.state.VaultBalance(id, asset)
	if balance.Cmp(required) < 0 {
		return fmt.Errorf("%w: vault holds %s, allocations require %s", ErrInsufficientBalance, balance, required)
	}
	return nil
}
