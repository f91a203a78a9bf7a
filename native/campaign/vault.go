package campaign

import "math/big"

// vaultState is the slice of engine state a vault touches: its own balances
// plus the outbound account credit that completes a transfer.
type vaultState interface {
	VaultBalance(id CampaignID, asset AssetID) *big.Int
	VaultCredit(id CampaignID, asset AssetID, amount *big.Int) error
	VaultDebit(id CampaignID, asset AssetID, amount *big.Int) error
	CreditAccount(asset AssetID, addr [20]byte, amount *big.Int) error
}

// Vault holds one campaign's funds. It carries no business logic: the only
// way value leaves it is SendTokens, and only the controlling registry may
// invoke that.
type Vault struct {
	campaign   CampaignID
	address    [20]byte
	controller [20]byte
	state      vaultState
}

// NewVault binds a vault to its campaign, controller and state backend.
func NewVault(id CampaignID, address, controller [20]byte, state vaultState) *Vault {
	return &Vault{campaign: id, address: address, controller: controller, state: state}
}

// Address returns the vault's deterministically derived address.
func (v *Vault) Address() [20]byte { return v.address }

// Balance returns the vault's holdings of the given asset.
func (v *Vault) Balance(asset AssetID) *big.Int {
	if v == nil || v.state == nil {
		return big.NewInt(0)
	}
	return cloneBigInt(v.state.VaultBalance(v.campaign, asset))
}

// SendTokens moves amount of asset from the vault to recipient. Transfer
// failure is reported as false, never as an error: native-currency
// recipients may reject a value transfer and non-reverting tokens may report
// failure, and in both cases the registry needs to branch into fallback
// accounting rather than abort. The only errors are authorization and
// configuration faults.
func (v *Vault) SendTokens(caller [20]byte, asset AssetID, recipient [20]byte, amount *big.Int) (bool, error) {
	if v == nil || v.state == nil {
		return false, ErrNilState
	}
	if caller != v.controller {
		return false, ErrUnauthorized
	}
	amt := cloneBigInt(amount)
	if amt.Sign() < 0 {
		return false, ErrNegativeAmount
	}
	if amt.Sign() == 0 {
		return true, nil
	}
	if v.state.VaultBalance(v.campaign, asset).Cmp(amt) < 0 {
		return false, nil
	}
	if err := v.state.VaultDebit(v.campaign, asset, amt); err != nil {
		return false, nil
	}
	if err := v.state.CreditAccount(asset, recipient, amt); err != nil {
		// Restore the debited balance so a rejected transfer leaves the
		// vault untouched.
		if err := v.state.VaultCredit(v.campaign, asset, amt); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}
