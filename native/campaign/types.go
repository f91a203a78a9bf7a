package campaign

import (
	"encoding/hex"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// CampaignID uniquely identifies a campaign. It is derived deterministically
// from the policy module, a caller-chosen nonce and the creation payload, so
// callers can predict the identifier before the campaign exists.
type CampaignID [32]byte

// AssetID identifies the asset a ledger entry or transfer is denominated in.
// The zero value is the native currency sentinel; any other value is the
// address of a fungible token contract.
type AssetID [20]byte

// NativeAsset denotes the network's native currency.
var NativeAsset = AssetID{}

// IsNative reports whether the asset is the native currency sentinel.
func (a AssetID) IsNative() bool { return a == NativeAsset }

// String renders the asset for events and logs.
func (a AssetID) String() string {
	if a.IsNative() {
		return "native"
	}
	return "0x" + hex.EncodeToString(a[:])
}

// RecipientKey is the opaque fixed-width identifier ledger entries are keyed
// by. It is not necessarily a payable address: policy modules may key
// allocations by deferred-resolution identities such as builder codes and
// resolve them to addresses at distribution time.
type RecipientKey [32]byte

// AddressKey wraps a payable address in the recipient-key space. The address
// occupies the low 20 bytes; the remainder stays zero.
func AddressKey(addr [20]byte) RecipientKey {
	var key RecipientKey
	copy(key[12:], addr[:])
	return key
}

// Status models the campaign lifecycle.
type Status uint8

const (
	StatusInactive Status = iota
	StatusActive
	StatusFinalizing
	StatusFinalized
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusInactive, StatusActive, StatusFinalizing, StatusFinalized:
		return true
	default:
		return false
	}
}

// String implements fmt.Stringer for events and errors.
func (s Status) String() string {
	switch s {
	case StatusInactive:
		return "inactive"
	case StatusActive:
		return "active"
	case StatusFinalizing:
		return "finalizing"
	case StatusFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// CanTransition reports whether the state machine permits moving from s to
// next. FINALIZED is terminal and FINALIZING may only advance to FINALIZED;
// every other non-trivial transition is allowed subject to policy approval.
func (s Status) CanTransition(next Status) bool {
	if !s.Valid() || !next.Valid() || s == next {
		return false
	}
	switch s {
	case StatusFinalized:
		return false
	case StatusFinalizing:
		return next == StatusFinalized
	default:
		return true
	}
}

// Campaign holds the immutable identity and mutable lifecycle state of one
// reward campaign. Funds live in the campaign's vault; allocation counters
// live in the registry's ledger.
type Campaign struct {
	ID        CampaignID
	Policy    [20]byte
	Vault     [20]byte
	Status    Status
	CreatedAt int64
}

// Clone returns a deep copy so callers can mutate the result without
// affecting the stored instance.
func (c *Campaign) Clone() *Campaign {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// PayoutInstruction is a single payout computed by a hook policy. Key is the
// ledger identity the amount is booked under; To is the resolved payable
// address for operations that move value immediately (distribute, send).
type PayoutInstruction struct {
	Key    RecipientKey
	To     [20]byte
	Amount *big.Int
	Data   []byte
}

// FeeInstruction is a fee computed by a hook policy. When Immediate is set
// the registry attempts the transfer right away and falls back to a ledger
// reservation if the transfer fails; otherwise the amount is reserved under
// Key without any transfer.
type FeeInstruction struct {
	Key       RecipientKey
	To        [20]byte
	Amount    *big.Int
	Immediate bool
	Data      []byte
}

// WithdrawInstruction names the recipient and amount of a vault withdrawal.
type WithdrawInstruction struct {
	To     [20]byte
	Amount *big.Int
}

// DeriveCampaignID computes the campaign identifier from its creation
// inputs. The payload is hashed first so arbitrarily large payloads derive a
// fixed-size preimage. The function is bit-exact with the registry's
// internal derivation.
func DeriveCampaignID(policy [20]byte, nonce [32]byte, payload []byte) CampaignID {
	payloadHash := ethcrypto.Keccak256(payload)
	return CampaignID(ethcrypto.Keccak256Hash(policy[:], nonce[:], payloadHash))
}

// DeriveVaultAddress computes the vault address bound to a campaign.
func DeriveVaultAddress(id CampaignID) [20]byte {
	hash := ethcrypto.Keccak256([]byte("campaign/vault"), id[:])
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
