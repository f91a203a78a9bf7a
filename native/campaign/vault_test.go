package campaign

import (
	"errors"
	"math/big"
	"testing"
)

func newTestVault(t *testing.T) (*Vault, *mockState, CampaignID) {
	t.Helper()
	st := newMockState()
	id := CampaignID{0x01}
	vault := NewVault(id, DeriveVaultAddress(id), RegistryAddress, st)
	if err := st.VaultCredit(id, NativeAsset, big.NewInt(100)); err != nil {
		t.Fatalf("seed vault: %v", err)
	}
	return vault, st, id
}

func TestVaultRejectsForeignController(t *testing.T) {
	vault, _, _ := newTestVault(t)
	ok, err := vault.SendTokens(newTestAddress(0x55), NativeAsset, testRecipient, big.NewInt(10))
	if ok || !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("foreign caller got ok=%v err=%v", ok, err)
	}
}

func TestVaultZeroAmountIsNoop(t *testing.T) {
	vault, st, id := newTestVault(t)
	ok, err := vault.SendTokens(RegistryAddress, NativeAsset, testRecipient, big.NewInt(0))
	if !ok || err != nil {
		t.Fatalf("zero transfer got ok=%v err=%v", ok, err)
	}
	if st.VaultBalance(id, NativeAsset).Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("zero transfer moved funds")
	}
}

func TestVaultNegativeAmount(t *testing.T) {
	vault, _, _ := newTestVault(t)
	ok, err := vault.SendTokens(RegistryAddress, NativeAsset, testRecipient, big.NewInt(-1))
	if ok || !errors.Is(err, ErrNegativeAmount) {
		t.Fatalf("negative transfer got ok=%v err=%v", ok, err)
	}
}

func TestVaultInsufficientBalanceReportsFalse(t *testing.T) {
	vault, _, _ := newTestVault(t)
	ok, err := vault.SendTokens(RegistryAddress, NativeAsset, testRecipient, big.NewInt(101))
	if ok || err != nil {
		t.Fatalf("overdraft must report false without error, got ok=%v err=%v", ok, err)
	}
}

func TestVaultRejectedRecipientRestoresBalance(t *testing.T) {
	vault, st, id := newTestVault(t)
	st.rejects[testRecipient] = true
	ok, err := vault.SendTokens(RegistryAddress, NativeAsset, testRecipient, big.NewInt(40))
	if ok || err != nil {
		t.Fatalf("rejected transfer got ok=%v err=%v", ok, err)
	}
	if st.VaultBalance(id, NativeAsset).Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("rejected transfer leaked vault funds: %s", st.VaultBalance(id, NativeAsset))
	}
}

func TestVaultTransferMovesFunds(t *testing.T) {
	vault, st, id := newTestVault(t)
	ok, err := vault.SendTokens(RegistryAddress, NativeAsset, testRecipient, big.NewInt(40))
	if !ok || err != nil {
		t.Fatalf("transfer got ok=%v err=%v", ok, err)
	}
	if st.VaultBalance(id, NativeAsset).Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("vault balance = %s, want 60", st.VaultBalance(id, NativeAsset))
	}
	if st.accountBalance(NativeAsset, testRecipient).Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("recipient balance = %s, want 40", st.accountBalance(NativeAsset, testRecipient))
	}
}
