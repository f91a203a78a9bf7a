package hooks

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"rewardnet/native/campaign"
)

type fakeBuilders struct {
	addresses map[campaign.RecipientKey][20]byte
}

func (f *fakeBuilders) IsRegistered(key campaign.RecipientKey) bool {
	_, ok := f.addresses[key]
	return ok
}

func (f *fakeBuilders) ResolveAddress(key campaign.RecipientKey) ([20]byte, bool) {
	addr, ok := f.addresses[key]
	return addr, ok
}

var (
	testRegistry = campaign.RegistryAddress
	testManager  = mustAddress(0x11)
	testOther    = mustAddress(0x22)
	testPayee    = mustAddress(0x33)
)

func mustAddress(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func addressHex(addr [20]byte) string {
	return fmt.Sprintf("0x%x", addr[:])
}

func testCampaign() *campaign.Campaign {
	id := campaign.DeriveCampaignID(mustAddress(0x01), [32]byte{0x01}, nil)
	return &campaign.Campaign{ID: id, Status: campaign.StatusActive}
}

func newTestManager(t *testing.T, builders campaign.BuilderRegistry, feeBps uint32) (*Manager, *campaign.Campaign) {
	t.Helper()
	m := NewManager(testRegistry, builders)
	m.SetNowFunc(func() int64 { return 1_700_000_000 })
	c := testCampaign()
	create := fmt.Sprintf(`{"manager":%q,"feeBps":%d,"uri":"ipfs://campaign","finalizeWindowSecs":3600}`, addressHex(testManager), feeBps)
	err := m.OnCreate(&campaign.HookContext{Registry: testRegistry, Caller: testManager, Campaign: c, Data: []byte(create)})
	if err != nil {
		t.Fatalf("configure policy: %v", err)
	}
	return m, c
}

func ctxFor(c *campaign.Campaign, caller [20]byte, data string) *campaign.HookContext {
	return &campaign.HookContext{Registry: testRegistry, Caller: caller, Campaign: c, Data: []byte(data)}
}

func TestOnCreateValidatesPayload(t *testing.T) {
	m := NewManager(testRegistry, nil)
	c := testCampaign()

	err := m.OnCreate(&campaign.HookContext{Registry: testRegistry, Caller: testManager, Campaign: c, Data: []byte(`{"manager":"nope"}`)})
	if !errors.Is(err, ErrInvalidInstruction) {
		t.Fatalf("bad manager address gave %v", err)
	}
	err = m.OnCreate(&campaign.HookContext{Registry: testRegistry, Caller: testManager, Campaign: c, Data: []byte(fmt.Sprintf(`{"manager":%q,"feeBps":10001}`, addressHex(testManager)))})
	if !errors.Is(err, ErrInvalidFeeBps) {
		t.Fatalf("out-of-range fee bps gave %v", err)
	}
}

func TestCallbacksRejectForeignRegistry(t *testing.T) {
	m, c := newTestManager(t, nil, 0)
	ctx := &campaign.HookContext{Registry: mustAddress(0x99), Caller: testManager, Campaign: c}
	if _, _, err := m.OnAllocate(ctx); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("foreign registry gave %v", err)
	}
}

func TestCallbacksRequireManager(t *testing.T) {
	m, c := newTestManager(t, nil, 0)
	if _, _, err := m.OnAllocate(ctxFor(c, testOther, `{}`)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-manager caller gave %v", err)
	}
}

func TestOnAllocateComputesFlatFee(t *testing.T) {
	m, c := newTestManager(t, nil, 250)
	data := fmt.Sprintf(`{"entries":[{"address":%q,"amount":"600"},{"address":%q,"amount":"400"}]}`, addressHex(testPayee), addressHex(testOther))
	payouts, fees, err := m.OnAllocate(ctxFor(c, testManager, data))
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if len(payouts) != 2 {
		t.Fatalf("payout count = %d, want 2", len(payouts))
	}
	if len(fees) != 1 || fees[0].Amount.Cmp(big.NewInt(25)) != 0 {
		t.Fatalf("fee for 1000 at 250 bps = %v, want 25", fees)
	}
	if fees[0].Immediate {
		t.Fatalf("allocation-path fees must be deferred")
	}
	if fees[0].Key != campaign.AddressKey(testManager) {
		t.Fatalf("fee defaults to the manager as collector")
	}
}

func TestCodeEntriesRequireRegistration(t *testing.T) {
	builders := &fakeBuilders{addresses: map[campaign.RecipientKey][20]byte{
		CodeKey("builder-1"): testPayee,
	}}
	m, c := newTestManager(t, builders, 0)

	payouts, _, err := m.OnAllocate(ctxFor(c, testManager, `{"entries":[{"code":"builder-1","amount":"100"}]}`))
	if err != nil {
		t.Fatalf("registered code rejected: %v", err)
	}
	if payouts[0].Key != CodeKey("builder-1") {
		t.Fatalf("code entry keyed wrongly")
	}

	if _, _, err := m.OnAllocate(ctxFor(c, testManager, `{"entries":[{"code":"ghost","amount":"100"}]}`)); !errors.Is(err, ErrUnregisteredRecipient) {
		t.Fatalf("unregistered code gave %v", err)
	}
}

func TestOnDistributeResolvesCodes(t *testing.T) {
	builders := &fakeBuilders{addresses: map[campaign.RecipientKey][20]byte{
		CodeKey("builder-1"): testPayee,
	}}
	m, c := newTestManager(t, builders, 0)

	payouts, err := m.OnDistribute(ctxFor(c, testManager, `{"entries":[{"code":"builder-1","amount":"70"}]}`))
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if payouts[0].To != testPayee {
		t.Fatalf("code did not resolve to the registered payout address")
	}
}

func TestOnSendHonorsFeeImmediateFlag(t *testing.T) {
	m, c := newTestManager(t, nil, 100)
	data := fmt.Sprintf(`{"entries":[{"address":%q,"amount":"1000"}],"feeImmediate":true}`, addressHex(testPayee))
	_, fees, err := m.OnSend(ctxFor(c, testManager, data))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(fees) != 1 || !fees[0].Immediate || fees[0].Amount.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("unexpected fee instructions: %v", fees)
	}
}

func TestFinalizeWindow(t *testing.T) {
	m, c := newTestManager(t, nil, 0)
	now := int64(1_700_000_000)
	m.SetNowFunc(func() int64 { return now })

	if err := m.OnUpdateStatus(ctxFor(c, testManager, ""), campaign.StatusActive, campaign.StatusFinalizing); err != nil {
		t.Fatalf("enter finalizing: %v", err)
	}
	err := m.OnUpdateStatus(ctxFor(c, testManager, ""), campaign.StatusFinalizing, campaign.StatusFinalized)
	if !errors.Is(err, ErrFinalizeWindowOpen) {
		t.Fatalf("finalize inside the window gave %v", err)
	}
	now += 3_601
	if err := m.OnUpdateStatus(ctxFor(c, testManager, ""), campaign.StatusFinalizing, campaign.StatusFinalized); err != nil {
		t.Fatalf("finalize after the window: %v", err)
	}
}

func TestOnWithdrawFundsParsesInstruction(t *testing.T) {
	m, c := newTestManager(t, nil, 0)
	instr, err := m.OnWithdrawFunds(ctxFor(c, testManager, fmt.Sprintf(`{"to":%q,"amount":"55"}`, addressHex(testPayee))))
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if instr.To != testPayee || instr.Amount.Cmp(big.NewInt(55)) != 0 {
		t.Fatalf("unexpected withdraw instruction: %+v", instr)
	}
}

func TestCampaignURIFollowsMetadata(t *testing.T) {
	m, c := newTestManager(t, nil, 0)
	if got := m.CampaignURI(c.ID); got != "ipfs://campaign" {
		t.Fatalf("uri after creation = %q", got)
	}
	if err := m.OnUpdateMetadata(ctxFor(c, testManager, `{"uri":"ipfs://updated"}`)); err != nil {
		t.Fatalf("update metadata: %v", err)
	}
	if got := m.CampaignURI(c.ID); got != "ipfs://updated" {
		t.Fatalf("uri after update = %q", got)
	}
	if m.CampaignURI(campaign.CampaignID{0xEE}) != "" {
		t.Fatalf("unknown campaign must render an empty uri")
	}
}
