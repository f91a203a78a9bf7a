package campaign

// HookContext carries the call context the registry hands to every policy
// callback: who invoked the registry, which campaign and asset the call
// targets, and the caller's opaque instruction payload. Campaign is a clone;
// policies cannot mutate ledger state through it.
type HookContext struct {
	Registry [20]byte
	Caller   [20]byte
	Campaign *Campaign
	Asset    AssetID
	Data     []byte
}

// HookPolicy is the callback contract every campaign policy module
// implements. The registry trusts a policy for authorization decisions and
// amount computation only; all ledger mutation and solvency enforcement stay
// with the registry. Callback errors propagate verbatim to the caller and
// abort the whole operation.
//
// Callbacks are only ever invoked by the registry. Implementations should
// reject contexts whose Registry field does not match the registry they were
// bound to.
type HookPolicy interface {
	OnCreate(ctx *HookContext) error
	OnUpdateStatus(ctx *HookContext, from, to Status) error
	OnUpdateMetadata(ctx *HookContext) error
	OnAllocate(ctx *HookContext) ([]PayoutInstruction, []FeeInstruction, error)
	OnDeallocate(ctx *HookContext) ([]PayoutInstruction, []FeeInstruction, error)
	OnDistribute(ctx *HookContext) ([]PayoutInstruction, error)
	OnSend(ctx *HookContext) ([]PayoutInstruction, []FeeInstruction, error)
	OnDistributeFees(ctx *HookContext) ([]FeeInstruction, error)
	OnWithdrawFunds(ctx *HookContext) (WithdrawInstruction, error)

	// CampaignURI returns the metadata URI for the campaign. Read-only.
	CampaignURI(id CampaignID) string
}

// BuilderRegistry is the identity directory policies resolve deferred
// recipient keys (builder and referral codes) against. It is an external
// collaborator; the registry itself never consults it.
type BuilderRegistry interface {
	IsRegistered(key RecipientKey) bool
	ResolveAddress(key RecipientKey) ([20]byte, bool)
}
