package campaign

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"rewardnet/core/types"
)

const (
	EventTypeCampaignCreated    = "campaign.created"
	EventTypeStatusUpdated      = "campaign.status_updated"
	EventTypeMetadataUpdated    = "campaign.metadata_updated"
	EventTypeURIUpdated         = "campaign.uri_updated"
	EventTypeCampaignFunded     = "campaign.funded"
	EventTypePayoutAllocated    = "campaign.payout.allocated"
	EventTypePayoutsDeallocated = "campaign.payouts.deallocated"
	EventTypePayoutSent         = "campaign.payout.sent"
	EventTypePayoutDistributed  = "campaign.payouts.distributed"
	EventTypeFeeSent            = "campaign.fee.sent"
	EventTypeFeeAllocated       = "campaign.fee.allocated"
	EventTypeFeeTransferFailed  = "campaign.fee.transfer_failed"
	EventTypeFeesDistributed    = "campaign.fees.distributed"
	EventTypeFundsWithdrawn     = "campaign.funds.withdrawn"
)

// campaignEvent adapts a types.Event payload to the events.Emitter contract.
type campaignEvent struct {
	evt *types.Event
}

func (e campaignEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e campaignEvent) Event() *types.Event { return e.evt }

func baseAttrs(id CampaignID, asset AssetID) map[string]string {
	return map[string]string{
		"campaign": hex.EncodeToString(id[:]),
		"asset":    asset.String(),
	}
}

// NewCreatedEvent is the canonical payload for a newly created campaign.
func NewCreatedEvent(c *Campaign) *types.Event {
	attrs := make(map[string]string)
	if c != nil {
		attrs["campaign"] = hex.EncodeToString(c.ID[:])
		attrs["policy"] = hex.EncodeToString(c.Policy[:])
		attrs["vault"] = hex.EncodeToString(c.Vault[:])
		attrs["status"] = c.Status.String()
		attrs["createdAt"] = strconv.FormatInt(c.CreatedAt, 10)
	}
	return &types.Event{Type: EventTypeCampaignCreated, Attributes: attrs}
}

// NewStatusUpdatedEvent records a lifecycle transition.
func NewStatusUpdatedEvent(id CampaignID, from, to Status) *types.Event {
	return &types.Event{Type: EventTypeStatusUpdated, Attributes: map[string]string{
		"campaign": hex.EncodeToString(id[:]),
		"from":     from.String(),
		"to":       to.String(),
	}}
}

// NewMetadataUpdatedEvent records a metadata change. The payload itself stays
// with the policy module; the event carries its hash for indexers.
func NewMetadataUpdatedEvent(id CampaignID, dataHash [32]byte) *types.Event {
	return &types.Event{Type: EventTypeMetadataUpdated, Attributes: map[string]string{
		"campaign": hex.EncodeToString(id[:]),
		"dataHash": hex.EncodeToString(dataHash[:]),
	}}
}

// NewURIUpdatedEvent records the content URI in force after a metadata change.
func NewURIUpdatedEvent(id CampaignID, uri string) *types.Event {
	return &types.Event{Type: EventTypeURIUpdated, Attributes: map[string]string{
		"campaign": hex.EncodeToString(id[:]),
		"uri":      uri,
	}}
}

// NewFundedEvent records a vault deposit.
func NewFundedEvent(id CampaignID, asset AssetID, from [20]byte, amount *big.Int) *types.Event {
	attrs := baseAttrs(id, asset)
	attrs["from"] = hex.EncodeToString(from[:])
	attrs["amount"] = cloneBigInt(amount).String()
	return &types.Event{Type: EventTypeCampaignFunded, Attributes: attrs}
}

func keyedAmountEvent(eventType string, id CampaignID, asset AssetID, key RecipientKey, amount *big.Int) *types.Event {
	attrs := baseAttrs(id, asset)
	attrs["key"] = hex.EncodeToString(key[:])
	attrs["amount"] = cloneBigInt(amount).String()
	return &types.Event{Type: eventType, Attributes: attrs}
}

func transferEvent(eventType string, id CampaignID, asset AssetID, key RecipientKey, to [20]byte, amount *big.Int) *types.Event {
	evt := keyedAmountEvent(eventType, id, asset, key, amount)
	evt.Attributes["to"] = hex.EncodeToString(to[:])
	return evt
}

// NewPayoutAllocatedEvent records a ledger promise to pay key.
func NewPayoutAllocatedEvent(id CampaignID, asset AssetID, key RecipientKey, amount *big.Int) *types.Event {
	return keyedAmountEvent(EventTypePayoutAllocated, id, asset, key, amount)
}

// NewDeallocatedEvent records removal of an allocation. Kind is "payout" or
// "fee" depending on which counter shrank.
func NewDeallocatedEvent(id CampaignID, asset AssetID, key RecipientKey, amount *big.Int, kind string) *types.Event {
	evt := keyedAmountEvent(EventTypePayoutsDeallocated, id, asset, key, amount)
	evt.Attributes["kind"] = kind
	return evt
}

// NewPayoutSentEvent records an immediate payout transfer.
func NewPayoutSentEvent(id CampaignID, asset AssetID, key RecipientKey, to [20]byte, amount *big.Int) *types.Event {
	return transferEvent(EventTypePayoutSent, id, asset, key, to, amount)
}

// NewPayoutDistributedEvent records conversion of an allocation into a
// transfer.
func NewPayoutDistributedEvent(id CampaignID, asset AssetID, key RecipientKey, to [20]byte, amount *big.Int) *types.Event {
	return transferEvent(EventTypePayoutDistributed, id, asset, key, to, amount)
}

// NewFeeSentEvent records an immediate fee transfer.
func NewFeeSentEvent(id CampaignID, asset AssetID, key RecipientKey, to [20]byte, amount *big.Int) *types.Event {
	return transferEvent(EventTypeFeeSent, id, asset, key, to, amount)
}

// NewFeeAllocatedEvent records a fee reserved in the ledger instead of being
// transferred.
func NewFeeAllocatedEvent(id CampaignID, asset AssetID, key RecipientKey, amount *big.Int) *types.Event {
	return keyedAmountEvent(EventTypeFeeAllocated, id, asset, key, amount)
}

// NewFeeTransferFailedEvent records a fee transfer the recipient rejected.
// Distinct from NewFeeAllocatedEvent so indexers can tell a deliberate
// reservation from a failed send.
func NewFeeTransferFailedEvent(id CampaignID, asset AssetID, key RecipientKey, to [20]byte, amount *big.Int) *types.Event {
	return transferEvent(EventTypeFeeTransferFailed, id, asset, key, to, amount)
}

// NewFeesDistributedEvent records payment of previously reserved fees.
func NewFeesDistributedEvent(id CampaignID, asset AssetID, key RecipientKey, to [20]byte, amount *big.Int) *types.Event {
	return transferEvent(EventTypeFeesDistributed, id, asset, key, to, amount)
}

// NewFundsWithdrawnEvent records a vault withdrawal.
func NewFundsWithdrawnEvent(id CampaignID, asset AssetID, to [20]byte, amount *big.Int) *types.Event {
	attrs := baseAttrs(id, asset)
	attrs["to"] = hex.EncodeToString(to[:])
	attrs["amount"] = cloneBigInt(amount).String()
	return &types.Event{Type: EventTypeFundsWithdrawn, Attributes: attrs}
}
