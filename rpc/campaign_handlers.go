package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	"rewardnet/native/campaign"
)

type campaignParams struct {
	Campaign string `json:"campaign"`
	Asset    string `json:"asset,omitempty"`
	Key      string `json:"key,omitempty"`
	Policy   string `json:"policy,omitempty"`
	Nonce    string `json:"nonce,omitempty"`
	Payload  string `json:"payload,omitempty"`
}

type campaignResult struct {
	Campaign string `json:"campaign"`
	Policy   string `json:"policy,omitempty"`
	Vault    string `json:"vault,omitempty"`
	Status   string `json:"status,omitempty"`
	URI      string `json:"uri,omitempty"`
	Payouts  string `json:"allocatedPayouts,omitempty"`
	Fees     string `json:"allocatedFees,omitempty"`
	Amount   string `json:"amount,omitempty"`
	Balance  string `json:"balance,omitempty"`
}

func (s *Server) dispatch(req *rpcRequest) (interface{}, *rpcError) {
	params, err := decodeParams(req.Params)
	if err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	switch req.Method {
	case "campaign_get":
		return s.campaignGet(params)
	case "campaign_status":
		return s.campaignStatus(params)
	case "campaign_uri":
		return s.campaignURI(params)
	case "campaign_totals":
		return s.campaignTotals(params)
	case "campaign_allocation":
		return s.campaignAllocation(params)
	case "campaign_feeAllocation":
		return s.campaignFeeAllocation(params)
	case "campaign_vaultBalance":
		return s.campaignVaultBalance(params)
	case "campaign_deriveId":
		return s.campaignDeriveID(params)
	default:
		return nil, &rpcError{Code: codeMethodNotFound, Message: "unknown method " + req.Method}
	}
}

func decodeParams(raw []json.RawMessage) (*campaignParams, error) {
	params := new(campaignParams)
	if len(raw) == 0 {
		return params, nil
	}
	if err := json.Unmarshal(raw[0], params); err != nil {
		return nil, errors.New("params[0] must be an object")
	}
	return params, nil
}

func decodeHex(s string, want int) ([]byte, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, err
	}
	if want > 0 && len(raw) != want {
		return nil, errors.New("unexpected length")
	}
	return raw, nil
}

func parseCampaignID(s string) (campaign.CampaignID, error) {
	var id campaign.CampaignID
	raw, err := decodeHex(s, 32)
	if err != nil {
		return id, errors.New("campaign must be a 32-byte hex identifier")
	}
	copy(id[:], raw)
	return id, nil
}

func parseAsset(s string) (campaign.AssetID, error) {
	if strings.TrimSpace(s) == "" || strings.EqualFold(strings.TrimSpace(s), "native") {
		return campaign.NativeAsset, nil
	}
	var asset campaign.AssetID
	raw, err := decodeHex(s, 20)
	if err != nil {
		return asset, errors.New("asset must be \"native\" or a 20-byte hex address")
	}
	copy(asset[:], raw)
	return asset, nil
}

func parseKey(s string) (campaign.RecipientKey, error) {
	var key campaign.RecipientKey
	raw, err := decodeHex(s, 32)
	if err != nil {
		return key, errors.New("key must be a 32-byte hex identifier")
	}
	copy(key[:], raw)
	return key, nil
}

func engineError(err error) *rpcError {
	if errors.Is(err, campaign.ErrCampaignNotFound) {
		return &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	return &rpcError{Code: codeServerError, Message: err.Error()}
}

func (s *Server) campaignGet(params *campaignParams) (interface{}, *rpcError) {
	id, err := parseCampaignID(params.Campaign)
	if err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	c, err := s.engine.GetCampaign(id)
	if err != nil {
		return nil, engineError(err)
	}
	return &campaignResult{
		Campaign: hex.EncodeToString(c.ID[:]),
		Policy:   hex.EncodeToString(c.Policy[:]),
		Vault:    hex.EncodeToString(c.Vault[:]),
		Status:   c.Status.String(),
	}, nil
}

func (s *Server) campaignStatus(params *campaignParams) (interface{}, *rpcError) {
	id, err := parseCampaignID(params.Campaign)
	if err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	status, err := s.engine.CampaignStatus(id)
	if err != nil {
		return nil, engineError(err)
	}
	return &campaignResult{Campaign: params.Campaign, Status: status.String()}, nil
}

func (s *Server) campaignURI(params *campaignParams) (interface{}, *rpcError) {
	id, err := parseCampaignID(params.Campaign)
	if err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	uri, err := s.engine.CampaignURI(id)
	if err != nil {
		return nil, engineError(err)
	}
	return &campaignResult{Campaign: params.Campaign, URI: uri}, nil
}

func (s *Server) campaignTotals(params *campaignParams) (interface{}, *rpcError) {
	id, err := parseCampaignID(params.Campaign)
	if err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	asset, err := parseAsset(params.Asset)
	if err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	payouts, fees, err := s.engine.AllocatedTotals(id, asset)
	if err != nil {
		return nil, engineError(err)
	}
	return &campaignResult{Campaign: params.Campaign, Payouts: payouts.String(), Fees: fees.String()}, nil
}

func (s *Server) campaignAllocation(params *campaignParams) (interface{}, *rpcError) {
	id, err := parseCampaignID(params.Campaign)
	if err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	asset, err := parseAsset(params.Asset)
	if err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	key, err := parseKey(params.Key)
	if err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	amount, err := s.engine.PayoutAllocated(id, asset, key)
	if err != nil {
		return nil, engineError(err)
	}
	return &campaignResult{Campaign: params.Campaign, Amount: amount.String()}, nil
}

func (s *Server) campaignFeeAllocation(params *campaignParams) (interface{}, *rpcError) {
	id, err := parseCampaignID(params.Campaign)
	if err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	asset, err := parseAsset(params.Asset)
	if err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	key, err := parseKey(params.Key)
	if err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	amount, err := s.engine.FeeAllocated(id, asset, key)
	if err != nil {
		return nil, engineError(err)
	}
	return &campaignResult{Campaign: params.Campaign, Amount: amount.String()}, nil
}

func (s *Server) campaignVaultBalance(params *campaignParams) (interface{}, *rpcError) {
	id, err := parseCampaignID(params.Campaign)
	if err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	asset, err := parseAsset(params.Asset)
	if err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	balance, err := s.engine.VaultBalance(id, asset)
	if err != nil {
		return nil, engineError(err)
	}
	return &campaignResult{Campaign: params.Campaign, Balance: balance.String()}, nil
}

// campaignDeriveID mirrors the registry's deterministic derivation so callers
// can predict a campaign's identity before creating it.
func (s *Server) campaignDeriveID(params *campaignParams) (interface{}, *rpcError) {
	policyRaw, err := decodeHex(params.Policy, 20)
	if err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: "policy must be a 20-byte hex address"}
	}
	nonceRaw, err := decodeHex(params.Nonce, 32)
	if err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: "nonce must be 32 hex bytes"}
	}
	payload, err := decodeHex(params.Payload, 0)
	if err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: "payload must be hex encoded"}
	}
	var policy [20]byte
	copy(policy[:], policyRaw)
	var nonce [32]byte
	copy(nonce[:], nonceRaw)
	id := campaign.DeriveCampaignID(policy, nonce, payload)
	return &campaignResult{Campaign: hex.EncodeToString(id[:])}, nil
}
