package campaign

import "errors"

var (
	ErrNilState              = errors.New("campaign: state not configured")
	ErrCampaignNotFound      = errors.New("campaign: campaign does not exist")
	ErrUnknownPolicy         = errors.New("campaign: policy module not registered")
	ErrUnauthorized          = errors.New("campaign: unauthorized")
	ErrInvalidStatus         = errors.New("campaign: operation not permitted in current status")
	ErrInvalidTransition     = errors.New("campaign: invalid status transition")
	ErrZeroAmount            = errors.New("campaign: zero amount")
	ErrNegativeAmount        = errors.New("campaign: negative amount")
	ErrInsufficientBalance   = errors.New("campaign: insufficient vault balance")
	ErrInsufficientAllocated = errors.New("campaign: insufficient allocation")
	ErrTransferFailed        = errors.New("campaign: transfer failed")
)
