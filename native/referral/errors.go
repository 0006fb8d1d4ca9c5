package referral

import "errors"

var (
	ErrValidation        = errors.New("referral: invalid value")
	ErrDuplicateReferral = errors.New("referral: player is already on the referral list")
	ErrSelfReferral      = errors.New("referral: player cannot refer themselves")
)
