package auction

import "errors"

// Caller-facing validation errors. Each leaves the ledger untouched.
var (
	ErrAuctionNotExist           = errors.New("auction does not exist")
	ErrInvalidBidPrice           = errors.New("bid price is invalid")
	ErrBidNotAccepted            = errors.New("bid was not accepted")
	ErrPermission                = errors.New("origin does not own this auction")
	ErrAuctionAlreadyLive        = errors.New("auction start has already passed")
	ErrCannotUpdateActiveAuction = errors.New("auction is frozen once bid upon")
	ErrSelfDealing               = errors.New("creator and slot origin must differ")
	ErrInvalidSchedule           = errors.New("end height must be after start height")
)
