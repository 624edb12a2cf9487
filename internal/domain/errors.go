package domain

import "errors"

// Infrastructure errors shared by every adapter.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRecordLocked  = errors.New("record is locked by a concurrent operation")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrLockHeld      = errors.New("lock already held")
)

// Shop errors. Each carries a stable numeric code (see Code) so API clients
// can branch on it without parsing messages.
var (
	ErrNameIsTooLong                       = errors.New("name string variable is longer than allowed")
	ErrDescriptionIsTooLong                = errors.New("description string variable is longer than allowed")
	ErrSupplyIsGtThanAvailable             = errors.New("provided supply is gt than available")
	ErrSupplyIsNotProvided                 = errors.New("supply is not provided")
	ErrDerivedKeyInvalid                   = errors.New("derived key invalid")
	ErrPublicKeyMismatch                   = errors.New("public key mismatch")
	ErrPiecesInOneWalletIsTooMuch          = errors.New("pieces in one wallet cannot be greater than max supply value")
	ErrStartDateIsInPast                   = errors.New("start date cannot be in the past")
	ErrEndDateIsEarlierThanBeginDate       = errors.New("end date should not be earlier than start date")
	ErrMarketIsNotStarted                  = errors.New("market is not started")
	ErrMarketIsEnded                       = errors.New("market is ended")
	ErrUserReachBuyLimit                   = errors.New("user reach buy limit")
	ErrMathOverflow                        = errors.New("math overflow")
	ErrSupplyIsGtThanMaxSupply             = errors.New("supply is gt than max supply")
	ErrMarketDurationIsNotUnlimited        = errors.New("market duration is not unlimited")
	ErrMarketIsImmutable                   = errors.New("market is immutable")
	ErrMarketInInvalidState                = errors.New("market in invalid state")
	ErrPriceIsZero                         = errors.New("price is zero")
	ErrFunderIsInvalid                     = errors.New("funder is invalid")
	ErrPayoutTicketExists                  = errors.New("payout ticket exists")
	ErrInvalidFunderDestination            = errors.New("funder provided invalid destination")
	ErrTreasuryIsNotEmpty                  = errors.New("treasury is not empty")
	ErrSellingResourceAlreadyTaken         = errors.New("selling resource already taken by other market")
	ErrMetadataCreatorsIsEmpty             = errors.New("metadata creators is empty")
	ErrUserWalletMustMatchUserTokenAccount = errors.New("user wallet must match user token account")
	ErrMetadataShouldBeMutable             = errors.New("metadata should be mutable")
	ErrPrimarySaleIsNotAllowed             = errors.New("primary sale is not allowed")
	ErrCreatorsIsGtThanAvailable           = errors.New("creators is gt than allowed")
	ErrCreatorsIsEmpty                     = errors.New("creators is empty")
	ErrMarketOwnerDoesntHaveShares         = errors.New("market owner doesn't receive shares at primary sale")
	ErrPrimaryMetadataCreatorsNotProvided  = errors.New("primary metadata creators not provided")
	ErrSellingResourceOwnerInvalid         = errors.New("invalid selling resource owner provided")
	ErrMarketIsStarted                     = errors.New("market is already started")
	ErrCreatorSharesInvalid                = errors.New("creator shares must be unique and sum to 100")
	ErrSellingResourceInInvalidState       = errors.New("selling resource in invalid state")
	ErrInsufficientFunds                   = errors.New("insufficient funds")
	ErrMintMismatch                        = errors.New("token account mint mismatch")
	ErrSellerFeeInvalid                    = errors.New("seller fee basis points exceed 10000")
)

// ErrorKind groups shop errors by the taxonomy callers react to.
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindState         ErrorKind = "state"
	KindAuthorization ErrorKind = "authorization"
	KindIdempotency   ErrorKind = "idempotency"
	KindArithmetic    ErrorKind = "arithmetic"
	KindConflict      ErrorKind = "conflict"
	KindNotFound      ErrorKind = "not_found"
	KindInternal      ErrorKind = "internal"
)

type errorInfo struct {
	code uint32
	kind ErrorKind
}

var errorTable = map[error]errorInfo{
	ErrNameIsTooLong:                       {6000, KindValidation},
	ErrDescriptionIsTooLong:                {6001, KindValidation},
	ErrSupplyIsGtThanAvailable:             {6002, KindValidation},
	ErrSupplyIsNotProvided:                 {6003, KindValidation},
	ErrDerivedKeyInvalid:                   {6004, KindAuthorization},
	ErrPublicKeyMismatch:                   {6005, KindAuthorization},
	ErrPiecesInOneWalletIsTooMuch:          {6006, KindValidation},
	ErrStartDateIsInPast:                   {6007, KindValidation},
	ErrEndDateIsEarlierThanBeginDate:       {6008, KindValidation},
	ErrMarketIsNotStarted:                  {6009, KindState},
	ErrMarketIsEnded:                       {6010, KindState},
	ErrUserReachBuyLimit:                   {6011, KindState},
	ErrMathOverflow:                        {6012, KindArithmetic},
	ErrSupplyIsGtThanMaxSupply:             {6013, KindState},
	ErrMarketDurationIsNotUnlimited:        {6014, KindState},
	ErrMarketIsImmutable:                   {6015, KindState},
	ErrMarketInInvalidState:                {6016, KindState},
	ErrPriceIsZero:                         {6017, KindValidation},
	ErrFunderIsInvalid:                     {6018, KindAuthorization},
	ErrPayoutTicketExists:                  {6019, KindIdempotency},
	ErrInvalidFunderDestination:            {6020, KindAuthorization},
	ErrTreasuryIsNotEmpty:                  {6021, KindState},
	ErrSellingResourceAlreadyTaken:         {6022, KindState},
	ErrMetadataCreatorsIsEmpty:             {6023, KindValidation},
	ErrUserWalletMustMatchUserTokenAccount: {6024, KindAuthorization},
	ErrMetadataShouldBeMutable:             {6025, KindState},
	ErrPrimarySaleIsNotAllowed:             {6026, KindState},
	ErrCreatorsIsGtThanAvailable:           {6027, KindValidation},
	ErrCreatorsIsEmpty:                     {6028, KindValidation},
	ErrMarketOwnerDoesntHaveShares:         {6029, KindAuthorization},
	ErrPrimaryMetadataCreatorsNotProvided:  {6030, KindState},
	ErrSellingResourceOwnerInvalid:         {6031, KindAuthorization},
	ErrMarketIsStarted:                     {6032, KindState},
	ErrCreatorSharesInvalid:                {6033, KindValidation},
	ErrSellingResourceInInvalidState:       {6034, KindState},
	ErrInsufficientFunds:                   {6035, KindState},
	ErrMintMismatch:                        {6036, KindValidation},
	ErrSellerFeeInvalid:                    {6037, KindValidation},

	ErrNotFound:      {0, KindNotFound},
	ErrAlreadyExists: {0, KindIdempotency},
	ErrRecordLocked:  {0, KindConflict},
	ErrLockHeld:      {0, KindConflict},
	ErrRateLimited:   {0, KindConflict},
	ErrUnauthorized:  {0, KindAuthorization},
}

func lookup(err error) (errorInfo, bool) {
	for err != nil {
		if info, ok := errorTable[err]; ok {
			return info, true
		}
		// Walk both single and joined wrap chains.
		switch u := err.(type) {
		case interface{ Unwrap() error }:
			err = u.Unwrap()
		case interface{ Unwrap() []error }:
			for _, e := range u.Unwrap() {
				if info, ok := lookup(e); ok {
					return info, true
				}
			}
			return errorInfo{}, false
		default:
			return errorInfo{}, false
		}
	}
	return errorInfo{}, false
}

// Code returns the numeric shop error code carried by err, or 0 when err is
// not a shop error.
func Code(err error) uint32 {
	info, _ := lookup(err)
	return info.code
}

// Kind classifies err. Unknown errors are KindInternal.
func Kind(err error) ErrorKind {
	info, ok := lookup(err)
	if !ok {
		return KindInternal
	}
	return info.kind
}
