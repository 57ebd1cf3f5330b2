package domain

import "errors"

// Validation.
var (
	ErrQuestionTooLong = errors.New("question too long")
	ErrURLTooLong      = errors.New("url too long")
	ErrInvalidOutcome  = errors.New("invalid outcome")
	ErrInvalidSide     = errors.New("invalid side")
	ErrInvalidAddress  = errors.New("invalid address")
	ErrInvalidManifest = errors.New("invalid manifest")
	ErrRecordTooLarge  = errors.New("record too large")
)

// Authorization.
var (
	ErrLocationNotVerified  = errors.New("location not verified")
	ErrWrongRegion          = errors.New("user is outside market region")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrTransferUnauthorized = errors.New("transfer authority does not own source account")
)

// Temporal.
var (
	ErrMarketClosed    = errors.New("market closed")
	ErrAlreadyResolved = errors.New("market already resolved")
	ErrNotResolved     = errors.New("market not resolved")
)

// Arithmetic.
var (
	ErrMathOverflow  = errors.New("math overflow")
	ErrMathUnderflow = errors.New("math underflow")
	ErrCastOverflow  = errors.New("cast overflow")
)

// Economic.
var (
	ErrSlippageExceeded    = errors.New("slippage exceeded")
	ErrNoWinningLiquidity  = errors.New("no winning liquidity")
	ErrAlreadyClaimed      = errors.New("already claimed")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrAssetMismatch       = errors.New("asset mismatch")
	ErrEmergencyNotAllowed = errors.New("emergency withdraw not allowed")
	ErrOverrideLocked      = errors.New("override locked after first claim")
)

// Storage and infrastructure.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrLockHeld      = errors.New("lock already held")
)

// ErrorClass groups errors for callers that map them onto transport codes.
type ErrorClass int

const (
	ClassInternal ErrorClass = iota
	ClassValidation
	ClassAuthorization
	ClassTemporal
	ClassArithmetic
	ClassEconomic
	ClassNotFound
	ClassConflict
	ClassRateLimited
)

var errorClasses = []struct {
	class ErrorClass
	errs  []error
}{
	{ClassValidation, []error{ErrQuestionTooLong, ErrURLTooLong, ErrInvalidOutcome, ErrInvalidSide, ErrInvalidAddress, ErrInvalidManifest, ErrRecordTooLarge}},
	{ClassAuthorization, []error{ErrLocationNotVerified, ErrWrongRegion, ErrUnauthorized, ErrTransferUnauthorized}},
	{ClassTemporal, []error{ErrMarketClosed, ErrAlreadyResolved, ErrNotResolved}},
	{ClassArithmetic, []error{ErrMathOverflow, ErrMathUnderflow, ErrCastOverflow}},
	{ClassEconomic, []error{ErrSlippageExceeded, ErrNoWinningLiquidity, ErrAlreadyClaimed, ErrInsufficientFunds, ErrAssetMismatch, ErrEmergencyNotAllowed, ErrOverrideLocked}},
	{ClassNotFound, []error{ErrNotFound}},
	{ClassConflict, []error{ErrAlreadyExists, ErrLockHeld}},
	{ClassRateLimited, []error{ErrRateLimited}},
}

// ClassOf returns the class of the first known sentinel wrapped by err.
func ClassOf(err error) ErrorClass {
	if err == nil {
		return ClassInternal
	}
	for _, group := range errorClasses {
		for _, target := range group.errs {
			if errors.Is(err, target) {
				return group.class
			}
		}
	}
	return ClassInternal
}

// Code returns a stable machine-readable name for a known sentinel, or
// "internal".
func Code(err error) string {
	for code, target := range errorCodes {
		if errors.Is(err, target) {
			return code
		}
	}
	return "internal"
}

var errorCodes = map[string]error{
	"question_too_long":     ErrQuestionTooLong,
	"url_too_long":          ErrURLTooLong,
	"invalid_outcome":       ErrInvalidOutcome,
	"invalid_side":          ErrInvalidSide,
	"invalid_address":       ErrInvalidAddress,
	"invalid_manifest":      ErrInvalidManifest,
	"record_too_large":      ErrRecordTooLarge,
	"location_not_verified": ErrLocationNotVerified,
	"wrong_region":          ErrWrongRegion,
	"unauthorized":          ErrUnauthorized,
	"transfer_unauthorized": ErrTransferUnauthorized,
	"market_closed":         ErrMarketClosed,
	"already_resolved":      ErrAlreadyResolved,
	"not_resolved":          ErrNotResolved,
	"math_overflow":         ErrMathOverflow,
	"math_underflow":        ErrMathUnderflow,
	"cast_overflow":         ErrCastOverflow,
	"slippage_exceeded":     ErrSlippageExceeded,
	"no_winning_liquidity":  ErrNoWinningLiquidity,
	"already_claimed":       ErrAlreadyClaimed,
	"insufficient_funds":    ErrInsufficientFunds,
	"asset_mismatch":        ErrAssetMismatch,
	"emergency_not_allowed": ErrEmergencyNotAllowed,
	"override_locked":       ErrOverrideLocked,
	"not_found":             ErrNotFound,
	"already_exists":        ErrAlreadyExists,
	"rate_limited":          ErrRateLimited,
	"lock_held":             ErrLockHeld,
}
