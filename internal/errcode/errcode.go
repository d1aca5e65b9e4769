// Package errcode is the closed rejection taxonomy shared by every component
// of the risk core. A Code is itself an error, so components return it
// directly or wrap it with fmt.Errorf("...: %w", code).
package errcode

import "errors"

// Code identifies a typed, non-retryable rejection.
type Code uint32

const (
	Unknown Code = iota

	// Authorization
	ProgramAlreadyStarted
	ProgramPaused
	Unauthorized

	// Arithmetic
	MathOverflow
	PriceOverflow

	// Input validation
	InvalidInput
	InvalidTargetPrice
	InvalidPriceForShort
	InvalidPriceForLong
	InvalidPositionId
	InvalidPositionSize
	PositionValueTooHigh
	PositionValueTooLow
	CollateralTooLow
	CollateralTooHigh

	// Oracle trust
	PriceTooHigh
	StalePrice
	InvalidPrice
	PriceConfidenceTooHigh

	// Economic constraints
	NotEnoughBalance
	FeeTooLow
	ExcessiveLeverage
	EffectiveCollateralTooLow
	InsufficientCollateralForFees
	InsufficientLiquidity

	// Lifecycle
	PositionAlreadyClosed
	PositionNotLiquidatable

	// Storage
	RecordNotFound
	RecordExists
	DuplicateRequest
)

var names = map[Code]string{
	Unknown:                       "Unknown",
	ProgramAlreadyStarted:         "ProgramAlreadyStarted",
	ProgramPaused:                 "ProgramPaused",
	Unauthorized:                  "Unauthorized",
	MathOverflow:                  "MathOverflow",
	PriceOverflow:                 "PriceOverflow",
	InvalidInput:                  "InvalidInput",
	InvalidTargetPrice:            "InvalidTargetPrice",
	InvalidPriceForShort:          "InvalidPriceForShort",
	InvalidPriceForLong:           "InvalidPriceForLong",
	InvalidPositionId:             "InvalidPositionId",
	InvalidPositionSize:           "InvalidPositionSize",
	PositionValueTooHigh:          "PositionValueTooHigh",
	PositionValueTooLow:           "PositionValueTooLow",
	CollateralTooLow:              "CollateralTooLow",
	CollateralTooHigh:             "CollateralTooHigh",
	PriceTooHigh:                  "PriceTooHigh",
	StalePrice:                    "StalePrice",
	InvalidPrice:                  "InvalidPrice",
	PriceConfidenceTooHigh:        "PriceConfidenceTooHigh",
	NotEnoughBalance:              "NotEnoughBalance",
	FeeTooLow:                     "FeeTooLow",
	ExcessiveLeverage:             "ExcessiveLeverage",
	EffectiveCollateralTooLow:     "EffectiveCollateralTooLow",
	InsufficientCollateralForFees: "InsufficientCollateralForFees",
	InsufficientLiquidity:         "InsufficientLiquidity",
	PositionAlreadyClosed:         "PositionAlreadyClosed",
	PositionNotLiquidatable:       "PositionNotLiquidatable",
	RecordNotFound:                "RecordNotFound",
	RecordExists:                  "RecordExists",
	DuplicateRequest:              "DuplicateRequest",
}

func (c Code) String() string {
	if s, ok := names[c]; ok {
		return s
	}
	return "Unknown"
}

func (c Code) Error() string {
	return c.String()
}

// Category groups codes the way callers react to them.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryAuthorization
	CategoryInput
	CategoryArithmetic
	CategoryOracle
	CategoryEconomic
	CategoryLifecycle
	CategoryStorage
)

func (c Category) String() string {
	switch c {
	case CategoryAuthorization:
		return "authorization"
	case CategoryInput:
		return "input"
	case CategoryArithmetic:
		return "arithmetic"
	case CategoryOracle:
		return "oracle"
	case CategoryEconomic:
		return "economic"
	case CategoryLifecycle:
		return "lifecycle"
	case CategoryStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// Category returns the group a code belongs to.
func (c Code) Category() Category {
	switch c {
	case ProgramAlreadyStarted, ProgramPaused, Unauthorized:
		return CategoryAuthorization
	case MathOverflow, PriceOverflow:
		return CategoryArithmetic
	case InvalidInput, InvalidTargetPrice, InvalidPriceForShort, InvalidPriceForLong,
		InvalidPositionId, InvalidPositionSize, PositionValueTooHigh, PositionValueTooLow,
		CollateralTooLow, CollateralTooHigh:
		return CategoryInput
	case PriceTooHigh, StalePrice, InvalidPrice, PriceConfidenceTooHigh:
		return CategoryOracle
	case NotEnoughBalance, FeeTooLow, ExcessiveLeverage, EffectiveCollateralTooLow,
		InsufficientCollateralForFees, InsufficientLiquidity:
		return CategoryEconomic
	case PositionAlreadyClosed, PositionNotLiquidatable:
		return CategoryLifecycle
	case RecordNotFound, RecordExists, DuplicateRequest:
		return CategoryStorage
	default:
		return CategoryUnknown
	}
}

// From extracts the Code carried by err. Errors that do not wrap a Code
// report Unknown.
func From(err error) Code {
	if err == nil {
		return Unknown
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	return Unknown
}

// Parse maps a code name back to its Code.
func Parse(name string) (Code, bool) {
	for c, s := range names {
		if s == name {
			return c, true
		}
	}
	return Unknown, false
}
