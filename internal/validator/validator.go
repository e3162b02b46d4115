package validator

import (
	"errors"
	"regexp"
)

var (
	ErrInvalidCurrency  = errors.New("invalid currency code")
	ErrInvalidReference = errors.New("invalid gateway reference")
	ErrInvalidGateway   = errors.New("invalid gateway name")
)

var (
	currencyRegex  = regexp.MustCompile(`^[A-Z]{3}$`)
	referenceRegex = regexp.MustCompile(`^[A-Za-z0-9_.:\-]{1,128}$`)
	gatewayRegex   = regexp.MustCompile(`^[a-z][a-z0-9_]{1,31}$`)
)

// ValidateCurrency accepts upper-case ISO 4217 style codes.
func ValidateCurrency(code string) error {
	if !currencyRegex.MatchString(code) {
		return ErrInvalidCurrency
	}
	return nil
}

func ValidateReference(reference string) error {
	if !referenceRegex.MatchString(reference) {
		return ErrInvalidReference
	}
	return nil
}

func ValidateGateway(name string) error {
	if !gatewayRegex.MatchString(name) {
		return ErrInvalidGateway
	}
	return nil
}
