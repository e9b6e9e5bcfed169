package main

import (
	"errors"
	"strings"
)

const (
	MinPhoneDigits = 10
	MaxPhoneDigits = 15
)

// PhonePolicy is the locale-specific part of phone normalization. The default
// targets Brazilian numbers: a 10 or 11 digit national number gets the 55
// country code prepended. Other locales supply their own policy.
type PhonePolicy struct {
	// CountryCode is prepended to national numbers. Digits only.
	CountryCode string
	// MobilePrefix marks an 11 digit number as national even when it happens
	// to begin with the country code digits.
	MobilePrefix string
}

var DefaultPhonePolicy = PhonePolicy{
	CountryCode:  "55",
	MobilePrefix: "9",
}

// Check reports whether the policy can be applied without breaking Format's
// idempotence.
func (p PhonePolicy) Check() error {
	if p.CountryCode == "" || digitsOnly(p.CountryCode) != p.CountryCode {
		return errors.New("country code must be a non-empty digit string")
	}
	if strings.HasPrefix(p.CountryCode, "0") {
		return errors.New("country code must not start with 0")
	}
	if digitsOnly(p.MobilePrefix) != p.MobilePrefix {
		return errors.New("mobile prefix must be digits")
	}
	if p.MobilePrefix != "" &&
		(strings.HasPrefix(p.CountryCode, p.MobilePrefix) || strings.HasPrefix(p.MobilePrefix, p.CountryCode)) {
		return errors.New("mobile prefix and country code must not be prefixes of each other")
	}
	return nil
}

// Validate reports whether raw holds between MinPhoneDigits and MaxPhoneDigits
// digits once every non-digit character is removed.
func (p PhonePolicy) Validate(raw string) bool {
	n := len(digitsOnly(raw))
	return n >= MinPhoneDigits && n <= MaxPhoneDigits
}

// Format strips non-digits and trunk zeros, then prepends the country code to
// numbers that look national.
func (p PhonePolicy) Format(raw string) string {
	digits := strings.TrimLeft(digitsOnly(raw), "0")

	switch len(digits) {
	case 10:
		return p.CountryCode + digits
	case 11:
		if p.MobilePrefix != "" && strings.HasPrefix(digits, p.MobilePrefix) {
			return p.CountryCode + digits
		}
		if !strings.HasPrefix(digits, p.CountryCode) {
			return p.CountryCode + digits
		}
	}

	return digits
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
