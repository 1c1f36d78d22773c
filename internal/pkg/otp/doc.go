// Package otp generates numeric one-time passcodes.
//
// Codes are drawn digit by digit from a cryptographically secure source using
// rejection sampling, so every digit is uniform over 0-9 and independent of
// the others.
package otp
