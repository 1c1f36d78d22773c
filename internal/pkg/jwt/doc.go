// Package jwt issues and verifies short-lived access grants as JSON Web Tokens.
//
// A grant proves that its bearer recently verified a one-time passcode for
// the identity carried in the claims.
package jwt
