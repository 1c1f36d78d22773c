// Package hash provides keyed digests for short-lived secrets.
//
// Storage backends only ever see the digest of a passcode. Verification
// recomputes the digest and compares it in constant time.
package hash
