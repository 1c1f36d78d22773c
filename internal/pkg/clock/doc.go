// Package clock abstracts the wall clock.
//
// Expiry checks and token lifetimes read the time through Clocker so tests can
// pin it.
package clock
