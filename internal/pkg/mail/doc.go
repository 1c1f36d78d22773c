// Package mail defines the contracts for sending email messages.
//
// Use cases work with the Mail interface and Message payload. Two drivers are
// provided: a plain net/smtp sender and a gomail dialer that also speaks
// implicit TLS.
package mail
