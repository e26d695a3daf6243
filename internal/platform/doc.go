// Package platform defines the port to the messaging platform.
//
// The wire protocol is deliberately out of scope: a concrete driver links
// itself in via Register() and everything above this package only sees the
// Dialer/Client interfaces. The interactive parts of the login protocol are
// expressed as LoginPrompts callbacks so a driver never talks to an
// operator directly.
package platform
