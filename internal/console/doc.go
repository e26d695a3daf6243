// Package console is the operator-facing bot. Operators register accounts,
// assign broadcast destinations and trigger broadcasts through it, and it is
// the channel login challenges and alerts travel over.
package console
