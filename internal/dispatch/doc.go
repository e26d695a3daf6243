// Package dispatch fans a message out across managed accounts to their
// assigned destinations. Delivery is best-effort: every send is isolated,
// failures are recorded per destination and never abort siblings. Media is
// staged in a private scratch directory for the duration of each send and
// always cleaned up, error paths included.
package dispatch
