// Package app wires the daemon together: config, logging, the platform
// driver, session management, the account registry, dispatch, schedules and
// the operator console.
package app
