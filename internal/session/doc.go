// Package session owns the authenticated-session lifecycle: opaque
// credential records on disk and a synchronized cache of live platform
// connections. Obtaining a connection resumes silently from a stored
// credential when possible and only falls back to the interactive login
// challenge when the platform requires it.
package session
