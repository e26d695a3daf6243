// Package logx wraps zerolog behind a small structured-logging facade.
//
// It provides:
//   - a Logger value type with fixed-field derivation (With)
//   - a Service that owns the sinks (console, file) and can re-apply
//     configuration at runtime without invalidating existing Loggers
package logx
