// Package journal records per-send broadcast outcomes so delivery history
// survives the process. It is optional: with no driver configured every
// append is a no-op for callers holding a nil Store.
package journal
