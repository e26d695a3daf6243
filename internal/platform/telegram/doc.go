// Package telegram is the Telegram driver. It speaks MTProto through
// gotd/td, runs the interactive phone/code/password login through the
// host's prompts and serializes sessions as opaque base64 tokens.
//
// Link it with a blank import and select it with driver "telegram".
package telegram
