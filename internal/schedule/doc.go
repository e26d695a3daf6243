// Package schedule runs recurring broadcasts declared in the config file.
// Each entry pairs a cron spec with a message and a set of sender accounts;
// the service re-registers its jobs whenever the config is reloaded.
package schedule
