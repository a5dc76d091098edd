// Package config loads relay configuration from environment variables.
//
// Every numeric threshold the relay uses (dispatch interval, breaker trip
// count, cooldowns, cache TTL, retry ceiling) is configuration, not a
// hard-coded constant.
package config
