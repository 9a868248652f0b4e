// Package config loads the payrolld configuration from a JSON file, applies
// environment overrides (optionally from a .env file) and fills defaults that
// target the Kite testnet.
package config
