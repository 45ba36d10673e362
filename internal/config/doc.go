// Package config loads and validates engine configuration from environment
// variables, with an optional .env file providing defaults.
package config
