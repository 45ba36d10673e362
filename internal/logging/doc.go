// Package logging provides leveled logging over the standard library logger.
// The level is controlled by the LOG_LEVEL environment variable (debug, info,
// warn, error) or by setting DEBUG=true.
package logging
