// Package journal persists the outcome of every connect attempt.
//
// Journal implements the device monitor contract: finished attempts are
// written to the connect_attempts table with their attempt ID, mode,
// elapsed time, and error text. Recent and Prune support the API's
// history endpoint and retention.
package journal
