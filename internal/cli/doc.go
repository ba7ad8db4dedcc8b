// Package cli implements the ferry command tree: worker, requeue and
// purge_failed. Configuration comes from a JSON file (--file or
// FERRY_CONFIG_FILE), FERRY_* environment variables and flags, in that
// order of increasing precedence.
package cli
