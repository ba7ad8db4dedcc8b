// Package memory provides an in-memory archive store for tests and
// single-process deployments. Records are lost when the process exits.
package memory
