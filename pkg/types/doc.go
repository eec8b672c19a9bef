// Package types defines the Todo entity, the row and watch types exchanged
// with a reactive data source, the Source interfaces implemented by the
// embedded backend and the RPC client, and the standard error values.
package types
