// Package api provides the HTTP REST API for Conduit.
//
// It exposes the device tree (names, connect states, sources), the
// connect journal, and reconnect triggers to operators and dashboards.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use.
package api
