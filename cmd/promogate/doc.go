// Command promogate runs the Promogate advertising gateway.
//
// Promogate mediates outbound calls to a third-party advertising platform on
// behalf of isolated tenants, enforcing tenant isolation and mutation policy
// before any network call, and exposes the governed operations as MCP tools
// on stdio.
//
// Install:
//
//	go install github.com/promogate/promogate/cmd/promogate@latest
//
// Usage:
//
//	promogate serve [--dotenv ./.env]
package main
