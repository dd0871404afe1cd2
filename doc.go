/*
Package promogate documents the Promogate module.

Promogate is a governed orchestration gateway for a third-party advertising
platform. It mediates every outbound API call on behalf of isolated tenants,
adding tenant isolation, mutation policy, retry/backoff, rate-limit cooldown
and compliance autofill, and exposes the resulting operations as MCP tools:

	go install github.com/promogate/promogate/cmd/promogate@latest

Most implementation packages in this repository are internal and are not a
stable public Go API.
*/
package promogate
