// Package mcp exposes the operation facade as Model Context Protocol tools
// over stdio. Every tool call is authorized through the tenant bound at
// startup; mutating tools can be disabled wholesale for read-only
// deployments, and every mutation emits an audit line through the redaction
// boundary.
package mcp

import (
	"context"
	"log/slog"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/promogate/promogate/internal/ads"
	"github.com/promogate/promogate/internal/reqctx"
)

const serverName = "promogate"

// Server bridges MCP tool calls into the facade.
type Server struct {
	svc       *ads.Service
	logger    *slog.Logger
	version   string
	tenantID  string
	principal string
	admin     bool
	readOnly  bool
}

type Option func(*Server)

// WithTenant binds every tool call to one tenant.
func WithTenant(tenantID string) Option {
	return func(s *Server) { s.tenantID = tenantID }
}

// WithPrincipal names the operator identity recorded in audit lines.
func WithPrincipal(principal string) Option {
	return func(s *Server) { s.principal = principal }
}

// WithPlatformAdmin marks the session as platform-administrative.
func WithPlatformAdmin(admin bool) Option {
	return func(s *Server) { s.admin = admin }
}

// WithReadOnly disables all mutating tools.
func WithReadOnly(readOnly bool) Option {
	return func(s *Server) { s.readOnly = readOnly }
}

func WithVersion(version string) Option {
	return func(s *Server) { s.version = version }
}

func NewServer(svc *ads.Service, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{svc: svc, logger: logger, version: "0.0.0-dev"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) rc() reqctx.Context {
	return reqctx.Context{
		TenantID:      s.tenantID,
		UserID:        s.principal,
		PlatformAdmin: s.admin,
	}
}

// build assembles the SDK server with all tools registered.
func (s *Server) build() *sdk.Server {
	server := sdk.NewServer(&sdk.Implementation{Name: serverName, Version: s.version}, nil)

	sdk.AddTool(server, &sdk.Tool{
		Name:        "list_campaigns",
		Description: "List campaigns on an ad account, optionally filtered by effective status.",
	}, listCampaignsHandler(s))
	sdk.AddTool(server, &sdk.Tool{
		Name:        "list_adsets",
		Description: "List ad sets on an ad account or under a campaign.",
	}, listAdSetsHandler(s))
	sdk.AddTool(server, &sdk.Tool{
		Name:        "list_ads",
		Description: "List ads on an ad account or under an ad set.",
	}, listAdsHandler(s))
	sdk.AddTool(server, &sdk.Tool{
		Name:        "get_insights",
		Description: "Retrieve aggregated performance metrics for an account, campaign, ad set or ad.",
	}, getInsightsHandler(s))
	sdk.AddTool(server, &sdk.Tool{
		Name:        "list_pages",
		Description: "List the confirmed pages on record for an ad account, including the default page.",
	}, listPagesHandler(s))
	sdk.AddTool(server, &sdk.Tool{
		Name:        "get_compliance_settings",
		Description: "Read the regulatory disclosure values (beneficiary, payor) for an ad account.",
	}, getComplianceHandler(s))
	sdk.AddTool(server, &sdk.Tool{
		Name:        "runtime_metrics",
		Description: "Snapshot of runtime counters: requests, rate limit hits, cooldowns, policy outcomes.",
	}, metricsHandler(s))

	if s.readOnly {
		return server
	}

	sdk.AddTool(server, &sdk.Tool{
		Name:        "create_campaign",
		Description: "Create a campaign. Requires an explicit daily or lifetime budget; new campaigns start paused.",
	}, createCampaignHandler(s))
	sdk.AddTool(server, &sdk.Tool{
		Name:        "update_campaign",
		Description: "Update a campaign's name, status or budget. Budget increases are policy checked.",
	}, updateCampaignHandler(s))
	sdk.AddTool(server, &sdk.Tool{
		Name:        "duplicate_campaign",
		Description: "Duplicate a campaign via the copies edge. Deep copies require approval.",
	}, duplicateCampaignHandler(s))
	sdk.AddTool(server, &sdk.Tool{
		Name:        "create_adset",
		Description: "Create an ad set under a campaign. Requires an explicit budget.",
	}, createAdSetHandler(s))
	sdk.AddTool(server, &sdk.Tool{
		Name:        "update_adset",
		Description: "Update an ad set's name, status, bid or budget.",
	}, updateAdSetHandler(s))
	sdk.AddTool(server, &sdk.Tool{
		Name:        "create_ad",
		Description: "Create an ad under an ad set. Regulated targeting gets disclosure fields attached; inline creatives resolve the promoted page locally.",
	}, createAdHandler(s))
	sdk.AddTool(server, &sdk.Tool{
		Name:        "update_ad",
		Description: "Update an ad's name or status.",
	}, updateAdHandler(s))
	sdk.AddTool(server, &sdk.Tool{
		Name:        "set_default_page",
		Description: "Persist the default promoted page for an ad account.",
	}, setDefaultPageHandler(s))
	sdk.AddTool(server, &sdk.Tool{
		Name:        "launch_cascade",
		Description: "Create a campaign, ad set and ad in one run, auto-correcting known rejections within per-category limits.",
	}, launchCascadeHandler(s))
	sdk.AddTool(server, &sdk.Tool{
		Name:        "set_compliance_settings",
		Description: "Set the regulatory disclosure values (beneficiary, payor) for an ad account.",
	}, setComplianceHandler(s))

	return server
}

// Serve runs the server over stdio until the context ends or the client
// disconnects.
func (s *Server) Serve(ctx context.Context) error {
	return s.build().Run(ctx, &sdk.StdioTransport{})
}
