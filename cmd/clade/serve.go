package main

import (
	"context"
	"log/slog"

	"github.com/imoran/clade/pkg/api"
	"github.com/imoran/clade/pkg/config"
	"github.com/imoran/clade/pkg/mcp"
	"github.com/imoran/clade/pkg/telemetry"
)

func runServe(ctx context.Context, cfg *config.Config) error {
	shutdown, err := telemetry.InitWithConfig("clade", version, telemetry.Config{
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	})
	if err != nil {
		return err
	}
	defer shutdown(context.Background())

	eng, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.store.Close()

	server := api.NewServer(eng.manager, api.WithArchive(eng.store))
	slog.InfoContext(ctx, "clade.serving", "addr", cfg.Server.Addr)
	return api.ListenAndServe(ctx, cfg.Server.Addr, server, cfg.Server.ShutdownTimeout)
}

func runMCP(ctx context.Context, cfg *config.Config) error {
	eng, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.store.Close()

	slog.InfoContext(ctx, "clade.mcp_serving")
	return mcp.NewServer(eng.manager, version).ServeStdio()
}
