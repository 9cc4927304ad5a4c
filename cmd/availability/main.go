package main

import (
	"context"

	"carecal/internal/availability/handler"
	"carecal/internal/platform"
	slotshandler "carecal/internal/slots/handler"
	"carecal/pkg/app"
	"carecal/pkg/config"
)

const ServiceName = "availability"

func main() {
	cfg := config.Load(ServiceName)

	cfg.Log.Info("Starting Availability service")
	p, err := platform.New(cfg, ServiceName)
	if err != nil {
		cfg.Log.Fatal("Failed to initialize platform", "error", err)
	}

	serverApp := app.NewApplication()
	serverApp.SetApp(cfg,
		handler.NewRuleHandler(p.Rules, cfg.Log),
		slotshandler.NewSlotHandler(p.Slots, cfg.Log),
	)
	serverApp.OnShutdown(func(ctx context.Context) { p.Close(ctx) })
	serverApp.Run()
}
