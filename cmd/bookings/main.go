package main

import (
	"context"

	"carecal/internal/bookings/handler"
	"carecal/internal/platform"
	"carecal/pkg/app"
	"carecal/pkg/config"
)

const ServiceName = "bookings"

func main() {
	cfg := config.Load(ServiceName)

	cfg.Log.Info("Starting Bookings service")
	p, err := platform.New(cfg, ServiceName)
	if err != nil {
		cfg.Log.Fatal("Failed to initialize platform", "error", err)
	}

	serverApp := app.NewApplication()
	serverApp.SetApp(cfg, handler.NewBookingHandler(p.Bookings, cfg.Log))
	serverApp.OnShutdown(func(ctx context.Context) { p.Close(ctx) })
	serverApp.Run()
}
