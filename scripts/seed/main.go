// Command seed fills an empty catalog with demo products.
//
//	go run ./scripts/seed [-file products.json]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/Gazel/SecureKasir/internal/app"
	"github.com/Gazel/SecureKasir/internal/catalog"
)

func stock(n int64) *int64 { return &n }

var demoProducts = []catalog.ProductInput{
	{Name: "Kopi Susu Gula Aren", Price: 18000, Category: "Minuman"},
	{Name: "Americano", Price: 15000, Category: "Minuman"},
	{Name: "Es Teh Manis", Price: 5000, Category: "Minuman"},
	{Name: "Air Mineral", Price: 4000, Category: "Minuman", Stock: stock(48)},
	{Name: "Nasi Goreng", Price: 22000, Category: "Makanan"},
	{Name: "Mie Goreng", Price: 20000, Category: "Makanan"},
	{Name: "Roti Bakar Coklat", Price: 15000, Category: "Makanan", Stock: stock(20)},
	{Name: "Pisang Goreng", Price: 10000, Category: "Camilan", Stock: stock(30)},
	{Name: "Kerupuk", Price: 2000, Category: "Camilan", Stock: stock(100)},
}

func main() {
	file := flag.String("file", "", "JSON array of products to load instead of the demo set")
	flag.Parse()

	if err := run(context.Background(), *file); err != nil {
		slog.Default().Error("seed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, file string) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := app.NewLogger(cfg)
	if cfg.StoreDriver == app.DriverMemory {
		return fmt.Errorf("memory store is per process; set STORE_DRIVER")
	}

	products := demoProducts
	if file != "" {
		raw, err := os.ReadFile(file)
		if err != nil {
			return err
		}
		products = nil
		if err := json.Unmarshal(raw, &products); err != nil {
			return fmt.Errorf("decode %s: %w", file, err)
		}
	}

	backend, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	svc := catalog.NewService(backend.Store, nil)
	existing, err := svc.List(ctx, catalog.ListFilter{})
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		logger.Info("catalog already has products, skipping", slog.Int("count", len(existing)))
		return nil
	}
	for _, in := range products {
		p, err := svc.Create(ctx, in)
		if err != nil {
			return fmt.Errorf("create %q: %w", in.Name, err)
		}
		logger.Info("seeded product", slog.String("id", p.ID), slog.String("name", p.Name))
	}
	return nil
}
