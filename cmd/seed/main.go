// Command seed populates a fresh database with a seller identity, bank
// details, and a couple of demo clients so the API is usable right away.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/steuerkern/api/internal/apperr"
	"github.com/steuerkern/api/internal/config"
	"github.com/steuerkern/api/internal/database"
	"github.com/steuerkern/api/internal/services/client"
	"github.com/steuerkern/api/internal/services/settings"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg := config.LoadDev()

	pool, err := database.Connect(context.Background(), cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.Migrate(cfg.DatabaseURL); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	settingsSvc := settings.NewService(pool, logger)
	clientSvc := client.NewService(pool, logger)

	var existing settings.Seller
	if err := settingsSvc.Get(ctx, settings.KeySeller, &existing); err == nil {
		fmt.Printf("Seller %q already configured, nothing to do\n", existing.Name)
		os.Exit(0)
	} else if !apperr.IsNotFound(err) {
		slog.Error("failed to read seller setting", "error", err)
		os.Exit(1)
	}

	seller := settings.Seller{
		Name:        "Mustermann IT-Beratung",
		Street:      "Beispielstr. 12",
		PostalCode:  "10115",
		City:        "Berlin",
		CountryCode: "DE",
		TaxNumber:   "1121081508150",
		VATID:       "DE123456789",
		Email:       "kontakt@mustermann-it.example",
	}
	if err := settingsSvc.Set(ctx, settings.KeySeller, seller); err != nil {
		slog.Error("failed to seed seller", "error", err)
		os.Exit(1)
	}

	bank := settings.Bank{
		IBAN:        "DE02120300000000202051",
		BIC:         "BYLADEM1001",
		AccountName: "Max Mustermann",
	}
	if err := settingsSvc.Set(ctx, settings.KeyBank, bank); err != nil {
		slog.Error("failed to seed bank details", "error", err)
		os.Exit(1)
	}

	if err := settingsSvc.Set(ctx, settings.KeyHomeofficeEnabled, true); err != nil {
		slog.Error("failed to seed homeoffice flag", "error", err)
		os.Exit(1)
	}

	demoClients := []client.Input{
		{
			Name:       "Beispiel GmbH",
			Street:     "Industrieweg 3",
			PostalCode: "80331",
			City:       "München",
			VATID:      "DE811111111",
			Email:      "buchhaltung@beispiel.example",
		},
		{
			Name:        "Exemple SARL",
			Street:      "12 Rue de la Paix",
			PostalCode:  "75002",
			City:        "Paris",
			CountryCode: "FR",
			VATID:       "FR32123456789",
		},
	}
	for _, in := range demoClients {
		c, err := clientSvc.Create(ctx, in)
		if err != nil {
			slog.Error("failed to seed client", "name", in.Name, "error", err)
			os.Exit(1)
		}
		fmt.Printf("Client created: %s (%s)\n", c.Name, c.ID)
	}

	fmt.Printf("Seller %q seeded. API ready at %s/api/v1\n", seller.Name, cfg.BaseURL)
}
