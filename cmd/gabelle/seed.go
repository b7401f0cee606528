package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alecgard/gabelle/internal/config"
	"github.com/alecgard/gabelle/internal/crypto"
	"github.com/alecgard/gabelle/internal/usage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed demo usage records",
	RunE:  runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

// demoTexts imitate recognized pages: words joined with a trailing separator.
var demoTexts = []string{
	"invoice,no,1042,total,due,184.00,",
	"shipping,manifest,container,MSKU,778210,3,pallets,",
	"meeting,notes,q3,budget,review,action,items,follow,up,",
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	cipher, err := crypto.NewCipher(cfg.Encryption.Key)
	if err != nil {
		return err
	}
	store := usage.NewStore(pool, cipher)

	// Check if seed has already run.
	existing, err := store.GetSummary(ctx, usage.Query{})
	if err != nil {
		return fmt.Errorf("checking existing records: %w", err)
	}
	if existing.TotalRecords > 0 {
		slog.Info("usage records already exist, skipping seed")
		return nil
	}

	now := time.Now().UTC()
	records := make([]usage.Record, 0, len(demoTexts))
	for i, text := range demoTexts {
		words := 0
		for _, c := range text {
			if c == ',' {
				words++
			}
		}
		records = append(records, usage.Record{
			ID:             uuid.NewString(),
			SubscriptionID: "demo-subscription",
			PlanID:         "demo-plan",
			DimensionID:    "pageprocessed",
			OcrText:        text,
			WordCount:      words,
			MeterProcessed: false,
			CreatedAt:      now.Add(-time.Duration(len(demoTexts)-i) * time.Hour),
		})
	}

	if err := store.BatchInsert(ctx, records); err != nil {
		return fmt.Errorf("inserting demo records: %w", err)
	}

	slog.Info("seeded demo usage records", "count", len(records))
	fmt.Printf("\n=== Demo Data Seeded ===\n")
	fmt.Printf("Usage records: %d (all pending metering)\n", len(records))
	fmt.Printf("\nTry it:\n")
	fmt.Printf("  curl -H 'Authorization: Bearer $GABELLE_ADMIN_KEY' http://localhost:8080/api/v1/admin/usage\n")
	fmt.Printf("  curl -H 'Authorization: Bearer $GABELLE_ADMIN_KEY' http://localhost:8080/api/v1/admin/usage/records/unprocessed\n")

	return nil
}
