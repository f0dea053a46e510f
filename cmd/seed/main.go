// Command seed inserts demo rows into the change log so the cursor service
// has something to translate. Development tool only.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/avolkov/choreo/internal/entity"
	"github.com/avolkov/choreo/internal/repo/persistent"
	"github.com/avolkov/choreo/pkg/postgres"
)

func main() {
	orders := flag.Int("orders", 10, "number of Order rows to insert")
	customers := flag.Int("customers", 5, "number of Customer rows to insert")
	flag.Parse()

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			log.Fatalf("config error: %s", err)
		}
	}

	pg, err := postgres.New(os.Getenv("PG_URL"))
	if err != nil {
		log.Fatalf("seed - postgres.New: %s", err)
	}
	defer pg.Close()

	changeLog := persistent.NewChangeLogRepo(pg)

	ctx := context.Background()
	now := time.Now().UTC()

	// All rows land in one transaction so the cursor service sees the whole
	// batch at once.
	err = pg.WithinTransaction(ctx, func(ctx context.Context) error {
		for i := 0; i < *orders; i++ {
			orderID := uuid.New()

			snapshot, err := json.Marshal(entity.OrderPayload{
				OrderID:    orderID,
				CustomerID: uuid.New(),
				TotalCents: int64(rand.Intn(100_000)),
				Currency:   "EUR",
				Status:     "new",
				OccurredAt: now,
			})
			if err != nil {
				return err
			}

			id, err := changeLog.Append(ctx, &entity.ChangeRow{
				EntityType:  entity.EntityOrder,
				EntityID:    orderID,
				Operation:   entity.OpCreated,
				Snapshot:    snapshot,
				CommittedAt: now,
			})
			if err != nil {
				return err
			}

			log.Printf("seed - change_log row %d (Order %s)", id, orderID)
		}

		for i := 0; i < *customers; i++ {
			customerID := uuid.New()

			snapshot, err := json.Marshal(entity.CustomerPayload{
				CustomerID: customerID,
				Email:      uuid.NewString()[:8] + "@example.com",
				Name:       "Customer " + uuid.NewString()[:8],
				OccurredAt: now,
			})
			if err != nil {
				return err
			}

			id, err := changeLog.Append(ctx, &entity.ChangeRow{
				EntityType:  entity.EntityCustomer,
				EntityID:    customerID,
				Operation:   entity.OpCreated,
				Snapshot:    snapshot,
				CommittedAt: now,
			})
			if err != nil {
				return err
			}

			log.Printf("seed - change_log row %d (Customer %s)", id, customerID)
		}

		return nil
	})
	if err != nil {
		log.Fatalf("seed - pg.WithinTransaction: %s", err)
	}

	log.Printf("seed - done: %d orders, %d customers", *orders, *customers)
}
