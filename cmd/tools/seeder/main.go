package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/noah-isme/hotel-payments/internal/booking"
)

func main() {
	priceID := flag.String("price", "", "Stripe price id for seeded hotels (test mode)")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}
	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}
	if *priceID == "" {
		*priceID = strings.TrimSpace(os.Getenv("SEED_STRIPE_PRICE_ID"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	store := booking.NewStore(pool)
	hotels := seedHotels(ctx, store, *priceID)
	seedBookings(ctx, store, hotels)

	log.Println("Seeding completed successfully!")
}

func seedHotels(ctx context.Context, store *booking.Store, priceID string) []booking.Hotel {
	hotels := []booking.Hotel{
		{ID: "hotel-harbour-view", Name: "Harbour View", City: "Lisbon", StripePriceID: priceID, Attributes: map[string]any{"stars": 4}},
		{ID: "hotel-alpine-lodge", Name: "Alpine Lodge", City: "Innsbruck", StripePriceID: priceID, Attributes: map[string]any{"stars": 3}},
		// Deliberately unpriced to exercise the configuration error path.
		{ID: "hotel-unpriced", Name: "Coming Soon Inn", City: "Porto"},
	}
	log.Println("Seeding hotels...")
	for _, h := range hotels {
		if err := store.UpsertHotel(ctx, h); err != nil {
			log.Fatalf("seed hotel %s: %v", h.ID, err)
		}
	}
	if priceID == "" {
		log.Println("No price id given; every hotel is unpriced")
	}
	return hotels
}

func seedBookings(ctx context.Context, store *booking.Store, hotels []booking.Hotel) {
	log.Println("Seeding bookings...")
	checkIn := time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, 14).Add(14 * time.Hour)
	for i, h := range hotels {
		nights := i + 2
		b := booking.Booking{
			ID:         uuid.NewString(),
			HotelID:    h.ID,
			UserID:     "guest-" + uuid.NewString()[:8],
			CheckIn:    checkIn,
			CheckOut:   checkIn.AddDate(0, 0, nights).Add(-3 * time.Hour),
			Attributes: map[string]any{"guests": 2},
		}
		if err := store.UpsertBooking(ctx, b); err != nil {
			log.Fatalf("seed booking for %s: %v", h.ID, err)
		}
		log.Printf("booking %s at %s for %d nights", b.ID, h.Name, b.Nights())
	}
}
