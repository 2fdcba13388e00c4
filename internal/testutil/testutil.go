package testutil

import (
	"context"
	"database/sql"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc/metadata"

	"orderFulfillmentTracking/internal/db"
	"orderFulfillmentTracking/models"
)

// OpenInMemoryDB opens an in-memory SQLite database and applies migrations.
// Caller is responsible for closing the DB, typically via t.Cleanup.
func OpenInMemoryDB(t *testing.T, name string) *sql.DB {
	t.Helper()
	// Shared cache so multiple connections see the same database.
	d, err := db.Open("file:" + name + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

// GenerateJWTHS256 returns a signed JWT string with minimal claims used by the app.
func GenerateJWTHS256(t *testing.T, secret, name, kind string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"name": name,
		"kind": kind,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

// CtxWithBearer returns a context containing gRPC metadata Authorization header with the given token.
func CtxWithBearer(ctx context.Context, token string) context.Context {
	md := metadata.Pairs("authorization", "Bearer "+token)
	return metadata.NewIncomingContext(ctx, md)
}

// SampleOrder builds a valid priced order for tests.
func SampleOrder(t *testing.T, customerID string) *models.Order {
	t.Helper()
	now := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	o, err := models.NewOrder(customerID,
		[]models.LineItem{{ProductID: "prod-1", Title: "Espresso machine", UnitPrice: 100, Quantity: 1}},
		models.Shipping{Type: models.ShippingTypeNew, Address: "12 King Fahd Rd", Phone: "+966500000001", Cost: 5},
		nil, now)
	if err != nil {
		t.Fatalf("sample order: %v", err)
	}
	return o
}
