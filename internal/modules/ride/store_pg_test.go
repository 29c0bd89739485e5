// README: Postgres-backed conditional-write tests (run with -race).
package ride

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"gocab/internal/types"
)

func TestPGConcurrentAcceptSameRide(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	r := newPGRide("ride_pg_accept", StatusOfferPending)
	if err := store.Create(ctx, r); err != nil {
		t.Fatalf("create ride: %v", err)
	}

	const attempts = 8
	var wg sync.WaitGroup
	wins := make(chan types.ID, attempts)

	for i := 0; i < attempts; i++ {
		driverID := types.ID(fmt.Sprintf("d_pg_%d", i))
		wg.Add(1)
		go func(did types.ID) {
			defer wg.Done()
			ok, err := store.UpdateStatus(ctx, r.ID, StatusOfferPending, StatusAccepted, 0, &did)
			if err != nil {
				t.Errorf("update status: %v", err)
				return
			}
			if ok {
				wins <- did
			}
		}(driverID)
	}

	wg.Wait()
	close(wins)

	var winners []types.ID
	for did := range wins {
		winners = append(winners, did)
	}
	if len(winners) != 1 {
		t.Fatalf("expected exactly 1 winner, got %d", len(winners))
	}

	got, err := store.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("get ride: %v", err)
	}
	if got.Status != StatusAccepted {
		t.Fatalf("unexpected final status: %s", got.Status)
	}
	if got.StatusVersion != 1 {
		t.Fatalf("expected status_version 1, got %d", got.StatusVersion)
	}
	if got.DriverID == nil || *got.DriverID != winners[0] {
		t.Fatalf("driver_id does not match winner %s", winners[0])
	}
	if got.AcceptedAt == nil {
		t.Fatalf("expected accepted_at to be set")
	}
	if got.IsSearching {
		t.Fatalf("expected is_searching to drop on accept")
	}
}

func TestPGOfferCursorMovesForwardOnly(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	r := newPGRide("ride_pg_cursor", StatusSearching)
	if err := store.Create(ctx, r); err != nil {
		t.Fatalf("create ride: %v", err)
	}

	ok, err := store.MarkOffered(ctx, r.ID, 0, 0)
	if err != nil || !ok {
		t.Fatalf("mark offered: ok=%v err=%v", ok, err)
	}

	// Stale writer still at version 0 must not win.
	ok, err = store.MarkOffered(ctx, r.ID, 0, 0)
	if err != nil {
		t.Fatalf("stale mark offered: %v", err)
	}
	if ok {
		t.Fatalf("stale mark offered should have lost")
	}

	ok, err = store.AdvanceOffer(ctx, r.ID, 1, 0)
	if err != nil || !ok {
		t.Fatalf("advance offer: ok=%v err=%v", ok, err)
	}

	got, err := store.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("get ride: %v", err)
	}
	if got.Status != StatusSearching || got.OfferIndex != 1 || got.StatusVersion != 2 {
		t.Fatalf("unexpected state after advance: status=%s index=%d version=%d",
			got.Status, got.OfferIndex, got.StatusVersion)
	}

	// A timer firing for the already-advanced offer is a no-op.
	ok, err = store.AdvanceOffer(ctx, r.ID, 1, 0)
	if err != nil {
		t.Fatalf("stale advance offer: %v", err)
	}
	if ok {
		t.Fatalf("stale advance offer should have lost")
	}
}

func TestPGExpireIsIdempotentAcrossVersions(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	r := newPGRide("ride_pg_expire", StatusSearching)
	if err := store.Create(ctx, r); err != nil {
		t.Fatalf("create ride: %v", err)
	}

	ok, err := store.Expire(ctx, r.ID, 0)
	if err != nil || !ok {
		t.Fatalf("expire: ok=%v err=%v", ok, err)
	}
	ok, err = store.Expire(ctx, r.ID, 1)
	if err != nil {
		t.Fatalf("second expire: %v", err)
	}
	if ok {
		t.Fatalf("expire on a terminal ride should have lost")
	}

	got, err := store.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("get ride: %v", err)
	}
	if got.Status != StatusExpired || got.ExpiredAt == nil {
		t.Fatalf("unexpected state after expire: status=%s", got.Status)
	}
}

func TestPGCompleteTripWritesFinalFareOnce(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	r := newPGRide("ride_pg_complete", StatusOngoingTrip)
	did := types.ID("d_pg_0")
	r.DriverID = &did
	if err := store.Create(ctx, r); err != nil {
		t.Fatalf("create ride: %v", err)
	}

	fare := types.Money{Amount: 12800, Currency: "INR"}
	ok, err := store.CompleteTrip(ctx, r.ID, 0, fare)
	if err != nil || !ok {
		t.Fatalf("complete trip: ok=%v err=%v", ok, err)
	}
	ok, err = store.CompleteTrip(ctx, r.ID, 0, types.Money{Amount: 99999, Currency: "INR"})
	if err != nil {
		t.Fatalf("second complete: %v", err)
	}
	if ok {
		t.Fatalf("second complete should have lost")
	}

	got, err := store.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("get ride: %v", err)
	}
	if got.Status != StatusCompleted || got.CompletedAt == nil {
		t.Fatalf("unexpected state after complete: status=%s", got.Status)
	}
	if got.FinalFare == nil || got.FinalFare.Amount != 12800 {
		t.Fatalf("unexpected final fare: %+v", got.FinalFare)
	}
}

func newPGRide(id types.ID, status Status) *Ride {
	return &Ride{
		ID:             id,
		RiderID:        "u_pg_rider",
		Kind:           KindRide,
		CategoryID:     "cat_pg_test",
		Status:         status,
		StatusVersion:  0,
		Pickup:         types.Point{Lat: 12.9716, Lng: 77.5946},
		Drop:           types.Point{Lat: 12.9352, Lng: 77.6245},
		TripDistanceKm: 6.4,
		TripDuration:   18 * time.Minute,
		FareEstimate:   types.Money{Amount: 11000, Currency: "INR"},
		Candidates:     []types.ID{"d_pg_0", "d_pg_1", "d_pg_2"},
		IsSearching:    true,
		CanBeCancelled: true,
		CreatedAt:      time.Now().UTC(),
	}
}

func setupTestStore(t *testing.T) *PGStore {
	t.Helper()

	dsn := os.Getenv("GOCAB_TEST_DSN")
	if dsn == "" {
		t.Skip("GOCAB_TEST_DSN not set; skipping DB-backed store tests")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := applyMigration(ctx, db); err != nil {
		t.Fatalf("apply migration: %v", err)
	}

	if _, err := db.Exec(ctx, "TRUNCATE TABLE ride_state_events, rides"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
	if err := seedFixtures(ctx, db); err != nil {
		t.Fatalf("seed fixtures: %v", err)
	}

	return NewPGStore(db)
}

func seedFixtures(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, `
		INSERT INTO categories (id, name, base_fare, per_km, min_fare)
		VALUES ('cat_pg_test', 'Test Mini', 3000, 1500, 5000)
		ON CONFLICT (id) DO NOTHING`); err != nil {
		return err
	}
	if _, err := db.Exec(ctx, `
		INSERT INTO users (id, name, phone)
		VALUES ('u_pg_rider', 'PG Rider', '9000000000')
		ON CONFLICT (id) DO NOTHING`); err != nil {
		return err
	}
	for i := 0; i < 8; i++ {
		if _, err := db.Exec(ctx, `
			INSERT INTO drivers (id, name, phone, category_id)
			VALUES ($1, $2, $3, 'cat_pg_test')
			ON CONFLICT (id) DO NOTHING`,
			fmt.Sprintf("d_pg_%d", i), fmt.Sprintf("PG Driver %d", i), fmt.Sprintf("900000001%d", i),
		); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *pgxpool.Pool) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}
	path := filepath.Join(root, "migrations", "0001_init.sql")
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	cleaned := stripSQLComments(string(content))
	for _, stmt := range splitSQL(cleaned) {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for i := 0; i < 6; i++ {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", os.ErrNotExist
}

func stripSQLComments(input string) string {
	var b strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(input))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		b.WriteString(scanner.Text())
		b.WriteString("\n")
	}
	return b.String()
}

func splitSQL(input string) []string {
	parts := strings.Split(input, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		stmt := strings.TrimSpace(p)
		if stmt == "" {
			continue
		}
		out = append(out, stmt)
	}
	return out
}
