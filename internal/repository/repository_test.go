package repository

import (
	"context"
	"errors"
	"math"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/caniparkhere/caniparkhere/apps/api/pkg/model"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestIsoTimeIsFixedWidth(t *testing.T) {
	a := isoTime(time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC))
	b := isoTime(time.Date(2025, 1, 2, 3, 4, 5, 120_000_000, time.FixedZone("PST", -8*3600)))
	if a != "2025-01-02T03:04:05.000Z" {
		t.Fatalf("isoTime = %q", a)
	}
	if len(a) != len(b) || !(a < b) {
		t.Fatalf("expected fixed-width, ordered values: %q %q", a, b)
	}
}

func TestIsNotFound(t *testing.T) {
	if !isNotFound(status.Error(codes.NotFound, "missing")) {
		t.Fatalf("expected NotFound status to match")
	}
	if isNotFound(errors.New("boom")) || isNotFound(nil) {
		t.Fatalf("unexpected match")
	}
}

func TestPointerFieldsMatchEntry(t *testing.T) {
	addr := "85 Pike St, Seattle, WA"
	e := model.ParkingEntry{ID: "e1", Lat: 47.6097, Lng: -122.3422, Address: &addr, SavedAtISO: "2025-01-02T03:04:05.000Z"}
	f := pointerFields("u1", e, "2025-01-02T03:04:06.000Z")
	if f["entryId"] != "e1" || f["entryPath"] != "users/u1/history/e1" {
		t.Fatalf("unexpected pointer fields %v", f)
	}
	denorm := f["denorm"].(map[string]interface{})
	if denorm["lat"] != e.Lat || denorm["lng"] != e.Lng || denorm["savedAtISO"] != e.SavedAtISO {
		t.Fatalf("denorm mismatch %v", denorm)
	}

	cleared := clearedPointerFields("x")
	if cleared["entryId"] != nil || cleared["denorm"] != nil || cleared["updatedAtISO"] != "x" {
		t.Fatalf("unexpected cleared fields %v", cleared)
	}
}

func TestBoundingBox(t *testing.T) {
	latD, lngD := boundingBox(0, 111)
	if math.Abs(latD-1) > 1e-9 || math.Abs(lngD-1) > 1e-9 {
		t.Fatalf("equator box = %v, %v", latD, lngD)
	}
	_, lngD = boundingBox(60, 111)
	if math.Abs(lngD-2) > 1e-6 {
		t.Fatalf("60N lng delta = %v, want 2", lngD)
	}
	if _, lngD = boundingBox(90, 1); lngD != 180 {
		t.Fatalf("pole lng delta = %v", lngD)
	}
}

func TestLngDistanceWrapsAntimeridian(t *testing.T) {
	cases := []struct {
		a, b, want float64
	}{
		{-122.3, -122.301, 0.001},
		{179.99, -179.99, 0.02},
		{-179.5, 179.5, 1},
		{10, -10, 20},
		{0, 180, 180},
		{90, -90, 180},
	}
	for _, c := range cases {
		if got := lngDistance(c.a, c.b); math.Abs(got-c.want) > 1e-9 {
			t.Errorf("lngDistance(%v, %v) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
	_, lngD := boundingBox(0, 5)
	if lngDistance(179.99, -179.99) > lngD {
		t.Fatalf("pins across the antimeridian should fall inside a 5km box")
	}
}

func TestStatIncrementTargetsNestedCounter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("PST", -8*3600))
	ups := statIncrement(model.StatPinsCreated, now)
	if len(ups) != 2 {
		t.Fatalf("updates = %+v", ups)
	}
	if ups[0].Path != "stats."+string(model.StatPinsCreated) {
		t.Errorf("counter path = %q", ups[0].Path)
	}
	if ups[1].Path != "lastSeen" || !ups[1].Value.(time.Time).Equal(now) || ups[1].Value.(time.Time).Location() != time.UTC {
		t.Errorf("lastSeen update = %+v", ups[1])
	}
}

func TestIncrementRejectsUnknownStat(t *testing.T) {
	r := &UserRepository{now: time.Now}
	if err := r.IncrementUserStat(context.Background(), "u1", "parkingSaved"); !errors.Is(err, ErrUnknownStat) {
		t.Fatalf("expected ErrUnknownStat, got %v", err)
	}
}

func TestAddParkingEntryValidatesBeforeWriting(t *testing.T) {
	r := &HistoryRepository{now: time.Now}
	lat := math.NaN()
	lng := -122.3
	_, err := r.AddParkingEntry(context.Background(), "u1", model.ParkingEntryInput{Lat: &lat, Lng: &lng, Source: model.SourceGPS})
	if !errors.Is(err, model.ErrInvalidCoordinates) {
		t.Fatalf("expected ErrInvalidCoordinates, got %v", err)
	}
	if _, err := r.AddParkingEntry(context.Background(), "u1", model.ParkingEntryInput{Lng: &lng, Source: model.SourceGPS}); !errors.Is(err, model.ErrInvalidCoordinates) {
		t.Fatalf("expected ErrInvalidCoordinates for missing lat, got %v", err)
	}
}

// The tests below need a running Firestore emulator.

func emulatorClient(t *testing.T) *firestore.Client {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	client, err := firestore.NewClient(context.Background(), "caniparkhere-test")
	if err != nil {
		t.Fatalf("firestore client: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func floatPtr(f float64) *float64 { return &f }

func TestHistoryPointerLifecycle(t *testing.T) {
	client := emulatorClient(t)
	ctx := context.Background()
	repo := NewHistoryRepository(client)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	repo.now = func() time.Time { tick++; return base.Add(time.Duration(tick) * time.Second) }
	uid := "u-" + uuid.NewString()

	if got, err := repo.GetLastParked(ctx, uid, true); err != nil || got != nil {
		t.Fatalf("new user last parked = %+v, %v", got, err)
	}

	first, err := repo.AddParkingEntry(ctx, uid, model.ParkingEntryInput{Lat: floatPtr(47.61), Lng: floatPtr(-122.33), Source: model.SourceGPS})
	if err != nil {
		t.Fatalf("add first: %v", err)
	}
	second, err := repo.AddParkingEntry(ctx, uid, model.ParkingEntryInput{Lat: floatPtr(47.62), Lng: floatPtr(-122.34), Source: model.SourceSearch})
	if err != nil {
		t.Fatalf("add second: %v", err)
	}
	if second.Source != model.SourceManual {
		t.Fatalf("search source stored as %q", second.Source)
	}

	last, err := repo.GetLastParked(ctx, uid, true)
	if err != nil {
		t.Fatalf("get last: %v", err)
	}
	if *last.Pointer.EntryID != second.ID || last.Pointer.Denorm.Lat != 47.62 || last.Pointer.Denorm.Lng != -122.34 {
		t.Fatalf("pointer = %+v", last.Pointer)
	}
	if last.History == nil || last.History.ID != second.ID {
		t.Fatalf("resolved history = %+v", last.History)
	}

	note := "level 3"
	if err := repo.UpdateParkingNote(ctx, uid, second.ID, &note, true); err != nil {
		t.Fatalf("update note: %v", err)
	}
	after, _ := repo.GetLastParked(ctx, uid, false)
	if after.Pointer.UpdatedAtISO <= last.Pointer.UpdatedAtISO || after.Pointer.Denorm.SavedAtISO != last.Pointer.Denorm.SavedAtISO {
		t.Fatalf("note edit should only touch updatedAtISO: before %+v after %+v", last.Pointer, after.Pointer)
	}
	if err := repo.UpdateParkingNote(ctx, uid, "missing", &note, true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := repo.DeleteParkingEntry(ctx, uid, second.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	last, _ = repo.GetLastParked(ctx, uid, true)
	if *last.Pointer.EntryID != first.ID || last.History == nil {
		t.Fatalf("pointer should fall back to first entry, got %+v", last.Pointer)
	}

	if err := repo.ClearLastParked(ctx, uid); err != nil {
		t.Fatalf("clear: %v", err)
	}
	last, _ = repo.GetLastParked(ctx, uid, true)
	if !last.Pointer.Cleared() || last.History != nil {
		t.Fatalf("expected cleared pointer, got %+v", last)
	}
	page, err := repo.GetParkingHistory(ctx, uid, 10, "")
	if err != nil || len(page.Items) != 1 {
		t.Fatalf("history after clear = %+v, %v", page, err)
	}
}

func TestHistoryPaging(t *testing.T) {
	client := emulatorClient(t)
	ctx := context.Background()
	repo := NewHistoryRepository(client)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	repo.now = func() time.Time { tick++; return base.Add(time.Duration(tick) * time.Minute) }
	uid := "u-" + uuid.NewString()

	for i := 0; i < 5; i++ {
		if _, err := repo.AddParkingEntry(ctx, uid, model.ParkingEntryInput{Lat: floatPtr(47 + float64(i)/100), Lng: floatPtr(-122), Source: model.SourcePOI}); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}

	var seen []string
	cursor := ""
	for pages := 0; pages < 5; pages++ {
		page, err := repo.GetParkingHistory(ctx, uid, 2, cursor)
		if err != nil {
			t.Fatalf("page %d: %v", pages, err)
		}
		for _, e := range page.Items {
			seen = append(seen, e.SavedAtISO)
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	if len(seen) != 5 {
		t.Fatalf("saw %d entries", len(seen))
	}
	for i := 1; i < len(seen); i++ {
		if seen[i-1] <= seen[i] {
			t.Fatalf("entries not newest-first: %v", seen)
		}
	}
}

func TestUserProfileSyncAndStats(t *testing.T) {
	client := emulatorClient(t)
	ctx := context.Background()
	uid := "user_" + uuid.NewString()
	repo := NewUserRepository(client, nil)

	p, _, err := repo.SyncUserProfile(ctx, model.IdentityUser{ID: uid, EmailAddresses: []string{"a@example.com"}, FirstName: "Ada"})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if p.Preferences != model.DefaultPreferences() || p.Stats != (model.UserStats{}) {
		t.Fatalf("new profile = %+v", p)
	}

	for i := 0; i < 3; i++ {
		if err := repo.IncrementUserStat(ctx, uid, model.StatSignsAnalyzed); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}
	if _, _, err := repo.SyncUserProfile(ctx, model.IdentityUser{ID: uid, FirstName: "Ada", LastName: "L"}); err != nil {
		t.Fatalf("resync: %v", err)
	}
	got, err := repo.GetUserProfile(ctx, uid)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Stats.SignsAnalyzed != 3 || got.LastName == nil || *got.LastName != "L" {
		t.Fatalf("profile after resync = %+v", got)
	}

	limit := 40
	prefs, err := repo.UpdateUserPreferences(ctx, uid, model.PreferencesPatch{SpotsLimit: &limit})
	if err != nil {
		t.Fatalf("prefs: %v", err)
	}
	if prefs.SpotsLimit != 20 || !prefs.Notifications {
		t.Fatalf("prefs = %+v", prefs)
	}
}

func TestTicketsAndPins(t *testing.T) {
	client := emulatorClient(t)
	ctx := context.Background()
	uid := "user_" + uuid.NewString()
	users := NewUserRepository(client, nil)
	if _, _, err := users.SyncUserProfile(ctx, model.IdentityUser{ID: uid}); err != nil {
		t.Fatalf("sync: %v", err)
	}

	tickets := NewTicketRepository(client)
	tk, err := tickets.AddTicket(ctx, model.ParkingTicket{UserID: uid, Title: " Expired meter ", Location: model.Coordinate{Lat: 47.6, Lng: -122.3}})
	if err != nil {
		t.Fatalf("add ticket: %v", err)
	}
	if err := tickets.SetTicketPaid(ctx, tk.ID, true); err != nil {
		t.Fatalf("paid: %v", err)
	}
	list, err := tickets.ListUserTickets(ctx, uid)
	if err != nil || len(list) != 1 || !list[0].Paid || list[0].Title != "Expired meter" {
		t.Fatalf("tickets = %+v, %v", list, err)
	}
	if err := tickets.DeleteTicket(ctx, tk.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := tickets.DeleteTicket(ctx, tk.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	pins := NewPinRepository(client)
	if _, err := pins.SavePin(ctx, model.ParkingPin{UserID: uid, Lat: 47.6, Lng: -122.3, Note: "free after 6"}); err != nil {
		t.Fatalf("save pin: %v", err)
	}
	near, err := pins.PinsInArea(ctx, 47.601, -122.301, 1)
	if err != nil || len(near) == 0 {
		t.Fatalf("pins near = %+v, %v", near, err)
	}

	p, _ := users.GetUserProfile(ctx, uid)
	if p.Stats.TicketsReported != 1 || p.Stats.PinsCreated != 1 {
		t.Fatalf("stats = %+v", p.Stats)
	}
}

func TestCommunityWritesRequireProfile(t *testing.T) {
	client := emulatorClient(t)
	ctx := context.Background()
	uid := "user_" + uuid.NewString()

	tickets := NewTicketRepository(client)
	if _, err := tickets.AddTicket(ctx, model.ParkingTicket{UserID: uid, Title: "Street cleaning", Location: model.Coordinate{Lat: 47.6, Lng: -122.3}}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("add ticket without profile: expected ErrNotFound, got %v", err)
	}
	pins := NewPinRepository(client)
	if _, err := pins.SavePin(ctx, model.ParkingPin{UserID: uid, Lat: 47.6, Lng: -122.3}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("save pin without profile: expected ErrNotFound, got %v", err)
	}

	if _, err := client.Collection("users").Doc(uid).Get(ctx); status.Code(err) != codes.NotFound {
		t.Fatalf("expected no stub profile, got %v", err)
	}
	list, err := tickets.ListUserTickets(ctx, uid)
	if err != nil || len(list) != 0 {
		t.Fatalf("tickets = %+v, %v", list, err)
	}
}

func TestPinsInAreaAcrossAntimeridian(t *testing.T) {
	client := emulatorClient(t)
	ctx := context.Background()
	uid := "user_" + uuid.NewString()
	if _, _, err := NewUserRepository(client, nil).SyncUserProfile(ctx, model.IdentityUser{ID: uid}); err != nil {
		t.Fatalf("sync: %v", err)
	}
	pins := NewPinRepository(client)
	saved, err := pins.SavePin(ctx, model.ParkingPin{UserID: uid, Lat: -16.5, Lng: -179.995, Note: "dateline"})
	if err != nil {
		t.Fatalf("save pin: %v", err)
	}
	near, err := pins.PinsInArea(ctx, -16.5, 179.995, 2)
	if err != nil {
		t.Fatalf("pins in area: %v", err)
	}
	for _, p := range near {
		if p.ID == saved.ID {
			return
		}
	}
	t.Fatalf("pin %s not found across the antimeridian: %+v", saved.ID, near)
}
