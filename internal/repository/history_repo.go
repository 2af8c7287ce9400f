package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/caniparkhere/caniparkhere/apps/api/pkg/model"
	"github.com/caniparkhere/caniparkhere/apps/api/pkg/util"
	"google.golang.org/api/iterator"
)

const (
	defaultHistoryPage = 20
	maxHistoryPage     = 100
)

// HistoryRepository stores the per-user parking log (users/{uid}/history) and the
// lastParked/current pointer to its newest entry.
type HistoryRepository struct {
	client *firestore.Client
	now    func() time.Time
}

func NewHistoryRepository(client *firestore.Client) *HistoryRepository {
	return &HistoryRepository{client: client, now: time.Now}
}

// HistoryPage is one page of history entries, newest first.
type HistoryPage struct {
	Items      []model.ParkingEntry `json:"items"`
	NextCursor string               `json:"nextCursor,omitempty"`
}

func (r *HistoryRepository) historyCol(userID string) *firestore.CollectionRef {
	return r.client.Collection("users").Doc(userID).Collection("history")
}

func (r *HistoryRepository) pointerRef(userID string) *firestore.DocumentRef {
	return r.client.Collection("users").Doc(userID).Collection("lastParked").Doc("current")
}

func entryPath(userID, entryID string) string {
	return "users/" + userID + "/history/" + entryID
}

func pointerFields(userID string, e model.ParkingEntry, updatedAt string) map[string]interface{} {
	return map[string]interface{}{
		"entryId":   e.ID,
		"entryPath": entryPath(userID, e.ID),
		"denorm": map[string]interface{}{
			"lat":        e.Lat,
			"lng":        e.Lng,
			"address":    e.Address,
			"savedAtISO": e.SavedAtISO,
		},
		"updatedAtISO": updatedAt,
	}
}

func clearedPointerFields(updatedAt string) map[string]interface{} {
	return map[string]interface{}{
		"entryId":      nil,
		"entryPath":    nil,
		"denorm":       nil,
		"updatedAtISO": updatedAt,
	}
}

// AddParkingEntry appends an entry and repoints lastParked/current at it. Both writes
// are committed in one batch.
func (r *HistoryRepository) AddParkingEntry(ctx context.Context, userID string, in model.ParkingEntryInput) (model.ParkingEntry, error) {
	if userID == "" {
		return model.ParkingEntry{}, ErrUserRequired
	}
	if err := in.Validate(); err != nil {
		return model.ParkingEntry{}, err
	}

	now := isoTime(r.now())
	ref := r.historyCol(userID).NewDoc()
	entry := model.ParkingEntry{
		ID:         ref.ID,
		Lat:        *in.Lat,
		Lng:        *in.Lng,
		Address:    util.CleanAddressPtr(in.Address),
		SavedAtISO: now,
		Source:     in.Source.Normalize(),
		Note:       trimmedPtr(in.Note),
	}

	batch := r.client.Batch()
	batch.Set(ref, entry)
	batch.Set(r.pointerRef(userID), pointerFields(userID, entry, now), firestore.MergeAll)
	if _, err := batch.Commit(ctx); err != nil {
		return model.ParkingEntry{}, fmt.Errorf("add parking entry for %s: %w", userID, err)
	}
	return entry, nil
}

// GetLastParked reads the pointer. It returns nil when the user has never saved a
// location. With resolveHistory the referenced entry is loaded as well.
func (r *HistoryRepository) GetLastParked(ctx context.Context, userID string, resolveHistory bool) (*model.LastParked, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}
	snap, err := r.pointerRef(userID).Get(ctx)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get last parked for %s: %w", userID, err)
	}
	pointer, err := decodePointer(snap)
	if err != nil {
		return nil, err
	}

	out := &model.LastParked{Pointer: pointer}
	if !resolveHistory || pointer.Cleared() {
		return out, nil
	}

	entrySnap, err := r.historyCol(userID).Doc(*pointer.EntryID).Get(ctx)
	if isNotFound(err) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve history entry %s: %w", *pointer.EntryID, err)
	}
	entry, err := decodeEntry(entrySnap)
	if err != nil {
		return nil, err
	}
	out.History = &entry
	return out, nil
}

// GetParkingHistory returns up to limit entries ordered by savedAtISO descending,
// starting after cursor. The returned cursor is empty on the last page.
func (r *HistoryRepository) GetParkingHistory(ctx context.Context, userID string, limit int, cursor string) (HistoryPage, error) {
	if userID == "" {
		return HistoryPage{}, ErrUserRequired
	}
	if limit <= 0 {
		limit = defaultHistoryPage
	}
	if limit > maxHistoryPage {
		limit = maxHistoryPage
	}
	after, err := util.DecodeCursor(cursor)
	if err != nil {
		return HistoryPage{}, err
	}

	q := r.historyCol(userID).
		OrderBy("savedAtISO", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Desc)
	if after != nil {
		q = q.StartAfter(after.SavedAtISO, after.DocID)
	}
	// One extra document tells us whether another page exists.
	iter := q.Limit(limit + 1).Documents(ctx)
	defer iter.Stop()

	page := HistoryPage{Items: make([]model.ParkingEntry, 0, limit)}
	more := false
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return HistoryPage{}, fmt.Errorf("iterate history for %s: %w", userID, err)
		}
		if len(page.Items) == limit {
			more = true
			break
		}
		entry, err := decodeEntry(doc)
		if err != nil {
			return HistoryPage{}, err
		}
		page.Items = append(page.Items, entry)
	}

	if more {
		last := page.Items[len(page.Items)-1]
		page.NextCursor = util.EncodeCursor(util.PageCursor{SavedAtISO: last.SavedAtISO, DocID: last.ID})
	}
	return page, nil
}

// UpdateParkingNote edits an entry's note. When refreshPointer is set and the entry is
// the one lastParked references, only the pointer's updatedAtISO is touched.
func (r *HistoryRepository) UpdateParkingNote(ctx context.Context, userID, entryID string, note *string, refreshPointer bool) error {
	if userID == "" || entryID == "" {
		return ErrUserRequired
	}
	entryRef := r.historyCol(userID).Doc(entryID)
	pointerRef := r.pointerRef(userID)

	return r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(entryRef); err != nil {
			if isNotFound(err) {
				return fmt.Errorf("history entry %s: %w", entryID, ErrNotFound)
			}
			return fmt.Errorf("get history entry %s: %w", entryID, err)
		}

		touchPointer := false
		if refreshPointer {
			snap, err := tx.Get(pointerRef)
			switch {
			case isNotFound(err):
			case err != nil:
				return fmt.Errorf("get last parked for %s: %w", userID, err)
			default:
				pointer, err := decodePointer(snap)
				if err != nil {
					return err
				}
				touchPointer = !pointer.Cleared() && *pointer.EntryID == entryID
			}
		}

		if err := tx.Update(entryRef, []firestore.Update{{Path: "note", Value: trimmedPtr(note)}}); err != nil {
			return err
		}
		if touchPointer {
			return tx.Set(pointerRef, map[string]interface{}{"updatedAtISO": isoTime(r.now())}, firestore.MergeAll)
		}
		return nil
	})
}

// ClearLastParked nulls the pointer fields. History entries are not touched.
func (r *HistoryRepository) ClearLastParked(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrUserRequired
	}
	if _, err := r.pointerRef(userID).Set(ctx, clearedPointerFields(isoTime(r.now())), firestore.MergeAll); err != nil {
		return fmt.Errorf("clear last parked for %s: %w", userID, err)
	}
	return nil
}

// DeleteParkingEntry removes an entry. If lastParked referenced it, the pointer moves
// to the newest remaining entry or is cleared, inside the same transaction.
func (r *HistoryRepository) DeleteParkingEntry(ctx context.Context, userID, entryID string) error {
	if userID == "" || entryID == "" {
		return ErrUserRequired
	}
	entryRef := r.historyCol(userID).Doc(entryID)
	pointerRef := r.pointerRef(userID)

	return r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(entryRef); err != nil {
			if isNotFound(err) {
				return fmt.Errorf("history entry %s: %w", entryID, ErrNotFound)
			}
			return fmt.Errorf("get history entry %s: %w", entryID, err)
		}

		var repoint map[string]interface{}
		snap, err := tx.Get(pointerRef)
		switch {
		case isNotFound(err):
		case err != nil:
			return fmt.Errorf("get last parked for %s: %w", userID, err)
		default:
			pointer, err := decodePointer(snap)
			if err != nil {
				return err
			}
			if !pointer.Cleared() && *pointer.EntryID == entryID {
				next, err := r.newestOtherEntry(tx, userID, entryID)
				if err != nil {
					return err
				}
				now := isoTime(r.now())
				if next == nil {
					repoint = clearedPointerFields(now)
				} else {
					repoint = pointerFields(userID, *next, now)
				}
			}
		}

		if err := tx.Delete(entryRef); err != nil {
			return err
		}
		if repoint != nil {
			return tx.Set(pointerRef, repoint, firestore.MergeAll)
		}
		return nil
	})
}

func (r *HistoryRepository) newestOtherEntry(tx *firestore.Transaction, userID, excludeID string) (*model.ParkingEntry, error) {
	q := r.historyCol(userID).
		OrderBy("savedAtISO", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Desc).
		Limit(2)
	docs, err := tx.Documents(q).GetAll()
	if err != nil {
		return nil, fmt.Errorf("find newest history entry for %s: %w", userID, err)
	}
	for _, doc := range docs {
		if doc.Ref.ID == excludeID {
			continue
		}
		entry, err := decodeEntry(doc)
		if err != nil {
			return nil, err
		}
		return &entry, nil
	}
	return nil, nil
}

func decodeEntry(snap *firestore.DocumentSnapshot) (model.ParkingEntry, error) {
	var e model.ParkingEntry
	if err := snap.DataTo(&e); err != nil {
		return model.ParkingEntry{}, fmt.Errorf("%w: history entry %s: %v", model.ErrMalformedDocument, snap.Ref.ID, err)
	}
	e.ID = snap.Ref.ID
	if err := e.Validate(); err != nil {
		return model.ParkingEntry{}, fmt.Errorf("%w: history entry %s: %v", model.ErrMalformedDocument, snap.Ref.ID, err)
	}
	return e, nil
}

func decodePointer(snap *firestore.DocumentSnapshot) (model.LastParkedPointer, error) {
	var p model.LastParkedPointer
	if err := snap.DataTo(&p); err != nil {
		return model.LastParkedPointer{}, fmt.Errorf("%w: last parked pointer: %v", model.ErrMalformedDocument, err)
	}
	if err := p.Validate(); err != nil {
		return model.LastParkedPointer{}, fmt.Errorf("%w: last parked pointer: %v", model.ErrMalformedDocument, err)
	}
	return p, nil
}

func trimmedPtr(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}
