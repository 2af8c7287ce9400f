package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/caniparkhere/caniparkhere/apps/api/pkg/model"
	"google.golang.org/api/iterator"
)

const ticketsCollection = "parkingTickets"

// TicketRepository manages user-reported parking tickets.
type TicketRepository struct {
	client *firestore.Client
	now    func() time.Time
}

func NewTicketRepository(client *firestore.Client) *TicketRepository {
	return &TicketRepository{client: client, now: time.Now}
}

// AddTicket stores a ticket and bumps the reporter's ticketsReported counter in the
// same batch.
func (r *TicketRepository) AddTicket(ctx context.Context, t model.ParkingTicket) (model.ParkingTicket, error) {
	t.Title = strings.TrimSpace(t.Title)
	if err := t.Validate(); err != nil {
		return model.ParkingTicket{}, err
	}
	ref := r.client.Collection(ticketsCollection).NewDoc()
	t.ID = ref.ID
	t.Timestamp = time.Time{}
	t.CreatedAt = time.Time{}
	t.UpdatedAt = time.Time{}

	batch := r.client.Batch()
	batch.Set(ref, t)
	batch.Update(r.client.Collection("users").Doc(t.UserID), statIncrement(model.StatTicketsReported, r.now()))
	if _, err := batch.Commit(ctx); isNotFound(err) {
		return model.ParkingTicket{}, fmt.Errorf("profile %s: %w", t.UserID, ErrNotFound)
	} else if err != nil {
		return model.ParkingTicket{}, fmt.Errorf("add ticket for %s: %w", t.UserID, err)
	}
	return t, nil
}

func (r *TicketRepository) GetTicket(ctx context.Context, ticketID string) (model.ParkingTicket, error) {
	snap, err := r.client.Collection(ticketsCollection).Doc(ticketID).Get(ctx)
	if isNotFound(err) {
		return model.ParkingTicket{}, fmt.Errorf("ticket %s: %w", ticketID, ErrNotFound)
	}
	if err != nil {
		return model.ParkingTicket{}, fmt.Errorf("get ticket %s: %w", ticketID, err)
	}
	return decodeTicket(snap)
}

// ListUserTickets returns a user's tickets, newest first.
func (r *TicketRepository) ListUserTickets(ctx context.Context, userID string) ([]model.ParkingTicket, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}
	iter := r.client.Collection(ticketsCollection).
		Where("userId", "==", userID).
		OrderBy("timestamp", firestore.Desc).
		Documents(ctx)
	defer iter.Stop()

	var out []model.ParkingTicket
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate tickets for %s: %w", userID, err)
		}
		t, err := decodeTicket(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *TicketRepository) UpdateTicket(ctx context.Context, ticketID string, upd model.TicketUpdate) error {
	var updates []firestore.Update
	if upd.Title != nil {
		title := strings.TrimSpace(*upd.Title)
		if title == "" {
			return errors.New("ticket title is required")
		}
		updates = append(updates, firestore.Update{Path: "title", Value: title})
	}
	if upd.Notes != nil {
		updates = append(updates, firestore.Update{Path: "notes", Value: *upd.Notes})
	}
	if upd.Paid != nil {
		updates = append(updates, firestore.Update{Path: "paid", Value: *upd.Paid})
	}
	if upd.PhotoURL != nil {
		updates = append(updates, firestore.Update{Path: "photoUrl", Value: *upd.PhotoURL})
	}
	updates = append(updates, firestore.Update{Path: "updatedAt", Value: firestore.ServerTimestamp})

	_, err := r.client.Collection(ticketsCollection).Doc(ticketID).Update(ctx, updates)
	if isNotFound(err) {
		return fmt.Errorf("ticket %s: %w", ticketID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update ticket %s: %w", ticketID, err)
	}
	return nil
}

func (r *TicketRepository) SetTicketPaid(ctx context.Context, ticketID string, paid bool) error {
	return r.UpdateTicket(ctx, ticketID, model.TicketUpdate{Paid: &paid})
}

func (r *TicketRepository) DeleteTicket(ctx context.Context, ticketID string) error {
	_, err := r.client.Collection(ticketsCollection).Doc(ticketID).Delete(ctx, firestore.Exists)
	if isNotFound(err) {
		return fmt.Errorf("ticket %s: %w", ticketID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("delete ticket %s: %w", ticketID, err)
	}
	return nil
}

func decodeTicket(snap *firestore.DocumentSnapshot) (model.ParkingTicket, error) {
	var t model.ParkingTicket
	if err := snap.DataTo(&t); err != nil {
		return model.ParkingTicket{}, fmt.Errorf("%w: ticket %s: %v", model.ErrMalformedDocument, snap.Ref.ID, err)
	}
	t.ID = snap.Ref.ID
	if err := t.Validate(); err != nil {
		return model.ParkingTicket{}, fmt.Errorf("%w: ticket %s: %v", model.ErrMalformedDocument, snap.Ref.ID, err)
	}
	return t, nil
}

// statIncrement bumps one counter on an existing users/{uid} document. The
// update fails with NotFound when the profile was never synced.
func statIncrement(stat model.StatName, now time.Time) []firestore.Update {
	return []firestore.Update{
		{Path: "stats." + string(stat), Value: firestore.Increment(1)},
		{Path: "lastSeen", Value: now.UTC()},
	}
}
