package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"golang.org/x/sync/singleflight"
)

const (
	outcomeApplied = "applied"
	outcomeStale   = "stale"
	outcomeError   = "error"
	outcomeOK      = "ok"
)

// Recorder receives cart refresh and mutation outcomes.
type Recorder interface {
	ObserveRefresh(outcome string, duration time.Duration)
	ObserveMutation(operation, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveRefresh(string, time.Duration) {}
func (nopRecorder) ObserveMutation(string, string)       {}

// Service runs the cart refresh-and-render cycle for a session.
type Service interface {
	View(ctx context.Context, sessionID string) (*View, error)
	Refresh(ctx context.Context, sessionID string) (*View, error)
	ItemCount(ctx context.Context, sessionID string) (int, error)
	AddItem(ctx context.Context, sessionID string, input AddItemInput) error
	ChangeQuantity(ctx context.Context, sessionID, itemID string, requested int) error
	Increment(ctx context.Context, sessionID, itemID string) error
	Decrement(ctx context.Context, sessionID, itemID string) error
	RemoveItem(ctx context.Context, sessionID, itemID string) (*View, error)
	MarkChanged(ctx context.Context, sessionID string) error
	Forget(ctx context.Context, sessionID string) error
}

type service struct {
	remote   Remote
	holder   Holder
	policy   ShippingPolicy
	logg     *logger.Logger
	recorder Recorder
	group    singleflight.Group
	now      func() time.Time
}

// NewService builds the cart service. recorder may be nil.
func NewService(remote Remote, holder Holder, policy ShippingPolicy, logg *logger.Logger, recorder Recorder) (Service, error) {
	if remote == nil {
		return nil, fmt.Errorf("cart remote required")
	}
	if holder == nil {
		return nil, fmt.Errorf("cart holder required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &service{
		remote:   remote,
		holder:   holder,
		policy:   policy,
		logg:     logg,
		recorder: recorder,
		now:      time.Now,
	}, nil
}

// View renders the cached cart, refreshing first when nothing is cached or the count
// signal moved since the cached snapshot was fetched.
func (s *service) View(ctx context.Context, sessionID string) (*View, error) {
	if err := requireSession(sessionID); err != nil {
		return nil, err
	}
	snap, fresh, err := s.cached(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !fresh {
		return s.Refresh(ctx, sessionID)
	}
	view := Summarize(&snap.Cart, s.policy)
	return &view, nil
}

// Refresh fetches the authoritative cart and replaces the cached snapshot wholesale.
// Concurrent refreshes for one session share a single fetch.
func (s *service) Refresh(ctx context.Context, sessionID string) (*View, error) {
	if err := requireSession(sessionID); err != nil {
		return nil, err
	}
	res, err, _ := s.group.Do(sessionID, func() (any, error) {
		return s.refresh(context.WithoutCancel(ctx), sessionID)
	})
	if err != nil {
		return nil, err
	}
	c := res.(*Cart)
	view := Summarize(c, s.policy)
	return &view, nil
}

func (s *service) refresh(ctx context.Context, sessionID string) (*Cart, error) {
	start := s.now()
	ctx = s.logg.WithSessionID(ctx, sessionID)

	signal, err := s.holder.Count(ctx, sessionID)
	if err != nil {
		s.recorder.ObserveRefresh(outcomeError, s.now().Sub(start))
		return nil, err
	}
	ticket, err := s.holder.NextTicket(ctx, sessionID)
	if err != nil {
		s.recorder.ObserveRefresh(outcomeError, s.now().Sub(start))
		return nil, err
	}

	fetched, err := s.remote.FetchCart(ctx, sessionID)
	if err != nil {
		s.recorder.ObserveRefresh(outcomeError, s.now().Sub(start))
		s.logg.Error(ctx, "cart.refresh.fetch_failed", err)
		return nil, err
	}

	applied, err := s.holder.Replace(ctx, sessionID, Snapshot{
		Cart:      *fetched,
		Signal:    signal,
		Ticket:    ticket,
		FetchedAt: s.now().UTC(),
	})
	if err != nil {
		s.recorder.ObserveRefresh(outcomeError, s.now().Sub(start))
		return nil, err
	}
	if applied {
		s.recorder.ObserveRefresh(outcomeApplied, s.now().Sub(start))
		return fetched, nil
	}

	// A newer refresh already landed; render what it stored.
	s.recorder.ObserveRefresh(outcomeStale, s.now().Sub(start))
	s.logg.Debug(s.logg.WithField(ctx, "ticket", ticket), "cart.refresh.stale_response_dropped")
	newer, err := s.holder.Load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return fetched, nil
		}
		return nil, err
	}
	return &newer.Cart, nil
}

// ItemCount returns the number of line items, refreshing only when the cache is cold or stale.
func (s *service) ItemCount(ctx context.Context, sessionID string) (int, error) {
	view, err := s.View(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	return len(view.Lines), nil
}

func (s *service) AddItem(ctx context.Context, sessionID string, input AddItemInput) error {
	if err := requireSession(sessionID); err != nil {
		return err
	}
	if strings.TrimSpace(input.ProductID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "product_id is required")
	}
	input.Quantity = ClampQuantity(input.Quantity)
	if err := s.remote.AddItem(ctx, sessionID, input); err != nil {
		s.recorder.ObserveMutation("add_item", outcomeError)
		return err
	}
	s.recorder.ObserveMutation("add_item", outcomeOK)
	s.signalChanged(ctx, sessionID)
	return nil
}

// ChangeQuantity sends the clamped quantity for an item. The cached snapshot is never
// patched; the bumped count signal makes the next View refresh.
func (s *service) ChangeQuantity(ctx context.Context, sessionID, itemID string, requested int) error {
	item, err := s.lineItem(ctx, sessionID, itemID)
	if err != nil {
		return err
	}
	return s.sendQuantity(ctx, sessionID, item, ClampQuantity(requested))
}

func (s *service) Increment(ctx context.Context, sessionID, itemID string) error {
	item, err := s.lineItem(ctx, sessionID, itemID)
	if err != nil {
		return err
	}
	return s.sendQuantity(ctx, sessionID, item, Increment(item.Quantity))
}

func (s *service) Decrement(ctx context.Context, sessionID, itemID string) error {
	item, err := s.lineItem(ctx, sessionID, itemID)
	if err != nil {
		return err
	}
	return s.sendQuantity(ctx, sessionID, item, Decrement(item.Quantity))
}

func (s *service) sendQuantity(ctx context.Context, sessionID string, item LineItem, quantity int) error {
	err := s.remote.UpdateItem(ctx, UpdateItemInput{
		ItemID:      item.ID,
		Quantity:    quantity,
		ContainerID: item.ContainerID,
		ProductID:   item.ProductID,
	})
	if err != nil {
		s.recorder.ObserveMutation("update_item", outcomeError)
		return err
	}
	s.recorder.ObserveMutation("update_item", outcomeOK)
	s.signalChanged(ctx, sessionID)
	return nil
}

// RemoveItem deletes the line from the remote cart and then refreshes explicitly.
func (s *service) RemoveItem(ctx context.Context, sessionID, itemID string) (*View, error) {
	if err := requireSession(sessionID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(itemID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}
	snap, _, err := s.cached(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if snap == nil || snap.Cart.ID == "" {
		if _, err := s.Refresh(ctx, sessionID); err != nil {
			return nil, err
		}
		if snap, err = s.holder.Load(ctx, sessionID); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "cart not found")
		}
	}
	if snap.Cart.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
	}

	if err := s.remote.DeleteItem(ctx, snap.Cart.ID, itemID); err != nil {
		s.recorder.ObserveMutation("delete_item", outcomeError)
		return nil, err
	}
	s.recorder.ObserveMutation("delete_item", outcomeOK)
	s.group.Forget(sessionID)
	return s.Refresh(ctx, sessionID)
}

// MarkChanged bumps the count signal after a completed mutation. Refreshes already in
// flight are detached so later callers fetch again.
func (s *service) MarkChanged(ctx context.Context, sessionID string) error {
	s.group.Forget(sessionID)
	if _, err := s.holder.BumpCount(ctx, sessionID); err != nil {
		return err
	}
	return nil
}

// signalChanged bumps the count signal after a remote mutation that already succeeded.
// A failure is logged, not returned; the remote change has already happened.
func (s *service) signalChanged(ctx context.Context, sessionID string) {
	if err := s.MarkChanged(ctx, sessionID); err != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"session_id": sessionID, "error": err.Error()}), "cart.signal_failed")
	}
}

// Forget drops the cached cart for a session.
func (s *service) Forget(ctx context.Context, sessionID string) error {
	if err := requireSession(sessionID); err != nil {
		return err
	}
	return s.holder.Clear(ctx, sessionID)
}

// cached returns the held snapshot and whether it is still current with the count signal.
func (s *service) cached(ctx context.Context, sessionID string) (*Snapshot, bool, error) {
	snap, err := s.holder.Load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, err
	}
	signal, err := s.holder.Count(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	return snap, snap.Signal == signal, nil
}

func (s *service) lineItem(ctx context.Context, sessionID, itemID string) (LineItem, error) {
	if err := requireSession(sessionID); err != nil {
		return LineItem{}, err
	}
	if strings.TrimSpace(itemID) == "" {
		return LineItem{}, pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}
	snap, _, err := s.cached(ctx, sessionID)
	if err != nil {
		return LineItem{}, err
	}
	if snap != nil {
		if item, ok := snap.Cart.Item(itemID); ok {
			return item, nil
		}
	}
	// Unknown to the cache; the item may have been added since the last fetch.
	if _, err := s.Refresh(ctx, sessionID); err != nil {
		return LineItem{}, err
	}
	snap, err = s.holder.Load(ctx, sessionID)
	if err != nil && !errors.Is(err, ErrCacheMiss) {
		return LineItem{}, err
	}
	if snap != nil {
		if item, ok := snap.Cart.Item(itemID); ok {
			return item, nil
		}
	}
	return LineItem{}, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
}

func requireSession(sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "cart session required")
	}
	return nil
}
