package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"snackngo/internal/chat"
	"snackngo/internal/extract"
	"snackngo/internal/model"
)

// fakeStore keeps orders in memory with the adapter's partial-update
// semantics (whitelist, nil clears, unknown keys dropped).
type fakeStore struct {
	mu        sync.Mutex
	orders    map[string]*model.Order
	nextID    int64
	createErr error
	updateErr error
	getErr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{orders: map[string]*model.Order{}}
}

func (s *fakeStore) Create(_ context.Context, userID, conversationID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return 0, s.createErr
	}
	s.nextID++
	s.orders[conversationID] = &model.Order{
		ID:             s.nextID,
		ConversationID: conversationID,
		UserID:         userID,
		Status:         model.StageAwaitingAppSelection,
	}
	return s.nextID, nil
}

func (s *fakeStore) Get(_ context.Context, conversationID string) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	o, ok := s.orders[conversationID]
	if !ok {
		return nil, nil
	}
	cp := cloneOrder(o)
	return &cp, nil
}

func (s *fakeStore) Update(_ context.Context, conversationID string, fields map[string]any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return false, s.updateErr
	}
	o, ok := s.orders[conversationID]
	if !ok {
		return false, nil
	}
	if err := o.Apply(fields); err != nil {
		return false, err
	}
	return true, nil
}

// current returns the canonical stored record for assertions.
func (s *fakeStore) current(conversationID string) *model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[conversationID]
}

func cloneOrder(o *model.Order) model.Order {
	cp := *o
	cp.AppUsed = cloneP(o.AppUsed)
	cp.RestaurantName = cloneP(o.RestaurantName)
	cp.RestaurantAddress = cloneP(o.RestaurantAddress)
	cp.OrderPlacementTime = cloneP(o.OrderPlacementTime)
	cp.EarliestEstimatedArrivalTime = cloneP(o.EarliestEstimatedArrivalTime)
	cp.LatestEstimatedArrivalTime = cloneP(o.LatestEstimatedArrivalTime)
	cp.OrderCompletionTime = cloneP(o.OrderCompletionTime)
	cp.PlacementScreenshotPath = cloneP(o.PlacementScreenshotPath)
	cp.CompletionScreenshotPath = cloneP(o.CompletionScreenshotPath)
	return cp
}

func cloneP[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// fakeExtractor returns scripted fields per stage context and counts calls.
type fakeExtractor struct {
	results map[extract.StageContext]*extract.Fields
	err     error
	calls   int
}

func (f *fakeExtractor) Extract(_ context.Context, _ string, stage extract.StageContext) (*extract.Fields, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if r, ok := f.results[stage]; ok {
		cp := *r
		return &cp, nil
	}
	return &extract.Fields{}, nil
}

// fakeSender records everything sent and mints conversation ids.
type fakeSender struct {
	mu        sync.Mutex
	sent      []sentMessage
	created   int
	archived  []string
	createErr error
}

type sentMessage struct {
	ConversationID string
	Msg            chat.Message
}

func (f *fakeSender) Send(_ context.Context, conversationID string, msg chat.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{ConversationID: conversationID, Msg: msg})
	return nil
}

func (f *fakeSender) CreateConversation(_ context.Context, _, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created++
	return fmt.Sprintf("conv-%d", f.created), nil
}

func (f *fakeSender) ArchiveConversation(_ context.Context, conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archived = append(f.archived, conversationID)
	return nil
}

func (f *fakeSender) last() (sentMessage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return sentMessage{}, false
	}
	return f.sent[len(f.sent)-1], true
}

func (f *fakeSender) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = nil
}

var errBoom = errors.New("boom")
