package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snackngo/internal/chat"
	"snackngo/internal/extract"
	"snackngo/internal/model"
)

var testNow = time.Date(2025, 3, 29, 12, 0, 0, 0, time.Local)

func newTestEngine(t *testing.T) (*Engine, *fakeStore, *fakeExtractor, *fakeSender) {
	t.Helper()
	store := newFakeStore()
	extractor := &fakeExtractor{results: map[extract.StageContext]*extract.Fields{}}
	sender := &fakeSender{}
	eng := New(store, extractor, sender, t.TempDir())
	eng.now = func() time.Time { return testNow }
	return eng, store, extractor, sender
}

func strP(s string) *string { return &s }
func tsP(h, m int) *int64 {
	ts := time.Date(2025, 3, 29, h, m, 0, 0, time.Local).Unix()
	return &ts
}

func placementFields() *extract.Fields {
	return &extract.Fields{
		RestaurantName:               strP("Hey Tea"),
		OrderPlacementTime:           tsP(20, 17),
		EarliestEstimatedArrivalTime: tsP(21, 0),
		LatestEstimatedArrivalTime:   tsP(21, 30),
	}
}

func arrivalFields() *extract.Fields {
	return &extract.Fields{
		RestaurantAddress:   strP("100 Main St"),
		OrderCompletionTime: tsP(21, 12),
	}
}

func pngUpload(size int) *chat.ImageRef {
	return &chat.ImageRef{
		Name:     "screenshot.png",
		MimeType: "image/png",
		Size:     int64(size),
		Data:     make([]byte, size),
	}
}

// checkFlagInvariant asserts a verification flag is only ever true for a
// field that holds a value.
func checkFlagInvariant(t *testing.T, o *model.Order) {
	t.Helper()
	for _, f := range model.VerifiableFields {
		if o.FieldVerified(f.Column) {
			assert.True(t, o.FieldSet(f.Column),
				"flag %s true without a value", f.VerifiedColumn)
		}
	}
	assert.True(t, o.Status.Valid(), "status %q outside defined stages", o.Status)
}

func handle(t *testing.T, eng *Engine, ev chat.Event) {
	t.Helper()
	require.NoError(t, eng.HandleEvent(context.Background(), ev))
}

func TestFullSubmissionWalkthrough(t *testing.T) {
	eng, store, extractor, sender := newTestEngine(t)
	extractor.results[extract.ContextPlacement] = placementFields()
	extractor.results[extract.ContextArrival] = arrivalFields()
	ctx := context.Background()

	order, err := eng.StartSubmission(ctx, "user-1")
	require.NoError(t, err)
	conv := order.ConversationID
	assert.Equal(t, model.StageAwaitingAppSelection, store.current(conv).Status)

	// App selection.
	handle(t, eng, chat.Event{
		Kind: chat.KindButtonClicked, ConversationID: conv,
		ActionID: chat.ActionSelectApp, Value: "ubereats",
	})
	o := store.current(conv)
	assert.Equal(t, model.StageAwaitingInitialScreenshot, o.Status)
	require.NotNil(t, o.AppUsed)
	assert.Equal(t, model.AppUberEats, *o.AppUsed)
	checkFlagInvariant(t, o)

	// Placement screenshot: extracted fields land, verification begins.
	handle(t, eng, chat.Event{
		Kind: chat.KindImageUploaded, ConversationID: conv, Image: pngUpload(1024),
	})
	o = store.current(conv)
	assert.Equal(t, model.StageVerifyingInitialData, o.Status)
	assert.Equal(t, "Hey Tea", *o.RestaurantName)
	assert.NotNil(t, o.PlacementScreenshotPath)
	checkFlagInvariant(t, o)

	last, ok := sender.last()
	require.True(t, ok)
	assert.Equal(t, chat.MessageVerify, last.Msg.Kind)
	assert.Equal(t, "restaurant_name", last.Msg.Field)

	// Confirm the four extracted fields in prompt order.
	for _, column := range []string{
		"restaurant_name", "order_placement_time",
		"earliest_estimated_arrival_time", "latest_estimated_arrival_time",
	} {
		handle(t, eng, chat.Event{
			Kind: chat.KindButtonClicked, ConversationID: conv,
			ActionID: chat.ActionVerifyYes, Value: column,
		})
		checkFlagInvariant(t, store.current(conv))
	}
	o = store.current(conv)
	assert.Equal(t, model.StageAwaitingCompletionScreenshot, o.Status)

	// Completion screenshot.
	handle(t, eng, chat.Event{
		Kind: chat.KindImageUploaded, ConversationID: conv, Image: pngUpload(2048),
	})
	o = store.current(conv)
	assert.Equal(t, model.StageVerifyingCompletionData, o.Status)
	assert.NotNil(t, o.OrderCompletionTime)
	assert.NotNil(t, o.CompletionScreenshotPath)

	// Completion time first (fixed field order), then the address.
	last, _ = sender.last()
	assert.Equal(t, "order_completion_time", last.Msg.Field)
	handle(t, eng, chat.Event{
		Kind: chat.KindButtonClicked, ConversationID: conv,
		ActionID: chat.ActionVerifyYes, Value: "order_completion_time",
	})

	// Reject the address and correct it by hand.
	handle(t, eng, chat.Event{
		Kind: chat.KindButtonClicked, ConversationID: conv,
		ActionID: chat.ActionVerifyNo, Value: "restaurant_address",
	})
	last, _ = sender.last()
	assert.Equal(t, chat.MessageInput, last.Msg.Kind)
	assert.Equal(t, chat.InputBlockID("restaurant_address", false), last.Msg.BlockID)

	handle(t, eng, chat.Event{
		Kind: chat.KindTextInput, ConversationID: conv,
		BlockID: chat.InputBlockID("restaurant_address", false), Value: "101 Main St",
	})

	// Nothing was missing, so the backfill pass completes the order.
	o = store.current(conv)
	assert.Equal(t, model.StageCompleted, o.Status)
	assert.Equal(t, "101 Main St", *o.RestaurantAddress)
	checkFlagInvariant(t, o)

	last, _ = sender.last()
	assert.Equal(t, chat.MessageComplete, last.Msg.Kind)
}

func TestStartSubmissionRollsBackConversation(t *testing.T) {
	eng, store, _, sender := newTestEngine(t)
	store.createErr = errBoom

	_, err := eng.StartSubmission(context.Background(), "user-1")
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, []string{"conv-1"}, sender.archived)
}

func TestOversizeUploadRejectedWithoutSideEffects(t *testing.T) {
	eng, store, extractor, _ := newTestEngine(t)
	ctx := context.Background()

	order, err := eng.StartSubmission(ctx, "user-1")
	require.NoError(t, err)
	conv := order.ConversationID
	handle(t, eng, chat.Event{
		Kind: chat.KindButtonClicked, ConversationID: conv,
		ActionID: chat.ActionSelectApp, Value: "doordash",
	})

	err = eng.HandleEvent(ctx, chat.Event{
		Kind: chat.KindImageUploaded, ConversationID: conv, Image: pngUpload(6 << 20),
	})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Zero(t, extractor.calls, "extraction must not run for a rejected image")

	o := store.current(conv)
	assert.Equal(t, model.StageAwaitingInitialScreenshot, o.Status)
	assert.Nil(t, o.PlacementScreenshotPath)
	assert.Nil(t, o.RestaurantName)
}

func TestNonImageUploadRejected(t *testing.T) {
	eng, store, extractor, _ := newTestEngine(t)
	ctx := context.Background()

	order, _ := eng.StartSubmission(ctx, "user-1")
	conv := order.ConversationID
	handle(t, eng, chat.Event{
		Kind: chat.KindButtonClicked, ConversationID: conv,
		ActionID: chat.ActionSelectApp, Value: "grubhub",
	})

	err := eng.HandleEvent(ctx, chat.Event{
		Kind: chat.KindImageUploaded, ConversationID: conv,
		Image: &chat.ImageRef{Name: "doc.pdf", MimeType: "application/pdf", Data: []byte("x")},
	})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Zero(t, extractor.calls)
	assert.Equal(t, model.StageAwaitingInitialScreenshot, store.current(conv).Status)
}

func TestScreenshotInWrongStageRejected(t *testing.T) {
	eng, store, extractor, _ := newTestEngine(t)
	ctx := context.Background()

	order, _ := eng.StartSubmission(ctx, "user-1")
	conv := order.ConversationID

	err := eng.HandleEvent(ctx, chat.Event{
		Kind: chat.KindImageUploaded, ConversationID: conv, Image: pngUpload(1024),
	})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Zero(t, extractor.calls)
	assert.Equal(t, model.StageAwaitingAppSelection, store.current(conv).Status)
}

func TestExtractionFailureDoesNotAdvance(t *testing.T) {
	eng, store, extractor, _ := newTestEngine(t)
	extractor.err = errBoom
	ctx := context.Background()

	order, _ := eng.StartSubmission(ctx, "user-1")
	conv := order.ConversationID
	handle(t, eng, chat.Event{
		Kind: chat.KindButtonClicked, ConversationID: conv,
		ActionID: chat.ActionSelectApp, Value: "ubereats",
	})

	err := eng.HandleEvent(ctx, chat.Event{
		Kind: chat.KindImageUploaded, ConversationID: conv, Image: pngUpload(1024),
	})
	assert.ErrorIs(t, err, ErrExtraction)
	assert.Equal(t, model.StageAwaitingInitialScreenshot, store.current(conv).Status)
}

func TestExtractionWithNoUsableFieldsDoesNotAdvance(t *testing.T) {
	eng, store, _, _ := newTestEngine(t)
	ctx := context.Background()

	order, _ := eng.StartSubmission(ctx, "user-1")
	conv := order.ConversationID
	handle(t, eng, chat.Event{
		Kind: chat.KindButtonClicked, ConversationID: conv,
		ActionID: chat.ActionSelectApp, Value: "ubereats",
	})

	// Extractor has no scripted result: returns empty fields.
	err := eng.HandleEvent(ctx, chat.Event{
		Kind: chat.KindImageUploaded, ConversationID: conv, Image: pngUpload(1024),
	})
	assert.ErrorIs(t, err, ErrExtraction)
	assert.Equal(t, model.StageAwaitingInitialScreenshot, store.current(conv).Status)
}

func TestUnknownConversationIsNotFound(t *testing.T) {
	eng, _, _, sender := newTestEngine(t)

	err := eng.HandleEvent(context.Background(), chat.Event{
		Kind: chat.KindTextMessage, ConversationID: "conv-x", Text: "hello",
	})
	assert.ErrorIs(t, err, ErrNotFound)

	last, ok := sender.last()
	require.True(t, ok)
	assert.Equal(t, chat.MessageError, last.Msg.Kind)
}

func TestSelectAppRejectsUnknownApp(t *testing.T) {
	eng, store, _, _ := newTestEngine(t)
	ctx := context.Background()

	order, _ := eng.StartSubmission(ctx, "user-1")
	conv := order.ConversationID

	err := eng.HandleEvent(ctx, chat.Event{
		Kind: chat.KindButtonClicked, ConversationID: conv,
		ActionID: chat.ActionSelectApp, Value: "carrier-pigeon",
	})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, model.StageAwaitingAppSelection, store.current(conv).Status)
	assert.Nil(t, store.current(conv).AppUsed)
}

func TestRestartBehavesLikeFreshOrder(t *testing.T) {
	eng, store, extractor, sender := newTestEngine(t)
	extractor.results[extract.ContextPlacement] = placementFields()
	ctx := context.Background()

	drive := func(conv string) {
		handle(t, eng, chat.Event{
			Kind: chat.KindButtonClicked, ConversationID: conv,
			ActionID: chat.ActionSelectApp, Value: "ubereats",
		})
		handle(t, eng, chat.Event{
			Kind: chat.KindImageUploaded, ConversationID: conv, Image: pngUpload(1024),
		})
	}

	first, err := eng.StartSubmission(ctx, "user-1")
	require.NoError(t, err)
	drive(first.ConversationID)

	// Restart clears stage, fields and flags.
	handle(t, eng, chat.Event{
		Kind: chat.KindButtonClicked, ConversationID: first.ConversationID,
		ActionID: chat.ActionRestart,
	})
	o := store.current(first.ConversationID)
	assert.Equal(t, model.StageAwaitingAppSelection, o.Status)
	assert.Nil(t, o.AppUsed)
	assert.Nil(t, o.PlacementScreenshotPath)
	for _, f := range model.VerifiableFields {
		assert.False(t, o.FieldSet(f.Column), "field %s should be cleared", f.Column)
		assert.False(t, o.FieldVerified(f.Column), "flag %s should be cleared", f.VerifiedColumn)
	}

	// Re-entry: the same sequence lands in the same state as a fresh order.
	sender.reset()
	drive(first.ConversationID)

	fresh, err := eng.StartSubmission(ctx, "user-2")
	require.NoError(t, err)
	drive(fresh.ConversationID)

	restarted := cloneOrder(store.current(first.ConversationID))
	reference := cloneOrder(store.current(fresh.ConversationID))

	// Identity and artifact paths differ by construction; everything the
	// workflow controls must match.
	assert.Equal(t, reference.Status, restarted.Status)
	assert.Equal(t, *reference.AppUsed, *restarted.AppUsed)
	assert.Equal(t, *reference.RestaurantName, *restarted.RestaurantName)
	assert.Equal(t, *reference.OrderPlacementTime, *restarted.OrderPlacementTime)
	assert.Equal(t, *reference.EarliestEstimatedArrivalTime, *restarted.EarliestEstimatedArrivalTime)
	assert.Equal(t, *reference.LatestEstimatedArrivalTime, *restarted.LatestEstimatedArrivalTime)
	for _, f := range model.VerifiableFields {
		assert.Equal(t, reference.FieldVerified(f.Column), restarted.FieldVerified(f.Column))
	}
}

func TestInvalidEventRejected(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)

	err := eng.HandleEvent(context.Background(), chat.Event{Kind: "telepathy"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestHelpTextReplaysGuidance(t *testing.T) {
	eng, _, _, sender := newTestEngine(t)
	ctx := context.Background()

	order, _ := eng.StartSubmission(ctx, "user-1")
	handle(t, eng, chat.Event{
		Kind: chat.KindTextMessage, ConversationID: order.ConversationID, Text: "?",
	})

	last, ok := sender.last()
	require.True(t, ok)
	assert.Equal(t, chat.MessageInfo, last.Msg.Kind)
}
