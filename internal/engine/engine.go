// Package engine drives an order submission through its stages: app
// selection, screenshot collection, AI-assisted extraction, per-field human
// verification, missing-field backfill, completion. All cross-event state
// lives in the persisted order record; the engine itself holds none.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"snackngo/internal/chat"
	"snackngo/internal/extract"
	"snackngo/internal/model"
)

// Store is the order record boundary: partial updates, unknown keys dropped.
type Store interface {
	Create(ctx context.Context, userID, conversationID string) (int64, error)
	Get(ctx context.Context, conversationID string) (*model.Order, error)
	Update(ctx context.Context, conversationID string, fields map[string]any) (bool, error)
}

// Extractor is the opaque image-to-fields backend.
type Extractor interface {
	Extract(ctx context.Context, imagePath string, stage extract.StageContext) (*extract.Fields, error)
}

// Sender is the outbound conversation transport.
type Sender interface {
	Send(ctx context.Context, conversationID string, msg chat.Message) error
	CreateConversation(ctx context.Context, userID, name string) (string, error)
	ArchiveConversation(ctx context.Context, conversationID string) error
}

type Engine struct {
	store         Store
	extractor     Extractor
	sender        Sender
	screenshotDir string
	now           func() time.Time
}

func New(store Store, extractor Extractor, sender Sender, screenshotDir string) *Engine {
	return &Engine{
		store:         store,
		extractor:     extractor,
		sender:        sender,
		screenshotDir: screenshotDir,
		now:           time.Now,
	}
}

// nextStage maps each stage to its successor. Completed has no entry.
var nextStage = map[model.Stage]model.Stage{
	model.StageAwaitingAppSelection:         model.StageAwaitingInitialScreenshot,
	model.StageAwaitingInitialScreenshot:    model.StageVerifyingInitialData,
	model.StageVerifyingInitialData:         model.StageAwaitingCompletionScreenshot,
	model.StageAwaitingCompletionScreenshot: model.StageVerifyingCompletionData,
	model.StageVerifyingCompletionData:      model.StageCollectingMissingInfo,
	model.StageCollectingMissingInfo:        model.StageCompleted,
}

const maxImageSize = 5 << 20

var allowedMimeTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
}

// HandleEvent routes one inbound conversation event to the handler for the
// order's current stage.
func (e *Engine) HandleEvent(ctx context.Context, ev chat.Event) error {
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if ev.Kind == chat.KindButtonClicked && ev.ActionID == chat.ActionStartSubmission {
		_, err := e.StartSubmission(ctx, ev.UserID)
		return err
	}

	order, err := e.store.Get(ctx, ev.ConversationID)
	if err != nil {
		return fmt.Errorf("%w: load order: %v", ErrPersistence, err)
	}
	if order == nil {
		e.send(ctx, ev.ConversationID, chat.ErrorMessage(
			"There is no active order submission in this conversation. Please start a new one."))
		return fmt.Errorf("%w: conversation %s", ErrNotFound, ev.ConversationID)
	}

	switch ev.Kind {
	case chat.KindButtonClicked:
		switch ev.ActionID {
		case chat.ActionSelectApp:
			return e.SelectApp(ctx, order, model.App(ev.Value))
		case chat.ActionVerifyYes:
			return e.Confirm(ctx, order, ev.Value)
		case chat.ActionVerifyNo:
			return e.Reject(ctx, order, ev.Value)
		case chat.ActionRestart:
			return e.Restart(ctx, order)
		case chat.ActionStartSubmission:
			return nil // handled before the order load
		}
		return fmt.Errorf("%w: action %q", ErrValidation, ev.ActionID)
	case chat.KindImageUploaded:
		return e.SubmitScreenshot(ctx, order, *ev.Image)
	case chat.KindTextInput:
		column, missing, ok := chat.ParseInputBlock(ev.BlockID)
		if !ok {
			return fmt.Errorf("%w: block %q", ErrValidation, ev.BlockID)
		}
		if missing {
			return e.BackfillInput(ctx, order, column, ev.Value)
		}
		return e.SubmitCorrection(ctx, order, column, ev.Value)
	case chat.KindTextMessage:
		return e.handleText(ctx, order, ev.Text)
	}
	return fmt.Errorf("%w: kind %q", ErrValidation, ev.Kind)
}

// StartSubmission opens a conversation and creates the order record. If the
// record insert fails the conversation is archived so the pair stays atomic
// from the caller's perspective.
func (e *Engine) StartSubmission(ctx context.Context, userID string) (*model.Order, error) {
	name := fmt.Sprintf("order-upload-%d", e.now().Unix())
	conversationID, err := e.sender.CreateConversation(ctx, userID, name)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	id, err := e.store.Create(ctx, userID, conversationID)
	if err != nil {
		if archiveErr := e.sender.ArchiveConversation(ctx, conversationID); archiveErr != nil {
			slog.Error("rollback archive failed", "conversation_id", conversationID, "error", archiveErr)
		}
		return nil, fmt.Errorf("%w: create order: %v", ErrPersistence, err)
	}

	order := &model.Order{
		ID:                  id,
		ConversationID:      conversationID,
		UserID:              userID,
		Status:              model.StageAwaitingAppSelection,
		ChannelCreationTime: e.now(),
	}

	e.send(ctx, conversationID, chat.WelcomeMessage())
	e.send(ctx, conversationID, chat.StagePrompt(model.StageAwaitingAppSelection))

	slog.Info("submission started", "order_id", id, "user_id", userID)
	return order, nil
}

// SelectApp records which delivery app the order came from and moves to the
// first screenshot stage.
func (e *Engine) SelectApp(ctx context.Context, order *model.Order, choice model.App) error {
	if order.Status != model.StageAwaitingAppSelection {
		return fmt.Errorf("%w: select_app in stage %s", ErrValidation, order.Status)
	}
	if !choice.Valid() {
		e.send(ctx, order.ConversationID, chat.ErrorMessage("Unknown app, please pick one of the buttons."))
		return fmt.Errorf("%w: app %q", ErrValidation, choice)
	}

	err := e.persist(ctx, order, map[string]any{
		"app_used": string(choice),
		"status":   string(model.StageAwaitingInitialScreenshot),
	})
	if err != nil {
		return err
	}

	e.send(ctx, order.ConversationID, chat.StagePrompt(model.StageAwaitingInitialScreenshot))
	return nil
}

// SubmitScreenshot validates the upload, extracts fields from it and enters
// the matching verification stage. Any failure leaves the stage untouched;
// re-uploading retries.
func (e *Engine) SubmitScreenshot(ctx context.Context, order *model.Order, img chat.ImageRef) error {
	var (
		stageCtx extract.StageContext
		pathCol  string
	)
	switch order.Status {
	case model.StageAwaitingInitialScreenshot:
		stageCtx, pathCol = extract.ContextPlacement, "placement_screenshot_path"
	case model.StageAwaitingCompletionScreenshot:
		stageCtx, pathCol = extract.ContextArrival, "completion_screenshot_path"
	default:
		e.send(ctx, order.ConversationID, chat.ErrorMessage("I wasn't expecting a screenshot right now."))
		return fmt.Errorf("%w: screenshot in stage %s", ErrValidation, order.Status)
	}

	ext, err := validateImage(img)
	if err != nil {
		e.send(ctx, order.ConversationID, chat.ErrorMessage(
			"That file can't be used: "+err.Error()+". Please upload a PNG or JPEG up to 5 MB."))
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	path := filepath.Join(e.screenshotDir, uuid.NewString()+ext)
	if err := os.WriteFile(path, img.Data, 0o644); err != nil {
		e.send(ctx, order.ConversationID, chat.ErrorMessage("Something went wrong saving your screenshot. Please try again."))
		return fmt.Errorf("%w: store screenshot: %v", ErrPersistence, err)
	}

	fields, err := e.extractor.Extract(ctx, path, stageCtx)
	if err != nil {
		e.send(ctx, order.ConversationID, chat.ErrorMessage("I couldn't read that screenshot. Please try uploading it again."))
		return fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	if fields.Empty() {
		e.send(ctx, order.ConversationID, chat.ErrorMessage(
			"I couldn't find any order details in that screenshot. Please try a clearer one."))
		return fmt.Errorf("%w: no usable fields", ErrExtraction)
	}

	updates := mergeExtracted(order, fields)
	updates[pathCol] = path
	updates["status"] = string(nextStage[order.Status])

	if err := e.persist(ctx, order, updates); err != nil {
		return err
	}

	slog.Info("screenshot processed", "order_id", order.ID, "stage", order.Status)
	return e.AdvanceIfVerificationComplete(ctx, order)
}

// mergeExtracted keeps only values for fields the record does not hold yet,
// so a later screenshot never overwrites data already under verification.
func mergeExtracted(order *model.Order, fields *extract.Fields) map[string]any {
	updates := make(map[string]any)
	if fields.RestaurantName != nil && !order.FieldSet("restaurant_name") {
		updates["restaurant_name"] = *fields.RestaurantName
	}
	if fields.RestaurantAddress != nil && !order.FieldSet("restaurant_address") {
		updates["restaurant_address"] = *fields.RestaurantAddress
	}
	if fields.OrderPlacementTime != nil && !order.FieldSet("order_placement_time") {
		updates["order_placement_time"] = *fields.OrderPlacementTime
	}
	if fields.EarliestEstimatedArrivalTime != nil && !order.FieldSet("earliest_estimated_arrival_time") {
		updates["earliest_estimated_arrival_time"] = *fields.EarliestEstimatedArrivalTime
	}
	if fields.LatestEstimatedArrivalTime != nil && !order.FieldSet("latest_estimated_arrival_time") {
		updates["latest_estimated_arrival_time"] = *fields.LatestEstimatedArrivalTime
	}
	if fields.OrderCompletionTime != nil && !order.FieldSet("order_completion_time") {
		updates["order_completion_time"] = *fields.OrderCompletionTime
	}
	return updates
}

// AdvanceIfVerificationComplete re-prompts the next unverified field, or
// moves to the configured next stage when none remain. Entering the backfill
// stage immediately runs the missing-field check; a stage with no successor
// is terminal.
func (e *Engine) AdvanceIfVerificationComplete(ctx context.Context, order *model.Order) error {
	if field, ok := NextUnverified(order); ok {
		e.send(ctx, order.ConversationID, chat.VerifyPrompt(field, order.FieldDisplay(field.Column)))
		return nil
	}

	next, ok := nextStage[order.Status]
	if !ok {
		e.send(ctx, order.ConversationID, chat.CompletionMessage())
		return nil
	}

	if err := e.persist(ctx, order, map[string]any{"status": string(next)}); err != nil {
		return err
	}

	if next == model.StageCollectingMissingInfo {
		return e.runBackfill(ctx, order)
	}

	e.send(ctx, order.ConversationID, chat.StagePrompt(next))
	return nil
}

// Restart returns the order to the initial stage with fields, verification
// flags and screenshots cleared, so re-entry behaves like a fresh order.
func (e *Engine) Restart(ctx context.Context, order *model.Order) error {
	updates := map[string]any{
		"status":                     string(model.StageAwaitingAppSelection),
		"app_used":                   nil,
		"placement_screenshot_path":  nil,
		"completion_screenshot_path": nil,
	}
	for _, f := range model.VerifiableFields {
		updates[f.Column] = nil
		updates[f.VerifiedColumn] = false
	}

	if err := e.persist(ctx, order, updates); err != nil {
		return err
	}

	slog.Info("submission restarted", "order_id", order.ID)
	e.send(ctx, order.ConversationID, chat.Message{Kind: chat.MessageInfo, Text: "Starting over."})
	e.send(ctx, order.ConversationID, chat.StagePrompt(model.StageAwaitingAppSelection))
	return nil
}

func (e *Engine) handleText(ctx context.Context, order *model.Order, text string) error {
	switch {
	case text == "?", text == "help":
		e.send(ctx, order.ConversationID, chat.Message{
			Kind: chat.MessageInfo,
			Text: "Follow the prompts in this channel to submit your order. Upload screenshots when asked, and use the buttons to confirm extracted data.",
		})
	default:
		e.send(ctx, order.ConversationID, chat.StagePrompt(order.Status))
	}
	return nil
}

// persist writes a partial update and keeps the in-memory record in step.
func (e *Engine) persist(ctx context.Context, order *model.Order, fields map[string]any) error {
	applied, err := e.store.Update(ctx, order.ConversationID, fields)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !applied {
		return fmt.Errorf("%w: no rows affected for order %d", ErrPersistence, order.ID)
	}
	if err := order.Apply(fields); err != nil {
		return fmt.Errorf("apply update: %w", err)
	}
	return nil
}

func (e *Engine) send(ctx context.Context, conversationID string, msg chat.Message) {
	if err := e.sender.Send(ctx, conversationID, msg); err != nil {
		slog.Warn("send failed", "conversation_id", conversationID, "kind", msg.Kind, "error", err)
	}
}

func validateImage(img chat.ImageRef) (ext string, err error) {
	ext, ok := allowedMimeTypes[img.MimeType]
	if !ok {
		return "", fmt.Errorf("unsupported file type %q", img.MimeType)
	}
	size := img.Size
	if size == 0 {
		size = int64(len(img.Data))
	}
	if size > maxImageSize {
		return "", fmt.Errorf("file too large (%d bytes)", size)
	}
	if len(img.Data) == 0 {
		return "", fmt.Errorf("empty file")
	}
	return ext, nil
}
