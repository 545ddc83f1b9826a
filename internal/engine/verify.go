package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"snackngo/internal/chat"
	"snackngo/internal/model"
	"snackngo/internal/timeparse"
)

// NextUnverified scans the fixed field order and returns the first field
// that holds a value but has not been confirmed. Fields without a value are
// never prompted here; they belong to the backfill pass.
func NextUnverified(order *model.Order) (model.FieldSpec, bool) {
	for _, f := range model.VerifiableFields {
		if order.FieldSet(f.Column) && !order.FieldVerified(f.Column) {
			return f, true
		}
	}
	return model.FieldSpec{}, false
}

// Confirm marks one field human-verified. The flag can only be set on a
// field that actually holds a value.
func (e *Engine) Confirm(ctx context.Context, order *model.Order, column string) error {
	field, err := e.verifiableField(order, column)
	if err != nil {
		return err
	}
	if !order.FieldSet(column) {
		return fmt.Errorf("%w: cannot verify %s without a value", ErrValidation, column)
	}

	if err := e.persist(ctx, order, map[string]any{field.VerifiedColumn: true}); err != nil {
		return err
	}

	slog.Info("field verified", "order_id", order.ID, "field", column)
	return e.AdvanceIfVerificationComplete(ctx, order)
}

// Reject routes the conversation into a manual-input prompt for the field.
// The stored value is left untouched until a correction arrives.
func (e *Engine) Reject(ctx context.Context, order *model.Order, column string) error {
	field, err := e.verifiableField(order, column)
	if err != nil {
		return err
	}

	e.send(ctx, order.ConversationID, chat.InputPrompt(field, false))
	return nil
}

// SubmitCorrection replaces a rejected value with user-typed input. A parse
// failure reports the error and consumes nothing; the user retries. A
// successful correction counts as verified: the human typed it, asking them
// to confirm their own input again adds nothing.
func (e *Engine) SubmitCorrection(ctx context.Context, order *model.Order, column, raw string) error {
	field, err := e.verifiableField(order, column)
	if err != nil {
		return err
	}

	value, err := e.parseFieldInput(ctx, order, field, raw)
	if err != nil {
		return err
	}

	updates := map[string]any{
		field.Column:         value,
		field.VerifiedColumn: true,
	}
	if err := e.persist(ctx, order, updates); err != nil {
		return err
	}

	e.send(ctx, order.ConversationID, chat.Message{
		Kind: chat.MessageInfo,
		Text: fmt.Sprintf("Thank you! The *%s* has been updated.", chat.FieldLabel(column)),
	})
	return e.AdvanceIfVerificationComplete(ctx, order)
}

// runBackfill prompts for every required field that is still null and
// unverified, or completes the order when none remain.
func (e *Engine) runBackfill(ctx context.Context, order *model.Order) error {
	missing := missingFields(order)
	if len(missing) == 0 {
		return e.complete(ctx, order)
	}

	e.send(ctx, order.ConversationID, chat.StagePrompt(model.StageCollectingMissingInfo))
	for _, f := range missing {
		e.send(ctx, order.ConversationID, chat.InputPrompt(f, true))
	}
	return nil
}

// BackfillInput records a user-supplied value for a missing required field,
// marking it verified, and completes the order once nothing is missing.
func (e *Engine) BackfillInput(ctx context.Context, order *model.Order, column, raw string) error {
	if order.Status != model.StageCollectingMissingInfo {
		return fmt.Errorf("%w: backfill input in stage %s", ErrValidation, order.Status)
	}

	field, ok := requiredField(column)
	if !ok {
		return fmt.Errorf("%w: %q is not a required field", ErrValidation, column)
	}
	if order.FieldSet(column) && order.FieldVerified(column) {
		// Duplicate reply to an already-answered prompt.
		return nil
	}

	value, err := e.parseFieldInput(ctx, order, field, raw)
	if err != nil {
		return err
	}

	updates := map[string]any{
		field.Column:         value,
		field.VerifiedColumn: true,
	}
	if err := e.persist(ctx, order, updates); err != nil {
		return err
	}

	e.send(ctx, order.ConversationID, chat.Message{
		Kind: chat.MessageInfo,
		Text: fmt.Sprintf("Got it — *%s* recorded.", chat.FieldLabel(column)),
	})

	if len(missingFields(order)) == 0 {
		return e.complete(ctx, order)
	}
	return nil
}

func (e *Engine) complete(ctx context.Context, order *model.Order) error {
	if err := e.persist(ctx, order, map[string]any{"status": string(model.StageCompleted)}); err != nil {
		return err
	}
	slog.Info("submission completed", "order_id", order.ID)
	e.send(ctx, order.ConversationID, chat.CompletionMessage())
	return nil
}

// parseFieldInput turns raw user text into a storable value, reporting
// format problems back into the conversation without mutating anything.
func (e *Engine) parseFieldInput(ctx context.Context, order *model.Order, field model.FieldSpec, raw string) (any, error) {
	if field.TimeTyped {
		ts, err := timeparse.ParseUserTime(raw, e.now())
		if err != nil {
			e.send(ctx, order.ConversationID, chat.ErrorMessage(
				"Invalid time format. Please use `YYYY-MM-DD HH:MM` or `HH:MM`."))
			return nil, fmt.Errorf("%w: %s: %v", ErrValidation, field.Column, err)
		}
		return ts, nil
	}

	text := strings.TrimSpace(raw)
	if text == "" {
		e.send(ctx, order.ConversationID, chat.ErrorMessage("That looks empty. Please try again."))
		return nil, fmt.Errorf("%w: empty value for %s", ErrValidation, field.Column)
	}
	return text, nil
}

// verifiableField resolves a column name from a button/block payload and
// checks the order is in a stage where the verification cycle runs.
func (e *Engine) verifiableField(order *model.Order, column string) (model.FieldSpec, error) {
	if order.Status != model.StageVerifyingInitialData && order.Status != model.StageVerifyingCompletionData {
		return model.FieldSpec{}, fmt.Errorf("%w: verification answer in stage %s", ErrValidation, order.Status)
	}
	field, ok := model.FieldByColumn(column)
	if !ok {
		return model.FieldSpec{}, fmt.Errorf("%w: unknown field %q", ErrValidation, column)
	}
	return field, nil
}

func requiredField(column string) (model.FieldSpec, bool) {
	for _, f := range model.RequiredFields() {
		if f.Column == column {
			return f, true
		}
	}
	return model.FieldSpec{}, false
}

func missingFields(order *model.Order) []model.FieldSpec {
	var missing []model.FieldSpec
	for _, f := range model.RequiredFields() {
		if !order.FieldSet(f.Column) && !order.FieldVerified(f.Column) {
			missing = append(missing, f)
		}
	}
	return missing
}
