package chat

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Kind is the closed set of inbound event kinds the bridge delivers.
type Kind string

const (
	KindImageUploaded Kind = "image_uploaded"
	KindButtonClicked Kind = "button_clicked"
	KindTextInput     Kind = "text_input"
	KindTextMessage   Kind = "text_message"
)

// Action is the closed set of button action ids. Dispatch over it is an
// exhaustive switch; an unknown id is a validation error, never a silent
// fall-through.
type Action string

const (
	ActionStartSubmission Action = "start_submission"
	ActionSelectApp       Action = "select_app"
	ActionVerifyYes       Action = "verify_yes"
	ActionVerifyNo        Action = "verify_no"
	ActionRestart         Action = "restart"
)

// ImageRef carries an uploaded file inline. Data is base64 on the wire.
type ImageRef struct {
	Name     string `json:"name"`
	MimeType string `json:"mimetype"`
	Size     int64  `json:"size"`
	Data     []byte `json:"data"`
}

// Event is one inbound occurrence in a conversation.
type Event struct {
	Kind           Kind   `json:"kind"`
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`

	// button_clicked
	ActionID Action `json:"action_id,omitempty"`
	// button value or text_input value
	Value string `json:"value,omitempty"`
	// text_input
	BlockID string `json:"block_id,omitempty"`
	// image_uploaded
	Image *ImageRef `json:"image,omitempty"`
	// text_message
	Text string `json:"text,omitempty"`
}

func (e Event) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Kind, validation.Required, validation.In(
			KindImageUploaded, KindButtonClicked, KindTextInput, KindTextMessage,
		)),
		// start_submission is the one action that precedes the conversation.
		validation.Field(&e.ConversationID,
			validation.Required.When(e.ActionID != ActionStartSubmission)),
		validation.Field(&e.UserID,
			validation.Required.When(e.ActionID == ActionStartSubmission)),
		validation.Field(&e.ActionID,
			validation.Required.When(e.Kind == KindButtonClicked),
			validation.In(
				ActionStartSubmission, ActionSelectApp,
				ActionVerifyYes, ActionVerifyNo, ActionRestart,
			)),
		validation.Field(&e.BlockID,
			validation.Required.When(e.Kind == KindTextInput)),
		validation.Field(&e.Value,
			validation.Required.When(e.Kind == KindTextInput)),
		validation.Field(&e.Image,
			validation.Required.When(e.Kind == KindImageUploaded)),
	)
}

const (
	manualInputPrefix  = "manual_input_"
	missingInputPrefix = "missing_input_"
)

// InputBlockID names the text-input block for a field, tagged by path so the
// reply routes back to correction or backfill handling.
func InputBlockID(column string, missing bool) string {
	if missing {
		return missingInputPrefix + column
	}
	return manualInputPrefix + column
}

// ParseInputBlock reverses InputBlockID.
func ParseInputBlock(blockID string) (column string, missing bool, ok bool) {
	switch {
	case strings.HasPrefix(blockID, missingInputPrefix):
		return strings.TrimPrefix(blockID, missingInputPrefix), true, true
	case strings.HasPrefix(blockID, manualInputPrefix):
		return strings.TrimPrefix(blockID, manualInputPrefix), false, true
	}
	return "", false, false
}
