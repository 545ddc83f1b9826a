// Package chat is the conversation transport boundary: inbound events from
// the chat bridge and outbound structured messages. Rendering the messages
// into platform blocks is the bridge's job.
package chat

import (
	"fmt"
	"strings"

	"snackngo/internal/model"
)

type MessageKind string

const (
	MessageInfo     MessageKind = "info"
	MessageError    MessageKind = "error"
	MessagePrompt   MessageKind = "prompt"
	MessageVerify   MessageKind = "verify"
	MessageInput    MessageKind = "input"
	MessageComplete MessageKind = "complete"
)

type Button struct {
	Action Action `json:"action_id"`
	Value  string `json:"value,omitempty"`
	Label  string `json:"label"`
}

// Message is an outbound prompt. Field/Value/Hint carry the structure the
// bridge needs to render verification and input widgets.
type Message struct {
	Kind    MessageKind `json:"kind"`
	Text    string      `json:"text"`
	Field   string      `json:"field,omitempty"`
	Value   string      `json:"value,omitempty"`
	Hint    string      `json:"hint,omitempty"`
	BlockID string      `json:"block_id,omitempty"`
	Buttons []Button    `json:"buttons,omitempty"`
}

const timeInputHint = "YYYY-MM-DD HH:MM or HH:MM (HH:MM means today)"

// FieldLabel turns a column name into a human label, e.g.
// "restaurant_name" into "Restaurant Name".
func FieldLabel(column string) string {
	words := strings.Split(column, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// StagePrompt is the message that solicits the expected action for a stage.
func StagePrompt(stage model.Stage) Message {
	switch stage {
	case model.StageAwaitingAppSelection:
		buttons := make([]Button, 0, len(model.Apps))
		for _, app := range model.Apps {
			buttons = append(buttons, Button{
				Action: ActionSelectApp,
				Value:  string(app),
				Label:  FieldLabel(string(app)),
			})
		}
		return Message{
			Kind:    MessagePrompt,
			Text:    "Which app did you order through?",
			Buttons: buttons,
		}
	case model.StageAwaitingInitialScreenshot:
		return Message{
			Kind: MessagePrompt,
			Text: "Please upload a screenshot of your order confirmation (PNG or JPEG, up to 5 MB).",
		}
	case model.StageVerifyingInitialData, model.StageVerifyingCompletionData:
		return Message{
			Kind: MessagePrompt,
			Text: "Let's verify the extracted data.",
		}
	case model.StageAwaitingCompletionScreenshot:
		return Message{
			Kind: MessagePrompt,
			Text: "Please upload a screenshot showing your order was delivered (PNG or JPEG, up to 5 MB).",
		}
	case model.StageCollectingMissingInfo:
		return Message{
			Kind: MessagePrompt,
			Text: "A few details are still missing.",
		}
	case model.StageCompleted:
		return CompletionMessage()
	}
	return Message{Kind: MessagePrompt, Text: "Let's continue with your order."}
}

// VerifyPrompt asks yes/no confirmation for one extracted field.
func VerifyPrompt(field model.FieldSpec, value string) Message {
	label := FieldLabel(field.Column)
	return Message{
		Kind:  MessageVerify,
		Text:  fmt.Sprintf("The data extracted is:\n\n*%s*: %s\n\nIs this correct?", label, value),
		Field: field.Column,
		Value: value,
		Buttons: []Button{
			{Action: ActionVerifyYes, Value: field.Column, Label: "Yes"},
			{Action: ActionVerifyNo, Value: field.Column, Label: "No"},
		},
	}
}

// InputPrompt solicits a typed value for a field, either as a correction
// after a rejected verification or as missing-field backfill.
func InputPrompt(field model.FieldSpec, missing bool) Message {
	label := FieldLabel(field.Column)
	msg := Message{
		Kind:    MessageInput,
		Field:   field.Column,
		BlockID: InputBlockID(field.Column, missing),
	}
	if missing {
		msg.Text = fmt.Sprintf("We're missing the *%s*. Please enter it.", label)
	} else {
		msg.Text = fmt.Sprintf("Please manually input the *%s*.", label)
	}
	if field.TimeTyped {
		msg.Hint = timeInputHint
	}
	return msg
}

func WelcomeMessage() Message {
	return Message{
		Kind: MessageInfo,
		Text: "Welcome! This channel tracks one food delivery order submission.",
	}
}

func CompletionMessage() Message {
	return Message{
		Kind: MessageComplete,
		Text: "All done — your order has been recorded. Thank you!",
	}
}

func ErrorMessage(text string) Message {
	return Message{Kind: MessageError, Text: text}
}
