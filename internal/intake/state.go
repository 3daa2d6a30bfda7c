// Package intake is the conversation state machine that turns a sequence of
// chat messages into a validated lesson, a field edit or a language choice.
//
// Step is pure: it never touches the repository or the transport. Callers
// act on the returned Outcome.
package intake

import (
	"time"

	"studybot/internal/domain"
)

type State int

const (
	Idle State = iota
	ChoosingLanguage
	AwaitingText
	AwaitingImage
	AwaitingDateTime
	AwaitingTopic
	Confirming
	EditChoosingField
	EditAwaitingValue
)

var stateNames = [...]string{
	Idle:              "idle",
	ChoosingLanguage:  "choosing_language",
	AwaitingText:      "awaiting_text",
	AwaitingImage:     "awaiting_image",
	AwaitingDateTime:  "awaiting_datetime",
	AwaitingTopic:     "awaiting_topic",
	Confirming:        "confirming",
	EditChoosingField: "edit_choosing_field",
	EditAwaitingValue: "edit_awaiting_value",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Draft is the lesson being composed.
type Draft struct {
	Text        string
	ImageFileID string
	At          time.Time
	TopicID     int
}

// Session is one user's conversation in one chat.
type Session struct {
	State State
	Draft Draft

	// Edit flow.
	EditID    string
	EditField domain.Field
}

// Action is a non-text input, typically an inline button.
type Action int

const (
	ActionNone Action = iota
	ActionConfirm
	ActionDiscard
	ActionCancel
)

// Input is one inbound message reduced to what the machine needs.
type Input struct {
	Text    string
	PhotoID string
	Action  Action
}

// Update is a validated single-field edit.
type Update struct {
	ID    string
	Field domain.Field
	Value any
}

// Outcome tells the caller what to do after a step.
type Outcome struct {
	// Reply is an i18n key; Args are its string arguments.
	Reply string
	Args  []any
	// Err is set when the input was rejected; the state is unchanged.
	Err error

	// Commit carries a validated candidate to add.
	Commit *domain.Lesson
	// Edit carries a validated field update.
	Edit *Update
	// Language is set when a language was chosen.
	Language domain.Language

	// AskConfirm asks the caller to attach save/discard buttons.
	AskConfirm bool
	// Ignored means the session did not consume the input.
	Ignored bool
}
