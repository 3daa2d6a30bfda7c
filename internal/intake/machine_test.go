package intake

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studybot/internal/domain"
	"studybot/internal/i18n"
)

var berlin = time.FixedZone("CEST", 2*60*60)

func run(t *testing.T, m *Machine, s Session, inputs ...Input) (Session, Outcome) {
	t.Helper()
	var out Outcome
	for _, in := range inputs {
		s, out = m.Step(s, in)
	}
	return s, out
}

func TestAddFlowWithoutImage(t *testing.T) {
	m := NewMachine(berlin)
	s, out := BeginAdd()
	assert.Equal(t, AwaitingText, s.State)
	assert.Equal(t, i18n.SendLessonText, out.Reply)

	s, out = run(t, m, s,
		Input{Text: "Lesson 1"},
		Input{Text: "Skip"},
		Input{Text: "2025-07-01 08:00"},
		Input{Text: "42"},
	)
	assert.Equal(t, Confirming, s.State)
	assert.Equal(t, i18n.ConfirmLesson, out.Reply)
	assert.True(t, out.AskConfirm)
	assert.Equal(t, []any{"2025-07-01", "08:00", "42", "Lesson 1"}, out.Args)
	assert.Nil(t, out.Commit, "nothing committed before confirmation")

	s, out = m.Step(s, Input{Text: "yes"})
	assert.Equal(t, Idle, s.State)
	require.NotNil(t, out.Commit)
	assert.Equal(t, "Lesson 1", out.Commit.Text)
	assert.Equal(t, 42, out.Commit.TopicID)
	assert.Empty(t, out.Commit.ImageFileID)
	assert.True(t, out.Commit.At.Equal(time.Date(2025, 7, 1, 8, 0, 0, 0, berlin)))
}

func TestAddFlowWithImageAndButtonConfirm(t *testing.T) {
	m := NewMachine(berlin)
	s, _ := BeginAdd()
	s, out := run(t, m, s,
		Input{Text: "with photo"},
		Input{PhotoID: "AgACAg"},
		Input{Text: "2025-07-01 08:00"},
		Input{Text: "0"},
		Input{Action: ActionConfirm},
	)
	assert.Equal(t, Idle, s.State)
	require.NotNil(t, out.Commit)
	assert.Equal(t, "AgACAg", out.Commit.ImageFileID)
	assert.Equal(t, 0, out.Commit.TopicID)
}

func TestArabicSkipAndConfirmWords(t *testing.T) {
	m := NewMachine(berlin)
	s, _ := BeginAdd()
	_, out := run(t, m, s,
		Input{Text: "درس"},
		Input{Text: "تخطي"},
		Input{Text: "2025-07-01 08:00"},
		Input{Text: "5"},
		Input{Text: "نعم"},
	)
	require.NotNil(t, out.Commit)
	assert.Equal(t, "درس", out.Commit.Text)
}

func TestInvalidInputKeepsState(t *testing.T) {
	m := NewMachine(berlin)
	cases := []struct {
		name  string
		state State
		in    Input
		reply string
	}{
		{"bad datetime", AwaitingDateTime, Input{Text: "tomorrow 8am"}, i18n.InvalidDateTime},
		{"datetime wrong layout", AwaitingDateTime, Input{Text: "01.07.2025 08:00"}, i18n.InvalidDateTime},
		{"non-integer topic", AwaitingTopic, Input{Text: "abc"}, i18n.InvalidTopicID},
		{"negative topic", AwaitingTopic, Input{Text: "-3"}, i18n.InvalidTopicID},
		{"empty text", AwaitingText, Input{Text: "  "}, i18n.EmptyText},
		{"image expected", AwaitingImage, Input{Text: "maybe"}, i18n.ExpectImage},
		{"edit choice", EditChoosingField, Input{Text: "9"}, i18n.InvalidEditChoice},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := Session{State: tc.state, Draft: Draft{Text: "kept"}}
			next, out := m.Step(s, tc.in)
			assert.Equal(t, s, next)
			assert.Equal(t, tc.reply, out.Reply)
			assert.True(t, errors.Is(out.Err, domain.ErrValidation))
			assert.Nil(t, out.Commit)
		})
	}
}

func TestCancelDiscardsDraft(t *testing.T) {
	m := NewMachine(berlin)
	s, _ := BeginAdd()
	s, _ = m.Step(s, Input{Text: "draft"})

	s, out := m.Step(s, Input{Action: ActionCancel})
	assert.Equal(t, Session{}, s)
	assert.Equal(t, i18n.Cancel, out.Reply)
	assert.Nil(t, out.Commit)

	_, out = m.Step(s, Input{Action: ActionCancel})
	assert.Equal(t, i18n.NothingToCancel, out.Reply)
}

func TestDiscardAtConfirmation(t *testing.T) {
	m := NewMachine(berlin)
	s := Session{State: Confirming, Draft: Draft{Text: "x", At: time.Now(), TopicID: 1}}

	next, out := m.Step(s, Input{Text: "maybe"})
	assert.Equal(t, Confirming, next.State)
	assert.Equal(t, i18n.ConfirmPrompt, out.Reply)

	next, out = m.Step(s, Input{Action: ActionDiscard})
	assert.Equal(t, Idle, next.State)
	assert.Equal(t, i18n.LessonDiscarded, out.Reply)
	assert.Nil(t, out.Commit)
}

func TestEditFlow(t *testing.T) {
	m := NewMachine(berlin)
	cases := []struct {
		name   string
		choice string
		in     Input
		field  domain.Field
		value  any
	}{
		{"text", "1", Input{Text: "new text"}, domain.FieldText, "new text"},
		{"datetime", "2", Input{Text: "2025-08-01 10:30"}, domain.FieldDateTime, time.Date(2025, 8, 1, 10, 30, 0, 0, berlin)},
		{"topic", "3", Input{Text: "17"}, domain.FieldTopic, 17},
		{"image", "4", Input{PhotoID: "AgAD"}, domain.FieldImage, "AgAD"},
		{"remove image", "4", Input{Text: "إزالة"}, domain.FieldImage, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, _ := BeginEdit("7")
			s, out := m.Step(s, Input{Text: tc.choice})
			require.NoError(t, out.Err)
			assert.Equal(t, EditAwaitingValue, s.State)

			s, out = m.Step(s, tc.in)
			require.NoError(t, out.Err)
			assert.Equal(t, Idle, s.State)
			require.NotNil(t, out.Edit)
			assert.Equal(t, "7", out.Edit.ID)
			assert.Equal(t, tc.field, out.Edit.Field)
			if at, ok := tc.value.(time.Time); ok {
				assert.True(t, at.Equal(out.Edit.Value.(time.Time)))
			} else {
				assert.Equal(t, tc.value, out.Edit.Value)
			}
		})
	}
}

func TestLessonTextKeepsSurroundingWhitespace(t *testing.T) {
	m := NewMachine(berlin)
	body := "  Verbs:\n- go\n- went\n"

	s, _ := BeginAdd()
	s, out := run(t, m, s,
		Input{Text: body},
		Input{Text: " skip "},
		Input{Text: " 2025-07-01 08:00 "},
		Input{Text: " 42 "},
		Input{Text: "yes"},
	)
	assert.Equal(t, Idle, s.State)
	require.NotNil(t, out.Commit)
	assert.Equal(t, body, out.Commit.Text)
	assert.Equal(t, 42, out.Commit.TopicID)

	s, _ = BeginEdit("7")
	s, _ = m.Step(s, Input{Text: "1"})
	_, out = m.Step(s, Input{Text: "\n  indented\n"})
	require.NotNil(t, out.Edit)
	assert.Equal(t, "\n  indented\n", out.Edit.Value)

	s, _ = BeginEdit("7")
	s, _ = m.Step(s, Input{Text: "1"})
	s, out = m.Step(s, Input{Text: " \n\t"})
	assert.ErrorIs(t, out.Err, domain.ErrEmptyText)
	assert.Equal(t, EditAwaitingValue, s.State)
}

func TestLanguageChoice(t *testing.T) {
	m := NewMachine(berlin)
	s, _ := BeginLanguage()

	s, out := m.Step(s, Input{Text: "fr"})
	assert.Equal(t, ChoosingLanguage, s.State)
	assert.Error(t, out.Err)

	s, out = m.Step(s, Input{Text: "AR"})
	assert.Equal(t, Idle, s.State)
	assert.Equal(t, domain.LanguageArabic, out.Language)
}

func TestIdleIgnoresInput(t *testing.T) {
	_, out := NewMachine(berlin).Step(Session{}, Input{Text: "hello"})
	assert.True(t, out.Ignored)
}

func TestValidateRejectsEmptyCandidate(t *testing.T) {
	m := NewMachine(berlin)
	assert.Error(t, m.Validate(domain.Lesson{}))
	assert.Error(t, m.Validate(domain.Lesson{Text: "x", At: time.Now(), TopicID: -1}))
	assert.NoError(t, m.Validate(domain.Lesson{Text: "x", At: time.Now()}))
}
