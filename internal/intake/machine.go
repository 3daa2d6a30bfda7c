package intake

import (
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"studybot/internal/domain"
	"studybot/internal/i18n"
)

// DateTimeLayout is the only accepted input format for lesson times.
const DateTimeLayout = "2006-01-02 15:04"

// PreviewRunes bounds the text shown in the confirmation preview.
const PreviewRunes = 100

var (
	skipWords    = []string{"skip", "تخطي"}
	removeWords  = []string{"remove", "إزالة"}
	confirmWords = []string{"yes", "y", "save", "نعم"}
	discardWords = []string{"no", "n", "discard", "لا"}
)

// Machine holds the fixed inputs of the transition function.
type Machine struct {
	loc      *time.Location
	validate *validator.Validate
}

// NewMachine parses times in loc (the bot's fixed location).
func NewMachine(loc *time.Location) *Machine {
	if loc == nil {
		loc = time.Local
	}
	return &Machine{loc: loc, validate: validator.New()}
}

func (m *Machine) Location() *time.Location { return m.loc }

// BeginAdd starts lesson composition.
func BeginAdd() (Session, Outcome) {
	return Session{State: AwaitingText}, Outcome{Reply: i18n.SendLessonText}
}

// BeginEdit starts editing lesson id.
func BeginEdit(id string) (Session, Outcome) {
	return Session{State: EditChoosingField, EditID: id}, Outcome{Reply: i18n.ChooseEditField}
}

// BeginLanguage starts language selection by text.
func BeginLanguage() (Session, Outcome) {
	return Session{State: ChoosingLanguage}, Outcome{Reply: i18n.ChooseLanguage}
}

// Step applies one input. Rejected input keeps the state and sets Err.
// The candidate owner is filled in by the caller.
func (m *Machine) Step(s Session, in Input) (Session, Outcome) {
	if in.Action == ActionCancel {
		if s.State == Idle {
			return s, Outcome{Reply: i18n.NothingToCancel}
		}
		return Session{}, Outcome{Reply: i18n.Cancel}
	}
	text := strings.TrimSpace(in.Text)

	switch s.State {
	case ChoosingLanguage:
		lang, ok := domain.ParseLanguage(text)
		if !ok {
			return s, Outcome{Reply: i18n.ChooseLanguage, Err: domain.NewValidationError("language", domain.ErrInvalidFormat)}
		}
		return Session{}, Outcome{Reply: i18n.LanguageSelected, Language: lang}

	case AwaitingText:
		if text == "" {
			return s, Outcome{Reply: i18n.EmptyText, Err: domain.NewValidationError(string(domain.FieldText), domain.ErrEmptyText)}
		}
		// Lesson bodies are posted as typed; trimming is only for the empty check.
		s.Draft.Text = in.Text
		s.State = AwaitingImage
		return s, Outcome{Reply: i18n.AskImage}

	case AwaitingImage:
		switch {
		case in.PhotoID != "":
			s.Draft.ImageFileID = in.PhotoID
		case matches(text, skipWords):
			s.Draft.ImageFileID = ""
		default:
			return s, Outcome{Reply: i18n.ExpectImage, Err: domain.NewValidationError(string(domain.FieldImage), domain.ErrInvalidFormat)}
		}
		s.State = AwaitingDateTime
		return s, Outcome{Reply: i18n.AskDateTime}

	case AwaitingDateTime:
		at, err := m.ParseDateTime(text)
		if err != nil {
			return s, Outcome{Reply: i18n.InvalidDateTime, Err: err}
		}
		s.Draft.At = at
		s.State = AwaitingTopic
		return s, Outcome{Reply: i18n.AskTopicID}

	case AwaitingTopic:
		topic, err := ParseTopic(text)
		if err != nil {
			return s, Outcome{Reply: i18n.InvalidTopicID, Err: err}
		}
		s.Draft.TopicID = topic
		s.State = Confirming
		return s, m.preview(s.Draft)

	case Confirming:
		switch {
		case in.Action == ActionConfirm || matches(text, confirmWords):
			l := domain.Lesson{Text: s.Draft.Text, ImageFileID: s.Draft.ImageFileID, At: s.Draft.At, TopicID: s.Draft.TopicID}
			if err := m.Validate(l); err != nil {
				return Session{}, Outcome{Reply: i18n.InternalError, Err: err}
			}
			return Session{}, Outcome{Reply: i18n.LessonSaved, Commit: &l}
		case in.Action == ActionDiscard || matches(text, discardWords):
			return Session{}, Outcome{Reply: i18n.LessonDiscarded}
		default:
			out := m.preview(s.Draft)
			out.Reply = i18n.ConfirmPrompt
			out.Args = nil
			return s, out
		}

	case EditChoosingField:
		f, ok := domain.FieldFromChoice(text)
		if !ok {
			return s, Outcome{Reply: i18n.InvalidEditChoice, Err: domain.NewValidationError("field", domain.ErrUnknownField)}
		}
		s.EditField = f
		s.State = EditAwaitingValue
		return s, Outcome{Reply: editPrompt(f)}

	case EditAwaitingValue:
		v, reply, err := m.editValue(s.EditField, in.Text, in.PhotoID)
		if err != nil {
			return s, Outcome{Reply: reply, Err: err}
		}
		return Session{}, Outcome{Reply: i18n.LessonUpdated, Edit: &Update{ID: s.EditID, Field: s.EditField, Value: v}}
	}

	return s, Outcome{Ignored: true}
}

func (m *Machine) preview(d Draft) Outcome {
	l := domain.Lesson{Text: d.Text}
	return Outcome{
		Reply:      i18n.ConfirmLesson,
		Args:       []any{d.At.Format("2006-01-02"), d.At.Format("15:04"), strconv.Itoa(d.TopicID), l.Preview(PreviewRunes)},
		AskConfirm: true,
	}
}

func (m *Machine) editValue(f domain.Field, raw, photoID string) (any, string, error) {
	text := strings.TrimSpace(raw)
	switch f {
	case domain.FieldText:
		if text == "" {
			return nil, i18n.EmptyText, domain.NewValidationError(string(f), domain.ErrEmptyText)
		}
		return raw, "", nil
	case domain.FieldDateTime:
		at, err := m.ParseDateTime(text)
		if err != nil {
			return nil, i18n.InvalidDateTime, err
		}
		return at, "", nil
	case domain.FieldTopic:
		n, err := ParseTopic(text)
		if err != nil {
			return nil, i18n.InvalidTopicID, err
		}
		return n, "", nil
	case domain.FieldImage:
		switch {
		case photoID != "":
			return photoID, "", nil
		case matches(text, removeWords):
			return "", "", nil
		}
		return nil, i18n.EditImage, domain.NewValidationError(string(f), domain.ErrInvalidFormat)
	}
	return nil, i18n.InvalidEditChoice, domain.NewValidationError(string(f), domain.ErrUnknownField)
}

func editPrompt(f domain.Field) string {
	switch f {
	case domain.FieldDateTime:
		return i18n.EditDateTime
	case domain.FieldTopic:
		return i18n.EditTopic
	case domain.FieldImage:
		return i18n.EditImage
	default:
		return i18n.EditText
	}
}

// ParseDateTime reads "YYYY-MM-DD HH:MM" in the machine's location.
func (m *Machine) ParseDateTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateTimeLayout, strings.TrimSpace(s), m.loc)
	if err != nil {
		return time.Time{}, domain.NewValidationError(string(domain.FieldDateTime), domain.ErrInvalidDateTime)
	}
	return t, nil
}

// ParseTopic reads a non-negative integer topic id.
func ParseTopic(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0, domain.NewValidationError(string(domain.FieldTopic), domain.ErrInvalidTopic)
	}
	return n, nil
}

// Validate checks a candidate against the lesson's struct constraints.
func (m *Machine) Validate(l domain.Lesson) error {
	if err := m.validate.Struct(l); err != nil {
		return domain.NewValidationError("lesson", err)
	}
	if strings.TrimSpace(l.Text) == "" {
		return domain.NewValidationError(string(domain.FieldText), domain.ErrEmptyText)
	}
	return nil
}

func matches(s string, words []string) bool {
	for _, w := range words {
		if strings.EqualFold(s, w) {
			return true
		}
	}
	return false
}
