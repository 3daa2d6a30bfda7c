package bot

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studybot/internal/domain"
	"studybot/internal/i18n"
	"studybot/internal/intake"
	"studybot/internal/lessons"
	"studybot/internal/storage"
	kit "studybot/internal/transport"
	"studybot/internal/transport/telegram/router"
	"studybot/internal/transport/transporttest"
	"studybot/pkg/logx"
)

const (
	groupChat = int64(-100)
	userID    = int64(7)
)

var (
	cet = time.FixedZone("CET", 60*60)
	now = time.Date(2025, 6, 30, 12, 0, 0, 0, cet)
)

type harness struct {
	ad   *transporttest.Adapter
	repo *lessons.Repository
	r    *router.Router
	cat  *i18n.Catalog
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "lessons.json")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	repo, err := lessons.Open(context.Background(), st, logx.Nop())
	require.NoError(t, err)

	ad := &transporttest.Adapter{}
	r := router.New(ad, logx.Nop(), router.Options{})
	cat := i18n.New(domain.LanguageEnglish)
	New(Deps{
		Repo:     repo,
		Catalog:  cat,
		Machine:  intake.NewMachine(cet),
		Sessions: intake.NewSessions(time.Hour),
		Now:      func() time.Time { return now },
	}).Register(r)
	return &harness{ad: ad, repo: repo, r: r, cat: cat}
}

func (h *harness) say(text string) transporttest.Sent {
	h.r.Route(context.Background(), kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: groupChat, FromID: userID, Text: text, IsGroup: true}})
	return h.ad.Last()
}

func (h *harness) photo(fileID string) transporttest.Sent {
	h.r.Route(context.Background(), kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: groupChat, FromID: userID, PhotoID: fileID, IsGroup: true}})
	return h.ad.Last()
}

func (h *harness) press(data string) {
	h.r.Route(context.Background(), kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: "cb", ChatID: groupChat, FromID: userID, MessageID: 1, Data: data}})
}

// lastText is the most recent non-answer send.
func (h *harness) lastText() string {
	sent := h.ad.Sent()
	for i := len(sent) - 1; i >= 0; i-- {
		if sent[i].Kind != "answer" {
			return sent[i].Text
		}
	}
	return ""
}

func (h *harness) en(key string, args ...any) string {
	return h.cat.T(domain.LanguageEnglish, key, args...)
}

func TestAddLessonSavesOnlyAfterConfirm(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, h.en(i18n.SendLessonText), h.say("/addlesson").Text)
	assert.Equal(t, h.en(i18n.AskImage), h.say("Chapter 1: limits").Text)
	assert.Equal(t, h.en(i18n.AskDateTime), h.photo("photo-1").Text)
	assert.Equal(t, h.en(i18n.AskTopicID), h.say("2025-07-01 08:00").Text)

	preview := h.say("3")
	assert.Contains(t, preview.Text, "2025-07-01")
	assert.Contains(t, preview.Text, "08:00")
	require.NotNil(t, preview.Options)
	assert.NotNil(t, preview.Options.ReplyMarkupAdapter)
	assert.Equal(t, 0, h.repo.Len(), "nothing is stored before confirmation")

	h.press("intake:confirm")
	require.Equal(t, 1, h.repo.Len())
	l := h.repo.List()[0]
	assert.Equal(t, h.en(i18n.LessonSaved, l.ID), h.lastText())
	assert.Equal(t, "Chapter 1: limits", l.Text)
	assert.Equal(t, "photo-1", l.ImageFileID)
	assert.Equal(t, 3, l.TopicID)
	assert.Equal(t, userID, l.UserID)
	assert.Equal(t, groupChat, l.GroupChatID)
	assert.True(t, l.At.Equal(time.Date(2025, 7, 1, 8, 0, 0, 0, cet)))

	// The session is gone: a second press does nothing.
	h.press("intake:confirm")
	assert.Equal(t, 1, h.repo.Len())
}

func TestAddLessonRejectsBadInputAndStaysInState(t *testing.T) {
	h := newHarness(t)
	h.say("/addlesson")
	h.say("text")
	h.say("skip")

	assert.Equal(t, h.en(i18n.InvalidDateTime), h.say("tomorrow 8am").Text)
	assert.Equal(t, h.en(i18n.AskTopicID), h.say("2025-07-01 08:00").Text)
	assert.Equal(t, h.en(i18n.InvalidTopicID), h.say("three").Text)
	h.say("0")

	h.say("yes")
	require.Equal(t, 1, h.repo.Len())
	assert.Empty(t, h.repo.List()[0].ImageFileID)
}

func TestDiscardAndCancelNeverStore(t *testing.T) {
	h := newHarness(t)
	h.say("/addlesson")
	h.say("text")
	h.say("skip")
	h.say("2025-07-01 08:00")
	h.say("1")
	h.press("intake:discard")
	assert.Equal(t, h.en(i18n.LessonDiscarded), h.lastText())

	h.say("/addlesson")
	h.say("text")
	assert.Equal(t, h.en(i18n.Cancel), h.say("/cancel").Text)
	assert.Equal(t, h.en(i18n.NothingToCancel), h.say("/cancel").Text)
	assert.Equal(t, 0, h.repo.Len())
}

func TestMessagesOutsideSessionAreIgnored(t *testing.T) {
	h := newHarness(t)
	h.say("hello everyone")
	assert.Empty(t, h.ad.Sent())
}

func TestStartThenLanguageButton(t *testing.T) {
	h := newHarness(t)
	start := h.say("/start")
	assert.Equal(t, h.en(i18n.Welcome), start.Text)
	require.NotNil(t, start.Options)
	assert.NotNil(t, start.Options.ReplyMarkupAdapter)

	h.press("lang:set:ar")
	assert.Equal(t, domain.LanguageArabic, h.repo.Language(userID))
	help := h.lastText()
	assert.Equal(t, h.cat.T(domain.LanguageArabic, i18n.HelpText, "CET, UTC+1"), help)

	// Replies now come in Arabic.
	assert.Equal(t, h.cat.T(domain.LanguageArabic, i18n.NoLessons), h.say("/listlessons").Text)
}

func TestLanguageByText(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, h.en(i18n.ChooseLanguage), h.say("/language").Text)
	h.say("ar")
	assert.Equal(t, domain.LanguageArabic, h.repo.Language(userID))
}

func TestListLessonsShowsScheduleAndRelativeHint(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, h.en(i18n.NoLessons), h.say("/listlessons").Text)

	later := h.repo.Add(context.Background(), domain.Lesson{Text: strings.Repeat("b", 80), At: now.Add(48 * time.Hour), TopicID: 4})
	soon := h.repo.Add(context.Background(), domain.Lesson{Text: "algebra", At: now.Add(3 * time.Hour), TopicID: 2})

	text := h.say("/listlessons").Text
	assert.True(t, strings.HasPrefix(text, h.en(i18n.LessonsList)))
	assert.Less(t, strings.Index(text, "ID: "+soon), strings.Index(text, "ID: "+later), "ordered by time")
	assert.Contains(t, text, "2025-06-30 15:00 (3 hours from now)")
	assert.Contains(t, text, strings.Repeat("b", 50)+"...")
	assert.NotContains(t, text, strings.Repeat("b", 51))
}

func TestDeleteLesson(t *testing.T) {
	h := newHarness(t)
	id := h.repo.Add(context.Background(), domain.Lesson{Text: "x", At: now.Add(time.Hour), TopicID: 1})

	assert.Equal(t, h.en(i18n.DeleteUsage), h.say("/deletelesson").Text)
	assert.Equal(t, h.en(i18n.LessonNotFound), h.say("/deletelesson 999").Text)
	assert.Equal(t, h.en(i18n.LessonDeleted), h.say("/deletelesson "+id).Text)
	_, ok := h.repo.Get(id)
	assert.False(t, ok)
}

func TestEditLessonTopic(t *testing.T) {
	h := newHarness(t)
	id := h.repo.Add(context.Background(), domain.Lesson{Text: "x", At: now.Add(time.Hour), TopicID: 1})

	assert.Equal(t, h.en(i18n.LessonNotFound), h.say("/editlesson 42").Text)
	assert.Equal(t, h.en(i18n.ChooseEditField), h.say("/editlesson "+id).Text)
	assert.Equal(t, h.en(i18n.InvalidEditChoice), h.say("9").Text)
	assert.Equal(t, h.en(i18n.EditTopic), h.say("3").Text)
	assert.Equal(t, h.en(i18n.LessonUpdated), h.say("12").Text)

	l, ok := h.repo.Get(id)
	require.True(t, ok)
	assert.Equal(t, 12, l.TopicID)
}

func TestEditOfLessonDeletedMeanwhile(t *testing.T) {
	h := newHarness(t)
	id := h.repo.Add(context.Background(), domain.Lesson{Text: "x", At: now.Add(time.Hour), TopicID: 1})
	h.say("/editlesson " + id)
	h.say("1")
	require.True(t, h.repo.Delete(context.Background(), id, 0))
	assert.Equal(t, h.en(i18n.LessonNotFound), h.say("new text").Text)
}

func TestExportSendsJSONDocument(t *testing.T) {
	h := newHarness(t)
	h.repo.Add(context.Background(), domain.Lesson{Text: "one", At: now.Add(time.Hour), TopicID: 1})
	h.repo.Add(context.Background(), domain.Lesson{Text: "two", At: now.Add(2 * time.Hour), TopicID: 2})

	sent := h.say("/export")
	require.Equal(t, "document", sent.Kind)
	assert.Equal(t, "application/json", sent.Doc.MIME)
	assert.Regexp(t, `^lessons_backup_\d{8}_\d{6}\.json$`, sent.Doc.FileName)
	assert.Equal(t, h.en(i18n.ExportData, "2"), sent.Doc.Caption)

	got, _, err := storage.DecodeExport(sent.Doc.Data)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestHelpAndUnknownCommand(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, h.en(i18n.HelpText, "CET, UTC+1"), h.say("/help").Text)
	assert.Equal(t, h.en(i18n.UnknownCommand), h.say("/nope").Text)
}

func TestRelativeHints(t *testing.T) {
	t.Parallel()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "3 hours from now", relative(domain.LanguageEnglish, base.Add(3*time.Hour), base))
	assert.Equal(t, "2 days ago", relative(domain.LanguageEnglish, base.Add(-48*time.Hour), base))
	assert.Equal(t, "بعد 3 ساعة", relative(domain.LanguageArabic, base.Add(3*time.Hour), base))
	assert.Equal(t, "منذ 5 دقيقة", relative(domain.LanguageArabic, base.Add(-5*time.Minute), base))
}
