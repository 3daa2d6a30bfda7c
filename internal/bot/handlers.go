// Package bot implements the chat command surface: lesson composition,
// listing, deletion, editing, export, language selection and help.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"studybot/internal/dispatch"
	"studybot/internal/domain"
	"studybot/internal/i18n"
	"studybot/internal/intake"
	"studybot/internal/lessons"
	"studybot/internal/storage"
	kit "studybot/internal/transport"
	"studybot/internal/transport/telegram/router"
	"studybot/pkg/logx"
	"studybot/pkg/tgui"
)

const (
	listPreviewRunes = 50
	listTimeLayout   = "2006-01-02 15:04"
)

// ScanStatus exposes scanner state for /status.
type ScanStatus interface {
	LastReport() dispatch.Report
	NextRun() time.Time
}

type Deps struct {
	Repo     *lessons.Repository
	Catalog  *i18n.Catalog
	Machine  *intake.Machine
	Sessions *intake.Sessions
	Scanner  ScanStatus // optional
	Log      logx.Logger
	Now      func() time.Time
}

type Handlers struct {
	repo     *lessons.Repository
	cat      *i18n.Catalog
	machine  *intake.Machine
	sessions *intake.Sessions
	scanner  ScanStatus
	log      logx.Logger
	now      func() time.Time
}

func New(d Deps) *Handlers {
	h := &Handlers{
		repo:     d.Repo,
		cat:      d.Catalog,
		machine:  d.Machine,
		sessions: d.Sessions,
		scanner:  d.Scanner,
		log:      d.Log.OrNop().Component("bot"),
		now:      d.Now,
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}

// Register installs every command, callback and the intake fallback.
func (h *Handlers) Register(r *router.Router) {
	r.SetRegistry(h.Commands(), h.Callbacks())
	r.SetFallback(h.OnMessage)
	r.SetUnknown(h.OnUnknown)
	r.SetErrorReply(h.ErrorReply)
}

func (h *Handlers) Commands() []router.Command {
	return []router.Command{
		{Route: "start", Description: "Start and choose language", Handle: h.Start},
		{Route: "addlesson", Description: "Add a new scheduled lesson", Handle: h.AddLesson},
		{Route: "listlessons", Description: "View all scheduled lessons", Handle: h.ListLessons},
		{Route: "deletelesson", Description: "Delete a lesson: /deletelesson <id>", Usage: "/deletelesson <id>", Handle: h.DeleteLesson},
		{Route: "editlesson", Description: "Edit a lesson: /editlesson <id>", Usage: "/editlesson <id>", Handle: h.EditLesson},
		{Route: "export", Description: "Export all lessons as backup", Timeout: time.Minute, Handle: h.Export},
		{Route: "language", Description: "Change language", Handle: h.Language},
		{Route: "help", Description: "Show help", Handle: h.Help},
		{Route: "cancel", Description: "Cancel the current operation", Handle: h.Cancel},
		{Route: "status", Hidden: true, Handle: h.Status},
	}
}

func (h *Handlers) Callbacks() []router.CallbackRoute {
	return []router.CallbackRoute{
		{Prefix: "lang", Action: "set", Handle: h.OnLanguageButton},
		{Prefix: "intake", Action: "confirm", Handle: h.onIntakeButton(intake.ActionConfirm)},
		{Prefix: "intake", Action: "discard", Handle: h.onIntakeButton(intake.ActionDiscard)},
	}
}

func (h *Handlers) lang(req *router.Request) domain.Language { return h.repo.Language(req.FromID) }

func sessionKey(req *router.Request) intake.Key {
	return intake.Key{ChatID: req.Chat.ChatID, UserID: req.FromID}
}

func (h *Handlers) reply(ctx context.Context, req *router.Request, lang domain.Language, key string, args ...any) error {
	_, err := req.Adapter.SendText(ctx, req.Chat, h.cat.T(lang, key, args...), &kit.SendOptions{DisablePreview: true})
	return err
}

func (h *Handlers) replyMarkup(ctx context.Context, req *router.Request, text string, in *tgui.Inline) error {
	_, err := req.Adapter.SendText(ctx, req.Chat, text, &kit.SendOptions{DisablePreview: true, ReplyMarkupAdapter: in.Markup()})
	return err
}

func languageButtons() *tgui.Inline {
	var btns []tgui.Button
	for _, l := range i18n.Languages() {
		btns = append(btns, tgui.Btn(i18n.Label(l), tgui.Data("lang", "set", string(l))))
	}
	return tgui.Grid2(btns)
}

// Start greets in both languages and offers the language buttons.
func (h *Handlers) Start(ctx context.Context, req *router.Request) error {
	h.sessions.Put(sessionKey(req), intake.Session{State: intake.ChoosingLanguage})
	return h.replyMarkup(ctx, req, h.cat.T(h.lang(req), i18n.Welcome), languageButtons())
}

func (h *Handlers) Language(ctx context.Context, req *router.Request) error {
	next, out := intake.BeginLanguage()
	h.sessions.Put(sessionKey(req), next)
	return h.replyMarkup(ctx, req, h.cat.T(h.lang(req), out.Reply), languageButtons())
}

func (h *Handlers) OnLanguageButton(ctx context.Context, req *router.Request, payload string) error {
	lang, ok := domain.ParseLanguage(payload)
	if !ok {
		return nil
	}
	h.sessions.Delete(sessionKey(req))
	return h.setLanguage(ctx, req, lang)
}

func (h *Handlers) setLanguage(ctx context.Context, req *router.Request, lang domain.Language) error {
	if err := h.repo.SetLanguage(ctx, req.FromID, lang); err != nil {
		return err
	}
	if err := h.reply(ctx, req, lang, i18n.LanguageSelected); err != nil {
		return err
	}
	return h.reply(ctx, req, lang, i18n.HelpText, h.tzLabel())
}

func (h *Handlers) AddLesson(ctx context.Context, req *router.Request) error {
	next, out := intake.BeginAdd()
	h.sessions.Put(sessionKey(req), next)
	return h.reply(ctx, req, h.lang(req), out.Reply)
}

func (h *Handlers) ListLessons(ctx context.Context, req *router.Request) error {
	lang := h.lang(req)
	all := h.repo.List()
	if len(all) == 0 {
		return h.reply(ctx, req, lang, i18n.NoLessons)
	}
	now := h.now()
	loc := h.machine.Location()

	var b strings.Builder
	b.WriteString(h.cat.T(lang, i18n.LessonsList))
	for _, l := range all {
		b.WriteString(h.cat.T(lang, i18n.LessonItem,
			l.ID,
			l.At.In(loc).Format(listTimeLayout),
			strconv.Itoa(l.TopicID),
			l.Preview(listPreviewRunes),
			relative(lang, l.At, now),
		))
	}
	_, err := req.Adapter.SendText(ctx, req.Chat, strings.TrimRight(b.String(), "\n"), &kit.SendOptions{DisablePreview: true})
	return err
}

func (h *Handlers) DeleteLesson(ctx context.Context, req *router.Request) error {
	lang := h.lang(req)
	if len(req.Args) == 0 {
		return h.reply(ctx, req, lang, i18n.DeleteUsage)
	}
	if !h.repo.Delete(ctx, req.Args[0], req.FromID) {
		return h.reply(ctx, req, lang, i18n.LessonNotFound)
	}
	return h.reply(ctx, req, lang, i18n.LessonDeleted)
}

func (h *Handlers) EditLesson(ctx context.Context, req *router.Request) error {
	lang := h.lang(req)
	if len(req.Args) == 0 {
		return h.reply(ctx, req, lang, i18n.EditUsage)
	}
	id := req.Args[0]
	if _, ok := h.repo.Get(id); !ok {
		return h.reply(ctx, req, lang, i18n.LessonNotFound)
	}
	next, out := intake.BeginEdit(id)
	h.sessions.Put(sessionKey(req), next)
	return h.reply(ctx, req, lang, out.Reply)
}

func (h *Handlers) Export(ctx context.Context, req *router.Request) error {
	lang := h.lang(req)
	data, at, err := h.repo.Export()
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	doc := kit.Document{
		FileName: storage.ExportFileName(at.In(h.machine.Location())),
		MIME:     "application/json",
		Data:     data,
		Caption:  h.cat.T(lang, i18n.ExportData, strconv.Itoa(h.repo.Len())),
	}
	if _, err := req.Adapter.SendDocument(ctx, req.Chat, doc); err != nil {
		return err
	}
	req.Logger.Info("export sent", logx.String("file", doc.FileName), logx.String("size", humanize.Bytes(uint64(len(data)))))
	return nil
}

func (h *Handlers) Help(ctx context.Context, req *router.Request) error {
	return h.reply(ctx, req, h.lang(req), i18n.HelpText, h.tzLabel())
}

func (h *Handlers) Cancel(ctx context.Context, req *router.Request) error {
	k := sessionKey(req)
	cur, _ := h.sessions.Get(k)
	next, out := h.machine.Step(cur, intake.Input{Action: intake.ActionCancel})
	h.sessions.Put(k, next)
	return h.reply(ctx, req, h.lang(req), out.Reply)
}

// Status is an operator summary; it is not translated.
func (h *Handlers) Status(ctx context.Context, req *router.Request) error {
	now := h.now()
	lines := []string{fmt.Sprintf("pending lessons: %d", h.repo.Len())}
	if all := h.repo.List(); len(all) > 0 {
		lines = append(lines, fmt.Sprintf("next lesson: #%s %s", all[0].ID, humanize.RelTime(all[0].At, now, "ago", "from now")))
	}
	if h.scanner != nil {
		rep := h.scanner.LastReport()
		if !rep.At.IsZero() {
			lines = append(lines, fmt.Sprintf("last scan: %s (due %d, delivered %d, failed %d, orphaned %d)",
				humanize.RelTime(rep.At, now, "ago", "from now"), rep.Due, rep.Delivered, rep.Failed, rep.Orphaned))
		}
		if next := h.scanner.NextRun(); !next.IsZero() {
			lines = append(lines, "next scan: "+humanize.RelTime(next, now, "ago", "from now"))
		}
	}
	_, err := req.Adapter.SendText(ctx, req.Chat, strings.Join(lines, "\n"), nil)
	return err
}

func (h *Handlers) OnUnknown(ctx context.Context, req *router.Request) error {
	return h.reply(ctx, req, h.lang(req), i18n.UnknownCommand)
}

func (h *Handlers) ErrorReply(req *router.Request) string {
	return h.cat.T(h.lang(req), i18n.InternalError)
}

// OnMessage feeds non-command messages into the user's active session.
// Messages outside a session are ignored.
func (h *Handlers) OnMessage(ctx context.Context, req *router.Request) error {
	k := sessionKey(req)
	cur, ok := h.sessions.Get(k)
	if !ok || req.Message == nil {
		return nil
	}
	in := intake.Input{Text: req.Message.Text, PhotoID: req.Message.PhotoID}
	if in.Text == "" {
		in.Text = req.Message.Caption
	}
	return h.step(ctx, req, k, cur, in)
}

func (h *Handlers) onIntakeButton(action intake.Action) router.CallbackHandlerFunc {
	return func(ctx context.Context, req *router.Request, _ string) error {
		k := sessionKey(req)
		cur, ok := h.sessions.Get(k)
		if !ok || cur.State != intake.Confirming {
			return nil
		}
		return h.step(ctx, req, k, cur, intake.Input{Action: action})
	}
}

func (h *Handlers) step(ctx context.Context, req *router.Request, k intake.Key, cur intake.Session, in intake.Input) error {
	next, out := h.machine.Step(cur, in)
	h.sessions.Put(k, next)
	if out.Ignored {
		return nil
	}
	lang := h.lang(req)
	if out.Err != nil {
		req.Logger.Debug("intake input rejected", logx.String("state", cur.State.String()), logx.Err(out.Err))
	}

	switch {
	case out.Language != "":
		return h.setLanguage(ctx, req, out.Language)

	case out.Commit != nil:
		l := *out.Commit
		l.UserID = req.FromID
		// Composed inside a group: post back there. Private chats use the
		// configured default at delivery time.
		if req.Chat.ChatID < 0 {
			l.GroupChatID = req.Chat.ChatID
		}
		id := h.repo.Add(ctx, l)
		return h.reply(ctx, req, lang, out.Reply, id)

	case out.Edit != nil:
		found, err := h.repo.UpdateField(ctx, out.Edit.ID, out.Edit.Field, out.Edit.Value, req.FromID)
		switch {
		case !found:
			return h.reply(ctx, req, lang, i18n.LessonNotFound)
		case errors.Is(err, domain.ErrValidation):
			return h.reply(ctx, req, lang, i18n.InternalError)
		case err != nil:
			return err
		}
		return h.reply(ctx, req, lang, out.Reply)

	case out.AskConfirm:
		text := h.cat.T(lang, out.Reply, out.Args...)
		if out.Reply != i18n.ConfirmPrompt {
			text += "\n\n" + h.cat.T(lang, i18n.ConfirmPrompt)
		}
		buttons := tgui.NewInline().Row(
			tgui.Btn(h.cat.T(lang, i18n.BtnSave), tgui.Data("intake", "confirm", "")),
			tgui.Btn(h.cat.T(lang, i18n.BtnDiscard), tgui.Data("intake", "discard", "")),
		)
		return h.replyMarkup(ctx, req, text, buttons)
	}
	return h.reply(ctx, req, lang, out.Reply, out.Args...)
}

func (h *Handlers) tzLabel() string {
	loc := h.machine.Location()
	_, offset := h.now().In(loc).Zone()
	sign := "+"
	if offset < 0 {
		sign, offset = "-", -offset
	}
	label := fmt.Sprintf("UTC%s%d", sign, offset/3600)
	if m := (offset % 3600) / 60; m != 0 {
		label += fmt.Sprintf(":%02d", m)
	}
	if name := loc.String(); name != "" && name != "UTC" && name != "Local" {
		label = name + ", " + label
	}
	return label
}
