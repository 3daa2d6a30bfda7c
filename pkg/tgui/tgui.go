// Package tgui builds Telegram inline keyboards and callback data strings.
package tgui

import (
	tele "gopkg.in/telebot.v4"
)

type Button = tele.Btn

// Inline accumulates keyboard rows.
type Inline struct {
	rm   *tele.ReplyMarkup
	rows []tele.Row
}

func NewInline() *Inline {
	return &Inline{rm: &tele.ReplyMarkup{}}
}

func (i *Inline) Row(btn ...Button) *Inline {
	if len(btn) == 0 {
		return i
	}
	i.rows = append(i.rows, i.rm.Row(btn...))
	i.rm.Inline(i.rows...)
	return i
}

// Markup returns the keyboard; nil receivers yield nil.
func (i *Inline) Markup() *tele.ReplyMarkup {
	if i == nil {
		return nil
	}
	return i.rm
}

// Rows is the number of keyboard rows.
func (i *Inline) Rows() int { return len(i.rows) }

// Btn creates a callback button. data is sent verbatim; build it with Data.
func Btn(text, data string) Button {
	return Button{Text: text, Data: data}
}

// Grid2 lays buttons out two per row.
func Grid2(buttons []Button) *Inline {
	in := NewInline()
	for i := 0; i < len(buttons); i += 2 {
		in.Row(buttons[i:min(i+2, len(buttons))]...)
	}
	return in
}
