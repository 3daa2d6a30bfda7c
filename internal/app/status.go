package app

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"

	"studybot/internal/dispatch"
	"studybot/internal/notifier"
	rtsup "studybot/internal/runtime/supervisor"
)

type statusReport struct {
	Started  time.Time `json:"started"`
	Uptime   string    `json:"uptime"`
	Lessons  int       `json:"lessons"`
	NextDue  string    `json:"next_due,omitempty"`
	Sessions int       `json:"sessions"`

	Dispatch struct {
		Enabled bool            `json:"enabled"`
		NextRun time.Time       `json:"next_run,omitzero"`
		Last    dispatch.Report `json:"last"`
	} `json:"dispatch"`

	Alerts struct {
		Enabled bool                   `json:"enabled"`
		Stats   notifier.Stats         `json:"stats"`
		Recent  []notifier.HistoryItem `json:"recent,omitempty"`
	} `json:"alerts"`

	RouterDropped uint64                    `json:"router_dropped"`
	Supervisors   map[string]rtsup.Snapshot `json:"supervisors"`
}

// status backs the ops /status endpoint.
func (a *App) status(context.Context) any {
	now := time.Now()
	var r statusReport
	r.Started = a.started
	r.Uptime = now.Sub(a.started).Round(time.Second).String()
	r.Lessons = a.repo.Len()
	for _, l := range a.repo.List() {
		if l.At.After(now) {
			r.NextDue = l.At.Format(time.RFC3339) + " (" + humanize.Time(l.At) + ")"
			break
		}
	}
	r.Sessions = a.sessions.Len()

	r.Dispatch.Enabled = a.scanner.Enabled()
	r.Dispatch.NextRun = a.scanner.NextRun()
	r.Dispatch.Last = a.scanner.LastReport()

	r.Alerts.Enabled = a.notif.Enabled()
	r.Alerts.Stats = a.notif.Stats()
	r.Alerts.Recent = a.notif.History()

	r.RouterDropped = a.router.Dropped()
	r.Supervisors = a.sups.Snapshots()
	return r
}
