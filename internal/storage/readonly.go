package storage

import "context"

// readOnlyStore serves loads for operator tooling running next to the bot.
type readOnlyStore struct {
	Store
}

func (readOnlyStore) Save(context.Context, Snapshot) error { return ErrReadOnly }

func (readOnlyStore) AppendAudit(context.Context, AuditEntry) error { return ErrReadOnly }
