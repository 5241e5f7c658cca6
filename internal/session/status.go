package session

import "time"

// Status is a point-in-time copy of one tenant's record.
type Status struct {
	TenantID       string
	State          State
	IsReady        bool
	IsInitializing bool
	HasPairingCode bool
	PairingCode    string
	LastError      string
	Stage          string
	SyncPercent    int
	LastActivityAt time.Time
	UpdatedAt      time.Time
}

// Status returns the tenant's current status. It never creates a record;
// unknown tenants report Idle.
func (m *Manager) Status(tenantID string) Status {
	rec, ok := m.store.Get(tenantID)
	if !ok {
		return Status{TenantID: tenantID, State: StateIdle, Stage: label(StateIdle, 0)}
	}
	rec.mu.RLock()
	defer rec.mu.RUnlock()
	return rec.statusLocked()
}

// Snapshot returns the status of every known tenant, ordered by tenant ID.
func (m *Manager) Snapshot() []Status {
	recs := m.store.All()
	out := make([]Status, 0, len(recs))
	for _, rec := range recs {
		rec.mu.RLock()
		out = append(out, rec.statusLocked())
		rec.mu.RUnlock()
	}
	return out
}

func (r *Record) statusLocked() Status {
	return Status{
		TenantID:       r.TenantID,
		State:          r.state,
		IsReady:        r.state == StateReady && r.handle != nil,
		IsInitializing: r.state.Connecting(),
		HasPairingCode: r.pairingCode != "",
		PairingCode:    r.pairingCode,
		LastError:      r.lastError,
		Stage:          r.stage,
		SyncPercent:    r.syncPercent,
		LastActivityAt: r.lastActivityAt,
		UpdatedAt:      r.updatedAt,
	}
}
