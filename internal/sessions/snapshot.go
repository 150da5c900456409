package sessions

import (
	"context"

	"github.com/tphakala/audiosessions/internal/dispatch"
)

// DeviceSnapshot is a value copy of a collection, safe to use on any goroutine.
type DeviceSnapshot struct {
	DeviceID string            `json:"device_id" yaml:"device_id"`
	State    string            `json:"state" yaml:"state"`
	Apps     []AppSnapshot     `json:"apps" yaml:"apps"`
	Moved    []SessionSnapshot `json:"moved,omitempty" yaml:"moved,omitempty"`
}

type AppSnapshot struct {
	AppID         string                 `json:"app_id" yaml:"app_id"`
	ExeName       string                 `json:"exe_name" yaml:"exe_name"`
	DisplayName   string                 `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	Muted         bool                   `json:"muted" yaml:"muted"`
	ProcessGroups []ProcessGroupSnapshot `json:"process_groups" yaml:"process_groups"`
}

type ProcessGroupSnapshot struct {
	GroupingKey string            `json:"grouping_key" yaml:"grouping_key"`
	Muted       bool              `json:"muted" yaml:"muted"`
	Sessions    []SessionSnapshot `json:"sessions" yaml:"sessions"`
}

type SessionSnapshot struct {
	ID        string `json:"id" yaml:"id"`
	AppID     string `json:"app_id" yaml:"app_id"`
	ProcessID uint32 `json:"process_id" yaml:"process_id"`
	Muted     bool   `json:"muted" yaml:"muted"`
	State     string `json:"state" yaml:"state"`
}

// SessionCount returns the number of sessions in the live tree.
func (d DeviceSnapshot) SessionCount() int {
	n := 0
	for _, app := range d.Apps {
		for _, g := range app.ProcessGroups {
			n += len(g.Sessions)
		}
	}
	return n
}

// FindApp returns the snapshot of appID.
func (d DeviceSnapshot) FindApp(appID string) (AppSnapshot, bool) {
	for _, app := range d.Apps {
		if app.AppID == appID {
			return app, true
		}
	}
	return AppSnapshot{}, false
}

// Snapshot copies the tree on the dispatch queue and waits for the result.
func (c *Collection) Snapshot(ctx context.Context) (DeviceSnapshot, error) {
	var snap DeviceSnapshot
	if c.queue == nil {
		return snap, dispatch.ErrClosed
	}
	err := c.queue.Invoke(ctx, func() {
		snap = c.snapshot()
	})
	return snap, err
}

func (c *Collection) snapshot() DeviceSnapshot {
	snap := DeviceSnapshot{
		DeviceID: c.deviceID,
		State:    c.State().String(),
		Apps:     make([]AppSnapshot, 0, len(c.apps)),
	}
	for _, app := range c.apps {
		as := AppSnapshot{
			AppID:         app.appID,
			ExeName:       app.exeName,
			DisplayName:   app.displayName,
			Muted:         app.Muted(),
			ProcessGroups: make([]ProcessGroupSnapshot, 0, len(app.groups)),
		}
		for _, g := range app.groups {
			gs := ProcessGroupSnapshot{
				GroupingKey: g.groupingKey,
				Muted:       g.Muted(),
				Sessions:    make([]SessionSnapshot, 0, len(g.sessions)),
			}
			for _, s := range g.sessions {
				gs.Sessions = append(gs.Sessions, sessionSnapshot(s))
			}
			as.ProcessGroups = append(as.ProcessGroups, gs)
		}
		snap.Apps = append(snap.Apps, as)
	}
	for _, s := range c.moved {
		snap.Moved = append(snap.Moved, sessionSnapshot(s))
	}
	return snap
}

func sessionSnapshot(s *Session) SessionSnapshot {
	return SessionSnapshot{
		ID:        s.ID(),
		AppID:     s.AppID(),
		ProcessID: s.ProcessID(),
		Muted:     s.Muted(),
		State:     s.State().String(),
	}
}
