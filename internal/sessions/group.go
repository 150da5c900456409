package sessions

import (
	"slices"

	"github.com/tphakala/audiosessions/internal/errors"
)

// ProcessGroup holds the sessions of one app that share a grouping key,
// usually the streams of a single process instance. Access it on the
// dispatch queue only.
type ProcessGroup struct {
	groupingKey string
	sessions    []*Session
}

func newProcessGroup(key string, first *Session) *ProcessGroup {
	return &ProcessGroup{groupingKey: key, sessions: []*Session{first}}
}

func (g *ProcessGroup) GroupingKey() string { return g.groupingKey }

// Sessions returns a copy of the member sessions.
func (g *ProcessGroup) Sessions() []*Session { return slices.Clone(g.sessions) }

// Muted reports whether any member is muted. Not cached: members can be
// muted through the OS behind our back.
func (g *ProcessGroup) Muted() bool {
	return slices.ContainsFunc(g.sessions, (*Session).Muted)
}

// SetMuted writes the flag to every member.
func (g *ProcessGroup) SetMuted(muted bool) error {
	var errs []error
	for _, s := range g.sessions {
		if err := s.SetMuted(muted); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (g *ProcessGroup) add(s *Session) {
	g.sessions = append(g.sessions, s)
}

// remove drops s and reports whether it was a member and whether the group is now empty.
func (g *ProcessGroup) remove(s *Session) (found, empty bool) {
	idx := slices.Index(g.sessions, s)
	if idx < 0 {
		return false, len(g.sessions) == 0
	}
	g.sessions = slices.Delete(g.sessions, idx, idx+1)
	return true, len(g.sessions) == 0
}

// AppGroup holds every ProcessGroup of one application on one device.
type AppGroup struct {
	appID       string
	exeName     string
	displayName string
	groups      []*ProcessGroup
}

func newAppGroup(first *Session) *AppGroup {
	return &AppGroup{
		appID:       first.AppID(),
		exeName:     first.ExeName(),
		displayName: first.DisplayName(),
		groups:      []*ProcessGroup{newProcessGroup(first.GroupingKey(), first)},
	}
}

func (a *AppGroup) AppID() string       { return a.appID }
func (a *AppGroup) ExeName() string     { return a.exeName }
func (a *AppGroup) DisplayName() string { return a.displayName }

// ProcessGroups returns a copy of the child groups.
func (a *AppGroup) ProcessGroups() []*ProcessGroup { return slices.Clone(a.groups) }

// Muted reports whether any child group is muted.
func (a *AppGroup) Muted() bool {
	return slices.ContainsFunc(a.groups, (*ProcessGroup).Muted)
}

// SetMuted writes the flag to every session of the app.
func (a *AppGroup) SetMuted(muted bool) error {
	var errs []error
	for _, g := range a.groups {
		if err := g.SetMuted(muted); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Sessions returns every session of the app in group order.
func (a *AppGroup) Sessions() []*Session {
	var out []*Session
	for _, g := range a.groups {
		out = append(out, g.sessions...)
	}
	return out
}

func (a *AppGroup) find(key string) *ProcessGroup {
	for _, g := range a.groups {
		if g.groupingKey == key {
			return g
		}
	}
	return nil
}

func (a *AppGroup) add(g *ProcessGroup) {
	a.groups = append(a.groups, g)
}

// remove drops s from whichever group holds it, removing that group when it
// empties. empty is true once the app has no groups left.
func (a *AppGroup) remove(s *Session) (found, empty bool) {
	for i, g := range a.groups {
		ok, groupEmpty := g.remove(s)
		if !ok {
			continue
		}
		if groupEmpty {
			a.groups = slices.Delete(a.groups, i, i+1)
		}
		return true, len(a.groups) == 0
	}
	return false, len(a.groups) == 0
}
