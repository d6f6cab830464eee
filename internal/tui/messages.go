package tui

import (
	"github.com/jask/deliverydesk/internal/api"
	"github.com/jask/deliverydesk/internal/database/repository"
	"github.com/jask/deliverydesk/internal/service"
)

// detailMsg is implemented by every message addressed to one detail session.
type detailMsg interface {
	detailSession() string
}

type detailLoadedMsg struct {
	session string
	seq     uint64
	snap    service.Snapshot
	err     error
}

type actionDoneMsg struct {
	session string
	action  string
	path    string
	text    string
	err     error
}

type closeTickMsg struct {
	session string
}

type detailJournalMsg struct {
	session string
	entries []repository.Activity
}

func (m detailLoadedMsg) detailSession() string  { return m.session }
func (m actionDoneMsg) detailSession() string    { return m.session }
func (m closeTickMsg) detailSession() string     { return m.session }
func (m detailJournalMsg) detailSession() string { return m.session }

// app level
type shipmentsMsg struct {
	seq       uint64
	list      []api.Shipment
	fromCache bool
	err       error
}

type activityMsg []repository.Activity

type loginDoneMsg struct {
	token string
	err   error
}

type statusMsg string

type errMsg struct{ error }
