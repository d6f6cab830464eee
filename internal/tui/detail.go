package tui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/jask/deliverydesk/internal/api"
	"github.com/jask/deliverydesk/internal/database/repository"
	"github.com/jask/deliverydesk/internal/service"
)

const loadFailedPrefix = "failed to load shipment details: "

// Busy tracks the in-flight action of each kind. A flag only blocks its own
// action from being triggered again.
type Busy struct {
	Refreshing bool
	Uploading  bool
	Finalizing bool
}

// Status is the single outcome slot shown under the detail view.
type Status struct {
	Text    string
	IsError bool
}

// DetailHooks lets the owner of a detail view react to a finalization.
// OnUpdate asks for the shipment list to be fetched again and OnClose
// dismisses the view; after a successful finalize both run once, in that order.
type DetailHooks struct {
	OnUpdate     func() tea.Cmd
	OnClose      func()
	OnFileChosen func(path string)
}

// DetailOptions wires a Detail to its collaborators.
type DetailOptions struct {
	Loader      *service.DetailLoader
	Actions     *service.Actions
	Journal     *service.Journal
	Hooks       DetailHooks
	CloseDelay  time.Duration
	DownloadURL func(attachmentID string) string
	Location    *time.Location
	DateFormat  string
	Currency    string
	UploadDir   string
}

// Detail is the workflow state of one open shipment. All fields are owned by
// the Bubble Tea loop; commands only capture copies of what they need.
type Detail struct {
	opts     DetailOptions
	shipment api.Shipment
	session  string
	ctx      context.Context
	cancel   context.CancelFunc

	attachments    []api.Attachment
	returns        []api.ReturnRecord
	trackingEvents []api.TrackingEvent
	loaded         bool
	historyVisible bool
	busy           Busy
	selectedFile   string
	status         Status

	seq        uint64
	appliedSeq uint64
	finishing  bool
	finished   bool

	choosing  bool
	fileInput textinput.Model
	recent    []repository.Activity
}

// NewDetail opens a detail session for sh and returns the command that loads
// its collections.
func NewDetail(parent context.Context, sh api.Shipment, opts DetailOptions) (*Detail, tea.Cmd) {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.DateFormat == "" {
		opts.DateFormat = "02/01/2006 15:04"
	}
	ctx, cancel := context.WithCancel(parent)
	fi := textinput.New()
	fi.Prompt = "file: "
	fi.Placeholder = "/path/to/proof.pdf"
	fi.CharLimit = 4096
	_ = fi.Cursor.SetMode(cursor.CursorStatic)

	d := &Detail{
		opts:      opts,
		shipment:  sh,
		session:   uuid.NewString(),
		ctx:       ctx,
		cancel:    cancel,
		fileInput: fi,
	}
	return d, tea.Batch(d.load(), d.loadJournal())
}

func (d *Detail) ShipmentID() string { return string(d.shipment.ID) }

func (d *Detail) Attachments() []api.Attachment       { return d.attachments }
func (d *Detail) Returns() []api.ReturnRecord         { return d.returns }
func (d *Detail) TrackingEvents() []api.TrackingEvent { return d.trackingEvents }
func (d *Detail) HistoryVisible() bool                { return d.historyVisible }
func (d *Detail) Busy() Busy                          { return d.busy }
func (d *Detail) SelectedFile() string                { return d.selectedFile }
func (d *Detail) Status() Status                      { return d.status }
func (d *Detail) Closed() bool                        { return d.session == "" }

// FinalizationAllowed is derived on every call, never stored.
func (d *Detail) FinalizationAllowed() bool {
	return len(d.attachments) > 0 && !d.busy.Finalizing
}

// blankID reports whether the view has no shipment to act on.
func (d *Detail) blankID() bool {
	return strings.TrimSpace(d.ShipmentID()) == ""
}

// Close cancels in-flight work. Messages that arrive afterwards are dropped.
func (d *Detail) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	d.session = ""
}

// load issues a new load. Results of older loads that arrive after a newer one
// has been applied are discarded.
func (d *Detail) load() tea.Cmd {
	id := strings.TrimSpace(d.ShipmentID())
	if d.blankID() || d.Closed() || d.opts.Loader == nil {
		return nil
	}
	d.seq++
	seq, session, ctx, loader := d.seq, d.session, d.ctx, d.opts.Loader
	return func() tea.Msg {
		snap, err := loader.Load(ctx, id)
		return detailLoadedMsg{session: session, seq: seq, snap: snap, err: err}
	}
}

func (d *Detail) loadJournal() tea.Cmd {
	if d.opts.Journal == nil || d.Closed() {
		return nil
	}
	id, session, ctx, journal := d.ShipmentID(), d.session, d.ctx, d.opts.Journal
	return func() tea.Msg {
		entries, err := journal.Recent(context.WithoutCancel(ctx), id, 3)
		if err != nil {
			return nil
		}
		return detailJournalMsg{session: session, entries: entries}
	}
}

// ToggleHistory flips tracking history visibility. It never fetches.
func (d *Detail) ToggleHistory() {
	d.historyVisible = !d.historyVisible
}

// SelectFile validates path against the upload policy and keeps it for the
// next upload. An invalid path leaves the previous selection in place.
func (d *Detail) SelectFile(path string) {
	path = strings.TrimSpace(path)
	if path == "" {
		return
	}
	if d.opts.Actions != nil {
		if err := d.opts.Actions.Uploads.Validate(path); err != nil {
			d.status = Status{Text: service.FailureText(err, service.FallbackUploadFail), IsError: true}
			return
		}
	}
	d.selectedFile = path
	d.status = Status{Text: "selected " + filepath.Base(path)}
	if d.opts.Hooks.OnFileChosen != nil {
		d.opts.Hooks.OnFileChosen(path)
	}
}

// RefreshTracking asks the carrier for new events. Ignored while a refresh is
// in flight.
func (d *Detail) RefreshTracking() tea.Cmd {
	if d.busy.Refreshing || d.blankID() || d.Closed() || d.opts.Actions == nil {
		return nil
	}
	d.busy.Refreshing = true
	d.status = Status{}
	id, session, ctx, actions := d.ShipmentID(), d.session, d.ctx, d.opts.Actions
	return func() tea.Msg {
		text, err := actions.RefreshTracking(ctx, id)
		return actionDoneMsg{session: session, action: service.ActionRefresh, text: text, err: err}
	}
}

// Upload sends the selected file. Without a selection it does nothing.
func (d *Detail) Upload() tea.Cmd {
	if d.selectedFile == "" || d.busy.Uploading || d.blankID() || d.Closed() || d.opts.Actions == nil {
		return nil
	}
	d.busy.Uploading = true
	d.status = Status{}
	id, path, session, ctx, actions := d.ShipmentID(), d.selectedFile, d.session, d.ctx, d.opts.Actions
	return func() tea.Msg {
		text, err := actions.Upload(ctx, id, path)
		return actionDoneMsg{session: session, action: service.ActionUpload, path: path, text: text, err: err}
	}
}

// Finalize marks the shipment delivered. It is rejected without a request
// unless FinalizationAllowed.
func (d *Detail) Finalize() tea.Cmd {
	if !d.FinalizationAllowed() || d.finishing || d.blankID() || d.Closed() || d.opts.Actions == nil {
		return nil
	}
	d.busy.Finalizing = true
	d.status = Status{}
	id, count, session, ctx, actions := d.ShipmentID(), len(d.attachments), d.session, d.ctx, d.opts.Actions
	return func() tea.Msg {
		text, err := actions.Finalize(ctx, id, count)
		return actionDoneMsg{session: session, action: service.ActionFinalize, text: text, err: err}
	}
}

// Update applies a message addressed to this session.
func (d *Detail) Update(msg tea.Msg) tea.Cmd {
	dm, ok := msg.(detailMsg)
	if !ok || d.Closed() || dm.detailSession() != d.session {
		return nil
	}
	switch m := msg.(type) {
	case detailLoadedMsg:
		return d.applyLoad(m)
	case actionDoneMsg:
		return d.applyAction(m)
	case detailJournalMsg:
		d.recent = m.entries
	case closeTickMsg:
		return d.finish()
	}
	return nil
}

func (d *Detail) applyLoad(m detailLoadedMsg) tea.Cmd {
	if m.seq <= d.appliedSeq {
		return nil
	}
	d.appliedSeq = m.seq
	if errors.Is(m.err, service.ErrNoShipment) {
		return nil
	}
	if m.err != nil {
		reason := m.err.Error()
		var apiErr *api.Error
		if errors.As(m.err, &apiErr) && apiErr.Reason != "" {
			reason = apiErr.Reason
		}
		d.status = Status{Text: loadFailedPrefix + reason, IsError: true}
		return nil
	}
	d.attachments = m.snap.Attachments
	d.returns = m.snap.Returns
	d.trackingEvents = m.snap.Tracking
	d.loaded = true
	if d.status.IsError {
		d.status = Status{}
	}
	return nil
}

func (d *Detail) applyAction(m actionDoneMsg) tea.Cmd {
	switch m.action {
	case service.ActionRefresh:
		d.busy.Refreshing = false
	case service.ActionUpload:
		d.busy.Uploading = false
	case service.ActionFinalize:
		d.busy.Finalizing = false
	}
	if m.err != nil {
		if errors.Is(m.err, service.ErrNoFileSelected) || errors.Is(m.err, service.ErrGateClosed) {
			return d.loadJournal()
		}
		d.status = Status{Text: m.err.Error(), IsError: true}
		return d.loadJournal()
	}
	d.status = Status{Text: m.text}
	cmds := []tea.Cmd{d.load(), d.loadJournal()}
	switch m.action {
	case service.ActionUpload:
		if d.selectedFile == m.path {
			d.selectedFile = ""
		}
	case service.ActionFinalize:
		d.finishing = true
		session := d.session
		cmds = append(cmds, tea.Tick(d.opts.CloseDelay, func(time.Time) tea.Msg {
			return closeTickMsg{session: session}
		}))
	}
	return tea.Batch(cmds...)
}

// finish runs the finalize hooks exactly once, either when the close delay
// elapses or when the view is dismissed before it does.
func (d *Detail) finish() tea.Cmd {
	if d.finished {
		return nil
	}
	d.finished = true
	var cmd tea.Cmd
	if d.opts.Hooks.OnUpdate != nil {
		cmd = d.opts.Hooks.OnUpdate()
	}
	d.Close()
	if d.opts.Hooks.OnClose != nil {
		d.opts.Hooks.OnClose()
	}
	return cmd
}

// HandleKey maps a key press to a workflow operation.
func (d *Detail) HandleKey(m tea.KeyMsg) tea.Cmd {
	if d.choosing {
		switch {
		case key.Matches(m, inputCancel):
			d.choosing = false
			d.fileInput.Blur()
			return nil
		case key.Matches(m, inputSubmit):
			d.choosing = false
			d.fileInput.Blur()
			d.SelectFile(expandHome(d.fileInput.Value()))
			return nil
		}
		var cmd tea.Cmd
		d.fileInput, cmd = d.fileInput.Update(m)
		return cmd
	}
	switch {
	case key.Matches(m, detailKeys.Refresh):
		return d.RefreshTracking()
	case key.Matches(m, detailKeys.History):
		d.ToggleHistory()
	case key.Matches(m, detailKeys.Choose):
		d.choosing = true
		start := d.selectedFile
		if start == "" && d.opts.UploadDir != "" {
			start = d.opts.UploadDir + string(filepath.Separator)
		}
		d.fileInput.SetValue(start)
		d.fileInput.CursorEnd()
		_ = d.fileInput.Focus()
	case key.Matches(m, detailKeys.Upload):
		return d.Upload()
	case key.Matches(m, detailKeys.Finalize):
		return d.Finalize()
	case key.Matches(m, detailKeys.Close):
		if d.finishing {
			return d.finish()
		}
		d.Close()
		if d.opts.Hooks.OnClose != nil {
			d.opts.Hooks.OnClose()
		}
	}
	return nil
}

// View renders the shipment header, its proof-of-delivery attachments, the
// optional tracking history, the action line and the status slot.
func (d *Detail) View() string {
	sh := d.shipment
	loc, layout := d.opts.Location, d.opts.DateFormat
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("Shipment %s  invoice %s", sh.ID, sh.InvoiceNumber)))
	b.WriteString("\n")
	field := func(label, value string) {
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-12s", label)) + " " + value + "\n")
	}
	field("client", sh.Client)
	field("carrier", sh.Carrier)
	field("destination", strings.Trim(sh.City+"/"+sh.State, "/"))
	field("value", formatMoney(d.opts.Currency, sh.TotalValue))
	field("status", statusLabel(sh.Status))
	field("expected", formatTime(sh.ExpectedAt, loc, layout))
	if sh.Finalized() {
		field("finalized", formatTime(sh.FinalizedAt, loc, layout))
	} else {
		field("finalized", "pending")
	}
	if sh.DaysLate > 0 {
		field("late", fmt.Sprintf("%d day(s)", sh.DaysLate))
	}
	if sh.DriverName != "" {
		field("driver", sh.DriverName)
	}

	b.WriteString(sectionStyle.Render(fmt.Sprintf("Proof of delivery (%d)", len(d.attachments))))
	b.WriteString("\n")
	switch {
	case !d.loaded:
		b.WriteString("  loading...\n")
	case len(d.attachments) == 0:
		b.WriteString("  no attachment yet\n")
	default:
		for _, a := range d.attachments {
			line := "  " + a.Name()
			if !a.SentAt.IsZero() {
				line += "  " + formatTime(a.SentAt, loc, layout)
			}
			if d.opts.DownloadURL != nil {
				line += "  " + linkStyle.Render(d.opts.DownloadURL(string(a.ID)))
			}
			b.WriteString(line + "\n")
		}
	}
	b.WriteString(labelStyle.Render(fmt.Sprintf("Returns: %d", len(d.returns))))
	b.WriteString("\n")

	if d.historyVisible {
		b.WriteString(sectionStyle.Render(fmt.Sprintf("Tracking history (%d)", len(d.trackingEvents))))
		b.WriteString("\n")
		if len(d.trackingEvents) == 0 {
			b.WriteString("  no tracking events\n")
		}
		for _, ev := range d.trackingEvents {
			line := fmt.Sprintf("  %s  %s", formatTime(ev.Timestamp, loc, layout), ev.Description)
			if ev.Location != "" {
				line += "  (" + ev.Location + ")"
			}
			b.WriteString(line + "\n")
		}
	}

	b.WriteString("\n")
	if d.selectedFile != "" {
		b.WriteString("selected: " + d.selectedFile + "\n")
	}
	if d.choosing {
		b.WriteString(d.fileInput.View() + "\n" + labelStyle.Render("[enter] select  [esc] cancel") + "\n")
	}
	if busy := d.busyLine(); busy != "" {
		b.WriteString(busyStyle.Render(busy) + "\n")
	}

	finalize := detailKeys.Finalize
	finalize.SetEnabled(d.FinalizationAllowed())
	upload := detailKeys.Upload
	upload.SetEnabled(d.selectedFile != "" && !d.busy.Uploading)
	b.WriteString(helpLine(detailKeys.Refresh, detailKeys.History, detailKeys.Choose, upload, finalize, detailKeys.Close))
	if !d.FinalizationAllowed() {
		reason := "needs at least one proof of delivery"
		if d.busy.Finalizing {
			reason = "in progress"
		}
		b.WriteString("  " + disabledStyle.Render("[F] finalize") + " " + labelStyle.Render(reason))
	}
	b.WriteString("\n")

	if d.status.Text != "" {
		if d.status.IsError {
			b.WriteString(errorStyle.Render(d.status.Text))
		} else {
			b.WriteString(okStyle.Render(d.status.Text))
		}
		b.WriteString("\n")
	}
	if len(d.recent) > 0 {
		b.WriteString(labelStyle.Render("recent activity:"))
		b.WriteString("\n")
		for _, e := range d.recent {
			mark := "ok "
			if !e.OK {
				mark = "err"
			}
			b.WriteString(labelStyle.Render(fmt.Sprintf("  %s %s %-8s %s", e.CreatedAt.In(loc).Format(layout), mark, e.Action, truncate(e.Message, 60))))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (d *Detail) busyLine() string {
	var parts []string
	if d.busy.Refreshing {
		parts = append(parts, "refreshing tracking...")
	}
	if d.busy.Uploading {
		parts = append(parts, "uploading...")
	}
	if d.busy.Finalizing {
		parts = append(parts, "finalizing...")
	}
	return strings.Join(parts, "  ")
}
