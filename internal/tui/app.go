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
	"go.uber.org/zap"

	"github.com/jask/deliverydesk/internal/api"
	"github.com/jask/deliverydesk/internal/config"
	"github.com/jask/deliverydesk/internal/database/repository"
	"github.com/jask/deliverydesk/internal/prefs"
	"github.com/jask/deliverydesk/internal/service"
)

// Session is the authenticated side of the API client.
type Session interface {
	BaseURL() string
	SetToken(token string)
	Token() string
	Login(ctx context.Context, login, password string) (string, error)
	DownloadURL(attachmentID string) string
}

// TokenStore persists the bearer token between runs.
type TokenStore interface {
	StoreToken(baseURL, token string) error
	DeleteToken(baseURL string) error
}

// PrefsStore remembers small UI choices.
type PrefsStore interface {
	Load() (prefs.Prefs, error)
	Save(prefs.Prefs) error
}

type Services struct {
	Shipments *service.ShipmentService
	Loader    *service.DetailLoader
	Actions   *service.Actions
	Journal   *service.Journal
}

// App ties together the list screen, the activity screen, the login modal and
// the open detail view.
type App struct {
	ctx      context.Context
	cfg      config.Config
	session  Session
	services Services
	tokens   TokenStore
	prefs    PrefsStore
	log      *zap.Logger
	tz       *time.Location

	state  appState
	modal  modalState
	status string

	shipments    []api.Shipment
	visible      []api.Shipment
	cursor       int
	statusFilter string
	query        string
	listSeq      uint64
	listApplied  uint64
	fromCache    bool

	detail   *Detail
	activity []repository.Activity

	loginUser   textinput.Model
	loginPass   textinput.Model
	loginFocus  int
	loggingIn   bool
	searchInput textinput.Model
	uploadDir   string
}

type appState string

const (
	viewList     appState = "list"
	viewActivity appState = "activity"
)

type modalState string

const (
	modalNone   modalState = ""
	modalLogin  modalState = "login"
	modalSearch modalState = "search"
)

// Options are the optional collaborators of App.
type Options struct {
	Tokens TokenStore
	Prefs  PrefsStore
	Log    *zap.Logger
}

func New(ctx context.Context, cfg config.Config, session Session, services Services, tz *time.Location, opts Options) *App {
	if tz == nil {
		tz = time.Local
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	a := &App{
		ctx:         ctx,
		cfg:         cfg,
		session:     session,
		services:    services,
		tokens:      opts.Tokens,
		prefs:       opts.Prefs,
		log:         opts.Log,
		tz:          tz,
		state:       viewList,
		loginUser:   newInput("login: ", ""),
		loginPass:   newInput("password: ", ""),
		searchInput: newInput("search: ", "invoice, client, carrier or city"),
	}
	a.loginPass.EchoMode = textinput.EchoPassword
	a.loginPass.EchoCharacter = '•'
	if a.prefs != nil {
		if p, err := a.prefs.Load(); err == nil {
			a.uploadDir = p.UploadDir
			a.statusFilter = p.StatusFilter
		}
	}
	if session.Token() == "" {
		a.openLogin()
	}
	return a
}

func newInput(prompt, placeholder string) textinput.Model {
	ti := textinput.New()
	ti.Prompt = prompt
	ti.Placeholder = placeholder
	ti.CharLimit = 256
	_ = ti.Cursor.SetMode(cursor.CursorStatic)
	return ti
}

func (a *App) Init() tea.Cmd {
	cmds := []tea.Cmd{a.loadCached()}
	if a.session.Token() != "" {
		cmds = append(cmds, a.loadShipments())
	}
	return tea.Batch(cmds...)
}

// Detail returns the open detail view, if any.
func (a *App) Detail() *Detail { return a.detail }

func (a *App) loadCached() tea.Cmd {
	if a.services.Shipments == nil {
		return nil
	}
	a.listSeq++
	seq, status, svc := a.listSeq, a.statusFilter, a.services.Shipments
	return func() tea.Msg {
		list, err := svc.Cached(a.ctx, status)
		if err != nil || len(list) == 0 {
			return nil
		}
		return shipmentsMsg{seq: seq, list: list, fromCache: true}
	}
}

func (a *App) loadShipments() tea.Cmd {
	if a.services.Shipments == nil {
		return nil
	}
	a.listSeq++
	seq, svc := a.listSeq, a.services.Shipments
	filter := api.ShipmentFilter{Status: a.statusFilter}
	return func() tea.Msg {
		list, err := svc.List(a.ctx, filter)
		return shipmentsMsg{seq: seq, list: list, err: err}
	}
}

func (a *App) loadActivity() tea.Cmd {
	journal := a.services.Journal
	return func() tea.Msg {
		entries, err := journal.Recent(a.ctx, "", 50)
		if err != nil {
			return errMsg{err}
		}
		return activityMsg(entries)
	}
}

func (a *App) loginCmd(user, password string) tea.Cmd {
	session := a.session
	return func() tea.Msg {
		token, err := session.Login(a.ctx, user, password)
		return loginDoneMsg{token: token, err: err}
	}
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(m, forceQuit) {
			a.closeDetail()
			return a, tea.Quit
		}
		if a.modal != modalNone {
			return a, a.handleModalKey(m)
		}
		if a.detail != nil {
			return a, a.detail.HandleKey(m)
		}
		if a.state == viewActivity {
			return a, a.handleActivityKey(m)
		}
		return a, a.handleListKey(m)
	case detailMsg:
		if a.detail == nil {
			return a, nil
		}
		return a, a.detail.Update(msg)
	case shipmentsMsg:
		return a, a.applyShipments(m)
	case activityMsg:
		a.activity = []repository.Activity(m)
	case loginDoneMsg:
		a.loggingIn = false
		if m.err != nil {
			a.status = "login failed: " + service.FailureText(errors.Unwrap(m.err), "check login and password")
			return a, nil
		}
		a.modal = modalNone
		a.loginPass.SetValue("")
		if a.tokens != nil {
			if err := a.tokens.StoreToken(a.session.BaseURL(), m.token); err != nil {
				a.log.Warn("token not persisted", zap.Error(err))
			}
		}
		a.status = "logged in"
		return a, a.loadShipments()
	case statusMsg:
		a.status = string(m)
	case errMsg:
		a.status = "error: " + m.Error()
	}
	return a, nil
}

func (a *App) applyShipments(m shipmentsMsg) tea.Cmd {
	if m.seq < a.listApplied {
		return nil
	}
	if m.fromCache && a.listApplied > 0 {
		return nil
	}
	a.listApplied = m.seq
	if m.err != nil {
		if errors.Is(m.err, api.ErrUnauthorized) {
			a.status = api.ErrUnauthorized.Error()
			a.forgetSession()
			a.openLogin()
			return nil
		}
		a.status = "error: " + service.FailureText(m.err, "failed to load shipments")
		return nil
	}
	a.shipments = m.list
	a.fromCache = m.fromCache
	a.applySearch()
	if !m.fromCache && strings.HasPrefix(a.status, "error:") {
		a.status = ""
	}
	return nil
}

// forgetSession drops a token the API no longer accepts.
func (a *App) forgetSession() {
	a.session.SetToken("")
	if a.tokens == nil {
		return
	}
	if err := a.tokens.DeleteToken(a.session.BaseURL()); err != nil {
		a.log.Debug("drop saved session", zap.Error(err))
	}
}

func (a *App) applySearch() {
	a.visible = service.SearchShipments(a.shipments, a.query)
	if a.cursor >= len(a.visible) {
		a.cursor = 0
	}
}

func (a *App) handleListKey(m tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(m, listKeys.Quit):
		return tea.Quit
	case key.Matches(m, listKeys.Up):
		if a.cursor > 0 {
			a.cursor--
		}
	case key.Matches(m, listKeys.Down):
		if a.cursor < len(a.visible)-1 {
			a.cursor++
		}
	case key.Matches(m, listKeys.Open):
		if len(a.visible) == 0 {
			return nil
		}
		return a.openDetail(a.visible[a.cursor])
	case key.Matches(m, listKeys.Reload):
		a.status = "loading..."
		return a.loadShipments()
	case key.Matches(m, listKeys.Filter):
		a.statusFilter = service.NextStatus(a.statusFilter)
		a.savePrefs()
		a.status = "filter: " + statusLabel(a.statusFilter)
		return a.loadShipments()
	case key.Matches(m, listKeys.Search):
		a.modal = modalSearch
		a.searchInput.SetValue(a.query)
		a.searchInput.CursorEnd()
		_ = a.searchInput.Focus()
	case key.Matches(m, listKeys.Activity):
		if a.services.Journal == nil {
			return nil
		}
		a.state = viewActivity
		return a.loadActivity()
	case key.Matches(m, listKeys.Login):
		a.openLogin()
	}
	return nil
}

func (a *App) handleActivityKey(m tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(m, listKeys.Quit):
		return tea.Quit
	case key.Matches(m, listKeys.Reload):
		return a.loadActivity()
	case key.Matches(m, inputCancel), key.Matches(m, listKeys.Activity):
		a.state = viewList
	}
	return nil
}

func (a *App) handleModalKey(m tea.KeyMsg) tea.Cmd {
	switch a.modal {
	case modalSearch:
		switch {
		case key.Matches(m, inputCancel):
			a.modal = modalNone
			a.searchInput.Blur()
			return nil
		case key.Matches(m, inputSubmit):
			a.modal = modalNone
			a.searchInput.Blur()
			a.query = strings.TrimSpace(a.searchInput.Value())
			a.applySearch()
			return nil
		}
		var cmd tea.Cmd
		a.searchInput, cmd = a.searchInput.Update(m)
		return cmd
	case modalLogin:
		switch {
		case key.Matches(m, inputCancel):
			a.modal = modalNone
			a.loginUser.Blur()
			a.loginPass.Blur()
			return nil
		case key.Matches(m, inputNext):
			a.focusLogin(1 - a.loginFocus)
			return nil
		case key.Matches(m, inputSubmit):
			if a.loginFocus == 0 {
				a.focusLogin(1)
				return nil
			}
			user := strings.TrimSpace(a.loginUser.Value())
			pass := a.loginPass.Value()
			if user == "" || pass == "" {
				a.status = "enter login and password"
				return nil
			}
			if a.loggingIn {
				return nil
			}
			a.loggingIn = true
			a.status = "logging in..."
			return a.loginCmd(user, pass)
		}
		var cmd tea.Cmd
		if a.loginFocus == 0 {
			a.loginUser, cmd = a.loginUser.Update(m)
		} else {
			a.loginPass, cmd = a.loginPass.Update(m)
		}
		return cmd
	}
	return nil
}

func (a *App) openLogin() {
	a.modal = modalLogin
	a.focusLogin(0)
}

func (a *App) focusLogin(i int) {
	a.loginFocus = i
	if i == 0 {
		a.loginPass.Blur()
		_ = a.loginUser.Focus()
	} else {
		a.loginUser.Blur()
		_ = a.loginPass.Focus()
	}
}

// openDetail replaces any open detail view with a new session for sh.
func (a *App) openDetail(sh api.Shipment) tea.Cmd {
	a.closeDetail()
	a.status = ""
	var opened *Detail
	d, cmd := NewDetail(a.ctx, sh, DetailOptions{
		Loader:      a.services.Loader,
		Actions:     a.services.Actions,
		Journal:     a.services.Journal,
		CloseDelay:  a.cfg.Workflow.CloseDelay,
		DownloadURL: a.session.DownloadURL,
		Location:    a.tz,
		DateFormat:  a.cfg.UI.DateFormat,
		Currency:    a.cfg.UI.CurrencySymbol,
		UploadDir:   a.uploadDir,
		Hooks: DetailHooks{
			OnUpdate: a.loadShipments,
			OnClose: func() {
				if a.detail == opened {
					a.detail = nil
				}
			},
			OnFileChosen: func(path string) {
				a.uploadDir = filepath.Dir(path)
				a.savePrefs()
			},
		},
	})
	opened = d
	a.detail = d
	a.log.Debug("detail opened", zap.String("shipment_id", string(sh.ID)))
	return cmd
}

func (a *App) closeDetail() {
	if a.detail != nil {
		a.detail.Close()
		a.detail = nil
	}
}

func (a *App) savePrefs() {
	if a.prefs == nil {
		return
	}
	if err := a.prefs.Save(prefs.Prefs{UploadDir: a.uploadDir, StatusFilter: a.statusFilter}); err != nil {
		a.log.Warn("prefs not saved", zap.Error(err))
	}
}

func (a *App) View() string {
	var body string
	switch {
	case a.detail != nil:
		body = a.detail.View()
	case a.state == viewActivity:
		body = a.renderActivity()
	default:
		body = a.renderList()
	}
	if a.modal != modalNone {
		body += "\n\n" + a.renderModal()
	}
	if a.status != "" && a.detail == nil {
		body += "\n" + a.status
	}
	return body
}

func (a *App) renderList() string {
	title := fmt.Sprintf("Shipments - %s", statusLabel(a.statusFilter))
	if a.query != "" {
		title += fmt.Sprintf("  search %q", a.query)
	}
	out := titleStyle.Render(title) + "\n"
	if a.fromCache {
		out += labelStyle.Render("(cached, refreshing...)") + "\n"
	}
	if len(a.visible) == 0 {
		out += "  no shipments\n"
	}
	for i, sh := range a.visible {
		marker := " "
		line := fmt.Sprintf("%-8s %-10s %-26s %-14s %-24s %s",
			sh.ID, sh.InvoiceNumber, truncate(sh.Client, 26), truncate(sh.Carrier, 14),
			truncate(statusLabel(sh.Status), 24), formatTime(sh.ExpectedAt, a.tz, a.cfg.UI.DateFormat))
		if i == a.cursor {
			marker = "▶"
			line = cursorStyle.Render(line)
		}
		out += marker + " " + line + "\n"
	}
	out += helpLine(listKeys.Up, listKeys.Down, listKeys.Open, listKeys.Reload, listKeys.Filter,
		listKeys.Search, listKeys.Activity, listKeys.Login, listKeys.Quit)
	return out
}

func (a *App) renderActivity() string {
	out := titleStyle.Render("Activity") + "\n"
	if len(a.activity) == 0 {
		out += "  nothing recorded yet\n"
	}
	for _, e := range a.activity {
		mark := okStyle.Render("ok ")
		if !e.OK {
			mark = errorStyle.Render("err")
		}
		out += fmt.Sprintf("  %s %s shipment %-8s %-8s %s\n",
			e.CreatedAt.In(a.tz).Format(a.cfg.UI.DateFormat), mark, e.ShipmentID, e.Action, truncate(e.Message, 70))
	}
	out += "[r] reload  [esc] back  [q] quit"
	return out
}

func (a *App) renderModal() string {
	switch a.modal {
	case modalLogin:
		body := titleStyle.Render("Log in") + "\n" + a.loginUser.View() + "\n" + a.loginPass.View() +
			"\n[tab] next field  [enter] submit  [esc] cancel"
		return modalStyle.Render(body)
	case modalSearch:
		return modalStyle.Render(titleStyle.Render("Search") + "\n" + a.searchInput.View() + "\n[enter] apply  [esc] cancel")
	default:
		return ""
	}
}
