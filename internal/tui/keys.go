package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
)

type listKeyMap struct {
	Up       key.Binding
	Down     key.Binding
	Open     key.Binding
	Reload   key.Binding
	Filter   key.Binding
	Search   key.Binding
	Activity key.Binding
	Login    key.Binding
	Quit     key.Binding
}

var listKeys = listKeyMap{
	Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Open:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open")),
	Reload:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
	Filter:   key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "status filter")),
	Search:   key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
	Activity: key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "activity")),
	Login:    key.NewBinding(key.WithKeys("L"), key.WithHelp("L", "login")),
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

type detailKeyMap struct {
	Refresh  key.Binding
	History  key.Binding
	Choose   key.Binding
	Upload   key.Binding
	Finalize key.Binding
	Close    key.Binding
}

var detailKeys = detailKeyMap{
	Refresh:  key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "refresh tracking")),
	History:  key.NewBinding(key.WithKeys("h"), key.WithHelp("h", "history")),
	Choose:   key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "choose file")),
	Upload:   key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "upload")),
	Finalize: key.NewBinding(key.WithKeys("F"), key.WithHelp("F", "finalize")),
	Close:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "close")),
}

var (
	inputSubmit = key.NewBinding(key.WithKeys("enter"))
	inputCancel = key.NewBinding(key.WithKeys("esc"))
	inputNext   = key.NewBinding(key.WithKeys("tab", "down"))
	forceQuit   = key.NewBinding(key.WithKeys("ctrl+c"))
)

// helpLine renders "[k] desc" pairs for enabled bindings.
func helpLine(bindings ...key.Binding) string {
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		if !b.Enabled() {
			continue
		}
		h := b.Help()
		parts = append(parts, "["+h.Key+"] "+h.Desc)
	}
	return strings.Join(parts, "  ")
}
