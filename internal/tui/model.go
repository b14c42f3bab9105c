package tui

import (
	"os"

	list "github.com/charmbracelet/bubbles/list"
	table "github.com/charmbracelet/bubbles/table"
	textarea "github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"slippy/internal/engine"
	"slippy/internal/eventloop"
	"slippy/internal/geom"
	"slippy/internal/interaction"
	"slippy/internal/mercator"
	"slippy/internal/render"
)

// Loop is the scheduler the UI drains between messages.
type Loop interface {
	eventloop.Scheduler
	Ready() <-chan struct{}
	Drain() int
}

// Deps are the engine parts the UI drives.
type Deps struct {
	Map        *engine.Map
	Surface    *render.Surface
	Loop       Loop
	Controller *interaction.Controller
	// CellWidth is the number of surface pixels per terminal column. A cell
	// is twice as tall as it is wide.
	CellWidth   int
	SnapshotDir string
	// Inbox must be wired to the map's callbacks.
	Inbox *Inbox
	Log   *zap.Logger
}

// Inbox collects engine callbacks, which run while the loop is drained, so
// Update can apply them to the model afterwards.
type Inbox struct {
	clicks   []interaction.ClickEvent
	contexts []interaction.ClickEvent
	position *mercator.Position
}

func (b *Inbox) OnClick(e interaction.ClickEvent) { b.clicks = append(b.clicks, e) }

func (b *Inbox) OnContext(e interaction.ClickEvent) { b.contexts = append(b.contexts, e) }

func (b *Inbox) OnMapMove(p mercator.Position) { b.position = &p }

type overlay struct {
	path    string
	layerID int
	data    *geom.Collection
}

type Model struct {
	width  int
	height int

	showSidebar bool
	helpVisible bool
	braille     bool

	status string

	deps Deps

	// File explorer
	cwd     string
	l       list.Model
	items   []list.Item
	selPath string

	overlays []overlay

	// paste mode
	pasteMode bool
	ta        textarea.Model

	// inspect popup
	inspectPopup string

	// pointer state
	pressed     bool
	hoverHasGeo bool
	hoverLon    float64
	hoverLat    float64
	position    mercator.Position

	// attributes table
	showAttrs bool
	tbl       table.Model
}

func New(deps Deps) Model {
	if deps.CellWidth <= 0 {
		deps.CellWidth = 8
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Inbox == nil {
		deps.Inbox = &Inbox{}
	}
	m := Model{
		helpVisible: true,
		status:      "slippy ready",
		deps:        deps,
	}
	m.position = deps.Map.Position()
	m.cwd, _ = os.Getwd()
	// list setup
	d := list.NewDefaultDelegate()
	d.ShowDescription = false
	m.l = list.New(nil, d, 0, 0)
	m.l.Title = "Files"
	m.l.SetShowHelp(false)
	m.l.SetShowStatusBar(false)
	m.l.SetFilteringEnabled(true)
	// textarea setup
	m.ta = textarea.New()
	m.ta.Placeholder = "Paste WKT here. Points are drawn as markers; lines and polygons as a marker at their centre. Enter to add, Esc to cancel."
	m.ta.CharLimit = 0
	m.ta.SetWidth(50)
	m.ta.SetHeight(6)
	m.tbl = table.New(table.WithFocused(true))
	m.tbl.SetHeight(12)
	m.refreshDir()
	return m
}

// NewWithPath preloads an overlay file at launch.
func NewWithPath(deps Deps, path string) Model {
	m := New(deps)
	m.loadPath(path)
	return m
}

type tasksReadyMsg struct{}

// waitForTasks blocks until the loop has work and hands control back to
// Update, which drains it on the UI goroutine.
func waitForTasks(loop Loop) tea.Cmd {
	return func() tea.Msg {
		<-loop.Ready()
		return tasksReadyMsg{}
	}
}

func (m Model) Init() tea.Cmd { return waitForTasks(m.deps.Loop) }
