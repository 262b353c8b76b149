package ui

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/subx/internal/models"
	"github.com/desertthunder/subx/internal/paging"
	"github.com/desertthunder/subx/internal/playback"
	"github.com/desertthunder/subx/internal/services"
	"github.com/desertthunder/subx/internal/shared"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	AlbumListView ViewState = iota
	TrackListView
	QueueView
)

// DefaultPageSize is the number of albums requested per page.
const DefaultPageSize = 50

// SnapshotStore persists play queues per server. [repositories.QueueSnapshotRepository] implements it.
type SnapshotStore interface {
	Save(snapshot models.QueueSnapshot) error
	Load(serverID string) (*models.QueueSnapshot, error)
}

// Options contains the dependencies of a [Model].
type Options struct {
	Clients   services.ClientSource
	Session   *playback.Session
	Snapshots SnapshotStore // optional
	ListType  services.AlbumListType
	PageSize  int
	Threshold int
	Logger    *log.Logger
}

// Model represents the TUI application state.
type Model struct {
	ctx       context.Context
	view      ViewState
	clients   services.ClientSource
	session   *playback.Session
	snapshots SnapshotStore
	logger    *log.Logger
	pageSize  int
	threshold int

	listType   services.AlbumListType
	albums     *paging.Engine[models.Album]
	pages      <-chan paging.State[models.Album]
	stopPages  func()
	albumState paging.State[models.Album]

	albumList     list.Model
	trackList     list.Model
	queueList     list.Model
	selectedAlbum models.Album
	tracks        []models.Track

	events     <-chan playback.Event
	stopEvents func()
	playing    bool
	pending    func(*playback.Queue) bool
	nowPlaying *models.Track
	serverID   string
	status     string

	width  int
	height int
	help   help.Model
	keys   keyMap
}

// NewModel creates a new TUI model with the provided dependencies.
func NewModel(ctx context.Context, opts Options) *Model {
	if opts.Logger == nil {
		opts.Logger = shared.NopLogger()
	}
	if opts.ListType == "" {
		opts.ListType = services.AlbumsNewest
	}
	if opts.Threshold <= 0 {
		opts.Threshold = paging.DefaultThreshold
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}

	m := &Model{
		ctx:       ctx,
		view:      AlbumListView,
		clients:   opts.Clients,
		session:   opts.Session,
		snapshots: opts.Snapshots,
		logger:    shared.WithLogger(opts.Logger, "component", "tui"),
		pageSize:  opts.PageSize,
		threshold: opts.Threshold,
		albumList: list.New(nil, list.NewDefaultDelegate(), 0, 0),
		trackList: list.New(nil, list.NewDefaultDelegate(), 0, 0),
		queueList: list.New(nil, list.NewDefaultDelegate(), 0, 0),
		help:      help.New(),
		keys:      newKeyMap(),
	}
	m.queueList.Title = "Queue"
	m.events, m.stopEvents = opts.Session.Subscribe()
	m.useListType(opts.ListType)
	return m
}

// useListType swaps the album engine for one serving listType.
func (m *Model) useListType(listType services.AlbumListType) {
	if m.albums != nil {
		m.albums.Cancel()
		m.stopPages()
	}
	m.listType = listType
	m.albums = paging.New(services.AlbumPages(m.clients, listType), m.pageSize,
		paging.WithThreshold(m.threshold), paging.WithLogger(m.logger))
	m.pages, m.stopPages = m.albums.Subscribe()
	m.albumState = paging.State[models.Album]{}
	m.albumList.SetItems(nil)
	m.albumList.Title = m.albumTitle()
}

// Init loads the first album page, starts listening for session events and restores the saved queue.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.loadInitial(), m.waitForPage(), m.waitForSession(), m.restoreQueue())
}

// Close saves the queue, stops playback and releases subscriptions.
func (m *Model) Close() {
	m.saveQueue()
	m.session.Stop()
	m.albums.Cancel()
	m.stopPages()
	m.stopEvents()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		for _, l := range []*list.Model{&m.albumList, &m.trackList, &m.queueList} {
			l.SetSize(msg.Width-4, msg.Height-8)
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKeys(msg)

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateLists(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgPageState:
		state := msg.data.(paging.State[models.Album])
		m.albumState = state
		cmd := m.albumList.SetItems(albumItems(state.Items))
		m.albumList.Title = m.albumTitle()
		return m, tea.Batch(cmd, m.waitForPage())

	case MsgTracksFetched:
		res := msg.data.(tracksFetched)
		if res.err != nil {
			m.status = fmt.Sprintf("Failed to load %s: %v", res.album.Name, res.err)
			return m, nil
		}
		m.selectedAlbum = res.album
		m.tracks = res.tracks
		m.trackList.SetItems(trackItems(res.tracks, -1))
		m.trackList.Title = fmt.Sprintf("%s • %s", res.album.Name, res.album.Artist)
		m.trackList.ResetSelected()
		m.view = TrackListView
		return m, nil

	case MsgSessionEvent:
		return m, tea.Batch(m.handleSessionEvent(msg.data.(playback.Event)), m.waitForSession())

	case MsgPlaybackDone:
		m.playing = false
		err, _ := msg.data.(error)
		if err != nil && !errors.Is(err, context.Canceled) {
			m.status = fmt.Sprintf("Playback ended: %v", err)
		}
		if pending := m.pending; pending != nil {
			m.pending = nil
			if pending(m.session.Queue()) {
				return m, m.startRun()
			}
		}
		m.refreshQueue()
		return m, nil

	case MsgQueueRestored:
		res := msg.data.(queueRestored)
		m.serverID = res.serverID
		switch {
		case res.err != nil:
			m.status = fmt.Sprintf("Could not restore queue: %v", res.err)
		case res.restored > 0:
			m.status = fmt.Sprintf("Restored %d queued tracks", res.restored)
		}
		m.refreshQueue()
		return m, nil
	}
	return m, nil
}

func (m *Model) handleSessionEvent(ev playback.Event) tea.Cmd {
	switch ev.Kind {
	case playback.EventStarted:
		track := ev.Track
		m.nowPlaying = &track
		m.status = ""
		m.refreshQueue()
	case playback.EventStopped:
		m.nowPlaying = nil
		m.refreshQueue()
	case playback.EventPlaybackError:
		if ev.NoActiveServer() {
			m.status = "No active server. Add one with: subx server add"
		} else {
			m.status = fmt.Sprintf("Could not play %s: %v", ev.Track.Title, ev.Err)
		}
	case playback.EventServerChanged:
		m.saveQueue()
		m.serverID = ev.ServerID
		if ev.ServerID == "" {
			m.status = "No active server"
		} else {
			m.status = "Switched server"
		}
		return m.refresh()
	}
	return nil
}

func (m *Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.filtering() {
		return m.updateLists(msg)
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		m.Close()
		return m, tea.Quit
	case key.Matches(msg, m.keys.next):
		return m, m.restartWith(func(q *playback.Queue) bool {
			_, ok := q.Next()
			return ok
		})
	case key.Matches(msg, m.keys.prev):
		return m, m.restartWith(func(q *playback.Queue) bool {
			_, ok := q.Previous()
			return ok
		})
	case key.Matches(msg, m.keys.stop):
		m.pending = nil
		if err := m.session.Stop(); err != nil {
			m.status = err.Error()
		}
		return m, nil
	case key.Matches(msg, m.keys.shuffle):
		q := m.session.Queue()
		q.Shuffle(!q.Shuffled())
		m.refreshQueue()
		return m, nil
	case key.Matches(msg, m.keys.repeat):
		q := m.session.Queue()
		q.SetRepeat((q.Repeat() + 1) % 3)
		return m, nil
	case key.Matches(msg, m.keys.queue):
		m.refreshQueue()
		m.view = QueueView
		return m, nil
	}

	switch m.view {
	case AlbumListView:
		return m.handleAlbumListKeys(msg)
	case TrackListView:
		return m.handleTrackListKeys(msg)
	case QueueView:
		return m.handleQueueKeys(msg)
	}
	return m, nil
}

func (m *Model) handleAlbumListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.enter):
		if item, ok := m.albumList.SelectedItem().(albumItem); ok {
			return m, m.fetchTracks(item.album)
		}
		return m, nil
	case key.Matches(msg, m.keys.listType):
		i := slices.Index(services.AlbumListTypes, m.listType)
		m.useListType(services.AlbumListTypes[(i+1)%len(services.AlbumListTypes)])
		return m, tea.Batch(m.loadInitial(), m.waitForPage())
	case key.Matches(msg, m.keys.refresh):
		return m, m.refresh()
	}

	var cmd tea.Cmd
	m.albumList, cmd = m.albumList.Update(msg)
	m.onScroll()
	return m, cmd
}

func (m *Model) handleTrackListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.back):
		m.view = AlbumListView
		return m, nil
	case key.Matches(msg, m.keys.enter):
		start := m.trackList.Index()
		if len(m.tracks) == 0 {
			return m, nil
		}
		tracks := slices.Clone(m.tracks)
		return m, m.restartWith(func(q *playback.Queue) bool {
			return q.SetQueue(tracks, start) == nil
		})
	case key.Matches(msg, m.keys.appendQ):
		if item, ok := m.trackList.SelectedItem().(trackItem); ok {
			m.session.Queue().Append(item.track)
			m.status = fmt.Sprintf("Queued %s", item.track.Title)
			m.refreshQueue()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.trackList, cmd = m.trackList.Update(msg)
	return m, cmd
}

func (m *Model) handleQueueKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.back):
		m.view = AlbumListView
		return m, nil
	case key.Matches(msg, m.keys.enter):
		index := m.queueList.Index()
		return m, m.restartWith(func(q *playback.Queue) bool {
			_, err := q.Skip(index)
			return err == nil
		})
	case key.Matches(msg, m.keys.remove):
		if err := m.session.Queue().Remove(m.queueList.Index()); err != nil {
			m.status = err.Error()
		}
		m.refreshQueue()
		return m, nil
	}

	var cmd tea.Cmd
	m.queueList, cmd = m.queueList.Update(msg)
	return m, cmd
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case AlbumListView:
		m.albumList, cmd = m.albumList.Update(msg)
	case TrackListView:
		m.trackList, cmd = m.trackList.Update(msg)
	case QueueView:
		m.queueList, cmd = m.queueList.Update(msg)
	}
	return m, cmd
}

func (m *Model) filtering() bool {
	switch m.view {
	case AlbumListView:
		return m.albumList.FilterState() == list.Filtering
	case TrackListView:
		return m.trackList.FilterState() == list.Filtering
	case QueueView:
		return m.queueList.FilterState() == list.Filtering
	}
	return false
}

// onScroll reports the last row of the visible page to the album engine, which loads more near the end.
func (m *Model) onScroll() {
	n := len(m.albumList.Items())
	if n == 0 {
		return
	}
	_, end := m.albumList.Paginator.GetSliceBounds(n)
	m.albums.OnScroll(max(end-1, m.albumList.Index()))
}

// restartWith applies fn to the queue and (re)starts sequential playback. When a run is active it is stopped
// first and fn is applied once it has returned.
func (m *Model) restartWith(fn func(*playback.Queue) bool) tea.Cmd {
	if m.playing {
		m.pending = fn
		if err := m.session.Stop(); err != nil {
			m.status = err.Error()
		}
		return nil
	}
	if !fn(m.session.Queue()) {
		return nil
	}
	return m.startRun()
}

func (m *Model) startRun() tea.Cmd {
	m.playing = true
	session, ctx := m.session, m.ctx
	return func() tea.Msg {
		return playbackDoneMsg(session.Run(ctx))
	}
}

func (m *Model) refreshQueue() {
	q := m.session.Queue()
	m.queueList.SetItems(trackItems(q.Tracks(), q.Cursor()))
}

func (m *Model) loadInitial() tea.Cmd {
	albums, ctx := m.albums, m.ctx
	return func() tea.Msg {
		albums.LoadInitial(ctx)
		return nil
	}
}

func (m *Model) refresh() tea.Cmd {
	albums, ctx := m.albums, m.ctx
	return func() tea.Msg {
		albums.Refresh(ctx)
		return nil
	}
}

func (m *Model) waitForPage() tea.Cmd {
	pages := m.pages
	return func() tea.Msg {
		state, ok := <-pages
		if !ok {
			return nil
		}
		return pageStateMsg(state)
	}
}

func (m *Model) waitForSession() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return sessionEventMsg(ev)
	}
}

func (m *Model) fetchTracks(album models.Album) tea.Cmd {
	clients, ctx := m.clients, m.ctx
	return func() tea.Msg {
		client, err := clients.Get(ctx)
		if err != nil {
			return tracksFetchedMsg(album, nil, err)
		}
		tracks, err := client.AlbumTracks(ctx, album.ID)
		return tracksFetchedMsg(album, tracks, err)
	}
}

// restoreQueue loads the queue saved for the active server without starting playback.
func (m *Model) restoreQueue() tea.Cmd {
	clients, store, queue, ctx := m.clients, m.snapshots, m.session.Queue(), m.ctx
	return func() tea.Msg {
		client, err := clients.Get(ctx)
		if err != nil {
			if errors.Is(err, shared.ErrNoActiveServer) {
				return queueRestoredMsg("", 0, nil)
			}
			return queueRestoredMsg("", 0, err)
		}
		serverID := client.ServerID()
		if store == nil {
			return queueRestoredMsg(serverID, 0, nil)
		}

		snap, err := store.Load(serverID)
		if errors.Is(err, shared.ErrNotFound) {
			return queueRestoredMsg(serverID, 0, nil)
		}
		if err != nil {
			return queueRestoredMsg(serverID, 0, err)
		}
		if err := queue.Restore(*snap); err != nil {
			return queueRestoredMsg(serverID, 0, err)
		}
		return queueRestoredMsg(serverID, len(snap.Tracks), nil)
	}
}

// saveQueue checkpoints the queue for the server it was built against.
func (m *Model) saveQueue() {
	if m.snapshots == nil || m.serverID == "" {
		return
	}
	snap := m.session.Queue().Snapshot()
	snap.ServerID = m.serverID
	if err := m.snapshots.Save(snap); err != nil {
		m.logger.Warn("failed to save queue", "server", m.serverID, "error", err)
	}
}

func (m *Model) albumTitle() string {
	title := fmt.Sprintf("Albums (%s)", m.listType)
	switch {
	case m.albumState.LoadingInitial():
		title += " • loading..."
	case m.albumState.Refreshing():
		title += " • refreshing..."
	case m.albumState.LoadingMore():
		title += " • loading more..."
	case m.albumState.Exhausted:
		title += fmt.Sprintf(" • %d", len(m.albumState.Items))
	}
	return title
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	var body string
	switch m.view {
	case AlbumListView:
		body = m.renderAlbumList()
	case TrackListView:
		body = m.renderTrackList()
	case QueueView:
		body = m.renderQueue()
	}
	return fmt.Sprintf("%s\n%s", body, m.renderPlayerBar())
}

func (m *Model) renderAlbumList() string {
	view := m.albumList.View()
	if m.albumState.Err != nil {
		view += "\n" + styles.err.Render(m.albumState.Err.Error()) + " " + styles.help.Render("(R to retry)")
	}
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.enter, m.keys.listType, m.keys.refresh, m.keys.queue, m.keys.quit})
	return fmt.Sprintf("%s\n\n%s", view, helpView)
}

func (m *Model) renderTrackList() string {
	playKey := key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "play from here"))
	helpView := m.help.ShortHelpView([]key.Binding{playKey, m.keys.appendQ, m.keys.back, m.keys.quit})
	return fmt.Sprintf("%s\n\n%s", m.trackList.View(), helpView)
}

func (m *Model) renderQueue() string {
	if len(m.queueList.Items()) == 0 {
		return styles.title.Render("Queue") + "\n" + styles.help.Render("The queue is empty. Press esc to browse albums.")
	}
	jumpKey := key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "play"))
	helpView := m.help.ShortHelpView([]key.Binding{jumpKey, m.keys.remove, m.keys.back, m.keys.quit})
	return fmt.Sprintf("%s\n\n%s", m.queueList.View(), helpView)
}

func (m *Model) renderPlayerBar() string {
	q := m.session.Queue()

	var line strings.Builder
	if m.nowPlaying != nil {
		line.WriteString(styles.ok.Render("▶ " + m.nowPlaying.Title))
		fmt.Fprintf(&line, " • %s", m.nowPlaying.Artist)
	} else {
		line.WriteString(styles.help.Render("■ stopped"))
	}
	fmt.Fprintf(&line, "  [%d/%d]", q.Cursor()+1, q.Len())
	if q.Shuffled() {
		line.WriteString("  shuffle")
	}
	if r := q.Repeat(); r != playback.RepeatOff {
		fmt.Fprintf(&line, "  repeat %s", r)
	}
	if m.status != "" {
		line.WriteString("\n" + styles.warn.Render(m.status))
	}
	return styles.bar.Render(line.String())
}
