package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/subx/internal/models"
	"github.com/desertthunder/subx/internal/paging"
	"github.com/desertthunder/subx/internal/playback"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgPageState MsgKind = iota
	MsgTracksFetched
	MsgSessionEvent
	MsgPlaybackDone
	MsgQueueRestored
)

type tracksFetched struct {
	album  models.Album
	tracks []models.Track
	err    error
}

type queueRestored struct {
	serverID string
	restored int
	err      error
}

// pageStateMsg is the constructor for [MsgPageState]
func pageStateMsg(state paging.State[models.Album]) Msg {
	return Msg{kind: MsgPageState, data: state}
}

// tracksFetchedMsg is the constructor for [MsgTracksFetched]
func tracksFetchedMsg(album models.Album, tracks []models.Track, err error) Msg {
	return Msg{kind: MsgTracksFetched, data: tracksFetched{album, tracks, err}}
}

// sessionEventMsg is the constructor for [MsgSessionEvent]
func sessionEventMsg(ev playback.Event) Msg {
	return Msg{kind: MsgSessionEvent, data: ev}
}

// playbackDoneMsg is the constructor for [MsgPlaybackDone]
func playbackDoneMsg(err error) Msg {
	return Msg{kind: MsgPlaybackDone, data: err}
}

// queueRestoredMsg is the constructor for [MsgQueueRestored]
func queueRestoredMsg(serverID string, restored int, err error) Msg {
	return Msg{kind: MsgQueueRestored, data: queueRestored{serverID, restored, err}}
}
