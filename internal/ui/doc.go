// Package ui implements an interactive terminal player using bubbletea's Elm architecture.
//
// The TUI has three views:
//  1. [AlbumListView] : Browse albums of the active server, paged as the cursor nears the end
//  2. [TrackListView] : Tracks of the selected album; enter plays from the cursor, a appends
//  3. [QueueView] : The play queue; enter jumps, d removes
//
// A player bar under every view shows the current track, the shuffle and repeat state, and the last status
// message. Playback runs [playback.Session.Run] in a command; skipping while a run is active stops it first and
// restarts once it has returned.
//
// The album list is a [paging.Engine] whose states arrive through its subscription channel, so late page
// responses after a server switch or list type change are dropped by the engine, not the view. Session events
// arrive the same way. A [SnapshotStore] restores the queue of the active server on start and saves it on quit
// and before a server switch.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, q) with contextual help displayed via
// charmbracelet/bubbles/help.
package ui
