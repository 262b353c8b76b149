package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	up       key.Binding
	down     key.Binding
	enter    key.Binding
	back     key.Binding
	appendQ  key.Binding
	remove   key.Binding
	queue    key.Binding
	listType key.Binding
	refresh  key.Binding
	next     key.Binding
	prev     key.Binding
	stop     key.Binding
	shuffle  key.Binding
	repeat   key.Binding
	quit     key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		enter:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
		back:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		appendQ:  key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add to queue")),
		remove:   key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "remove")),
		queue:    key.NewBinding(key.WithKeys("Q"), key.WithHelp("Q", "queue")),
		listType: key.NewBinding(key.WithKeys("l"), key.WithHelp("l", "list type")),
		refresh:  key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "refresh")),
		next:     key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "next")),
		prev:     key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "previous")),
		stop:     key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "stop")),
		shuffle:  key.NewBinding(key.WithKeys("S"), key.WithHelp("S", "shuffle")),
		repeat:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "repeat")),
		quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.enter, k.queue, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.up, k.down, k.enter, k.back},
		{k.listType, k.refresh, k.appendQ, k.remove, k.queue},
		{k.next, k.prev, k.stop, k.shuffle, k.repeat},
		{k.quit},
	}
}
