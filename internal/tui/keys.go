// SPDX-License-Identifier: MIT
package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Monitor  key.Binding
	Loopback key.Binding
	Input    key.Binding
	Output   key.Binding
	Raise    key.Binding
	Lower    key.Binding
	Up       key.Binding
	Down     key.Binding
	Select   key.Binding
	Back     key.Binding
	Quit     key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Monitor:  key.NewBinding(key.WithKeys("m", " "), key.WithHelp("m", "monitor")),
		Loopback: key.NewBinding(key.WithKeys("l"), key.WithHelp("l", "loopback")),
		Input:    key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "input")),
		Output:   key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "output")),
		Raise:    key.NewBinding(key.WithKeys("+", "=", "right"), key.WithHelp("+/-", "range")),
		Lower:    key.NewBinding(key.WithKeys("-", "left")),
		Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/↓", "navigate")),
		Down:     key.NewBinding(key.WithKeys("down", "j")),
		Select:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
		Back:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) monitorHelp() []key.Binding {
	return []key.Binding{k.Monitor, k.Loopback, k.Input, k.Output, k.Raise, k.Quit}
}

func (k keyMap) pickerHelp() []key.Binding {
	return []key.Binding{k.Up, k.Select, k.Back, k.Quit}
}
