// Package ui renders the peer roster, the event log tail, and the payload
// input line in the terminal. It owns no core state; it reads snapshots from
// the controller whenever a change notice arrives.
package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"beaconchat/beacon"
)

const logTailLines = 10

// noticeMsg wraps a core change notification for the tea runtime.
type noticeMsg beacon.Notice

// Model is the bubbletea model for the beacon screen.
type Model struct {
	controller   *beacon.Controller
	deviceName   string
	payloadLimit int

	input     string
	broadcast string
	peers     []beacon.Peer
	logLines  []string
}

// NewModel creates the initial screen state.
func NewModel(controller *beacon.Controller, deviceName string, payloadLimit int) Model {
	return Model{
		controller:   controller,
		deviceName:   deviceName,
		payloadLimit: payloadLimit,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyEsc:
			m.input = ""
		case tea.KeyEnter:
			m.broadcast = strings.TrimSpace(m.input)
			m.controller.SetPayload(m.broadcast)
		case tea.KeyBackspace:
			if runes := []rune(m.input); len(runes) > 0 {
				m.input = string(runes[:len(runes)-1])
			}
		case tea.KeySpace:
			m.input = m.appendInput(" ")
		case tea.KeyRunes:
			m.input = m.appendInput(string(msg.Runes))
		}
	case noticeMsg:
		m.peers = m.controller.Peers()
		m.logLines = tail(m.controller.LogEntries(), logTailLines)
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	fmt.Fprintf(&b, "beaconchat — %s\n\n", m.deviceName)
	fmt.Fprintf(&b, "broadcast [%d/%d]: %s_\n", len([]rune(m.input)), m.payloadLimit, m.input)
	if m.broadcast != "" {
		fmt.Fprintf(&b, "advertising: %s\n", m.broadcast)
	}

	fmt.Fprintf(&b, "\npeers (%d)\n", len(m.peers))
	if len(m.peers) == 0 {
		b.WriteString("  nobody nearby yet\n")
	}
	for _, peer := range m.peers {
		fmt.Fprintf(&b, "  %-20s %-14s %4d dBm  (%s)\n",
			peer.DisplayName, peer.Payload, peer.RSSI, peer.ID)
	}

	b.WriteString("\nlog\n")
	for _, line := range m.logLines {
		fmt.Fprintf(&b, "  %s\n", line)
	}

	b.WriteString("\nenter broadcast · esc clear · ctrl+c quit\n")
	return b.String()
}

func (m Model) appendInput(s string) string {
	runes := []rune(m.input + s)
	if len(runes) > m.payloadLimit {
		runes = runes[:m.payloadLimit]
	}
	return string(runes)
}

// Run starts the terminal program and forwards controller notices into it.
func Run(controller *beacon.Controller, deviceName string, payloadLimit int) error {
	program := tea.NewProgram(NewModel(controller, deviceName, payloadLimit), tea.WithAltScreen())

	go func() {
		for notice := range controller.Notices() {
			program.Send(noticeMsg(notice))
		}
	}()

	_, err := program.Run()
	return err
}

func tail(lines []string, n int) []string {
	if len(lines) <= n {
		return lines
	}
	return lines[len(lines)-n:]
}
