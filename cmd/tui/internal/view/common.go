package view

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/commonpurse/commonpurse/internal/treasury"
)

type CommonModel struct {
	Width  int
	Height int
}

type BackMsg struct{}

func Back() tea.Msg {
	return BackMsg{}
}

// OpenCommunityMsg asks the shell to show a community's proposals.
type OpenCommunityMsg struct {
	Community *treasury.Community
}

type OpenActivityMsg struct {
	Community *treasury.Community
}

type OpenExportMsg struct {
	Community *treasury.Community
}
