package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/joho/godotenv"

	"github.com/commonpurse/commonpurse/cmd/tui/internal/view"
	"github.com/commonpurse/commonpurse/internal/app"
	"github.com/commonpurse/commonpurse/internal/config"
	"github.com/commonpurse/commonpurse/internal/export"
	"github.com/commonpurse/commonpurse/internal/treasury"
)

type model struct {
	treasury      *treasury.Service
	exportService *export.Service
	wallet        string

	currentView View
	size        tea.WindowSizeMsg

	communitiesView view.CommunitiesModel
	proposalsView   view.ProposalsModel
	activityView    view.ActivityModel
	exportView      view.ExportModel
}

type View int

const (
	ViewCommunities View = iota
	ViewProposals
	ViewActivity
	ViewExport
)

func newModel(svc *treasury.Service, expSvc *export.Service, wallet string) model {
	return model{
		treasury:        svc,
		exportService:   expSvc,
		wallet:          wallet,
		currentView:     ViewCommunities,
		communitiesView: view.NewCommunitiesModel(svc, wallet),
	}
}

func (m model) Init() tea.Cmd {
	return m.communitiesView.Init()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.size = msg
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "q":
			if m.currentView == ViewCommunities {
				return m, tea.Quit
			}
		}
	case view.OpenCommunityMsg:
		m.currentView = ViewProposals
		m.proposalsView = view.NewProposalsModel(m.treasury, m.wallet, msg.Community)

		return m, tea.Batch(m.proposalsView.Init(), m.resize())
	case view.OpenActivityMsg:
		m.currentView = ViewActivity
		m.activityView = view.NewActivityModel(m.treasury, msg.Community)

		return m, tea.Batch(m.activityView.Init(), m.resize())
	case view.OpenExportMsg:
		m.currentView = ViewExport
		m.exportView = view.NewExportModel(m.exportService, msg.Community)

		return m, m.exportView.Init()
	case view.BackMsg:
		switch m.currentView {
		case ViewActivity, ViewExport:
			m.currentView = ViewProposals
			return m, m.proposalsView.Init()
		default:
			m.currentView = ViewCommunities
			return m, m.communitiesView.Init()
		}
	}

	switch m.currentView {
	case ViewCommunities:
		var newModel tea.Model
		newModel, cmd = m.communitiesView.Update(msg)
		m.communitiesView = newModel.(view.CommunitiesModel)
	case ViewProposals:
		var newModel tea.Model
		newModel, cmd = m.proposalsView.Update(msg)
		m.proposalsView = newModel.(view.ProposalsModel)
	case ViewActivity:
		var newModel tea.Model
		newModel, cmd = m.activityView.Update(msg)
		m.activityView = newModel.(view.ActivityModel)
	case ViewExport:
		var newModel tea.Model
		newModel, cmd = m.exportView.Update(msg)
		m.exportView = newModel.(view.ExportModel)
	}

	return m, cmd
}

// resize replays the last window size so a freshly opened view lays out.
func (m model) resize() tea.Cmd {
	if m.size.Width == 0 {
		return nil
	}

	size := m.size

	return func() tea.Msg { return size }
}

func (m model) View() string {
	switch m.currentView {
	case ViewCommunities:
		return m.communitiesView.View()
	case ViewProposals:
		return m.proposalsView.View()
	case ViewActivity:
		return m.activityView.View()
	case ViewExport:
		return m.exportView.View()
	}

	return "Unknown View"
}

func promptWallet() (string, error) {
	var wallet string

	err := huh.NewInput().
		Title("Wallet address").
		Description("Used to approve, execute and create proposals").
		Value(&wallet).
		Validate(func(s string) error {
			if strings.TrimSpace(s) == "" {
				return errors.New("wallet address is required")
			}

			return nil
		}).
		Run()

	return strings.TrimSpace(wallet), err
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logFile, err := tea.LogToFile("commonpurse-tui.log", "tui")
	if err != nil {
		slog.Error("failed to open log file", "error", err)
		os.Exit(1)
	}
	defer logFile.Close()

	logger := slog.New(slog.NewTextHandler(logFile, nil))

	a, err := app.Open(context.Background(), cfg, logger)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	wallet := cfg.TUI.Wallet
	if wallet == "" {
		if wallet, err = promptWallet(); err != nil {
			slog.Error("no wallet selected", "error", err)
			return
		}
	}

	exportService := export.NewService(a.Treasury, cfg.Proof.FetchToken)

	p := tea.NewProgram(newModel(a.Treasury, exportService, wallet), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		logger.Error("failed to run TUI", "error", err)
		os.Exit(1)
	}
}
