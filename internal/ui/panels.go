package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/asheshgoplani/mission-deck/internal/api"
	"github.com/asheshgoplani/mission-deck/internal/clipboard"
)

const apiCallTimeout = 15 * time.Second

// Dashboard panel sections, cycled with tab.
type panelSection int

const (
	sectionMissions panelSection = iota
	sectionSkills
	sectionSecrets
	sectionProfiles
	sectionCount
)

var sectionTitles = [sectionCount]string{"Missions", "Skills", "Secrets", "Profiles"}

// dashboardLoadedMsg carries the aggregate dashboard fetch result.
type dashboardLoadedMsg struct {
	dash *api.Dashboard
	err  error
}

// secretsLoadedMsg carries the secret metadata listing.
type secretsLoadedMsg struct {
	secrets []api.SecretMeta
	err     error
}

// profilesLoadedMsg carries the config profile listing.
type profilesLoadedMsg struct {
	profiles []api.ConfigProfile
	err      error
}

// panelActionMsg reports the outcome of a mutation (toggle, archive, apply).
type panelActionMsg struct {
	desc string
	err  error
}

// DashboardPanel is the control-plane overview overlay: missions, skills,
// secrets and config profiles, with per-section actions.
type DashboardPanel struct {
	client *api.Client

	visible bool
	section panelSection
	cursor  [sectionCount]int

	missions []api.Mission
	skills   []api.Skill
	secrets  []api.SecretMeta
	profiles []api.ConfigProfile

	loading bool
	flash   string
	flashOK bool

	width  int
	height int
}

// NewDashboardPanel creates a hidden dashboard panel.
func NewDashboardPanel(client *api.Client) *DashboardPanel {
	return &DashboardPanel{client: client}
}

// Show opens the panel and refreshes all sections.
func (p *DashboardPanel) Show() tea.Cmd {
	p.visible = true
	p.flash = ""
	return p.refresh()
}

// Hide dismisses the panel.
func (p *DashboardPanel) Hide() {
	p.visible = false
}

// IsVisible reports whether the panel is showing.
func (p *DashboardPanel) IsVisible() bool {
	return p.visible
}

// SetSize updates dimensions.
func (p *DashboardPanel) SetSize(width, height int) {
	p.width = width
	p.height = height
}

// Missions returns the cached mission list.
func (p *DashboardPanel) Missions() []api.Mission {
	return p.missions
}

func (p *DashboardPanel) refresh() tea.Cmd {
	p.loading = true
	client := p.client
	return tea.Batch(
		func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), apiCallTimeout)
			defer cancel()
			dash, err := client.FetchDashboard(ctx)
			return dashboardLoadedMsg{dash: dash, err: err}
		},
		func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), apiCallTimeout)
			defer cancel()
			secrets, err := client.ListSecrets(ctx)
			return secretsLoadedMsg{secrets: secrets, err: err}
		},
		func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), apiCallTimeout)
			defer cancel()
			profiles, err := client.ListProfiles(ctx)
			return profilesLoadedMsg{profiles: profiles, err: err}
		},
	)
}

// Update handles load results and section key actions.
func (p *DashboardPanel) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case dashboardLoadedMsg:
		p.loading = false
		if msg.err != nil {
			p.setFlash("dashboard: "+msg.err.Error(), false)
			return nil
		}
		p.missions = msg.dash.Missions
		p.skills = msg.dash.Skills
		return nil

	case secretsLoadedMsg:
		if msg.err == nil {
			p.secrets = msg.secrets
		}
		return nil

	case profilesLoadedMsg:
		if msg.err == nil {
			p.profiles = msg.profiles
		}
		return nil

	case panelActionMsg:
		if msg.err != nil {
			p.setFlash(msg.desc+" failed: "+msg.err.Error(), false)
			return nil
		}
		p.setFlash(msg.desc, true)
		return p.refresh()

	case tea.KeyMsg:
		return p.handleKey(msg)
	}
	return nil
}

func (p *DashboardPanel) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc", "q":
		p.Hide()
	case "tab":
		p.section = (p.section + 1) % sectionCount
	case "shift+tab":
		p.section = (p.section + sectionCount - 1) % sectionCount
	case "up", "k":
		if p.cursor[p.section] > 0 {
			p.cursor[p.section]--
		}
	case "down", "j":
		if p.cursor[p.section] < p.sectionLen()-1 {
			p.cursor[p.section]++
		}
	case "R":
		return p.refresh()
	case "enter", " ":
		return p.primaryAction()
	case "a":
		if p.section == sectionMissions {
			return p.archiveSelected()
		}
	case "d":
		if p.section == sectionSecrets {
			return p.deleteSelectedSecret()
		}
	case "y":
		return p.copySelected()
	}
	return nil
}

func (p *DashboardPanel) sectionLen() int {
	switch p.section {
	case sectionMissions:
		return len(p.missions)
	case sectionSkills:
		return len(p.skills)
	case sectionSecrets:
		return len(p.secrets)
	case sectionProfiles:
		return len(p.profiles)
	}
	return 0
}

// primaryAction is enter/space: toggle a skill, apply a profile.
func (p *DashboardPanel) primaryAction() tea.Cmd {
	i := p.cursor[p.section]
	client := p.client
	switch p.section {
	case sectionSkills:
		if i >= len(p.skills) {
			return nil
		}
		skill := p.skills[i]
		return func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), apiCallTimeout)
			defer cancel()
			err := client.SetSkillEnabled(ctx, skill.ID, !skill.Enabled)
			return panelActionMsg{desc: "toggled " + skill.Name, err: err}
		}
	case sectionProfiles:
		if i >= len(p.profiles) {
			return nil
		}
		profile := p.profiles[i]
		return func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), apiCallTimeout)
			defer cancel()
			err := client.ApplyProfile(ctx, profile.ID)
			return panelActionMsg{desc: "applied " + profile.Name, err: err}
		}
	}
	return nil
}

func (p *DashboardPanel) archiveSelected() tea.Cmd {
	i := p.cursor[sectionMissions]
	if i >= len(p.missions) {
		return nil
	}
	mission := p.missions[i]
	client := p.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), apiCallTimeout)
		defer cancel()
		err := client.ArchiveMission(ctx, mission.ID)
		return panelActionMsg{desc: "archived " + mission.Name, err: err}
	}
}

func (p *DashboardPanel) deleteSelectedSecret() tea.Cmd {
	i := p.cursor[sectionSecrets]
	if i >= len(p.secrets) {
		return nil
	}
	secret := p.secrets[i]
	client := p.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), apiCallTimeout)
		defer cancel()
		err := client.DeleteSecret(ctx, secret.Name)
		return panelActionMsg{desc: "deleted " + secret.Name, err: err}
	}
}

// copySelected copies the selected item's identifier to the clipboard.
func (p *DashboardPanel) copySelected() tea.Cmd {
	var text string
	i := p.cursor[p.section]
	switch p.section {
	case sectionMissions:
		if i < len(p.missions) {
			text = p.missions[i].ID
		}
	case sectionSkills:
		if i < len(p.skills) {
			text = p.skills[i].ID
		}
	case sectionSecrets:
		if i < len(p.secrets) {
			text = p.secrets[i].Name
		}
	case sectionProfiles:
		if i < len(p.profiles) {
			text = p.profiles[i].ID
		}
	}
	if text == "" {
		return nil
	}
	return func() tea.Msg {
		result, err := clipboard.Copy(text, true)
		if err != nil {
			return panelActionMsg{desc: "copy", err: err}
		}
		return panelActionMsg{desc: fmt.Sprintf("copied via %s", result.Method)}
	}
}

func (p *DashboardPanel) setFlash(msg string, ok bool) {
	p.flash = msg
	p.flashOK = ok
}

// View renders the panel as a centered box with section tabs.
func (p *DashboardPanel) View() string {
	themeMu.RLock()
	defer themeMu.RUnlock()

	var b strings.Builder

	// Section header
	var headers []string
	for s := panelSection(0); s < sectionCount; s++ {
		title := sectionTitles[s]
		if s == p.section {
			headers = append(headers, TabActiveStyle.Render(title))
		} else {
			headers = append(headers, TabStyle.Render(title))
		}
	}
	b.WriteString(strings.Join(headers, " "))
	b.WriteString("\n\n")

	if p.loading && p.sectionLen() == 0 {
		b.WriteString(DimStyle.Render("loading..."))
	} else {
		b.WriteString(p.viewSection())
	}

	b.WriteString("\n")
	if p.flash != "" {
		if p.flashOK {
			b.WriteString(PanelFlashStyle.Render(p.flash))
		} else {
			b.WriteString(PanelErrFlashTint.Render(p.flash))
		}
		b.WriteString("\n")
	}
	b.WriteString(PanelFooterStyle.Render(p.footer()))

	box := DialogBoxStyle.Render(b.String())
	return lipgloss.Place(p.width, p.height, lipgloss.Center, lipgloss.Center, box)
}

func (p *DashboardPanel) viewSection() string {
	var lines []string
	cursor := p.cursor[p.section]

	render := func(i int, line string) string {
		line = runewidth.Truncate(line, 60, "…")
		if i == cursor {
			return ListItemSelStyle.Render(line)
		}
		return ListItemStyle.Render(line)
	}

	switch p.section {
	case sectionMissions:
		for i, m := range p.missions {
			status := m.Status
			if m.Archived {
				status = "archived"
			}
			lines = append(lines, render(i, fmt.Sprintf("%-30s %s", m.Name, status)))
		}
	case sectionSkills:
		for i, s := range p.skills {
			mark := "[ ]"
			if s.Enabled {
				mark = "[x]"
			}
			lines = append(lines, render(i, fmt.Sprintf("%s %s", mark, s.Name)))
		}
	case sectionSecrets:
		for i, s := range p.secrets {
			lines = append(lines, render(i, fmt.Sprintf("%-30s %s", s.Name, s.UpdatedAt.Format("2006-01-02 15:04"))))
		}
	case sectionProfiles:
		for i, pr := range p.profiles {
			mark := "  "
			if pr.Active {
				mark = "* "
			}
			lines = append(lines, render(i, mark+pr.Name))
		}
	}
	if len(lines) == 0 {
		return DimStyle.Render("(none)")
	}
	return strings.Join(lines, "\n")
}

func (p *DashboardPanel) footer() string {
	common := "tab: section  y: copy  R: refresh  esc: close"
	switch p.section {
	case sectionMissions:
		return "a: archive  " + common
	case sectionSkills:
		return "enter: toggle  " + common
	case sectionSecrets:
		return "d: delete  " + common
	case sectionProfiles:
		return "enter: apply  " + common
	}
	return common
}
