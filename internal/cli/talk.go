package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/raphaelgruber/voxchat/internal/capture"
	"github.com/raphaelgruber/voxchat/internal/capture/portaudio"
	"github.com/raphaelgruber/voxchat/internal/client"
	"github.com/raphaelgruber/voxchat/internal/models"
	"github.com/raphaelgruber/voxchat/internal/service"
	"github.com/spf13/cobra"
)

const (
	// maxRecording stops a recording automatically.
	maxRecording = 30 * time.Second
	tickInterval = 100 * time.Millisecond
	// visibleMessages is how many trailing messages the view shows.
	visibleMessages = 12
)

// languages offered by the language switch.
var languages = []string{"en", "es", "fr", "de", "it", "pt", "ja"}

var (
	talkModelName string
	talkLanguage  string
)

var talkCmd = &cobra.Command{
	Use:   "talk",
	Short: "Talk to a speech model from your microphone",
	Long: `Open an interactive session: press space to start recording, space again
to send the recording to the selected model.

Keys:
  space  start / stop and send
  esc    discard the current recording
  m      next model
  l      next language
  n      start a new conversation
  q      quit`,
	RunE: runTalk,
}

func init() {
	talkCmd.Flags().StringVarP(&talkModelName, "model", "m", string(models.ModelCSM), "speech model")
	talkCmd.Flags().StringVarP(&talkLanguage, "language", "l", models.DefaultLanguage, "language code")
}

func runTalk(cmd *cobra.Command, args []string) error {
	owner, err := requireOwner()
	if err != nil {
		return err
	}
	if !isTerminal(os.Stdin) {
		return errors.New("talk needs an interactive terminal; use 'voxchat send' for files")
	}
	model, err := models.ParseModelName(talkModelName)
	if err != nil {
		return err
	}

	source, err := portaudio.New(logger)
	if err != nil {
		return err
	}
	defer source.Terminate()

	recorder := capture.NewRecorder(source, logger)
	manager := service.NewConversationManager(apiClient, owner, logger)
	session := service.NewSession(service.SessionDeps{
		Recorder:   recorder,
		Gateway:    apiClient,
		Manager:    manager,
		Aggregator: service.NewAggregator(apiClient, owner, logger),
		Logger:     logger,
	}, owner, model, talkLanguage)

	m := newTalkModel(session, manager, recorder)
	if _, err := tea.NewProgram(m).Run(); err != nil {
		return fmt.Errorf("talk UI error: %w", err)
	}
	// Release the device if the UI exited mid-recording.
	session.CancelRecording()
	return nil
}

// Messages exchanged between commands and the talk model.
type (
	tickMsg           time.Time
	recordStartedMsg  struct{ err error }
	exchangeResultMsg struct {
		result *service.ExchangeResult
		err    error
	}
	statsMsg struct {
		stats []models.ModelStats
		err   error
	}
)

// talkModel is the bubbletea model for an interactive session.
type talkModel struct {
	session  *service.Session
	manager  *service.ConversationManager
	recorder *capture.Recorder
	progress progress.Model
	theme    Theme

	recording  bool
	submitting bool
	status     string
	err        error
	stats      []models.ModelStats
}

func newTalkModel(s *service.Session, m *service.ConversationManager, r *capture.Recorder) talkModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)
	return talkModel{
		session:  s,
		manager:  m,
		recorder: r,
		progress: prog,
		theme:    defaultTheme,
		status:   "Press space to talk.",
	}
}

// Init loads the statistics.
func (m talkModel) Init() tea.Cmd {
	return m.refreshStats()
}

// Update handles messages and returns the updated model.
func (m talkModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		return m.handleKey(msg.String())

	case recordStartedMsg:
		if msg.err != nil {
			m.err = describeError(msg.err)
			m.status = "Recording did not start."
			return m, nil
		}
		m.recording = true
		m.err = nil
		m.status = "Recording… press space to send, esc to discard."
		return m, tickCmd()

	case tickMsg:
		if !m.recording {
			return m, nil
		}
		if m.recorder.Elapsed() >= maxRecording {
			return m.submit()
		}
		return m, tickCmd()

	case exchangeResultMsg:
		m.submitting = false
		if msg.err != nil {
			m.err = describeError(msg.err)
			m.status = "Exchange failed. Press space to try again."
			return m, nil
		}
		m.err = nil
		res := msg.result
		m.status = fmt.Sprintf("%s answered in %.0fms.", res.Submit.Model.DisplayName(), res.Submit.LatencyMs)
		if res.StatsErr == nil {
			m.stats = res.Stats
		} else {
			m.status += " Stats unavailable."
		}
		if res.OutcomeErr != nil {
			m.status += " Performance not recorded."
		}
		return m, nil

	case statsMsg:
		if msg.err == nil {
			m.stats = msg.stats
		}
		return m, nil
	}

	return m, nil
}

func (m talkModel) handleKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "space":
		if m.submitting {
			return m, nil
		}
		if m.recording {
			return m.submit()
		}
		return m, m.startRecording()

	case "esc":
		if m.recording {
			m.session.CancelRecording()
			m.recording = false
			m.status = "Recording discarded."
		}

	case "m":
		if m.busy() {
			return m, nil
		}
		current, _ := m.session.Settings()
		next := cycle(models.ModelNames(), current)
		if err := m.session.SetModel(string(next)); err != nil {
			m.err = err
		}
		m.status = "Model: " + next.DisplayName()

	case "l":
		if m.busy() {
			return m, nil
		}
		_, current := m.session.Settings()
		next := cycle(languages, current)
		m.session.SetLanguage(next)
		m.status = "Language: " + next

	case "n":
		if m.busy() {
			return m, nil
		}
		m.manager.StartNew()
		m.status = "New conversation. Press space to talk."
	}
	return m, nil
}

func (m talkModel) busy() bool {
	return m.recording || m.submitting
}

func (m talkModel) submit() (tea.Model, tea.Cmd) {
	m.recording = false
	m.submitting = true
	m.status = "Sending…"
	session := m.session
	return m, func() tea.Msg {
		res, err := session.StopAndSubmit(context.Background())
		return exchangeResultMsg{result: res, err: err}
	}
}

func (m talkModel) startRecording() tea.Cmd {
	session := m.session
	return func() tea.Msg {
		return recordStartedMsg{err: session.StartRecording(context.Background())}
	}
}

func (m talkModel) refreshStats() tea.Cmd {
	session := m.session
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		stats, err := session.RefreshStats(ctx)
		return statsMsg{stats: stats, err: err}
	}
}

// tickCmd returns a command that sends a tick after the tick interval.
func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// View renders the session.
func (m talkModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m talkModel) renderContent() string {
	var b strings.Builder

	model, language := m.session.Settings()
	b.WriteString(m.theme.statusStyle().Render(fmt.Sprintf("[%s · %s]", model.DisplayName(), language)))
	if id := m.manager.ActiveID(); id != "" {
		b.WriteString(m.theme.hintStyle().Render("  conversation " + id))
	}
	b.WriteString("\n\n")

	msgs := m.manager.Messages()
	if len(msgs) > visibleMessages {
		msgs = msgs[len(msgs)-visibleMessages:]
	}
	for _, msg := range msgs {
		who := "assistant"
		if msg.IsUser {
			who = "you"
		}
		line := m.theme.speakerStyle(msg.IsUser).Render(who+":") + " " + msg.Content
		if msg.LatencyMs != nil {
			line += m.theme.hintStyle().Render(fmt.Sprintf(" (%.0fms)", *msg.LatencyMs))
		}
		b.WriteString(line + "\n")
	}
	if len(msgs) > 0 {
		b.WriteString("\n")
	}

	if m.recording {
		elapsed := m.recorder.Elapsed()
		pct := float64(elapsed) / float64(maxRecording)
		b.WriteString(fmt.Sprintf("%s %s %4.1fs\n",
			m.theme.errorStyle().Render("● REC"), m.progress.ViewAs(min(pct, 1)), elapsed.Seconds()))
	}

	b.WriteString(m.theme.statusStyle().Render(m.status) + "\n")
	if m.err != nil {
		b.WriteString(m.theme.errorStyle().Render("✗ "+m.err.Error()) + "\n")
	}

	if len(m.stats) > 0 {
		b.WriteString("\n" + renderStatsTable(m.stats, true) + "\n")
	}

	b.WriteString("\n" + m.theme.hintStyle().Render("space talk · esc discard · m model · l language · n new · q quit") + "\n")
	return b.String()
}

// describeError turns the error taxonomy into a short user-facing message.
func describeError(err error) error {
	switch {
	case errors.Is(err, capture.ErrPermissionDenied):
		return errors.New("microphone access was denied")
	case errors.Is(err, capture.ErrDeviceUnavailable):
		return errors.New("no microphone available")
	case errors.Is(err, service.ErrBusy):
		return errors.New("still waiting for the previous answer")
	case errors.Is(err, models.ErrUnsupportedModel):
		return err
	case errors.Is(err, client.ErrProcessing):
		return err
	case errors.Is(err, service.ErrPersistence):
		return fmt.Errorf("could not save the conversation: %w", err)
	default:
		return err
	}
}

// cycle returns the element after current, wrapping around.
func cycle[T comparable](items []T, current T) T {
	i := slices.Index(items, current)
	return items[(i+1)%len(items)]
}
