package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/eburon/brokerdial/pkg/audio/pcm"
	"github.com/eburon/brokerdial/pkg/buffer"
	"github.com/eburon/brokerdial/pkg/callsession"
	"github.com/eburon/brokerdial/pkg/cli"
	"github.com/eburon/brokerdial/pkg/crm"
	"github.com/eburon/brokerdial/pkg/review"
	"github.com/eburon/brokerdial/pkg/transport"
)

var (
	callLead    string
	callOutcome string
	callRecord  bool
	callFor     time.Duration
	callPlain   bool
)

var callCmd = &cobra.Command{
	Use:   "call [number]",
	Short: "Place a call from the terminal",
	Long: `Place a call through the voice backend of the selected context and
follow it live. Without a number the phone of --lead is dialed.

The terminal has no audio device: the agent hears silence on the broker
side, which is enough to let it open the conversation and to exercise
recording and review.

Keys:
  r                    start or stop recording
  h                    hang up
  c <outcome> [lead]   file the pending recording, finished with Enter
                       (connected, missed, voicemail, follow_up, closed)
  d                    save the pending recording to the current directory
  x                    discard the pending recording
  q, Ctrl+C            quit (a pending recording is saved, then discarded)`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCall,
}

func init() {
	f := callCmd.Flags()
	f.StringVar(&callLead, "lead", "", "lead the call is for")
	f.StringVar(&callOutcome, "outcome", "", "file the recording with this outcome when the call ends (needs --lead)")
	f.BoolVar(&callRecord, "record", false, "start recording as soon as the call is active")
	f.DurationVar(&callFor, "for", 0, "hang up after this long")
	f.BoolVar(&callPlain, "plain", false, "plain log output instead of the live view")
	rootCmd.AddCommand(callCmd)
}

func runCall(cmd *cobra.Command, args []string) error {
	c, err := getContext()
	if err != nil {
		return err
	}
	var outcome crm.Outcome
	if callOutcome != "" {
		if callLead == "" {
			return errors.New("--outcome needs --lead")
		}
		if outcome, err = crm.ParseOutcome(callOutcome); err != nil {
			return err
		}
	}

	logs := cli.NewLogWriter(200)
	var logOut io.Writer = logs
	if callPlain {
		logOut = os.Stderr
	} else if f, err := openCallLog(); err == nil {
		defer f.Close()
		logOut = io.MultiWriter(logs, f)
	}
	logger := newLogger(logOut)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := openEnv(ctx, c, logger)
	if err != nil {
		return err
	}
	defer e.Close()

	var lead *crm.Lead
	if callLead != "" {
		if lead, err = e.crm.GetLead(ctx, callLead); err != nil {
			return err
		}
	}
	destination := ""
	if len(args) == 1 {
		destination = args[0]
	} else if lead != nil {
		destination = lead.Phone
	}
	if destination == "" {
		return errors.New("nothing to dial: give a number or --lead")
	}

	backend, err := newBackend(ctx, c, logger)
	if err != nil {
		return err
	}
	debounce, err := c.DebounceDuration()
	if err != nil {
		return err
	}
	gate := review.NewGate(e.crm, e.files, review.WithLogger(logger))
	mgr, err := callsession.New(callsession.Config{
		NewTransport: func(string) transport.Transport {
			return transport.New(backend, transport.NewNullDevice(pcm.L16Mono16K), transport.WithLogger(logger))
		},
		Persona:  personaSource(e.personas, logger),
		Gate:     gate,
		Debounce: debounce,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer mgr.Close()

	m := &callModel{
		ctx:     ctx,
		mgr:     mgr,
		gate:    gate,
		lead:    lead,
		outcome: outcome,
		logs:    logs,
		out:     cmd.OutOrStdout(),
		plain:   callPlain,
		styles:  cli.NewStyles(cli.DefaultTheme),
		notices: buffer.WindowN[string](4),
		states:  make(chan callsession.State, 16),
		pending: make(chan *review.PendingRecording, 4),
		started: make(chan error, 1),
		width:   80,
		height:  26,
	}
	defer m.subscribe()()
	go func() { m.started <- mgr.StartCall(ctx, destination) }()

	opts := []tea.ProgramOption{tea.WithInput(cmd.InOrStdin()), tea.WithOutput(cmd.OutOrStdout())}
	if callPlain {
		opts = append(opts, tea.WithoutRenderer())
	} else {
		opts = append(opts, tea.WithAltScreen())
	}
	p := tea.NewProgram(m, opts...)
	go func() {
		<-ctx.Done()
		p.Send(quitMsg{})
	}()
	if _, err := p.Run(); err != nil {
		return err
	}
	return m.err
}

// openCallLog appends to the call log under the app's log directory.
func openCallLog() (*os.File, error) {
	paths, err := cli.NewPaths(appName)
	if err != nil {
		return nil, err
	}
	if err := paths.EnsureLogDir(); err != nil {
		return nil, err
	}
	return os.OpenFile(paths.LogPath("call.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// callModel is the bubbletea model of one terminal call.
type callModel struct {
	ctx     context.Context
	mgr     *callsession.Manager
	gate    *review.Gate
	lead    *crm.Lead
	outcome crm.Outcome
	logs    *cli.LogWriter
	out     io.Writer
	plain   bool
	styles  cli.Styles
	notices *buffer.Window[string]

	states  chan callsession.State
	pending chan *review.PendingRecording
	started chan error

	in, outLevel pcm.AtomicFloat32
	recording    bool
	over         bool

	// prompt holds the command being typed after "c"; nil when not typing.
	prompt *strings.Builder

	width, height int
	err           error
}

type (
	stateMsg   callsession.State
	pendingMsg struct{ p *review.PendingRecording }
	startedMsg struct{ err error }
	logMsg     string
	tickMsg    time.Time
	hangupMsg  struct{}
	quitMsg    struct{}
)

func (m *callModel) subscribe() func() {
	offState := m.mgr.OnState(func(s callsession.State) {
		select {
		case m.states <- s:
		default:
		}
	})
	offPending := m.mgr.OnPending(func(p *review.PendingRecording) {
		select {
		case m.pending <- p:
		default:
		}
	})
	offVolume := m.mgr.OnVolume(func(in, out float32) {
		m.in.Store(in)
		m.outLevel.Store(out)
	})
	return func() {
		offState()
		offPending()
		offVolume()
	}
}

func (m *callModel) Init() tea.Cmd {
	return tea.Batch(m.listenStates(), m.listenPending(), m.listenStarted(), m.listenLogs(), m.tick())
}

func (m *callModel) listenStates() tea.Cmd {
	return func() tea.Msg { return stateMsg(<-m.states) }
}

func (m *callModel) listenPending() tea.Cmd {
	return func() tea.Msg { return pendingMsg{<-m.pending} }
}

func (m *callModel) listenStarted() tea.Cmd {
	return func() tea.Msg { return startedMsg{<-m.started} }
}

func (m *callModel) listenLogs() tea.Cmd {
	if m.plain {
		return nil
	}
	return func() tea.Msg { return logMsg(<-m.logs.Channel()) }
}

func (m *callModel) tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *callModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height

	case tea.KeyMsg:
		if m.key(msg) {
			m.quit()
			return m, tea.Quit
		}

	case quitMsg:
		m.quit()
		return m, tea.Quit

	case startedMsg:
		if msg.err != nil && !errors.Is(msg.err, callsession.ErrCanceled) {
			m.err = msg.err
			return m, tea.Quit
		}

	case stateMsg:
		cmds = append(cmds, m.listenStates())
		s := callsession.State(msg)
		m.notef("state: %s", s)
		switch s {
		case callsession.Active:
			if callRecord {
				m.toggleRecording()
			}
			if callFor > 0 {
				cmds = append(cmds, tea.Tick(callFor, func(time.Time) tea.Msg { return hangupMsg{} }))
			}
		case callsession.Ended, callsession.Error:
			m.over = true
			m.recording = false
		}

	case pendingMsg:
		cmds = append(cmds, m.listenPending())
		m.recording = false
		if p := msg.p; p != nil {
			m.notef("recording ready for review (%s)", cli.FormatDuration(time.Duration(p.DurationSeconds)*time.Second))
			if m.outcome != "" {
				m.confirm(m.outcome, m.lead.ID)
			}
		}

	case hangupMsg:
		m.endCall()

	case logMsg:
		cmds = append(cmds, m.listenLogs())

	case tickMsg:
		cmds = append(cmds, m.tick())
	}

	if m.over && m.gate.Pending() == nil && len(m.pending) == 0 {
		return m, tea.Quit
	}
	return m, tea.Batch(cmds...)
}

// key handles one key press and reports whether to quit.
func (m *callModel) key(k tea.KeyMsg) bool {
	if k.Type == tea.KeyCtrlC {
		return true
	}
	if m.prompt != nil {
		switch k.Type {
		case tea.KeyEnter:
			line := m.prompt.String()
			m.prompt = nil
			m.command(line)
		case tea.KeyEsc:
			m.prompt = nil
		case tea.KeyBackspace:
			s := m.prompt.String()
			m.prompt.Reset()
			if len(s) > 0 {
				m.prompt.WriteString(s[:len(s)-1])
			}
		case tea.KeyRunes, tea.KeySpace:
			m.prompt.WriteString(k.String())
		}
		return false
	}
	switch k.String() {
	case "r":
		m.toggleRecording()
	case "h":
		m.endCall()
	case "c":
		m.prompt = &strings.Builder{}
	case "d":
		m.save()
	case "x":
		m.gate.Discard()
	case "q", "esc":
		return true
	case "enter", " ":
	default:
		m.notef("unknown key %q", k.String())
	}
	return false
}

// command files the pending recording from a typed "<outcome> [lead]".
func (m *callModel) command(line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		m.notef("usage: c <outcome> [lead]")
		return
	}
	outcome, err := crm.ParseOutcome(fields[0])
	if err != nil {
		m.notef("%v", err)
		return
	}
	leadID := ""
	if m.lead != nil {
		leadID = m.lead.ID
	}
	if len(fields) > 1 {
		leadID = fields[1]
	}
	m.confirm(outcome, leadID)
}

func (m *callModel) toggleRecording() {
	if err := m.mgr.ToggleRecording(!m.recording); err != nil {
		m.notef("recording: %v", err)
		return
	}
	m.recording = !m.recording
}

func (m *callModel) endCall() {
	if err := m.mgr.EndCall(); err != nil {
		m.notef("hang up: %v", err)
	}
}

func (m *callModel) confirm(outcome crm.Outcome, leadID string) {
	rec, err := m.gate.Confirm(m.ctx, outcome, leadID)
	if err != nil {
		m.notef("file recording: %v", err)
		return
	}
	m.notef("recording %s filed on lead %s as %s", rec.ID, leadID, rec.Outcome)
}

func (m *callModel) save() string {
	name, body, err := m.gate.Download()
	if err != nil {
		m.notef("save: %v", err)
		return ""
	}
	name = strings.ReplaceAll(name, ":", "-")
	f, err := os.Create(name)
	if err == nil {
		_, err = io.Copy(f, body)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}
	if err != nil {
		m.notef("save: %v", err)
		return ""
	}
	m.notef("saved %s", name)
	return name
}

func (m *callModel) quit() {
	if s := m.mgr.State(); s == callsession.Connecting || s == callsession.Active {
		m.endCall()
	}
	if m.gate.Pending() != nil {
		if m.save() != "" {
			m.gate.Discard()
		}
	}
}

func (m *callModel) notef(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if m.plain {
		fmt.Fprintln(m.out, msg)
		return
	}
	m.notices.Add(time.Now().Format("15:04:05") + " " + msg)
}

func (m *callModel) View() string {
	if m.plain {
		return ""
	}
	snap := m.mgr.Snapshot()
	help := "r record · h hang up · c <outcome> [lead] · d save · x discard · q quit"
	if m.prompt != nil {
		help = "c " + m.prompt.String() + "▏"
	}
	frame := cli.Frame{
		Styles: m.styles,
		Title:  "brokerdial",
		Status: snap.State.String(),
		Sections: []cli.Section{
			{Label: " Call ", Height: 7, Content: func() []string { return m.callLines(snap) }},
			{Label: " Review ", Height: 3, Content: func() []string { return m.reviewLines(snap) }},
			{Label: " Log ", Content: func() []string { return append(m.logs.Lines(), m.notices.Items()...) }},
		},
		Help: help,
	}
	return frame.Render(m.width, m.height)
}

func (m *callModel) callLines(snap callsession.Snapshot) []string {
	to := snap.Destination
	if m.lead != nil {
		to += " (" + m.lead.Name() + ")"
	}
	elapsed := "--:--"
	if snap.State == callsession.Active && !snap.StartedAt.IsZero() {
		elapsed = cli.FormatDuration(time.Since(snap.StartedAt.Time()))
	}
	rec := "off"
	if snap.Recording {
		rec = m.styles.Alert.Render("● REC")
	}
	lines := []string{
		"State     " + m.styles.State(snap.State.String()),
		"To        " + to,
		"Elapsed   " + elapsed,
		"Recording " + rec,
		m.styles.Meter("OUT", m.outLevel.Load(), 30),
		m.styles.Meter("IN ", m.in.Load(), 30),
	}
	if snap.Error != "" {
		lines = append(lines, m.styles.Alert.Render("Error: "+snap.Error))
	}
	return lines
}

func (m *callModel) reviewLines(snap callsession.Snapshot) []string {
	p := snap.Pending
	if p == nil {
		return []string{"No recording pending."}
	}
	return []string{
		m.styles.Warn.Render("Recording pending review"),
		fmt.Sprintf("Length %s · captured %s · %s",
			cli.FormatDuration(time.Duration(p.DurationSeconds)*time.Second),
			p.CapturedAt.Time().Local().Format("15:04:05"),
			cli.FormatBytes(int64(p.Size))),
		"Outcomes: connected, missed, voicemail, follow_up, closed",
	}
}
