package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"

	"smartdoor-relay/entities"
)

const maxLogLines = 12

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("170")).
			Bold(true).
			PaddingLeft(2)

	normalStyle = lipgloss.NewStyle().
			PaddingLeft(4)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

var actions = []string{"OPEN", "CLOSE", "REFRESH", "REGISTER_FACE"}

// session serializes writes; gorilla allows one concurrent writer.
type session struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *session) send(msgType string, data interface{}) error {
	frame, err := entities.Encode(msgType, data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return s.conn.WriteMessage(websocket.TextMessage, frame)
}

type model struct {
	endpoint string
	token    string
	sess     *session

	status   entities.RelayStatus
	logs     []entities.LogView
	lastRes  *entities.CommandResult
	cursor   int
	message  string
	failed   bool
	quitting bool
}

type connectedMsg struct{ sess *session }
type envelopeMsg entities.Envelope
type sentMsg struct{ cmd string }
type errMsg struct{ err error }

func (e errMsg) Error() string { return e.err.Error() }

func initialModel(endpoint, token string) model {
	return model{endpoint: endpoint, token: token, message: "connecting..."}
}

func (m model) Init() tea.Cmd {
	return connect(m.endpoint, m.token)
}

func connect(endpoint, token string) tea.Cmd {
	return func() tea.Msg {
		u, err := url.Parse(endpoint)
		if err != nil {
			return errMsg{err}
		}
		q := u.Query()
		q.Set("role", "operator")
		u.RawQuery = q.Encode()

		header := http.Header{}
		header.Set("Authorization", "Bearer "+token)
		conn, resp, err := websocket.DefaultDialer.Dial(u.String(), header)
		if err != nil {
			if resp != nil && resp.StatusCode == http.StatusUnauthorized {
				return errMsg{fmt.Errorf("relay rejected the operator token")}
			}
			return errMsg{fmt.Errorf("connect %s: %w", u.Host, err)}
		}
		return connectedMsg{sess: &session{conn: conn}}
	}
}

// listen waits for the next frame from the relay.
func listen(s *session) tea.Cmd {
	return func() tea.Msg {
		var env entities.Envelope
		if err := s.conn.ReadJSON(&env); err != nil {
			return errMsg{fmt.Errorf("connection lost: %w", err)}
		}
		return envelopeMsg(env)
	}
}

func sendCommand(s *session, cmd string) tea.Cmd {
	return func() tea.Msg {
		if err := s.send(entities.MsgCommand, entities.CommandPayload{Cmd: cmd}); err != nil {
			return errMsg{err}
		}
		return sentMsg{cmd: cmd}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			if m.sess != nil {
				_ = m.sess.conn.Close()
			}
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(actions)-1 {
				m.cursor++
			}
		case "r":
			if m.sess == nil {
				m.message, m.failed = "reconnecting...", false
				return m, connect(m.endpoint, m.token)
			}
		case "enter":
			if m.sess == nil {
				m.message, m.failed = "not connected, press r to retry", true
				return m, nil
			}
			return m, sendCommand(m.sess, actions[m.cursor])
		}

	case connectedMsg:
		m.sess = msg.sess
		m.logs = nil
		m.message, m.failed = "connected", false
		return m, listen(m.sess)

	case envelopeMsg:
		m = m.apply(entities.Envelope(msg))
		return m, listen(m.sess)

	case sentMsg:
		m.message, m.failed = "sent "+msg.cmd, false

	case errMsg:
		if m.sess != nil {
			_ = m.sess.conn.Close()
			m.sess = nil
		}
		m.message, m.failed = msg.Error()+" (press r to reconnect)", true
	}
	return m, nil
}

// apply folds one relay event into the model.
func (m model) apply(env entities.Envelope) model {
	switch env.Type {
	case entities.MsgStatus:
		var st entities.RelayStatus
		if json.Unmarshal(env.Data, &st) == nil {
			m.status = st
		}
	case entities.MsgLog:
		var v entities.LogView
		if json.Unmarshal(env.Data, &v) == nil {
			m.logs = append(m.logs, v)
			if len(m.logs) > maxLogLines {
				m.logs = m.logs[len(m.logs)-maxLogLines:]
			}
		}
	case entities.MsgResult:
		var res entities.CommandResult
		if json.Unmarshal(env.Data, &res) == nil {
			m.lastRes = &res
		}
	case entities.MsgError:
		m.message, m.failed = string(env.Data), true
	}
	return m
}

func (m model) View() string {
	if m.quitting {
		return "bye\n"
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("SmartDoor relay console"))
	b.WriteString("\n")

	conn := errorStyle.Render("offline")
	if m.status.Connected {
		conn = successStyle.Render("connected")
	}
	camera := "off"
	if m.status.Camera {
		camera = "on"
	}
	fmt.Fprintf(&b, "device %s: %s  camera: %s  door: %s\n\n", m.status.DeviceID, conn, camera, m.status.Door)

	for i, a := range actions {
		if i == m.cursor {
			b.WriteString(selectedStyle.Render("> "+a) + "\n")
		} else {
			b.WriteString(normalStyle.Render(a) + "\n")
		}
	}

	b.WriteString("\n")
	for _, l := range m.logs {
		media := ""
		if l.ImgURL != nil {
			media = dimStyle.Render(" [image]")
		}
		fmt.Fprintf(&b, "%s %-7s %s%s\n", l.Time.Local().Format("15:04:05"), l.Kind, l.Message, media)
	}
	if m.lastRes != nil {
		outcome := successStyle.Render("ok")
		if !m.lastRes.Success {
			outcome = errorStyle.Render("failed")
		}
		fmt.Fprintf(&b, "\nlast result %s: %s\n", m.lastRes.CommandID, outcome)
	}

	b.WriteString("\n")
	if m.failed {
		b.WriteString(errorStyle.Render(m.message))
	} else {
		b.WriteString(dimStyle.Render(m.message))
	}
	b.WriteString("\n" + dimStyle.Render("up/down select, enter send, r reconnect, q quit") + "\n")
	return b.String()
}

func main() {
	_ = godotenv.Load()

	endpoint := flag.String("url", "ws://localhost:3000/ws", "relay channel endpoint")
	token := flag.String("token", os.Getenv("USER_TOKEN"), "operator token (defaults to $USER_TOKEN)")
	flag.Parse()

	if *token == "" {
		fmt.Fprintln(os.Stderr, "operator token required: -token or USER_TOKEN")
		os.Exit(2)
	}

	p := tea.NewProgram(initialModel(*endpoint, *token))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
