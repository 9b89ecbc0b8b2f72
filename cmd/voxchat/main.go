// voxchat is the terminal client for a vox-core runtime. It keeps the
// conversation history, stores API keys locally, and lets the user flip
// voice playback per session.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"

	"github.com/voxchat-labs/vox-core/internal/keystore"
	"github.com/voxchat-labs/vox-core/internal/protocol"
)

var (
	serverURL = flag.String("server", "ws://localhost:3000/ws", "Runtime websocket URL")
	modelName = flag.String("model", "", "Model to request (defaults to the server's choice)")
	voiceType = flag.String("voice", "", "Voice to use for spoken responses")
	noVoice   = flag.Bool("no-voice", false, "Disable voice synthesis for this session")
	keyFile   = flag.String("keys", "", "Path to the API key file")
)

type serverEvent struct {
	Type    string  `json:"type"`
	Text    string  `json:"text"`
	Audio   *string `json:"audio"`
	Message string  `json:"message"`
}

type session struct {
	conn    *websocket.Conn
	keys    *keystore.Store
	history []protocol.Turn
	model   string
	voice   protocol.VoiceSettings
	baseURL string
}

func main() {
	flag.Parse()

	bold := color.New(color.Bold).SprintFunc()
	errText := color.New(color.FgRed).SprintFunc()

	keyPath := *keyFile
	if keyPath == "" {
		var err error
		keyPath, err = keystore.DefaultPath()
		if err != nil {
			fmt.Fprintln(os.Stderr, errText("cannot resolve key file: "+err.Error()))
			os.Exit(1)
		}
	}
	keys, err := keystore.Open(keyPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, errText(err.Error()))
		os.Exit(1)
	}

	conn, _, err := websocket.DefaultDialer.Dial(*serverURL, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, errText("cannot reach the runtime: "+err.Error()))
		os.Exit(1)
	}
	defer conn.Close()

	enabled := !*noVoice
	s := &session{
		conn:    conn,
		keys:    keys,
		model:   *modelName,
		voice:   protocol.VoiceSettings{Enabled: &enabled, Type: *voiceType},
		baseURL: httpBase(*serverURL),
	}

	fmt.Println(bold("voxchat"), "connected to", *serverURL)
	if name := keys.CurrentName(); name != "" {
		fmt.Println("using API key", bold(name))
	} else {
		fmt.Println("no API key selected; use /key add <name> <value>")
	}
	fmt.Println("type /help for commands")
	fmt.Println()

	prompt := color.New(color.FgGreen, color.Bold).SprintFunc()
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		fmt.Print(prompt("you> "))
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := s.runCommand(line); quit {
				break
			}
			continue
		}
		s.sendTurn(line)
	}
}

func (s *session) sendTurn(message string) {
	errText := color.New(color.FgRed).SprintFunc()

	msg := protocol.ClientMessage{
		Message:       message,
		History:       s.history,
		Model:         s.model,
		VoiceSettings: &s.voice,
	}
	if _, key, err := s.keys.Current(); err == nil {
		msg.APIKey = key
	}

	if err := s.conn.WriteJSON(msg); err != nil {
		fmt.Println(errText("send failed: " + err.Error()))
		return
	}

	var event serverEvent
	if err := s.conn.ReadJSON(&event); err != nil {
		fmt.Println(errText("connection lost: " + err.Error()))
		os.Exit(1)
	}

	if event.Type == "error" {
		fmt.Println(errText(event.Message))
		return
	}

	renderResponse(event.Text)
	if event.Audio != nil {
		fmt.Println(color.New(color.Faint).Sprint("audio: " + s.baseURL + *event.Audio))
	}
	fmt.Println()

	s.history = append(s.history,
		protocol.Turn{Role: protocol.RoleUser, Content: message},
		protocol.Turn{Role: protocol.RoleAssistant, Content: event.Text},
	)
}

func (s *session) runCommand(line string) (quit bool) {
	bold := color.New(color.Bold).SprintFunc()
	errText := color.New(color.FgRed).SprintFunc()
	fields := strings.Fields(line)

	switch fields[0] {
	case "/exit", "/quit":
		return true
	case "/help":
		fmt.Println("/key add <name> <type> <value>  store an API key (type: openai, anthropic)")
		fmt.Println("/key use <name>                 select a stored key")
		fmt.Println("/key list                       list stored keys")
		fmt.Println("/key delete <name>              remove a stored key")
		fmt.Println("/voice on|off             toggle spoken responses")
		fmt.Println("/voice <type>             pick a voice (male, female, british, ...)")
		fmt.Println("/model <name>             switch model")
		fmt.Println("/clear                    forget the conversation history")
		fmt.Println("/exit                     leave")
	case "/clear":
		s.history = nil
		fmt.Println("history cleared")
	case "/model":
		if len(fields) != 2 {
			fmt.Println(errText("usage: /model <name>"))
			break
		}
		s.model = fields[1]
		fmt.Println("model set to", bold(s.model))
	case "/voice":
		if len(fields) != 2 {
			fmt.Println(errText("usage: /voice on|off|<type>"))
			break
		}
		switch fields[1] {
		case "on":
			on := true
			s.voice.Enabled = &on
			fmt.Println("voice on")
		case "off":
			off := false
			s.voice.Enabled = &off
			fmt.Println("voice off")
		default:
			s.voice.Type = fields[1]
			fmt.Println("voice set to", bold(fields[1]))
		}
	case "/key":
		s.runKeyCommand(fields[1:])
	default:
		fmt.Println(errText("unknown command; try /help"))
	}
	return false
}

func (s *session) runKeyCommand(args []string) {
	bold := color.New(color.Bold).SprintFunc()
	errText := color.New(color.FgRed).SprintFunc()

	if len(args) == 0 {
		fmt.Println(errText("usage: /key add|use|list|delete"))
		return
	}
	switch args[0] {
	case "add":
		if len(args) != 4 {
			fmt.Println(errText("usage: /key add <name> <type> <value>"))
			return
		}
		if err := s.keys.Add(args[1], args[2], args[3]); err != nil {
			if errors.Is(err, keystore.ErrDuplicateName) {
				fmt.Println(errText("a key named " + args[1] + " already exists; delete it first"))
				return
			}
			fmt.Println(errText(err.Error()))
			return
		}
		fmt.Println("stored key", bold(args[1]), "("+args[2]+")")
	case "use":
		if len(args) != 2 {
			fmt.Println(errText("usage: /key use <name>"))
			return
		}
		if err := s.keys.Use(args[1]); err != nil {
			fmt.Println(errText(err.Error()))
			return
		}
		fmt.Println("using key", bold(args[1]))
	case "list":
		entries := s.keys.Entries()
		if len(entries) == 0 {
			fmt.Println("no keys stored")
			return
		}
		current := s.keys.CurrentName()
		for _, entry := range entries {
			marker := "  "
			if entry.Name == current {
				marker = "* "
			}
			line := marker + entry.Name
			if entry.Type != "" {
				line += " (" + entry.Type + ")"
			}
			if !entry.DateAdded.IsZero() {
				line += "  added " + entry.DateAdded.Format("2006-01-02")
			}
			fmt.Println(line)
		}
	case "delete":
		if len(args) != 2 {
			fmt.Println(errText("usage: /key delete <name>"))
			return
		}
		if err := s.keys.Delete(args[1]); err != nil {
			fmt.Println(errText(err.Error()))
			return
		}
		fmt.Println("deleted key", bold(args[1]))
		if s.keys.CurrentName() == "" {
			fmt.Println("no key selected now; use /key use <name>")
		}
	default:
		fmt.Println(errText("usage: /key add|use|list|delete"))
	}
}

// httpBase converts the websocket URL into the HTTP origin serving /audio.
func httpBase(wsURL string) string {
	u, err := url.Parse(wsURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "wss":
		u.Scheme = "https"
	default:
		u.Scheme = "http"
	}
	u.Path = ""
	return u.String()
}
