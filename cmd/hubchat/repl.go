package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/bdintelligence20/triggr4-hub/internal/catalog"
	"github.com/bdintelligence20/triggr4-hub/internal/chat"
	"github.com/bdintelligence20/triggr4-hub/internal/domain"
)

// tokenSetter persists the bearer token used by the hub client.
type tokenSetter interface {
	SetToken(token string) error
}

type repl struct {
	mgr        *chat.Manager
	tokens     tokenSetter
	categories *catalog.Catalog
	out        io.Writer
	printed    map[string]struct{}

	you, assistant, info, warn func(a ...interface{}) string
}

func newREPL(mgr *chat.Manager, tokens tokenSetter, categories *catalog.Catalog, out io.Writer) *repl {
	return &repl{
		mgr:        mgr,
		tokens:     tokens,
		categories: categories,
		out:        out,
		printed:    make(map[string]struct{}),
		you:        color.New(color.FgGreen, color.Bold).SprintFunc(),
		assistant:  color.New(color.FgCyan, color.Bold).SprintFunc(),
		info:       color.New(color.FgYellow).SprintFunc(),
		warn:       color.New(color.FgRed).SprintFunc(),
	}
}

func (r *repl) println(a ...interface{}) {
	_, _ = fmt.Fprintln(r.out, a...)
}

func (r *repl) printf(format string, a ...interface{}) {
	_, _ = fmt.Fprintf(r.out, format, a...)
}

func (r *repl) banner(apiURL string) {
	r.println(r.you("Triggr4 Hub Chat"))
	r.printf("Hub: %s\n", r.assistant(apiURL))
	r.println("Type a question and press Enter. /help lists commands, /quit exits.")
	r.println()
}

func (r *repl) prompt() {
	r.flush()
	_, _ = fmt.Fprint(r.out, r.you("You: "))
}

// flush prints assistant messages of the active conversation not shown yet,
// such as the courtesy note that arrives after an answer.
func (r *repl) flush() {
	for _, msg := range r.mgr.Messages() {
		if _, seen := r.printed[msg.ID]; seen || msg.IsStreaming {
			continue
		}
		r.printed[msg.ID] = struct{}{}
		if msg.Sender == domain.SenderUser {
			continue
		}
		r.printMessage(msg)
	}
}

func (r *repl) printMessage(msg domain.Message) {
	if msg.Sender == domain.SenderUser {
		r.printf("%s%s\n", r.you("You: "), msg.Content)
		return
	}
	r.printf("%s%s\n", r.assistant("Assistant: "), msg.Content)
	if len(msg.Sources) > 0 {
		ids := make([]string, 0, len(msg.Sources))
		for _, s := range msg.Sources {
			ids = append(ids, fmt.Sprintf("%s (%.2f)", s.ID, s.RelevanceScore))
		}
		r.println(r.info("  sources: " + strings.Join(ids, ", ")))
	}
}

// replay prints the whole active conversation.
func (r *repl) replay() {
	for _, msg := range r.mgr.Messages() {
		if msg.IsStreaming {
			continue
		}
		r.printed[msg.ID] = struct{}{}
		r.printMessage(msg)
	}
}

// handle runs one input line and reports whether the REPL should exit.
func (r *repl) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		r.send(ctx, line)
		return false
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch strings.ToLower(cmd) {
	case "/quit", "/exit":
		return true
	case "/help":
		r.help()
	case "/new":
		thread := r.mgr.CreateThread(arg)
		r.println(r.info("Started thread " + thread.ID))
	case "/threads":
		r.listThreads()
	case "/load":
		r.load(ctx, arg)
	case "/save":
		if err := r.mgr.SaveSession(ctx, arg); err != nil {
			r.println(r.warn("Save failed: " + err.Error()))
			return false
		}
		r.println(r.info("Saved as " + r.mgr.ActiveThread()))
	case "/categories":
		for _, c := range r.categories.Categories() {
			r.printf("  %-12s %s\n", c.ID, c.Name)
		}
	case "/category":
		if _, ok := r.categories.CategoryName(arg); !ok {
			r.println(r.warn("Unknown category " + arg + "; /categories lists them"))
			return false
		}
		r.mgr.SelectCategory(arg)
		r.println(r.info("Now chatting in " + arg))
		r.replay()
	case "/org":
		if arg == "" {
			r.println(r.warn("Usage: /org <organization-id>"))
			return false
		}
		r.mgr.SetOrganization(ctx, domain.Organization{ID: arg})
		r.printed = make(map[string]struct{})
		r.println(r.info(fmt.Sprintf("Organization %s, %d threads", arg, len(r.mgr.Threads()))))
	case "/login":
		if err := r.tokens.SetToken(arg); err != nil {
			r.println(r.warn("Failed to store token: " + err.Error()))
			return false
		}
		if arg == "" {
			r.println(r.info("Logged out"))
			return false
		}
		r.mgr.LoadHistory(ctx)
		r.println(r.info("Token stored"))
	default:
		r.println(r.warn("Unknown command " + cmd + "; /help lists commands"))
	}
	return false
}

func (r *repl) send(ctx context.Context, text string) {
	if r.mgr.Category() == "" {
		r.println(r.warn("Pick a conversation first: /category <id> or /new"))
		return
	}
	r.println(r.info(chat.SearchingText))
	r.mgr.Send(ctx, text)
	r.flush()
}

func (r *repl) load(ctx context.Context, id string) {
	if id == "" {
		r.println(r.warn("Usage: /load <session-id>"))
		return
	}
	if err := r.mgr.LoadSession(ctx, id); err != nil {
		r.println(r.warn("Load failed: " + err.Error()))
		return
	}
	r.replay()
}

func (r *repl) listThreads() {
	active := r.mgr.ActiveThread()
	for _, t := range r.mgr.Threads() {
		marker := " "
		if t.ID == active {
			marker = "*"
		}
		title := t.Title
		if title == "" {
			title = "(untitled)"
		}
		when := ""
		if !t.Timestamp.IsZero() {
			when = t.Timestamp.Local().Format(time.DateTime)
		}
		r.printf("%s %-36s %-30s %s\n", marker, t.ID, title, r.info(when))
		if t.LastMessage != "" {
			r.printf("    %s\n", t.LastMessage)
		}
	}
}

func (r *repl) help() {
	r.println("  /new [title]      start a new thread")
	r.println("  /threads          list threads (* marks the active one)")
	r.println("  /load <id>        load a saved session")
	r.println("  /save [title]     save the conversation now")
	r.println("  /categories       list knowledge categories")
	r.println("  /category <id>    chat within a knowledge category")
	r.println("  /org <id>         switch organization")
	r.println("  /login <token>    store the hub API token (empty to log out)")
	r.println("  /quit             exit")
}
