package simulator

import (
	"fmt"
	"path"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/dustin/go-humanize"

	"assistdojo/internal/session"
)

// MemoryFile is the project memory file managed by /init and /memory.
const MemoryFile = "ASSISTANT.md"

const historyWindow = 10

type CommandKind int

const (
	CommandUnknown CommandKind = iota
	CommandHelp
	CommandStatus
	CommandMemory
	CommandClear
	CommandInit
	CommandCost
	CommandModel
	CommandExplain
	CommandHistory
)

var knownCommands = []CommandKind{
	CommandHelp,
	CommandStatus,
	CommandMemory,
	CommandClear,
	CommandInit,
	CommandCost,
	CommandModel,
	CommandExplain,
	CommandHistory,
}

var Models = []string{"sim-small", "sim-medium", "sim-large"}

func (k CommandKind) String() string {
	switch k {
	case CommandHelp:
		return "help"
	case CommandStatus:
		return "status"
	case CommandMemory:
		return "memory"
	case CommandClear:
		return "clear"
	case CommandInit:
		return "init"
	case CommandCost:
		return "cost"
	case CommandModel:
		return "model"
	case CommandExplain:
		return "explain"
	case CommandHistory:
		return "history"
	default:
		return "unknown"
	}
}

func (k CommandKind) summary() string {
	switch k {
	case CommandHelp:
		return "show this help"
	case CommandStatus:
		return "show working directory, model and usage"
	case CommandMemory:
		return "show the project memory file"
	case CommandClear:
		return "clear the conversation history"
	case CommandInit:
		return "create " + MemoryFile + " for this project"
	case CommandCost:
		return "show token usage and estimated cost"
	case CommandModel:
		return "show or switch the model"
	case CommandExplain:
		return "explain a shell command or pipeline"
	case CommandHistory:
		return "show recent conversation"
	default:
		return ""
	}
}

// ParseCommand maps a reserved command name, without the leading slash, to its kind.
func ParseCommand(name string) CommandKind {
	switch strings.ToLower(name) {
	case "help":
		return CommandHelp
	case "status":
		return CommandStatus
	case "memory":
		return CommandMemory
	case "clear":
		return CommandClear
	case "init":
		return CommandInit
	case "cost":
		return CommandCost
	case "model":
		return CommandModel
	case "explain":
		return CommandExplain
	case "history":
		return CommandHistory
	default:
		return CommandUnknown
	}
}

func (s *Simulator) runCommand(line string) Response {
	name, args, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	args = strings.TrimSpace(args)
	kind := ParseCommand(name)
	resp := Response{Class: ClassCommand, Command: kind}
	switch kind {
	case CommandHelp:
		resp.Output = s.helpText()
	case CommandStatus:
		resp.Output = s.statusText()
	case CommandMemory:
		resp.Output = s.memoryText()
	case CommandClear:
		s.sess.ClearHistory()
		resp.Output = "Conversation history cleared."
	case CommandInit:
		resp.Output = s.initMemory()
	case CommandCost:
		resp.Output = s.costText()
	case CommandModel:
		resp.Output = s.switchModel(args)
	case CommandExplain:
		resp.Output = explainPipeline(args)
	case CommandHistory:
		resp.Output = s.historyText()
	default:
		resp.Unknown = true
		resp.Output = unknownCommandText(name)
	}
	return resp
}

func unknownCommandText(name string) string {
	msg := fmt.Sprintf("Unknown command: /%s.", name)
	if suggestion := suggestCommand(name); suggestion != "" {
		return msg + " Did you mean /" + suggestion + "?"
	}
	return msg + " Type /help to list commands."
}

func suggestCommand(name string) string {
	name = strings.ToLower(name)
	if name == "" {
		return ""
	}
	best := ""
	bestDist := 3
	for _, k := range knownCommands {
		d := levenshtein.ComputeDistance(name, k.String())
		if d < bestDist {
			best = k.String()
			bestDist = d
		}
	}
	return best
}

func (s *Simulator) helpText() string {
	var b strings.Builder
	b.WriteString("Commands\n")
	for _, k := range knownCommands {
		b.WriteString(fmt.Sprintf("  /%-8s %s\n", k.String(), k.summary()))
	}
	b.WriteString("\nShell verbs\n")
	b.WriteString("  " + strings.Join(shellVerbs, ", ") + "\n")
	b.WriteString("\nAnything else is treated as a request to the assistant.")
	return b.String()
}

func (s *Simulator) statusText() string {
	return strings.Join([]string{
		"Working directory: " + s.sess.WorkingDirectory,
		fmt.Sprintf("Files: %d", s.sess.FileCount()),
		"Model: " + s.sess.Model,
		"Tokens used: " + humanize.Comma(int64(s.sess.TokenCount)),
		"Estimated cost: " + formatCost(s.sess.CostEstimate),
	}, "\n")
}

func (s *Simulator) memoryPath() string {
	return path.Join(s.sess.WorkingDirectory, MemoryFile)
}

func (s *Simulator) memoryText() string {
	p := s.memoryPath()
	content, ok := s.sess.Files[p]
	if !ok || content == session.Directory {
		return fmt.Sprintf("No %s found in %s. Run /init to create one.", MemoryFile, s.sess.WorkingDirectory)
	}
	return content
}

func (s *Simulator) initMemory() string {
	p := s.memoryPath()
	if s.sess.Exists(p) {
		return fmt.Sprintf("%s already exists in %s. Use /memory to view it.", MemoryFile, s.sess.WorkingDirectory)
	}
	var b strings.Builder
	b.WriteString("# Project memory\n\n")
	b.WriteString("Working directory: " + s.sess.WorkingDirectory + "\n\n")
	b.WriteString("## Files\n")
	files := s.sess.ProjectFiles(s.sess.WorkingDirectory)
	if len(files) == 0 {
		b.WriteString("- (none yet)\n")
	}
	for _, f := range files {
		b.WriteString("- " + strings.TrimPrefix(f, strings.TrimSuffix(s.sess.WorkingDirectory, "/")+"/") + "\n")
	}
	b.WriteString("\n## Conventions\n- Run the test suite before committing.\n")
	s.sess.WriteFile(p, b.String())
	return fmt.Sprintf("Created %s in %s with %d project files listed.", MemoryFile, s.sess.WorkingDirectory, len(files))
}

func (s *Simulator) costText() string {
	return strings.Join([]string{
		"Tokens used: " + humanize.Comma(int64(s.sess.TokenCount)),
		"Estimated cost: " + formatCost(s.sess.CostEstimate),
		fmt.Sprintf("Rates: $%.2f per million input tokens, $%.2f per million output tokens",
			s.rates.InputPerToken*1_000_000, s.rates.OutputPerToken*1_000_000),
		"Token counts are estimated from text length.",
	}, "\n")
}

func formatCost(usd float64) string {
	return fmt.Sprintf("$%.4f", usd)
}

func (s *Simulator) switchModel(name string) string {
	available := strings.Join(Models, ", ")
	if name == "" {
		return fmt.Sprintf("Current model: %s\nAvailable: %s", s.sess.Model, available)
	}
	for _, m := range Models {
		if strings.EqualFold(m, name) {
			s.sess.Model = m
			return "Switched model to " + m + "."
		}
	}
	return fmt.Sprintf("Unknown model: %s. Available: %s", name, available)
}

func (s *Simulator) historyText() string {
	h := s.sess.History
	if len(h) == 0 {
		return "No conversation history yet."
	}
	if len(h) > historyWindow {
		h = h[len(h)-historyWindow:]
	}
	lines := make([]string, 0, len(h))
	for _, e := range h {
		text := e.Text
		if first, _, cut := strings.Cut(text, "\n"); cut {
			text = first + " ..."
		}
		lines = append(lines, e.Role+": "+text)
	}
	return strings.Join(lines, "\n")
}
