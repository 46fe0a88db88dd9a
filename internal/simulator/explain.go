package simulator

import (
	"fmt"
	"strings"
)

func explainPipeline(command string) string {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return "Usage: /explain <command>. Example: /explain cat log.txt | sort | uniq -c"
	}

	stages := splitPipelineStages(trimmed)
	if len(stages) == 0 {
		stages = []string{trimmed}
	}

	var b strings.Builder
	b.WriteString("Command\n")
	b.WriteString(trimmed)
	b.WriteString("\n\nWhat this does\n")
	for i, stage := range stages {
		desc := describeStage(stageCommandName(stage))
		if desc == "" {
			desc = "Runs this stage in the shell."
		}
		b.WriteString(fmt.Sprintf("%d. `%s` - %s\n", i+1, stage, desc))
	}

	var tips []string
	if hint := pipelineOrderingHint(stages); hint != "" {
		tips = append(tips, hint)
	}
	if redir := redirectionHint(trimmed); redir != "" {
		tips = append(tips, redir)
	}
	if len(stages) > 1 && stageCommandName(stages[0]) == "cat" {
		tips = append(tips, "`cat file | cmd` can usually be written as `cmd file`.")
	}
	if len(tips) > 0 {
		b.WriteString("\nTips\n")
		for _, tip := range tips {
			b.WriteString("- " + tip + "\n")
		}
	}
	return strings.TrimSpace(b.String())
}

// splitPipelineStages splits on unquoted, unescaped pipes.
func splitPipelineStages(command string) []string {
	var out []string
	var buf strings.Builder
	var quote byte
	escaped := false
	flush := func() {
		if stage := strings.TrimSpace(buf.String()); stage != "" {
			out = append(out, stage)
		}
		buf.Reset()
	}
	for i := 0; i < len(command); i++ {
		ch := command[i]
		switch {
		case escaped:
			escaped = false
		case ch == '\\':
			escaped = true
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
		case ch == '|':
			if i+1 < len(command) && command[i+1] == '|' {
				buf.WriteString("||")
				i++
				continue
			}
			flush()
			continue
		}
		buf.WriteByte(ch)
	}
	flush()
	return out
}

// stageCommandName skips leading VAR=value assignments and sudo/command/time wrappers.
func stageCommandName(stage string) string {
	fields := strings.Fields(stage)
	i := 0
	for i < len(fields) {
		k, _, ok := strings.Cut(fields[i], "=")
		if !ok || k == "" || strings.HasPrefix(fields[i], "-") || strings.Contains(k, "/") {
			break
		}
		i++
	}
	if i < len(fields) {
		switch fields[i] {
		case "sudo", "command", "time":
			i++
		}
	}
	if i >= len(fields) {
		return ""
	}
	return fields[i]
}

func describeStage(name string) string {
	switch name {
	case "sort":
		return "Sorts lines; use `-n` for numeric sort and `-r` for descending."
	case "uniq":
		return "`uniq -c` counts adjacent duplicates, so input should usually be sorted first."
	case "awk":
		return "Processes fields (`$1`, `$2`, ...) line by line."
	case "grep":
		return "Filters lines that match a pattern."
	case "find":
		return "Walks directories and emits matching paths."
	case "xargs":
		return "Builds command invocations from stdin items."
	case "tr":
		return "Translates or squeezes characters."
	case "sed":
		return "Applies stream text edits with pattern rules."
	case "cut":
		return "Extracts selected columns or delimiters."
	case "head":
		return "Keeps only the first N lines."
	case "tail":
		return "Keeps only the last N lines."
	case "wc":
		return "Counts lines, words, or bytes."
	case "cat":
		return "Prints file contents; often optional in pipelines."
	case "ls":
		return "Lists directory entries."
	case "cd":
		return "Changes the working directory."
	case "mkdir":
		return "Creates directories; `-p` also creates missing parents."
	case "touch":
		return "Creates an empty file if it does not exist."
	case "echo":
		return "Prints its arguments."
	case "rm":
		return "Removes files; `-r` removes directories recursively."
	case "git":
		return "Runs a version-control subcommand."
	case "npm":
		return "Runs a Node.js package-manager task."
	case "pip":
		return "Installs or lists Python packages."
	default:
		return ""
	}
}

func pipelineOrderingHint(stages []string) string {
	seenSort := false
	for _, stage := range stages {
		switch stageCommandName(stage) {
		case "sort":
			seenSort = true
		case "uniq":
			if strings.Contains(stage, "-c") && !seenSort {
				return "Place `sort` before `uniq -c` so equal lines are grouped before counting."
			}
		}
	}
	return ""
}

func redirectionHint(command string) string {
	if strings.Contains(command, ">>") {
		return "Using `>>` appends output; use `>` if you need to overwrite the file each run."
	}
	if strings.Contains(command, ">") {
		return "Output is redirected to a file; check it afterwards with `cat`."
	}
	return ""
}
