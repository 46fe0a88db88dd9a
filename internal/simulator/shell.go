package simulator

import (
	"fmt"
	"hash/fnv"
	"path"
	"sort"
	"strings"

	shlex "github.com/anmitsu/go-shlex"

	"assistdojo/internal/session"
)

var shellVerbs = []string{"ls", "cd", "pwd", "mkdir", "touch", "cat", "echo", "rm", "git", "npm", "pip"}

const homeDir = "/home/learner"

func isShellVerb(word string) bool {
	for _, v := range shellVerbs {
		if v == word {
			return true
		}
	}
	return false
}

// runShell handles the fixed shell-verb grammar. ok is false when the line is not a
// shell command and should be treated as natural language.
func (s *Simulator) runShell(line string) (string, bool) {
	if line == "" {
		return "", false
	}
	args, err := shlex.Split(line, true)
	if err != nil || len(args) == 0 || !isShellVerb(args[0]) {
		return "", false
	}
	verb, rest := args[0], args[1:]
	switch verb {
	case "ls":
		return s.ls(rest), true
	case "cd":
		return s.cd(rest), true
	case "pwd":
		return s.sess.WorkingDirectory, true
	case "mkdir":
		return s.mkdir(rest), true
	case "touch":
		return s.touch(rest), true
	case "cat":
		return s.cat(rest), true
	case "echo":
		return s.echo(rest), true
	case "rm":
		return s.rm(rest), true
	case "git":
		return s.git(rest), true
	case "npm":
		return s.npm(rest), true
	case "pip":
		return s.pip(rest), true
	}
	return "", false
}

func splitFlags(args []string) (flags map[rune]bool, operands []string) {
	flags = map[rune]bool{}
	for _, a := range args {
		if strings.HasPrefix(a, "-") && len(a) > 1 && !strings.HasPrefix(a, "--") {
			for _, r := range a[1:] {
				flags[r] = true
			}
			continue
		}
		operands = append(operands, a)
	}
	return flags, operands
}

func (s *Simulator) ls(args []string) string {
	flags, operands := splitFlags(args)
	target := ""
	if len(operands) > 0 {
		target = operands[0]
	}
	abs := s.sess.Resolve(target)
	if !s.sess.Exists(abs) {
		return fmt.Sprintf("ls: cannot access '%s': No such file or directory", target)
	}
	if !s.sess.IsDir(abs) {
		return target
	}
	var names []string
	if flags['a'] {
		names = append(names, ".", "..")
	}
	for _, name := range s.sess.Children(abs) {
		if strings.HasPrefix(name, ".") && !flags['a'] {
			continue
		}
		if s.sess.IsDir(path.Join(abs, name)) {
			name += "/"
		}
		names = append(names, name)
	}
	if flags['l'] {
		return strings.Join(names, "\n")
	}
	return strings.Join(names, "  ")
}

func (s *Simulator) cd(args []string) string {
	target := homeDir
	if len(args) > 0 {
		target = args[0]
	}
	abs := s.sess.Resolve(target)
	if !s.sess.Exists(abs) {
		return fmt.Sprintf("cd: %s: No such file or directory", target)
	}
	if !s.sess.IsDir(abs) {
		return fmt.Sprintf("cd: %s: Not a directory", target)
	}
	s.sess.WorkingDirectory = abs
	return ""
}

func (s *Simulator) mkdir(args []string) string {
	flags, operands := splitFlags(args)
	if len(operands) == 0 {
		return "mkdir: missing operand"
	}
	var out []string
	for _, name := range operands {
		abs := s.sess.Resolve(name)
		switch {
		case s.sess.Exists(abs):
			if !flags['p'] || !s.sess.IsDir(abs) {
				out = append(out, fmt.Sprintf("mkdir: cannot create directory '%s': File exists", name))
			}
		case s.sess.Mkdir(abs, flags['p']):
			out = append(out, fmt.Sprintf("mkdir: created directory '%s'", name))
		default:
			out = append(out, fmt.Sprintf("mkdir: cannot create directory '%s': No such file or directory", name))
		}
	}
	return strings.Join(out, "\n")
}

func (s *Simulator) touch(args []string) string {
	_, operands := splitFlags(args)
	if len(operands) == 0 {
		return "touch: missing file operand"
	}
	var out []string
	for _, name := range operands {
		abs := s.sess.Resolve(name)
		if s.sess.Exists(abs) {
			continue
		}
		if !s.sess.WriteFile(abs, "") {
			out = append(out, fmt.Sprintf("touch: cannot touch '%s': No such file or directory", name))
			continue
		}
		out = append(out, fmt.Sprintf("created file '%s'", name))
	}
	return strings.Join(out, "\n")
}

func (s *Simulator) cat(args []string) string {
	_, operands := splitFlags(args)
	if len(operands) == 0 {
		return "cat: missing file operand"
	}
	var out []string
	for _, name := range operands {
		abs := s.sess.Resolve(name)
		switch {
		case !s.sess.Exists(abs):
			out = append(out, fmt.Sprintf("cat: %s: No such file or directory", name))
		case s.sess.IsDir(abs):
			out = append(out, fmt.Sprintf("cat: %s: Is a directory", name))
		default:
			out = append(out, strings.TrimSuffix(s.sess.Files[abs], "\n"))
		}
	}
	return strings.Join(out, "\n")
}

func (s *Simulator) echo(args []string) string {
	text := args
	redirect, target := "", ""
	for i, a := range args {
		switch {
		case a == ">" || a == ">>":
			redirect = a
			if i+1 < len(args) {
				target = args[i+1]
			}
		case strings.HasPrefix(a, ">>"):
			redirect, target = ">>", strings.TrimPrefix(a, ">>")
		case strings.HasPrefix(a, ">"):
			redirect, target = ">", strings.TrimPrefix(a, ">")
		default:
			continue
		}
		text = args[:i]
		break
	}
	line := strings.Join(text, " ")
	if redirect == "" {
		return line
	}
	if target == "" {
		return "echo: syntax error near unexpected token `newline'"
	}
	abs := s.sess.Resolve(target)
	if s.sess.IsDir(abs) {
		return fmt.Sprintf("echo: %s: Is a directory", target)
	}
	content := line + "\n"
	if redirect == ">>" {
		content = s.sess.Files[abs] + content
	}
	if !s.sess.WriteFile(abs, content) {
		return fmt.Sprintf("echo: %s: No such file or directory", target)
	}
	return ""
}

func (s *Simulator) rm(args []string) string {
	flags, operands := splitFlags(args)
	if len(operands) == 0 {
		return "rm: missing operand"
	}
	var out []string
	for _, name := range operands {
		abs := s.sess.Resolve(name)
		switch {
		case abs == "/":
			out = append(out, "rm: refusing to remove '/'")
		case !s.sess.Exists(abs):
			if !flags['f'] {
				out = append(out, fmt.Sprintf("rm: cannot remove '%s': No such file or directory", name))
			}
		case s.sess.IsDir(abs) && !flags['r'] && !flags['R']:
			out = append(out, fmt.Sprintf("rm: cannot remove '%s': Is a directory", name))
		default:
			s.sess.Remove(abs)
			if strings.HasPrefix(s.sess.WorkingDirectory+"/", abs+"/") {
				s.sess.WorkingDirectory = path.Dir(abs)
			}
			out = append(out, fmt.Sprintf("removed '%s'", name))
		}
	}
	return strings.Join(out, "\n")
}

const notARepo = "fatal: not a git repository (or any of the parent directories): .git"

func (s *Simulator) git(args []string) string {
	if len(args) == 0 {
		return "usage: git <command> [<args>]\n\nSupported: init, status, add, commit, log, branch"
	}
	sub, rest := args[0], args[1:]
	g := &s.sess.Git
	if sub != "init" && !g.Initialized {
		return notARepo
	}
	switch sub {
	case "init":
		dir := path.Join(s.sess.WorkingDirectory, ".git")
		if g.Initialized {
			return "Reinitialized existing Git repository in " + dir + "/"
		}
		g.Initialized = true
		g.Branch = "main"
		s.sess.Mkdir(dir, true)
		return "Initialized empty Git repository in " + dir + "/"
	case "status":
		return s.gitStatus()
	case "add":
		return s.gitAdd(rest)
	case "commit":
		return s.gitCommit(rest)
	case "log":
		if len(g.Commits) == 0 {
			return fmt.Sprintf("fatal: your current branch '%s' does not have any commits yet", g.Branch)
		}
		var lines []string
		for i := len(g.Commits) - 1; i >= 0; i-- {
			c := g.Commits[i]
			lines = append(lines, "commit "+c.Hash, "", "    "+c.Message, "")
		}
		return strings.TrimSpace(strings.Join(lines, "\n"))
	case "branch":
		return "* " + g.Branch
	default:
		return fmt.Sprintf("git: '%s' is not a git command. See 'git --help'.", sub)
	}
}

func (s *Simulator) untracked() []string {
	known := map[string]bool{}
	for _, f := range s.sess.Git.Staged {
		known[f] = true
	}
	for _, c := range s.sess.Git.Commits {
		for _, f := range c.Files {
			known[f] = true
		}
	}
	var out []string
	for _, f := range s.sess.ProjectFiles(s.sess.WorkingDirectory) {
		if strings.Contains(f, "/.git/") || strings.Contains(f, "/node_modules/") || known[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

func (s *Simulator) relative(abs string) string {
	return strings.TrimPrefix(abs, strings.TrimSuffix(s.sess.WorkingDirectory, "/")+"/")
}

func (s *Simulator) gitStatus() string {
	g := s.sess.Git
	lines := []string{"On branch " + g.Branch}
	if len(g.Staged) > 0 {
		lines = append(lines, "", "Changes to be committed:")
		for _, f := range g.Staged {
			lines = append(lines, "  new file:   "+s.relative(f))
		}
	}
	untracked := s.untracked()
	if len(untracked) > 0 {
		lines = append(lines, "", "Untracked files:")
		for _, f := range untracked {
			lines = append(lines, "  "+s.relative(f))
		}
	}
	if len(g.Staged) == 0 && len(untracked) == 0 {
		lines = append(lines, "nothing to commit, working tree clean")
	}
	return strings.Join(lines, "\n")
}

func (s *Simulator) gitAdd(args []string) string {
	if len(args) == 0 {
		return "Nothing specified, nothing added."
	}
	untracked := s.untracked()
	staged := map[string]bool{}
	for _, f := range s.sess.Git.Staged {
		staged[f] = true
	}
	var added []string
	for _, name := range args {
		abs := s.sess.Resolve(name)
		if !s.sess.Exists(abs) {
			return fmt.Sprintf("fatal: pathspec '%s' did not match any files", name)
		}
		for _, f := range untracked {
			if staged[f] {
				continue
			}
			if f == abs || strings.HasPrefix(f, strings.TrimSuffix(abs, "/")+"/") {
				staged[f] = true
				added = append(added, fmt.Sprintf("add '%s'", s.relative(f)))
			}
		}
	}
	out := make([]string, 0, len(staged))
	for f := range staged {
		out = append(out, f)
	}
	sort.Strings(out)
	s.sess.Git.Staged = out
	return strings.Join(added, "\n")
}

func (s *Simulator) gitCommit(args []string) string {
	msg := ""
	for i, a := range args {
		if a == "-m" {
			if i+1 >= len(args) {
				return "error: switch `m' requires a value"
			}
			msg = args[i+1]
		}
	}
	g := &s.sess.Git
	if len(g.Staged) == 0 {
		return "nothing to commit, working tree clean"
	}
	if msg == "" {
		return "Aborting commit due to empty commit message."
	}
	h := fnv.New32a()
	fmt.Fprintf(h, "%d:%s:%s", len(g.Commits), msg, strings.Join(g.Staged, ","))
	hash := fmt.Sprintf("%08x", h.Sum32())[:7]
	files := append([]string(nil), g.Staged...)
	g.Commits = append(g.Commits, session.Commit{Hash: hash, Message: msg, Files: files})
	g.Staged = nil
	noun := "files"
	if len(files) == 1 {
		noun = "file"
	}
	return fmt.Sprintf("[%s %s] %s\n %d %s changed", g.Branch, hash, msg, len(files), noun)
}

func (s *Simulator) npm(args []string) string {
	if len(args) == 0 {
		return "Usage: npm <command>\n\nSupported: init, install, test, run"
	}
	manifest := path.Join(s.sess.WorkingDirectory, "package.json")
	sub, rest := args[0], args[1:]
	if sub != "init" && !s.sess.Exists(manifest) {
		return "npm ERR! enoent Could not read package.json: no such file or directory, open '" + manifest + "'"
	}
	switch sub {
	case "init":
		if s.sess.Exists(manifest) {
			return "package.json already exists in " + s.sess.WorkingDirectory
		}
		name := path.Base(s.sess.WorkingDirectory)
		content := fmt.Sprintf("{\n  \"name\": %q,\n  \"version\": \"1.0.0\",\n  \"scripts\": {\n    \"test\": \"jest\"\n  }\n}\n", name)
		s.sess.WriteFile(manifest, content)
		return "Wrote to " + manifest + ":\n\n" + content
	case "install", "i":
		_, pkgs := splitFlags(rest)
		if len(pkgs) == 0 {
			return "up to date, audited 1 package in 1s\n\nfound 0 vulnerabilities"
		}
		modules := path.Join(s.sess.WorkingDirectory, "node_modules")
		s.sess.Mkdir(modules, true)
		for _, p := range pkgs {
			s.sess.Mkdir(path.Join(modules, p), true)
		}
		return fmt.Sprintf("added %d packages in 2s\n\nfound 0 vulnerabilities", len(pkgs))
	case "test", "t":
		tests := 0
		for _, f := range s.sess.ProjectFiles(s.sess.WorkingDirectory) {
			if strings.HasSuffix(f, ".test.js") {
				tests++
			}
		}
		if tests == 0 {
			return "> test\n> jest\n\nNo tests found, exiting with code 1"
		}
		return fmt.Sprintf("> test\n> jest\n\nPASS  %d test suites\nTests: %d passed, %d total", tests, tests, tests)
	case "run":
		if len(rest) == 0 {
			return "Scripts available via `npm run`:\n  start\n  test"
		}
		return fmt.Sprintf("> %s\n\nScript %q finished successfully.", rest[0], rest[0])
	default:
		return fmt.Sprintf("Unknown command: \"%s\"\n\nTo see a list of supported npm commands, run:\n  npm help", sub)
	}
}

func (s *Simulator) pip(args []string) string {
	if len(args) == 0 {
		return "Usage: pip <command> [options]\n\nSupported: install, list"
	}
	switch args[0] {
	case "install":
		_, pkgs := splitFlags(args[1:])
		if len(pkgs) == 0 {
			return "ERROR: You must give at least one requirement to install"
		}
		installed := map[string]bool{}
		for _, p := range s.sess.Packages {
			installed[p] = true
		}
		var lines, fresh []string
		for _, p := range pkgs {
			if installed[p] {
				lines = append(lines, "Requirement already satisfied: "+p)
				continue
			}
			installed[p] = true
			fresh = append(fresh, p+"-1.0.0")
			lines = append(lines, "Collecting "+p)
		}
		if len(fresh) > 0 {
			lines = append(lines, "Successfully installed "+strings.Join(fresh, " "))
		}
		all := make([]string, 0, len(installed))
		for p := range installed {
			all = append(all, p)
		}
		sort.Strings(all)
		s.sess.Packages = all
		return strings.Join(lines, "\n")
	case "list":
		lines := []string{"Package    Version", "---------- -------", "pip        24.0"}
		for _, p := range s.sess.Packages {
			lines = append(lines, fmt.Sprintf("%-10s 1.0.0", p))
		}
		return strings.Join(lines, "\n")
	default:
		return fmt.Sprintf("ERROR: unknown command \"%s\"", args[0])
	}
}
