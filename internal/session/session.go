package session

import (
	"path"
	"sort"
	"strings"
	"time"
)

// Directory is the file map value that marks a path as a directory.
const Directory = "directory"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Session struct {
	WorkingDirectory string            `json:"working_directory"`
	Files            map[string]string `json:"files"`
	History          []Entry           `json:"history"`
	TokenCount       int               `json:"token_count"`
	CostEstimate     float64           `json:"cost_estimate"`
	Model            string            `json:"model"`
	Git              GitState          `json:"git"`
	Packages         []string          `json:"packages,omitempty"`
}

type Entry struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type GitState struct {
	Initialized bool     `json:"initialized"`
	Branch      string   `json:"branch,omitempty"`
	Staged      []string `json:"staged,omitempty"`
	Commits     []Commit `json:"commits,omitempty"`
}

type Commit struct {
	Hash    string   `json:"hash"`
	Message string   `json:"message"`
	Files   []string `json:"files"`
}

// New returns a session rooted at cwd. Parent directories of every seeded path are
// created so the map never holds orphans.
func New(cwd string, files map[string]string) *Session {
	s := &Session{
		WorkingDirectory: "/",
		Files:            map[string]string{"/": Directory},
	}
	if cwd != "" {
		s.Mkdir(cwd, true)
		s.WorkingDirectory = path.Clean(cwd)
	}
	for p, content := range files {
		abs := s.Resolve(p)
		if content == Directory {
			s.Mkdir(abs, true)
			continue
		}
		s.Mkdir(path.Dir(abs), true)
		s.Files[abs] = content
	}
	return s
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Files = make(map[string]string, len(s.Files))
	for k, v := range s.Files {
		out.Files[k] = v
	}
	out.History = append([]Entry(nil), s.History...)
	out.Packages = append([]string(nil), s.Packages...)
	out.Git.Staged = append([]string(nil), s.Git.Staged...)
	out.Git.Commits = nil
	for _, c := range s.Git.Commits {
		c.Files = append([]string(nil), c.Files...)
		out.Git.Commits = append(out.Git.Commits, c)
	}
	return &out
}

func (s *Session) Append(role, text string, ts time.Time) {
	s.History = append(s.History, Entry{Role: role, Text: text, Timestamp: ts})
}

func (s *Session) ClearHistory() {
	s.History = nil
}

// Resolve turns p into a clean absolute path relative to the working directory.
func (s *Session) Resolve(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || p == "." {
		return s.WorkingDirectory
	}
	if p == "~" || strings.HasPrefix(p, "~/") {
		p = "/home/learner" + strings.TrimPrefix(p, "~")
	}
	if !path.IsAbs(p) {
		p = path.Join(s.WorkingDirectory, p)
	}
	return path.Clean(p)
}

func (s *Session) Exists(abs string) bool {
	_, ok := s.Files[abs]
	return ok
}

func (s *Session) IsDir(abs string) bool {
	return s.Files[abs] == Directory
}

// Mkdir creates abs and, when parents is set, every missing ancestor. It reports
// whether anything was created; an existing directory is left untouched.
func (s *Session) Mkdir(abs string, parents bool) bool {
	abs = path.Clean(abs)
	if s.Exists(abs) {
		return false
	}
	parent := path.Dir(abs)
	if !s.Exists(parent) {
		if !parents {
			return false
		}
		s.Mkdir(parent, true)
	}
	if !s.IsDir(parent) {
		return false
	}
	s.Files[abs] = Directory
	return true
}

// WriteFile stores content at abs. The parent must already be a directory.
func (s *Session) WriteFile(abs, content string) bool {
	if s.IsDir(abs) || !s.IsDir(path.Dir(abs)) {
		return false
	}
	s.Files[abs] = content
	return true
}

// Remove deletes abs and, for directories, everything beneath it.
func (s *Session) Remove(abs string) {
	prefix := strings.TrimSuffix(abs, "/") + "/"
	for p := range s.Files {
		if p == abs || strings.HasPrefix(p, prefix) {
			delete(s.Files, p)
		}
	}
}

// Children lists the direct entries of dir, sorted by name.
func (s *Session) Children(dir string) []string {
	prefix := strings.TrimSuffix(dir, "/") + "/"
	out := []string{}
	for p := range s.Files {
		if p == dir || !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := strings.TrimPrefix(p, prefix)
		if rest == "" || strings.Contains(rest, "/") {
			continue
		}
		out = append(out, rest)
	}
	sort.Strings(out)
	return out
}

// FileCount counts regular files, not directories.
func (s *Session) FileCount() int {
	n := 0
	for _, v := range s.Files {
		if v != Directory {
			n++
		}
	}
	return n
}

// ProjectFiles lists the regular files below dir, sorted.
func (s *Session) ProjectFiles(dir string) []string {
	prefix := strings.TrimSuffix(dir, "/") + "/"
	out := []string{}
	for p, v := range s.Files {
		if v == Directory || !strings.HasPrefix(p, prefix) {
			continue
		}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
