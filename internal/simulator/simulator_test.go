package simulator

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assistdojo/internal/session"
)

type fixedRand struct{ n int }

func (f fixedRand) IntN(n int) int { return f.n % n }

func newTestSimulator(t *testing.T) *Simulator {
	t.Helper()
	return New(Options{
		Rand:  fixedRand{},
		Clock: func() time.Time { return time.Unix(1700000000, 0) },
	})
}

func TestUnknownCommandLeavesSessionUnchanged(t *testing.T) {
	sim := newTestSimulator(t)
	sim.Execute("ls")
	before := sim.Session().Clone()

	resp := sim.Process("/doesnotexist")

	assert.True(t, resp.Unknown)
	assert.Contains(t, resp.Output, "Unknown command: /doesnotexist")
	assert.Equal(t, before, sim.Session())
}

func TestUnknownCommandSuggestsClosestName(t *testing.T) {
	sim := newTestSimulator(t)
	out := sim.Execute("/stauts")
	assert.Contains(t, out, "Did you mean /status?")

	out = sim.Execute("/zzzzzzzz")
	assert.NotContains(t, out, "Did you mean")
	assert.Contains(t, out, "/help")
}

func TestClassification(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		class  Class
		bucket string
	}{
		{name: "reserved", input: "/help", class: ClassCommand},
		{name: "shell", input: "ls -a", class: ClassShell},
		{name: "debug wins over creation", input: "create a fix for this crash", class: ClassLanguage, bucket: BucketDebug},
		{name: "test", input: "write unit tests for math", class: ClassLanguage, bucket: BucketTest},
		{name: "review", input: "please review my code", class: ClassLanguage, bucket: BucketReview},
		{name: "setup", input: "how do I set up the project", class: ClassLanguage, bucket: BucketSetup},
		{name: "creation", input: "create a React component", class: ClassLanguage, bucket: BucketCreation},
		{name: "general", input: "what is this project about", class: ClassLanguage, bucket: BucketGeneral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := newTestSimulator(t).Process(tt.input)
			assert.Equal(t, tt.class, resp.Class)
			assert.Equal(t, tt.bucket, resp.Bucket)
		})
	}
}

func TestTemplatesAreDeterministicWithFixedRand(t *testing.T) {
	a := New(Options{Rand: fixedRand{n: 1}})
	b := New(Options{Rand: fixedRand{n: 1}})
	c := New(Options{Rand: fixedRand{n: 0}})
	req := "please debug the failing login"
	outA, outB, outC := a.Execute(req), b.Execute(req), c.Execute(req)
	assert.Equal(t, outA, outB)
	assert.NotEqual(t, outA, outC)
	assert.Contains(t, outA, req)
	assert.Contains(t, outA, DefaultCwd)
	assert.GreaterOrEqual(t, strings.Count(outA, "\n\n"), 2)
}

func TestSeededSourceIsReproducible(t *testing.T) {
	a := New(Options{Seed: 42})
	b := New(Options{Seed: 42})
	for _, req := range []string{"create a server", "create a client", "create a cli", "debug it"} {
		require.Equal(t, a.Execute(req), b.Execute(req))
	}
}

func TestCountersAndHistory(t *testing.T) {
	sim := newTestSimulator(t)
	out := sim.Execute("pwd")
	require.Equal(t, DefaultCwd, out)

	sess := sim.Session()
	want := (len("pwd")+3)/4 + (len(out)+3)/4
	assert.Equal(t, want, sess.TokenCount)
	assert.InDelta(t, float64(1)*3e-6+float64((len(out)+3)/4)*15e-6, sess.CostEstimate, 1e-12)
	require.Len(t, sess.History, 2)
	assert.Equal(t, session.RoleUser, sess.History[0].Role)
	assert.Equal(t, session.RoleAssistant, sess.History[1].Role)
}

func TestClearKeepsFilesAndTokens(t *testing.T) {
	sim := newTestSimulator(t)
	sim.Execute("touch notes.txt")
	tokens := sim.Session().TokenCount

	out := sim.Execute("/clear")

	assert.Equal(t, "Conversation history cleared.", out)
	assert.Empty(t, sim.Session().History)
	assert.GreaterOrEqual(t, sim.Session().TokenCount, tokens)
	assert.True(t, sim.Session().Exists(DefaultCwd+"/notes.txt"))
}

func TestInitIsIdempotent(t *testing.T) {
	sim := newTestSimulator(t)
	out := sim.Execute("/init")
	require.Contains(t, out, "Created "+MemoryFile)
	files := sim.Session().Clone().Files

	out = sim.Execute("/init")
	assert.Contains(t, out, "already exists")
	assert.Equal(t, files, sim.Session().Files)

	memory := sim.Execute("/memory")
	assert.Contains(t, memory, "src/math.js")
}

func TestMemoryWithoutFile(t *testing.T) {
	sim := newTestSimulator(t)
	assert.Contains(t, sim.Execute("/memory"), "Run /init")
}

func TestStatusAndCost(t *testing.T) {
	sim := newTestSimulator(t)
	sim.Session().TokenCount = 12345
	status := sim.Execute("/status")
	assert.Contains(t, status, "Working directory: "+DefaultCwd)
	assert.Contains(t, status, "Files: 5")
	assert.Contains(t, status, "Model: "+DefaultModel)
	assert.Contains(t, status, "12,345")
	assert.Contains(t, sim.Execute("/cost"), "Tokens used:")
}

func TestModelSwitch(t *testing.T) {
	sim := newTestSimulator(t)
	assert.Contains(t, sim.Execute("/model"), "Current model: "+DefaultModel)
	assert.Equal(t, "Switched model to sim-large.", sim.Execute("/model sim-large"))
	assert.Equal(t, "sim-large", sim.Session().Model)
	assert.Contains(t, sim.Execute("/model gpt"), "Unknown model")
	assert.Equal(t, "sim-large", sim.Session().Model)
}

func TestHistoryCommand(t *testing.T) {
	sim := newTestSimulator(t)
	assert.Equal(t, "No conversation history yet.", sim.Execute("/history"))
	sim.Execute("pwd")
	out := sim.Execute("/history")
	assert.Contains(t, out, "user: pwd")
	assert.Contains(t, out, "assistant: "+DefaultCwd)
}

func TestExplain(t *testing.T) {
	sim := newTestSimulator(t)
	out := sim.Execute("/explain cat access.log | uniq -c | sort -nr > top.txt")
	assert.Contains(t, out, "1. `cat access.log`")
	assert.Contains(t, out, "Place `sort` before `uniq -c`")
	assert.Contains(t, out, "redirected")
	assert.Contains(t, sim.Execute("/explain"), "Usage: /explain")
}

func TestSplitPipelineStagesRespectsQuotes(t *testing.T) {
	got := splitPipelineStages(`grep "a|b" file | wc -l || true`)
	assert.Equal(t, []string{`grep "a|b" file`, "wc -l || true"}, got)
}

func TestShellFileOperations(t *testing.T) {
	sim := newTestSimulator(t)

	assert.Equal(t, "mkdir: created directory 'app'", sim.Execute("mkdir app"))
	files := sim.Session().Clone().Files
	assert.Contains(t, sim.Execute("mkdir app"), "File exists")
	assert.Equal(t, files, sim.Session().Files)
	assert.Equal(t, "", sim.Execute("mkdir -p app"))

	assert.Contains(t, sim.Execute("mkdir a/b/c"), "No such file or directory")
	assert.Equal(t, "mkdir: created directory 'a/b/c'", sim.Execute("mkdir -p a/b/c"))

	sim.Execute("touch app/main.js")
	files = sim.Session().Clone().Files
	sim.Execute("touch app/main.js")
	assert.Equal(t, files, sim.Session().Files)

	assert.Equal(t, "", sim.Execute("cd app"))
	assert.Equal(t, DefaultCwd+"/app", sim.Execute("pwd"))
	assert.Equal(t, "main.js", sim.Execute("ls"))
	sim.Execute("cd ..")

	assert.Equal(t, "cat: missing.txt: No such file or directory", sim.Execute("cat missing.txt"))
	assert.Equal(t, "cat: src: Is a directory", sim.Execute("cat src"))
	assert.Equal(t, "cd: README.md: Not a directory", sim.Execute("cd README.md"))
	assert.Equal(t, "cd: nowhere: No such file or directory", sim.Execute("cd nowhere"))
	assert.Contains(t, sim.Execute("ls nowhere"), "No such file or directory")
}

func TestEchoRedirection(t *testing.T) {
	sim := newTestSimulator(t)
	assert.Equal(t, "hello world", sim.Execute(`echo "hello world"`))
	assert.Equal(t, "", sim.Execute("echo first > notes.txt"))
	sim.Execute("echo second >> notes.txt")
	assert.Equal(t, "first\nsecond", sim.Execute("cat notes.txt"))
	sim.Execute("echo reset > notes.txt")
	assert.Equal(t, "reset", sim.Execute("cat notes.txt"))
	assert.Contains(t, sim.Execute("echo x > missing/dir.txt"), "No such file or directory")
}

func TestRemove(t *testing.T) {
	sim := newTestSimulator(t)
	assert.Contains(t, sim.Execute("rm src"), "Is a directory")
	assert.Equal(t, "removed 'src'", sim.Execute("rm -r src"))
	assert.False(t, sim.Session().Exists(DefaultCwd+"/src/math.js"))
	assert.Contains(t, sim.Execute("rm src"), "No such file or directory")
	assert.Equal(t, "", sim.Execute("rm -f src"))
	assert.Equal(t, "rm: refusing to remove '/'", sim.Execute("rm -rf /"))
}

func TestGitFlow(t *testing.T) {
	sim := newTestSimulator(t)
	assert.Contains(t, sim.Execute("git status"), "not a git repository")
	assert.Contains(t, sim.Execute("git init"), "Initialized empty Git repository")
	assert.Contains(t, sim.Execute("git init"), "Reinitialized")
	assert.Contains(t, sim.Execute("git status"), "Untracked files:")
	assert.Contains(t, sim.Execute("git log"), "does not have any commits yet")

	sim.Execute("git add .")
	status := sim.Execute("git status")
	assert.Contains(t, status, "new file:   README.md")

	out := sim.Execute(`git commit -m "initial commit"`)
	assert.Contains(t, out, "initial commit")
	assert.Contains(t, out, "5 files changed")
	assert.Contains(t, sim.Execute("git status"), "nothing to commit, working tree clean")
	assert.Contains(t, sim.Execute("git log"), "initial commit")
	assert.Equal(t, "* main", sim.Execute("git branch"))
	assert.Contains(t, sim.Execute("git add nope"), "did not match any files")
}

func TestPackageManagers(t *testing.T) {
	sim := newTestSimulator(t)
	assert.Contains(t, sim.Execute("npm test"), "Tests: 1 passed")
	assert.Contains(t, sim.Execute("npm install express"), "added 1 packages")
	assert.True(t, sim.Session().IsDir(DefaultCwd+"/node_modules/express"))
	assert.Contains(t, sim.Execute("npm init"), "already exists")

	sim.Execute("mkdir /tmp")
	sim.Execute("cd /tmp")
	assert.Contains(t, sim.Execute("npm test"), "enoent")
	assert.Contains(t, sim.Execute("npm init"), "Wrote to /tmp/package.json")

	assert.Contains(t, sim.Execute("pip install requests"), "Successfully installed requests-1.0.0")
	assert.Contains(t, sim.Execute("pip install requests"), "Requirement already satisfied")
	assert.Contains(t, sim.Execute("pip list"), "requests")
}

func TestDelayHonoursContext(t *testing.T) {
	sim := New(Options{Rand: fixedRand{}, ResponseDelay: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sim.Delay(ctx), context.Canceled)
	assert.NoError(t, newTestSimulator(t).Delay(context.Background()))
}

func TestRestoreReplacesSession(t *testing.T) {
	sim := newTestSimulator(t)
	saved := session.New("/work", map[string]string{"x.txt": "x"})
	sim.Restore(saved)
	assert.Equal(t, "/work", sim.Execute("pwd"))
	assert.Equal(t, "x", sim.Execute("cat x.txt"))
	assert.Equal(t, DefaultModel, sim.Session().Model)
}
