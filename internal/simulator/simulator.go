package simulator

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"

	"assistdojo/internal/session"
)

const (
	DefaultCwd           = "/home/learner/project"
	DefaultModel         = "sim-medium"
	DefaultCharsPerToken = 4
)

// Rand is the random source used to pick natural-language templates.
type Rand interface {
	IntN(n int) int
}

type Rates struct {
	InputPerToken  float64
	OutputPerToken float64
	CharsPerToken  int
}

func DefaultRates() Rates {
	return Rates{
		InputPerToken:  3.0 / 1_000_000,
		OutputPerToken: 15.0 / 1_000_000,
		CharsPerToken:  DefaultCharsPerToken,
	}
}

type Options struct {
	Session       *session.Session
	Rand          Rand
	Seed          uint64
	Clock         func() time.Time
	Rates         Rates
	ResponseDelay time.Duration
}

type Class int

const (
	ClassCommand Class = iota
	ClassShell
	ClassLanguage
)

func (c Class) String() string {
	switch c {
	case ClassCommand:
		return "command"
	case ClassShell:
		return "shell"
	case ClassLanguage:
		return "language"
	default:
		return "unknown"
	}
}

type Response struct {
	Output  string
	Class   Class
	Command CommandKind
	// Unknown is set for reserved commands with no handler. Such calls leave the
	// session untouched.
	Unknown bool
	// Bucket names the natural-language bucket that produced the output.
	Bucket string
}

type Simulator struct {
	sess  *session.Session
	rng   Rand
	clock func() time.Time
	rates Rates
	delay time.Duration
}

// DefaultProject is the file map a fresh simulator starts with.
func DefaultProject() map[string]string {
	return map[string]string{
		"README.md":        "# demo-app\n\nA small Node.js service used for practice.\n",
		"package.json":     "{\n  \"name\": \"demo-app\",\n  \"version\": \"1.0.0\",\n  \"scripts\": {\n    \"start\": \"node src/index.js\",\n    \"test\": \"jest\"\n  }\n}\n",
		"src/index.js":     "const { add } = require('./math');\n\nconsole.log(add(2, 3));\n",
		"src/math.js":      "function add(a, b) {\n  return a + b;\n}\n\nmodule.exports = { add };\n",
		"src/math.test.js": "const { add } = require('./math');\n\ntest('adds numbers', () => {\n  expect(add(2, 3)).toBe(5);\n});\n",
	}
}

func New(opts Options) *Simulator {
	sess := opts.Session
	if sess == nil {
		sess = session.New(DefaultCwd, DefaultProject())
	}
	if sess.Model == "" {
		sess.Model = DefaultModel
	}
	rng := opts.Rand
	if rng == nil {
		seed := opts.Seed
		if seed == 0 {
			seed = uint64(time.Now().UnixNano())
		}
		rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	rates := opts.Rates
	if rates == (Rates{}) {
		rates = DefaultRates()
	}
	if rates.CharsPerToken <= 0 {
		rates.CharsPerToken = DefaultCharsPerToken
	}
	return &Simulator{
		sess:  sess,
		rng:   rng,
		clock: clock,
		rates: rates,
		delay: opts.ResponseDelay,
	}
}

// Session returns the live session. Callers must not mutate it.
func (s *Simulator) Session() *session.Session {
	return s.sess
}

// Restore swaps in a previously saved session.
func (s *Simulator) Restore(sess *session.Session) {
	if sess == nil {
		return
	}
	if sess.Files == nil {
		sess.Files = map[string]string{"/": session.Directory}
	}
	if sess.WorkingDirectory == "" {
		sess.WorkingDirectory = "/"
	}
	if sess.Model == "" {
		sess.Model = DefaultModel
	}
	s.sess = sess
}

// Execute runs one line of input and returns the text reply.
func (s *Simulator) Execute(input string) string {
	return s.Process(input).Output
}

func (s *Simulator) Process(input string) Response {
	trimmed := strings.TrimSpace(input)
	var resp Response
	if strings.HasPrefix(trimmed, "/") {
		resp = s.runCommand(trimmed)
		if resp.Unknown {
			return resp
		}
	} else if out, ok := s.runShell(trimmed); ok {
		resp = Response{Output: out, Class: ClassShell}
	} else {
		bucket, out := s.respond(trimmed)
		resp = Response{Output: out, Class: ClassLanguage, Bucket: bucket}
	}
	s.account(trimmed, resp)
	return resp
}

func (s *Simulator) account(input string, resp Response) {
	inTok := s.EstimateTokens(input)
	outTok := s.EstimateTokens(resp.Output)
	s.sess.TokenCount += inTok + outTok
	s.sess.CostEstimate += float64(inTok)*s.rates.InputPerToken + float64(outTok)*s.rates.OutputPerToken
	if resp.Class == ClassCommand && resp.Command == CommandClear {
		return
	}
	now := s.clock()
	s.sess.Append(session.RoleUser, input, now)
	s.sess.Append(session.RoleAssistant, resp.Output, now)
}

// EstimateTokens is a length heuristic, not a tokenizer.
func (s *Simulator) EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	per := s.rates.CharsPerToken
	return (len(text) + per - 1) / per
}

// Delay waits for the configured response delay or until ctx is done.
func (s *Simulator) Delay(ctx context.Context) error {
	if s.delay <= 0 {
		return nil
	}
	t := time.NewTimer(s.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
