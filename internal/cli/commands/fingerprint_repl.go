package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

const (
	replPrompt     = "sqlshape> "
	replContPrompt = "     ...> "
)

// replSession holds the state of an interactive fingerprint session.
type replSession struct {
	cc      *CommandContext
	out     io.Writer
	errOut  io.Writer
	explain bool
	buf     strings.Builder
}

func runFingerprintREPL(cmd *cobra.Command, cc *CommandContext, opts *FingerprintOptions) error {
	historyFile := ""
	if dir := filepath.Dir(cc.Cfg.CatalogPath); dir != "" {
		if err := os.MkdirAll(dir, 0750); err == nil {
			historyFile = filepath.Join(dir, "fingerprint_history")
		}
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          replPrompt,
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	s := &replSession{
		cc:      cc,
		out:     cmd.OutOrStdout(),
		errOut:  cmd.ErrOrStderr(),
		explain: opts.Explain,
	}

	_, _ = fmt.Fprintln(s.out, "sqlshape fingerprint REPL")
	_, _ = fmt.Fprintln(s.out, "Type .help for commands, .quit to exit")
	_, _ = fmt.Fprintln(s.out)

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			s.buf.Reset()
			rl.SetPrompt(replPrompt)
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}

		quit, pending := s.handle(line)
		if quit {
			break
		}
		if pending {
			rl.SetPrompt(replContPrompt)
		} else {
			rl.SetPrompt(replPrompt)
		}
	}
	return nil
}

// handle processes one input line. It reports whether the session should
// end and whether a statement is still being accumulated. Lines ending with
// a backslash continue onto the next line.
func (s *replSession) handle(line string) (quit, pending bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, s.buf.Len() > 0
	}

	if s.buf.Len() == 0 && strings.HasPrefix(line, ".") {
		return s.dotCommand(line), false
	}

	if cont, ok := strings.CutSuffix(line, `\`); ok {
		s.buf.WriteString(strings.TrimSpace(cont))
		s.buf.WriteString(" ")
		return false, true
	}

	s.buf.WriteString(line)
	sql := strings.TrimSpace(s.buf.String())
	s.buf.Reset()
	s.fingerprint(sql, s.explain)
	return false, false
}

func (s *replSession) dotCommand(line string) bool {
	command, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(command) {
	case ".quit", ".exit":
		return true

	case ".help":
		printREPLHelp(s.out)

	case ".explain":
		if rest == "" {
			s.explain = !s.explain
			state := "off"
			if s.explain {
				state = "on"
			}
			_, _ = fmt.Fprintf(s.out, "explain mode %s\n", state)
			return false
		}
		s.fingerprint(rest, true)

	default:
		_, _ = fmt.Fprintf(s.errOut, "Unknown command: %s (type .help for commands)\n", command)
	}
	return false
}

func (s *replSession) fingerprint(sql string, explain bool) {
	res := fingerprintOne(s.cc.Fingerprinter, sql, explain)
	if explain {
		renderExplain(s.cc.Renderer, res)
		_, _ = fmt.Fprintln(s.out)
		return
	}
	_, _ = fmt.Fprintln(s.out, s.cc.Renderer.Styles().Fingerprint.Render(string(res.Fingerprint)))
}

func printREPLHelp(w io.Writer) {
	help := `Commands:
  .help            Show this help
  .explain         Toggle the feature breakdown
  .explain <SQL>   Explain one statement
  .quit, .exit     Exit the REPL

Enter a statement to print its fingerprint. End a line with \ to continue
the statement on the next line.`
	_, _ = fmt.Fprintln(w, help)
}
