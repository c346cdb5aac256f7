// Package editor spawns the user's external editor and pager and reads
// single-keystroke prompts, the interactive half of the editing cycle.
// Grounded on original_source/ldapvi/interactive.c's edit/edit_pos/view/choose.
package editor

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"

	"github.com/google/shlex"
	"golang.org/x/term"
)

// Edit opens path in $VISUAL, falling back to $EDITOR, then "vi", waits
// for it to exit, and reports a non-zero exit or spawn failure as an
// error. pos, if >= 0, is a byte offset translated to a 1-based line
// number and passed to the editor as a "+N" argument, mirroring
// edit_pos's line_number lookup.
func Edit(path string, pos int64) error {
	cmdLine := firstNonEmpty(os.Getenv("VISUAL"), os.Getenv("EDITOR"), "vi")
	args, err := shlex.Split(cmdLine)
	if err != nil || len(args) == 0 {
		return fmt.Errorf("editor: invalid command line %q", cmdLine)
	}
	if pos >= 0 {
		line, err := lineNumber(path, pos)
		if err != nil {
			return fmt.Errorf("editor: locating line for offset %d: %w", pos, err)
		}
		args = append(args, fmt.Sprintf("+%d", line))
	}
	args = append(args, path)
	return run(args)
}

// View opens path in $PAGER, falling back to "less".
func View(path string) error {
	cmdLine := firstNonEmpty(os.Getenv("PAGER"), "less")
	args, err := shlex.Split(cmdLine)
	if err != nil || len(args) == 0 {
		return fmt.Errorf("editor: invalid pager command line %q", cmdLine)
	}
	args = append(args, path)
	return run(args)
}

func run(args []string) error {
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("editor: %s exited with error: %w", args[0], err)
	}
	return nil
}

// lineNumber counts newlines in path up to byte offset pos, returning
// a 1-based line number - the Go equivalent of interactive.c's
// line_number, which walks the file byte by byte rather than seeking,
// since an editor's "+N" argument counts logical lines, not bytes.
func lineNumber(path string, pos int64) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	line := int64(1)
	var counted int64
	for counted < pos {
		b, err := r.ReadByte()
		if err != nil {
			break
		}
		counted++
		if b == '\n' {
			line++
		}
	}
	return line, nil
}

// Choose prompts with prompt, displays charbag as the set of accepted
// single-character answers, and reads one raw keystroke without
// waiting for Enter. An answer outside charbag repeats the prompt and
// prints help once. Equivalent to interactive.c's choose(), using
// golang.org/x/term for raw mode since Go has no portable termios
// wrapper in the standard library.
func Choose(prompt, charbag, help string) (byte, error) {
	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return 0, fmt.Errorf("editor: entering raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Fprintf(os.Stdout, "%s %s ", prompt, bracket(charbag))
		b, err := reader.ReadByte()
		if err != nil {
			return 0, fmt.Errorf("editor: reading keystroke: %w", err)
		}
		for i := 0; i < len(charbag); i++ {
			if charbag[i] == b {
				fmt.Fprint(os.Stdout, "\r\n")
				return b, nil
			}
		}
		fmt.Fprintf(os.Stdout, "\r\nPlease enter one of %s\r\n", bracket(charbag))
		if help != "" {
			fmt.Fprintf(os.Stdout, "  %s\r\n", help)
		}
	}
}

// UI is the small consumed-only interface the glue package drives the
// retry loop through, implemented by System for real use and by a test
// double in glue's own tests - the same substitution original_source's
// test_interactive.c makes for interactive.c's production functions,
// rather than driving a real tty and child process from a test.
type UI interface {
	Edit(path string, pos int64) error
	View(path string) error
	Choose(prompt, charbag, help string) (byte, error)
}

// System is the real UI, backed by the package-level Edit/View/Choose.
type System struct{}

var _ UI = System{}

func (System) Edit(path string, pos int64) error                  { return Edit(path, pos) }
func (System) View(path string) error                             { return View(path) }
func (System) Choose(prompt, charbag, help string) (byte, error) { return Choose(prompt, charbag, help) }

func bracket(charbag string) string {
	visible := make([]byte, 0, len(charbag))
	for i := 0; i < len(charbag); i++ {
		if charbag[i] > 32 {
			visible = append(visible, charbag[i])
		}
	}
	return "[" + string(visible) + "]"
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
