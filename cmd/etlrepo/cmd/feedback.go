package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"etlrepo/internal/domain"
)

// promptFeedback answers import questions on the terminal. When input runs
// out every remaining question gets its default answer.
type promptFeedback struct {
	in    *bufio.Reader
	out   io.Writer
	quiet bool
	eof   bool
}

func newPromptFeedback(in io.Reader, out io.Writer, quiet bool) *promptFeedback {
	return &promptFeedback{in: bufio.NewReader(in), out: out, quiet: quiet}
}

func (f *promptFeedback) ask(question string) string {
	if f.eof {
		return ""
	}
	fmt.Fprint(f.out, question)
	line, err := f.in.ReadString('\n')
	if err != nil {
		f.eof = true
		fmt.Fprintln(f.out)
	}
	return strings.ToLower(strings.TrimSpace(line))
}

func (f *promptFeedback) AskOverwrite(obj domain.DirectoryObject, def bool) (bool, bool) {
	choices := "y/N"
	if def {
		choices = "Y/n"
	}
	answer := f.ask(fmt.Sprintf("%s %s already exists in %s. Overwrite? [%s, all, none] ",
		obj.Kind(), obj.ObjectName(), obj.Directory(), choices))

	switch answer {
	case "y", "yes":
		return true, false
	case "n", "no":
		return false, false
	case "a", "all":
		return true, true
	case "none":
		return false, true
	}
	return def, f.eof
}

func (f *promptFeedback) ContinueOnError(index int, err error) bool {
	answer := f.ask(fmt.Sprintf("Fragment %d failed: %v\nContinue with the next one? [y/N] ", index, err))
	return answer == "y" || answer == "yes"
}

func (f *promptFeedback) Log(line string) {
	if !f.quiet {
		fmt.Fprintln(f.out, line)
	}
}
