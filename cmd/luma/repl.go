package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/chazu/luma"
	"github.com/chazu/luma/compiler"
	"github.com/chazu/luma/vm"
)

const (
	historyFile = ".luma_history"
	promptMain  = "> "
	promptCont  = ">> "
)

func runREPL(rt *luma.Runtime) error {
	fmt.Println(vm.Version)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)
	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	for {
		src, ok := readChunk(func(prompt string) (string, error) {
			return ln.Prompt(prompt)
		})
		if !ok {
			fmt.Println()
			return nil
		}
		if strings.TrimSpace(src) == "" {
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(src, "\n", " "))

		results, err := evalLine(rt, src)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		if len(results) > 0 {
			fmt.Println(strings.Join(results, "\t"))
		}
	}
}

// readChunk reads lines until they form a complete chunk or a syntax error
// that more input cannot fix. ok is false at end of input.
func readChunk(prompt func(string) (string, error)) (src string, ok bool) {
	var b strings.Builder
	for {
		p := promptMain
		if b.Len() > 0 {
			p = promptCont
		}
		line, err := prompt(p)
		if errors.Is(err, io.EOF) {
			if b.Len() > 0 {
				return b.String(), true
			}
			return "", false
		}
		if errors.Is(err, liner.ErrPromptAborted) {
			return "", true
		}
		if err != nil {
			return "", false
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		if !needsMore(b.String()) {
			return b.String(), true
		}
	}
}

// needsMore reports whether src is an unfinished statement or expression.
func needsMore(src string) bool {
	if _, err := compiler.Compile([]byte("return "+src), "=stdin"); err == nil {
		return false
	}
	_, err := compiler.Compile([]byte(src), "=stdin")
	return compiler.IsIncomplete(err)
}

// evalLine runs src as an expression when it parses as one, otherwise as a
// statement, and returns the results in display form.
func evalLine(rt *luma.Runtime, src string) ([]string, error) {
	p, err := luma.Compile([]byte("return "+src), "=stdin")
	if err != nil {
		if p, err = luma.Compile([]byte(src), "=stdin"); err != nil {
			return nil, err
		}
	}
	th := rt.MainThread()
	base := th.Top()
	if err := th.LoadPrototype(p); err != nil {
		return nil, err
	}
	if err := rt.Call(0, vm.MultRet); err != nil {
		return nil, err
	}
	var results []string
	for i := base + 1; i <= th.Top(); i++ {
		results = append(results, th.ToDisplayString(i))
		th.Pop(1)
	}
	th.SetTop(base)
	return results, nil
}
