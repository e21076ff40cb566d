package compiler

import (
	"errors"
	"fmt"

	"github.com/chazu/luma/vm"
)

// SyntaxError is a lexical or grammatical error in a chunk.
type SyntaxError struct {
	Chunk string // chunk name as given to Compile
	Line  int
	Msg   string
	Near  string // quoted token text, "<eof>", or empty
	AtEOF bool   // the error was found at the end of the input
}

func (e *SyntaxError) Error() string {
	if e.Near == "" {
		return fmt.Sprintf("%s:%d: %s", vm.ChunkID(e.Chunk), e.Line, e.Msg)
	}
	return fmt.Sprintf("%s:%d: %s near %s", vm.ChunkID(e.Chunk), e.Line, e.Msg, e.Near)
}

// IsIncomplete reports whether err is a syntax error caused by input ending
// too early, so that more lines could complete it.
func IsIncomplete(err error) bool {
	var se *SyntaxError
	return errors.As(err, &se) && se.AtEOF
}
