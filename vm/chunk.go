package vm

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Binary chunks
// ---------------------------------------------------------------------------

// Signature starts every binary chunk.
const Signature = "\x1bLuma"

const chunkFormat = 1

// binaryChunk is the CBOR payload that follows the signature.
type binaryChunk struct {
	Format  int        `cbor:"1,keyasint"`
	Version string     `cbor:"2,keyasint"`
	Main    *Prototype `cbor:"3,keyasint"`
}

var (
	chunkEncMode cbor.EncMode
	chunkDecMode cbor.DecMode
)

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	chunkEncMode = em
	dm, err := cbor.DecOptions{MaxNestedLevels: 1024, MaxArrayElements: 1 << 24}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR dec mode: %v", err))
	}
	chunkDecMode = dm
}

// ErrNotFunction is returned by Dump when the top value is not a script
// function.
var ErrNotFunction = errors.New("unable to dump given function")

// Dump writes the script function on top of the stack as a binary chunk.
// With strip, debug information is omitted.
func (t *Thread) Dump(w io.Writer, strip bool) error {
	c, ok := t.Get(-1).AsClosure()
	if !ok || c.proto == nil {
		return ErrNotFunction
	}
	p := c.proto
	if strip {
		p = p.clone()
		p.strip()
	}
	data, err := chunkEncMode.Marshal(&binaryChunk{Format: chunkFormat, Version: Version, Main: p})
	if err != nil {
		return fmt.Errorf("dump: %w", err)
	}
	if _, err := io.WriteString(w, Signature); err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// UndumpPrototype decodes a binary chunk, signature included.
func UndumpPrototype(data []byte) (*Prototype, error) {
	if !bytes.HasPrefix(data, []byte(Signature)) {
		return nil, errors.New("not a binary chunk")
	}
	var bc binaryChunk
	if err := chunkDecMode.Unmarshal(data[len(Signature):], &bc); err != nil {
		return nil, fmt.Errorf("truncated or malformed chunk: %w", err)
	}
	if bc.Format != chunkFormat {
		return nil, fmt.Errorf("format mismatch (chunk %d, runtime %d)", bc.Format, chunkFormat)
	}
	if bc.Main == nil {
		return nil, errors.New("chunk has no main function")
	}
	if err := bc.Main.validate(); err != nil {
		return nil, err
	}
	return bc.Main, nil
}

// ---------------------------------------------------------------------------
// Load
// ---------------------------------------------------------------------------

// Load reads a chunk from r and pushes it as a function. mode restricts the
// accepted chunk kinds: "b" binary, "t" text, "bt" both. On failure the
// error message is pushed instead and an error status returned. The first
// upvalue of the loaded function, if any, is set to the global table.
func (t *Thread) Load(r io.Reader, chunkname, mode string) Status {
	if mode == "" {
		mode = "bt"
	}
	br := bufio.NewReader(r)
	head, _ := br.Peek(1)
	binary := len(head) == 1 && head[0] == Signature[0]
	kind := "text"
	if binary {
		kind = "binary"
	}
	if !strings.Contains(mode, kind[:1]) {
		t.PushFString("attempt to load a %s chunk (mode is '%s')", kind, mode)
		return ErrSyntax
	}
	data, err := io.ReadAll(br)
	if err != nil {
		t.PushFString("cannot read %s: %s", chunkID(chunkname), err)
		return ErrFile
	}

	var p *Prototype
	if binary {
		p, err = UndumpPrototype(data)
		if err != nil {
			t.PushFString("%s: bad binary format (%s)", chunkID(chunkname), err)
			return ErrSyntax
		}
	} else {
		if t.rt.compile == nil {
			t.PushString("no compiler registered for text chunks")
			return ErrSyntax
		}
		p, err = t.rt.compile(data, chunkname)
		if err != nil {
			t.PushString(err.Error())
			return ErrSyntax
		}
	}
	t.pushPrototype(p)
	return OK
}

// LoadString is Load for an in-memory text or binary chunk.
func (t *Thread) LoadString(src, chunkname string) Status {
	return t.Load(strings.NewReader(src), chunkname, "bt")
}

// LoadPrototype pushes a closure for a prototype compiled by the host.
func (t *Thread) LoadPrototype(p *Prototype) error {
	if err := p.validate(); err != nil {
		return err
	}
	t.pushPrototype(p)
	return nil
}

func (t *Thread) pushPrototype(p *Prototype) {
	t.checkGC()
	p = t.rt.link(p)
	c := t.rt.newScriptClosure(p)
	for i := range c.upvals {
		c.upvals[i] = &Upvalue{closed: true}
	}
	if len(c.upvals) > 0 {
		c.upvals[0].value = tableValue(t.rt.Globals())
	}
	t.push(functionValue(c))
}
