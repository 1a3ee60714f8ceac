package codegen

import (
	"sync/atomic"

	"github.com/raymyers/symjit/pkg/expr"
)

// Allocator hands out process-unique ids for temporaries, members and
// compilation units. It is the only generation state shared between
// concurrent compilations.
type Allocator struct {
	next atomic.Uint64
}

// NewAllocator creates an allocator whose first id is 1.
func NewAllocator() *Allocator {
	return &Allocator{}
}

// Next returns a fresh id.
func (a *Allocator) Next() uint64 {
	return a.next.Add(1)
}

// Peek returns the last id handed out.
func (a *Allocator) Peek() uint64 {
	return a.next.Load()
}

// Context is the emission state of one compilation. It must not be shared
// between compilations.
type Context struct {
	alloc  *Allocator
	domain expr.Domain

	memo     map[expr.Node]Result
	body     []Instr
	captures []CapturedChild
	captured map[expr.Node]int
	hits     int

	// Trace, when set, is called for every node the generator visits;
	// hit reports a memo hit (no code emitted).
	Trace func(n expr.Node, hit bool)
}

// NewContext creates an emission context for a tree in domain d.
func NewContext(alloc *Allocator, d expr.Domain) *Context {
	return &Context{
		alloc:    alloc,
		domain:   d,
		memo:     make(map[expr.Node]Result),
		captured: make(map[expr.Node]int),
	}
}

// Domain returns the numeric domain being generated.
func (c *Context) Domain() expr.Domain { return c.domain }

// Body returns the emitted instructions in order.
func (c *Context) Body() []Instr { return c.body }

// Captures returns the captured children in slot order.
func (c *Context) Captures() []CapturedChild { return c.captures }

// CSEHits returns the number of memo hits so far.
func (c *Context) CSEHits() int { return c.hits }

func (c *Context) fresh() Temp {
	return Temp(c.alloc.Next())
}

func (c *Context) assign(src Expr) Temp {
	t := c.fresh()
	c.body = append(c.body, Assign{Dst: t, Src: src})
	return t
}

// capture returns the captured child for n, creating it on first sight.
func (c *Context) capture(n expr.Node) CapturedChild {
	if i, ok := c.captured[n]; ok {
		return c.captures[i]
	}
	cc := CapturedChild{
		Node:   n,
		Slot:   len(c.captures),
		Member: Member(c.alloc.Next()),
	}
	c.captured[n] = len(c.captures)
	c.captures = append(c.captures, cc)
	return cc
}

func (c *Context) callback(cc CapturedChild, width int) Result {
	dsts := make([]Temp, width)
	for i := range dsts {
		dsts[i] = c.fresh()
	}
	c.body = append(c.body, Callback{Member: cc.Member, Slot: cc.Slot, Dsts: dsts})
	return Result(dsts)
}

// Finish packages the emitted code as a Function named name.
func (c *Context) Finish(name string, result Result) *Function {
	return &Function{
		Name:     name,
		Domain:   c.domain,
		Body:     c.body,
		Result:   result,
		Captures: c.captures,
	}
}
