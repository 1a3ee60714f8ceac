package codegen

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
)

// Fingerprint hashes the shape of fn: its domain, body and result, with
// temporaries and members renumbered in order of first appearance. Two
// lowerings that differ only in the names drawn from the allocator share a
// fingerprint, so a unit built for one can serve the other.
func Fingerprint(fn *Function) string {
	var b strings.Builder
	temps := make(map[Temp]int)
	members := make(map[Member]int)
	temp := func(t Temp) int {
		if n, ok := temps[t]; ok {
			return n
		}
		temps[t] = len(temps)
		return temps[t]
	}
	member := func(m Member) int {
		if n, ok := members[m]; ok {
			return n
		}
		members[m] = len(members)
		return members[m]
	}

	var canon func(e Expr)
	canon = func(e Expr) {
		switch x := e.(type) {
		case Lit:
			fmt.Fprintf(&b, "f%x", math.Float64bits(x.Val))
		case IntLit:
			fmt.Fprintf(&b, "i%d", x.Val)
		case Ref:
			fmt.Fprintf(&b, "r%d", temp(x.T))
		case Unary:
			fmt.Fprintf(&b, "(%s ", x.Op)
			canon(x.X)
			b.WriteString(")")
		case Binary:
			fmt.Fprintf(&b, "(%s ", x.Op)
			canon(x.X)
			b.WriteString(" ")
			canon(x.Y)
			b.WriteString(")")
		}
	}

	fmt.Fprintf(&b, "%s;%d;", fn.Domain, len(fn.Captures))
	for _, in := range fn.Body {
		switch i := in.(type) {
		case Assign:
			fmt.Fprintf(&b, "r%d=", temp(i.Dst))
			canon(i.Src)
		case Callback:
			fmt.Fprintf(&b, "cb m%d@%d->", member(i.Member), i.Slot)
			for _, d := range i.Dsts {
				fmt.Fprintf(&b, "r%d,", temp(d))
			}
		}
		b.WriteString(";")
	}
	b.WriteString("ret")
	for _, t := range fn.Result {
		fmt.Fprintf(&b, " r%d", temp(t))
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
