package exprio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/raymyers/symjit/pkg/expr"
	"gopkg.in/yaml.v3"
)

// Document is a tree read from a file together with its variable bindings.
type Document struct {
	Factory expr.Factory
	Root    expr.Node
	Env     expr.Env
}

// ReadFile reads a YAML document (.yaml or .yml) or, for any other
// extension, a single s-expression in domain d. YAML documents carry their
// own domain.
func ReadFile(path string, d expr.Domain) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		doc, err := ParseYAML(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return doc, nil
	}
	fac, err := expr.FactoryFor(d)
	if err != nil {
		return nil, err
	}
	root, err := ParseSExpr(string(data), fac)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &Document{Factory: fac, Root: root, Env: expr.Env{}}, nil
}

// ParseYAML reads a tree document:
//
//	domain: real        # real, complex or matrix
//	size: 2             # matrix only
//	defs:               # optional; a place to hang anchors
//	  - &sq {op: mult, args: [x, x]}
//	root: {op: add, args: [*sq, *sq]}
//	env: {x: 3}
//
// A node is a mapping with an op key, a number (constant), a [re, im] pair
// (complex constant) or a bare name (variable). Every alias of an anchor
// decodes to the same node.
func ParseYAML(data []byte) (*Document, error) {
	var file yaml.Node
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	if file.Kind != yaml.DocumentNode || len(file.Content) == 0 {
		return nil, &SyntaxError{Msg: "empty document"}
	}
	top := file.Content[0]
	fields, err := mappingFields(top, "domain", "size", "defs", "root", "env")
	if err != nil {
		return nil, err
	}

	domain := expr.Real
	if n := fields["domain"]; n != nil {
		if domain, err = expr.ParseDomain(n.Value); err != nil {
			return nil, syntaxErrorf(n, "%v", err)
		}
	}
	var fac expr.Factory
	if domain == expr.Matrix {
		size := 0
		if n := fields["size"]; n == nil || n.Decode(&size) != nil || size <= 0 {
			return nil, syntaxErrorf(top, "matrix documents need a positive size")
		}
		fac = expr.MatrixFactory{N: size}
	} else if fac, err = expr.FactoryFor(domain); err != nil {
		return nil, err
	}

	d := &yamlDecoder{fac: fac, memo: make(map[*yaml.Node]expr.Node), vars: newScope(fac)}
	rootNode := fields["root"]
	if rootNode == nil {
		return nil, syntaxErrorf(top, "missing root")
	}
	root, err := d.node(rootNode)
	if err != nil {
		return nil, err
	}

	env := expr.Env{}
	if n := fields["env"]; n != nil {
		if n.Kind != yaml.MappingNode {
			return nil, syntaxErrorf(n, "env must be a mapping")
		}
		for i := 0; i+1 < len(n.Content); i += 2 {
			name, val := n.Content[i].Value, n.Content[i+1]
			v, err := d.value(val)
			if err != nil {
				return nil, err
			}
			env[name] = v
		}
	}
	return &Document{Factory: fac, Root: root, Env: env}, nil
}

func syntaxErrorf(n *yaml.Node, format string, args ...any) error {
	return &SyntaxError{Line: n.Line, Col: n.Column, Msg: fmt.Sprintf(format, args...)}
}

// mappingFields indexes a mapping node by key, rejecting keys not in allowed.
func mappingFields(n *yaml.Node, allowed ...string) (map[string]*yaml.Node, error) {
	if n.Kind != yaml.MappingNode {
		return nil, syntaxErrorf(n, "expected a mapping")
	}
	fields := make(map[string]*yaml.Node, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		key := n.Content[i]
		found := false
		for _, a := range allowed {
			if key.Value == a {
				found = true
				break
			}
		}
		if !found {
			return nil, syntaxErrorf(key, "unknown key %q", key.Value)
		}
		fields[key.Value] = n.Content[i+1]
	}
	return fields, nil
}

type yamlDecoder struct {
	fac  expr.Factory
	memo map[*yaml.Node]expr.Node
	vars *scope
}

func (d *yamlDecoder) node(n *yaml.Node) (expr.Node, error) {
	if n.Kind == yaml.AliasNode {
		if n.Alias == nil {
			return nil, syntaxErrorf(n, "unresolved alias")
		}
		return d.node(n.Alias)
	}
	if got, ok := d.memo[n]; ok {
		return got, nil
	}
	var (
		out expr.Node
		err error
	)
	switch n.Kind {
	case yaml.ScalarNode:
		out, err = d.scalar(n)
	case yaml.SequenceNode:
		var v expr.Value
		if v, err = d.complexPair(n); err == nil {
			out = expr.NewConst(v)
		}
	case yaml.MappingNode:
		out, err = d.op(n)
	default:
		err = syntaxErrorf(n, "unexpected node")
	}
	if err != nil {
		return nil, err
	}
	d.memo[n] = out
	return out, nil
}

func (d *yamlDecoder) scalar(n *yaml.Node) (expr.Node, error) {
	switch n.ShortTag() {
	case "!!int", "!!float":
		var v float64
		if err := n.Decode(&v); err != nil {
			return nil, syntaxErrorf(n, "bad number %q", n.Value)
		}
		return constant(d.fac, v), nil
	case "!!str":
		if identPattern.MatchString(n.Value) {
			return d.vars.variable(n.Value), nil
		}
	}
	return nil, syntaxErrorf(n, "%q is neither a number nor a variable name", n.Value)
}

func (d *yamlDecoder) complexPair(n *yaml.Node) (expr.Value, error) {
	var pair []float64
	if err := n.Decode(&pair); err != nil || len(pair) != 2 {
		return nil, syntaxErrorf(n, "complex literal must be [re, im]")
	}
	return expr.ComplexValue{Re: pair[0], Im: pair[1]}, nil
}

// value decodes an env binding or a const value: a number in the
// document's domain or a [re, im] pair.
func (d *yamlDecoder) value(n *yaml.Node) (expr.Value, error) {
	if n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	if n.Kind == yaml.SequenceNode {
		return d.complexPair(n)
	}
	var v float64
	if n.Kind != yaml.ScalarNode || n.Decode(&v) != nil {
		return nil, syntaxErrorf(n, "expected a number or [re, im]")
	}
	if d.fac.Domain() == expr.Complex {
		return expr.ComplexValue{Re: v}, nil
	}
	return expr.RealValue(v), nil
}

func (d *yamlDecoder) op(n *yaml.Node) (expr.Node, error) {
	fields, err := mappingFields(n, "op", "args", "by", "name", "value", "fn")
	if err != nil {
		return nil, err
	}
	opNode := fields["op"]
	if opNode == nil {
		return nil, syntaxErrorf(n, "missing op")
	}
	op := opNode.Value

	var args []expr.Node
	if a := fields["args"]; a != nil {
		if a.Kind != yaml.SequenceNode {
			return nil, syntaxErrorf(a, "args must be a list")
		}
		for _, c := range a.Content {
			child, err := d.node(c)
			if err != nil {
				return nil, err
			}
			args = append(args, child)
		}
	}
	arity := func(want int) error {
		if len(args) != want {
			return syntaxErrorf(n, "%s takes %d argument(s), got %d", op, want, len(args))
		}
		return nil
	}
	required := func(key string) (*yaml.Node, error) {
		if f := fields[key]; f != nil {
			return f, nil
		}
		return nil, syntaxErrorf(n, "%s needs %s", op, key)
	}

	switch op {
	case "var", "const":
		if err := arity(0); err != nil {
			return nil, err
		}
	}
	switch op {
	case "var":
		name, err := required("name")
		if err != nil {
			return nil, err
		}
		if !identPattern.MatchString(name.Value) {
			return nil, syntaxErrorf(name, "bad variable name %q", name.Value)
		}
		return d.vars.variable(name.Value), nil
	case "const":
		vn, err := required("value")
		if err != nil {
			return nil, err
		}
		v, err := d.value(vn)
		if err != nil {
			return nil, err
		}
		return expr.NewConst(v), nil
	case "divide":
		bn, err := required("by")
		if err != nil {
			return nil, err
		}
		var by int64
		if bn.ShortTag() != "!!int" || bn.Decode(&by) != nil {
			return nil, syntaxErrorf(bn, "by must be an integer")
		}
		if err := arity(1); err != nil {
			return nil, err
		}
		return expr.NewDivideBy(args[0], by), nil
	case "func":
		fn, err := required("fn")
		if err != nil {
			return nil, err
		}
		if !isFunc(fn.Value) {
			return nil, syntaxErrorf(fn, "unknown function %q (want one of %s)", fn.Value, strings.Join(expr.FuncNames(), ", "))
		}
		if err := arity(1); err != nil {
			return nil, err
		}
		return expr.NewFunc(fn.Value, args[0]), nil
	}

	if mk, ok := nullaryOps[op]; ok {
		if err := arity(0); err != nil {
			return nil, err
		}
		return mk(d.fac), nil
	}
	if mk, ok := unaryOps[op]; ok {
		if err := arity(1); err != nil {
			return nil, err
		}
		return mk(args[0]), nil
	}
	if mk, ok := binaryOps[op]; ok {
		if err := arity(2); err != nil {
			return nil, err
		}
		return mk(args[0], args[1]), nil
	}
	return nil, syntaxErrorf(opNode, "unknown op %q", op)
}
