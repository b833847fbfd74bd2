// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package stubkernel

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// EvalError mirrors a Python-style exception raised by a statement.
type EvalError struct {
	Name  string
	Value string
}

func (e *EvalError) Error() string {
	return e.Name + ": " + e.Value
}

func nameError(name string) error {
	return &EvalError{Name: "NameError", Value: fmt.Sprintf("name '%s' is not defined", name)}
}

func syntaxError(format string, args ...any) error {
	return &EvalError{Name: "SyntaxError", Value: fmt.Sprintf(format, args...)}
}

func typeError(format string, args ...any) error {
	return &EvalError{Name: "TypeError", Value: fmt.Sprintf(format, args...)}
}

// StringForm renders a value the way the interactive shell prints it.
func StringForm(v any) string {
	switch x := v.(type) {
	case int64:
		return strconv.FormatInt(x, 10)
	case string:
		return x
	case bool:
		if x {
			return "True"
		}
		return "False"
	default:
		return fmt.Sprint(x)
	}
}

// TypeName returns the interactive shell's name for v's type.
func TypeName(v any) string {
	switch v.(type) {
	case int64:
		return "int"
	case string:
		return "str"
	case bool:
		return "bool"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// ParseValue evaluates a literal such as 5 or "hi there" with no names in scope.
func ParseValue(src string) (any, error) {
	return evalExpr(src, nil)
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return true
}

// splitStatements splits code on newlines and semicolons outside quotes.
func splitStatements(code string) []string {
	var out []string
	var cur strings.Builder
	var quote rune
	for _, r := range code {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
			cur.WriteRune(r)
		case r == '"' || r == '\'':
			quote = r
			cur.WriteRune(r)
		case r == '\n' || r == ';':
			if s := strings.TrimSpace(cur.String()); s != "" {
				out = append(out, s)
			}
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		out = append(out, s)
	}
	return out
}

// splitAssignment returns the target and expression of "name = expr".
// ok is false for bare expressions; "==" is not an assignment.
func splitAssignment(stmt string) (target, expr string, ok bool) {
	var quote rune
	for i, r := range stmt {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case r == '=':
			next := i + 1
			if next < len(stmt) && stmt[next] == '=' {
				return "", "", false
			}
			return strings.TrimSpace(stmt[:i]), strings.TrimSpace(stmt[next:]), true
		}
	}
	return "", "", false
}

type token struct {
	kind string // "int", "str", "name", "op"
	text string
}

func tokenize(src string) ([]token, error) {
	var toks []token
	rs := []rune(src)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case unicode.IsDigit(r):
			j := i
			for j < len(rs) && unicode.IsDigit(rs[j]) {
				j++
			}
			toks = append(toks, token{"int", string(rs[i:j])})
			i = j
		case r == '_' || unicode.IsLetter(r):
			j := i
			for j < len(rs) && (rs[j] == '_' || unicode.IsLetter(rs[j]) || unicode.IsDigit(rs[j])) {
				j++
			}
			toks = append(toks, token{"name", string(rs[i:j])})
			i = j
		case r == '"' || r == '\'':
			j := i + 1
			for j < len(rs) && rs[j] != r {
				j++
			}
			if j >= len(rs) {
				return nil, syntaxError("EOL while scanning string literal")
			}
			toks = append(toks, token{"str", string(rs[i+1 : j])})
			i = j + 1
		case strings.ContainsRune("+-*()", r):
			toks = append(toks, token{"op", string(r)})
			i++
		default:
			return nil, syntaxError("invalid syntax near %q", string(r))
		}
	}
	return toks, nil
}

// parser evaluates sums of products over ints and strings.
type parser struct {
	toks []token
	pos  int
	ns   map[string]any
}

func evalExpr(src string, ns map[string]any) (any, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	if len(toks) == 0 {
		return nil, syntaxError("invalid syntax")
	}
	p := &parser{toks: toks, ns: ns}
	v, err := p.sum()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.toks) {
		return nil, syntaxError("invalid syntax near %q", p.toks[p.pos].text)
	}
	return v, nil
}

func (p *parser) peekOp(ops string) (string, bool) {
	if p.pos < len(p.toks) && p.toks[p.pos].kind == "op" && strings.Contains(ops, p.toks[p.pos].text) {
		return p.toks[p.pos].text, true
	}
	return "", false
}

func (p *parser) sum() (any, error) {
	left, err := p.product()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.peekOp("+-")
		if !ok {
			return left, nil
		}
		p.pos++
		right, err := p.product()
		if err != nil {
			return nil, err
		}
		if left, err = binary(op, left, right); err != nil {
			return nil, err
		}
	}
}

func (p *parser) product() (any, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.peekOp("*"); !ok {
			return left, nil
		}
		p.pos++
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		if left, err = binary("*", left, right); err != nil {
			return nil, err
		}
	}
}

func (p *parser) unary() (any, error) {
	if _, ok := p.peekOp("-"); ok {
		p.pos++
		v, err := p.unary()
		if err != nil {
			return nil, err
		}
		n, ok := v.(int64)
		if !ok {
			return nil, typeError("bad operand type for unary -: '%s'", TypeName(v))
		}
		return -n, nil
	}
	return p.atom()
}

func (p *parser) atom() (any, error) {
	if p.pos >= len(p.toks) {
		return nil, syntaxError("unexpected EOF while parsing")
	}
	tok := p.toks[p.pos]
	p.pos++

	switch tok.kind {
	case "int":
		n, err := strconv.ParseInt(tok.text, 10, 64)
		if err != nil {
			return nil, syntaxError("invalid integer %q", tok.text)
		}
		return n, nil
	case "str":
		return tok.text, nil
	case "name":
		switch tok.text {
		case "True":
			return true, nil
		case "False":
			return false, nil
		}
		v, ok := p.ns[tok.text]
		if !ok {
			return nil, nameError(tok.text)
		}
		return v, nil
	case "op":
		if tok.text == "(" {
			v, err := p.sum()
			if err != nil {
				return nil, err
			}
			if _, ok := p.peekOp(")"); !ok {
				return nil, syntaxError("unexpected EOF while parsing")
			}
			p.pos++
			return v, nil
		}
	}
	return nil, syntaxError("invalid syntax near %q", tok.text)
}

func binary(op string, left, right any) (any, error) {
	switch l := left.(type) {
	case int64:
		if r, ok := right.(int64); ok {
			switch op {
			case "+":
				return l + r, nil
			case "-":
				return l - r, nil
			case "*":
				return l * r, nil
			}
		}
		if r, ok := right.(string); ok && op == "*" {
			return repeat(r, l), nil
		}
	case string:
		if r, ok := right.(string); ok && op == "+" {
			return l + r, nil
		}
		if r, ok := right.(int64); ok && op == "*" {
			return repeat(l, r), nil
		}
	}
	return nil, typeError("unsupported operand type(s) for %s: '%s' and '%s'", op, TypeName(left), TypeName(right))
}

func repeat(s string, n int64) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat(s, int(n))
}
