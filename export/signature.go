package export

import (
	"regexp"
	"strings"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-cabi/errors"
)

// funcPattern matches "[export] name: func(params) [-> result]".
var funcPattern = regexp.MustCompile(`(?:export\s+)?([a-zA-Z_][a-zA-Z0-9_-]*)\s*:\s*func\s*\(([^)]*)\)(?:\s*->\s*([^;]+))?`)

// ParseFuncs extracts function signatures from WIT text. Every function is
// placed in iface and has no handler yet; bind one with Func.With.
//
// Parameter and result types may be primitives, list<T>, option<T>,
// result, result<T>, result<T, E>, result<_, E> and tuple<...>.
func ParseFuncs(iface, witText string) ([]Func, error) {
	var funcs []Func

	for _, match := range funcPattern.FindAllStringSubmatch(witText, -1) {
		fn := Func{Interface: iface, Name: match[1]}

		if paramsStr := strings.TrimSpace(match[2]); paramsStr != "" {
			for _, p := range splitTopLevel(paramsStr) {
				name, typStr, ok := strings.Cut(p, ":")
				if !ok {
					return nil, errors.ParseFailed("param "+p, errors.InvalidInput(errors.PhaseParse, "expected name: type"))
				}
				t, err := ParseType(typStr)
				if err != nil {
					return nil, errors.Wrap(errors.PhaseParse, errors.KindInvalidData, err, "parse param type of "+fn.Name)
				}
				fn.Params = append(fn.Params, Param{Name: strings.TrimSpace(name), Type: t})
			}
		}

		resultStr := strings.TrimSpace(match[3])
		switch {
		case resultStr == "" || resultStr == "()":
		case strings.HasPrefix(resultStr, "("):
			return nil, errors.Unsupported(errors.PhaseParse, "multiple results in "+fn.Name)
		default:
			t, err := ParseType(resultStr)
			if err != nil {
				return nil, errors.Wrap(errors.PhaseParse, errors.KindInvalidData, err, "parse result type of "+fn.Name)
			}
			fn.Result = t
		}

		funcs = append(funcs, fn)
	}

	if len(funcs) == 0 {
		return nil, errors.InvalidInput(errors.PhaseParse, "no functions found in WIT text")
	}
	return funcs, nil
}

// ParseType parses a WIT type expression.
func ParseType(s string) (wit.Type, error) {
	s = strings.TrimSpace(s)

	if inner, ok := generic(s, "list"); ok {
		elem, err := ParseType(inner)
		if err != nil {
			return nil, err
		}
		return &wit.TypeDef{Kind: &wit.List{Type: elem}}, nil
	}

	if inner, ok := generic(s, "option"); ok {
		elem, err := ParseType(inner)
		if err != nil {
			return nil, err
		}
		return &wit.TypeDef{Kind: &wit.Option{Type: elem}}, nil
	}

	if s == "result" {
		return &wit.TypeDef{Kind: &wit.Result{}}, nil
	}
	if inner, ok := generic(s, "result"); ok {
		parts := splitTopLevel(inner)
		if len(parts) < 1 || len(parts) > 2 {
			return nil, errors.ParseFailed(s, errors.InvalidInput(errors.PhaseParse, "result takes one or two types"))
		}
		r := &wit.Result{}
		var err error
		if r.OK, err = parseOptional(parts[0]); err != nil {
			return nil, err
		}
		if len(parts) == 2 {
			if r.Err, err = parseOptional(parts[1]); err != nil {
				return nil, err
			}
		}
		return &wit.TypeDef{Kind: r}, nil
	}

	if inner, ok := generic(s, "tuple"); ok {
		parts := splitTopLevel(inner)
		tup := &wit.Tuple{Types: make([]wit.Type, len(parts))}
		for i, p := range parts {
			t, err := ParseType(p)
			if err != nil {
				return nil, err
			}
			tup.Types[i] = t
		}
		return &wit.TypeDef{Kind: tup}, nil
	}

	t, err := wit.ParseType(s)
	if err != nil {
		return nil, errors.ParseFailed(s, err)
	}
	return t, nil
}

// parseOptional parses a result payload, where "_" means none.
func parseOptional(s string) (wit.Type, error) {
	if strings.TrimSpace(s) == "_" {
		return nil, nil
	}
	return ParseType(s)
}

// generic returns the argument text of "name<...>".
func generic(s, name string) (string, bool) {
	if !strings.HasPrefix(s, name+"<") || !strings.HasSuffix(s, ">") {
		return "", false
	}
	return s[len(name)+1 : len(s)-1], true
}

// splitTopLevel splits at commas outside angle brackets and parentheses.
func splitTopLevel(s string) []string {
	var result []string
	var current strings.Builder
	depth := 0

	for _, ch := range s {
		switch ch {
		case '(', '<':
			depth++
			current.WriteRune(ch)
		case ')', '>':
			depth--
			current.WriteRune(ch)
		case ',':
			if depth == 0 {
				if str := strings.TrimSpace(current.String()); str != "" {
					result = append(result, str)
				}
				current.Reset()
			} else {
				current.WriteRune(ch)
			}
		default:
			current.WriteRune(ch)
		}
	}

	if str := strings.TrimSpace(current.String()); str != "" {
		result = append(result, str)
	}

	return result
}
