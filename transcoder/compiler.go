package transcoder

import (
	"strconv"
	"strings"
	"sync"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-cabi/errors"
	"github.com/wippyai/wasm-cabi/transcoder/internal/abi"
	"github.com/wippyai/wasm-cabi/transcoder/internal/layout"
)

// Compiler resolves WIT types into CompiledTypes. Results are cached per
// type definition, so compiling the same *wit.TypeDef twice returns the same
// pointer. It is safe for concurrent use.
type Compiler struct {
	cache    sync.Map // wit.Type -> *CompiledType
	layoutMu sync.Mutex
	layout   *layout.Calculator
}

func NewCompiler() *Compiler {
	return &Compiler{
		layout: layout.NewCalculator(),
	}
}

var defaultCompiler = NewCompiler()

// Compile compiles t with the package-level compiler.
func Compile(t wit.Type) (*CompiledType, error) {
	return defaultCompiler.Compile(t)
}

// MustCompile is like Compile but panics on error. It is meant for
// package-level type declarations.
func MustCompile(t wit.Type) *CompiledType {
	ct, err := Compile(t)
	if err != nil {
		panic(err)
	}
	return ct
}

func (c *Compiler) Compile(witType wit.Type) (*CompiledType, error) {
	if witType == nil {
		return nil, errors.New(errors.PhaseCompile, errors.KindNilPointer).
			Detail("WIT type cannot be nil").
			Build()
	}
	if cached, ok := c.cache.Load(witType); ok {
		return cached.(*CompiledType), nil
	}

	ct, err := c.compile(witType, nil)
	if err != nil {
		return nil, err
	}

	actual, _ := c.cache.LoadOrStore(witType, ct)
	return actual.(*CompiledType), nil
}

func (c *Compiler) info(t wit.Type) layout.Info {
	c.layoutMu.Lock()
	defer c.layoutMu.Unlock()
	return c.layout.Calculate(t)
}

func (c *Compiler) compile(witType wit.Type, path []string) (*CompiledType, error) {
	switch t := witType.(type) {
	case wit.Bool:
		return c.primitive(KindBool, t), nil
	case wit.U8:
		return c.primitive(KindU8, t), nil
	case wit.S8:
		return c.primitive(KindS8, t), nil
	case wit.U16:
		return c.primitive(KindU16, t), nil
	case wit.S16:
		return c.primitive(KindS16, t), nil
	case wit.U32:
		return c.primitive(KindU32, t), nil
	case wit.S32:
		return c.primitive(KindS32, t), nil
	case wit.U64:
		return c.primitive(KindU64, t), nil
	case wit.S64:
		return c.primitive(KindS64, t), nil
	case wit.F32:
		return c.primitive(KindF32, t), nil
	case wit.F64:
		return c.primitive(KindF64, t), nil
	case wit.Char:
		return c.primitive(KindChar, t), nil
	case wit.String:
		return c.primitive(KindString, t), nil
	case *wit.TypeDef:
		return c.compileTypeDef(t, path)
	default:
		return nil, errors.New(errors.PhaseCompile, errors.KindUnsupported).
			Path(path...).
			Detail("unsupported WIT type: %T", witType).
			Build()
	}
}

func (c *Compiler) primitive(kind TypeKind, t wit.Type) *CompiledType {
	info := c.info(t)
	return &CompiledType{
		Kind:     kind,
		Name:     kind.String(),
		WitSize:  info.Size,
		WitAlign: info.Align,
		Flat:     abi.FlatTypes(t),
	}
}

func (c *Compiler) compileTypeDef(t *wit.TypeDef, path []string) (*CompiledType, error) {
	if cached, ok := c.cache.Load(wit.Type(t)); ok {
		return cached.(*CompiledType), nil
	}

	info := c.info(t)
	ct := &CompiledType{
		WitSize:       info.Size,
		WitAlign:      info.Align,
		PayloadOffset: info.PayloadOffset,
		DiscSize:      info.DiscSize,
		Flat:          abi.FlatTypes(t),
	}

	switch kind := t.Kind.(type) {
	case *wit.Record:
		ct.Kind = KindRecord
		ct.Fields = make([]CompiledField, len(kind.Fields))
		for i, f := range kind.Fields {
			ft, err := c.compile(f.Type, append(path, f.Name))
			if err != nil {
				return nil, err
			}
			ct.Fields[i] = CompiledField{Name: f.Name, Type: ft, WitOffset: info.Offsets[i]}
		}
		ct.Name = typeDefName(t, "record")

	case *wit.Tuple:
		ct.Kind = KindTuple
		ct.Fields = make([]CompiledField, len(kind.Types))
		names := make([]string, len(kind.Types))
		for i, elem := range kind.Types {
			et, err := c.compile(elem, append(path, strconv.Itoa(i)))
			if err != nil {
				return nil, err
			}
			ct.Fields[i] = CompiledField{Type: et, WitOffset: info.Offsets[i]}
			names[i] = et.Name
		}
		ct.Name = "tuple<" + strings.Join(names, ", ") + ">"

	case *wit.List:
		et, err := c.compile(kind.Type, append(path, "[]"))
		if err != nil {
			return nil, err
		}
		ct.Kind = KindList
		ct.ElemType = et
		ct.Name = "list<" + et.Name + ">"

	case *wit.Option:
		et, err := c.compile(kind.Type, append(path, "some"))
		if err != nil {
			return nil, err
		}
		ct.Kind = KindOption
		ct.ElemType = et
		ct.Cases = []CompiledCase{{Name: "none"}, {Name: "some", Type: et}}
		ct.Name = "option<" + et.Name + ">"

	case *wit.Result:
		ct.Kind = KindResult
		ct.Cases = []CompiledCase{{Name: "ok"}, {Name: "error"}}
		okName, errName := "_", "_"
		if kind.OK != nil {
			ot, err := c.compile(kind.OK, append(path, "ok"))
			if err != nil {
				return nil, err
			}
			ct.Cases[0].Type = ot
			okName = ot.Name
		}
		if kind.Err != nil {
			et, err := c.compile(kind.Err, append(path, "error"))
			if err != nil {
				return nil, err
			}
			ct.Cases[1].Type = et
			errName = et.Name
		}
		ct.Name = "result<" + okName + ", " + errName + ">"

	case *wit.Variant:
		ct.Kind = KindVariant
		ct.Cases = make([]CompiledCase, len(kind.Cases))
		for i, cs := range kind.Cases {
			ct.Cases[i].Name = cs.Name
			if cs.Type == nil {
				continue
			}
			pt, err := c.compile(cs.Type, append(path, cs.Name))
			if err != nil {
				return nil, err
			}
			ct.Cases[i].Type = pt
		}
		ct.Name = typeDefName(t, "variant")

	case *wit.Enum:
		ct.Kind = KindEnum
		ct.Cases = make([]CompiledCase, len(kind.Cases))
		for i, cs := range kind.Cases {
			ct.Cases[i].Name = cs.Name
		}
		ct.Name = typeDefName(t, "enum")

	case wit.Type:
		return c.compile(kind, path)

	default:
		return nil, errors.New(errors.PhaseCompile, errors.KindUnsupported).
			Path(path...).
			Detail("unsupported WIT type definition: %T", t.Kind).
			Build()
	}

	return ct, nil
}

func typeDefName(t *wit.TypeDef, fallback string) string {
	if t.Name != nil && *t.Name != "" {
		return *t.Name
	}
	return fallback
}
