package engine

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-cabi/errors"
	"github.com/wippyai/wasm-cabi/export"
)

var blockResult = []api.ValueType{api.ValueTypeI32}

// Instantiate exposes every export of table as a function of one host
// module. An export named "iface#fn" becomes a core function of that name
// taking the flat parameters and returning the result block address, plus
// "cabi_post_iface#fn" taking the block.
//
// The core calling convention has no error channel, so a failed call
// traps the calling module.
func Instantiate(ctx context.Context, r wazero.Runtime, table *export.Table, src ArenaSource, cfg Config) (api.Module, error) {
	if r == nil {
		return nil, errors.NilPointer(errors.PhaseRoute, nil, "wazero.Runtime")
	}
	if table == nil {
		return nil, errors.NilPointer(errors.PhaseRoute, nil, "*export.Table")
	}
	if src == nil {
		return nil, errors.NilPointer(errors.PhaseRoute, nil, "ArenaSource")
	}

	name := cfg.moduleName()
	builder := r.NewHostModuleBuilder(name)
	for _, e := range table.Exports() {
		builder.NewFunctionBuilder().
			WithGoModuleFunction(callFunc(e, src), e.ParamTypes(), blockResult).
			WithName(e.Name()).
			Export(e.Name())

		builder.NewFunctionBuilder().
			WithGoModuleFunction(postReturnFunc(e, src), blockResult, nil).
			WithName(export.PostReturnName(e.Name())).
			Export(export.PostReturnName(e.Name()))
	}

	mod, err := builder.Instantiate(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseRoute, errors.KindRegistration, err, "instantiate host module "+name)
	}
	Logger().Debug("host module instantiated",
		zap.String("module", name),
		zap.Int("exports", table.Len()))
	return mod, nil
}

func callFunc(e *export.Export, src ArenaSource) api.GoModuleFunc {
	n := len(e.ParamTypes())
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		a, err := src.Arena(ctx, mod)
		if err != nil {
			trap(e.Name(), err)
		}
		block, err := e.Call(a, stack[:n])
		if err != nil {
			trap(e.Name(), err)
		}
		stack[0] = api.EncodeU32(block)
	}
}

func postReturnFunc(e *export.Export, src ArenaSource) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		a, err := src.Arena(ctx, mod)
		if err != nil {
			trap(export.PostReturnName(e.Name()), err)
		}
		if err := e.PostReturn(a, api.DecodeU32(stack[0])); err != nil {
			trap(export.PostReturnName(e.Name()), err)
		}
	}
}

func trap(symbol string, err error) {
	Logger().Error("host call failed", zap.String("symbol", symbol), zap.Error(err))
	panic(err)
}
