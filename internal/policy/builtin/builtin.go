// Package builtin assembles the registry of policy languages shipped with justact.
package builtin

import (
	"fmt"

	"github.com/ppiankov/justact/internal/policy"
	"github.com/ppiankov/justact/internal/policy/celrules"
	"github.com/ppiankov/justact/internal/policy/datalog"
	"github.com/ppiankov/justact/internal/policy/lua"
)

// Options tunes the resource limits of the built-in backends.
type Options struct {
	CELCostLimit uint64
	LuaFactLimit int
}

// Registry returns a registry with the datalog, cel and lua backends.
func Registry(opts Options) (*policy.Registry, error) {
	cel, err := celrules.New(opts.CELCostLimit)
	if err != nil {
		return nil, err
	}
	r := policy.NewRegistry()
	for _, b := range []policy.Backend{datalog.New(), cel, lua.New(opts.LuaFactLimit)} {
		if err := r.Register(b); err != nil {
			return nil, fmt.Errorf("builtin: %w", err)
		}
	}
	return r, nil
}
