package script

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/d5/tengo/v2"
)

// unit is one scan unit's view of a program: the bindings every clone of
// the unit receives, and the context its calls run under.
type unit struct {
	prog     *Program
	env      *Env
	ctx      context.Context
	logger   *slog.Logger
	bindings map[string]tengo.Object
}

func (p *Program) newUnit(ctx context.Context, env *Env) *unit {
	env = env.withDefaults()
	u := &unit{
		prog: p,
		env:  env,
		ctx:  ctx,
		logger: env.Logger.With(
			slog.String("script", p.Path),
			slog.String("target", env.Target.String())),
	}
	u.bindings = u.capabilities()
	return u
}

// perClone names the data globals a script may mutate. Every clone gets
// its own deep copy so concurrent run_scan calls never share a map.
var perClone = map[string]bool{
	"ENV":        true,
	"INPUT_DATA": true,
}

// invoke runs fn in a fresh clone. item is passed to fn unless fn is main.
func (u *unit) invoke(ctx context.Context, fn string, item tengo.Object) (tengo.Object, error) {
	c := u.prog.compiled.Clone()
	for name, obj := range u.bindings {
		if perClone[name] {
			obj = obj.Copy()
		}
		if err := c.Set(name, obj); err != nil {
			return nil, err
		}
	}
	if item == nil {
		item = tengo.UndefinedValue
	}
	if err := c.Set(itemVar, item); err != nil {
		return nil, err
	}
	if err := c.Set(invokeVar, fn); err != nil {
		return nil, err
	}
	if err := c.RunContext(ctx); err != nil {
		return nil, err
	}
	return c.Get(resultVar).Object(), nil
}

// Run executes main for one scan unit. Findings land in env.Sink.
func (p *Program) Run(ctx context.Context, env *Env) error {
	if p.err != nil {
		return p.err
	}
	if !p.hasMain {
		return fmt.Errorf("%w: %s", ErrNoMain, p.Path)
	}

	u := p.newUnit(ctx, env)
	res, err := u.invoke(ctx, "main", nil)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrRuntime, p.Path, err)
	}
	if e, ok := res.(*tengo.Error); ok {
		return fmt.Errorf("%w: %s: main returned %s", ErrRuntime, p.Path, e)
	}
	return nil
}

// Call runs the top-level function fn with one argument and returns its
// result as a Go value.
func (p *Program) Call(ctx context.Context, env *Env, fn string, arg any) (any, error) {
	if p.err != nil {
		return nil, p.err
	}
	if n, ok := p.arity[fn]; !ok || n == 0 {
		return nil, fmt.Errorf("%w: %s: %s(arg)", ErrNoFunction, p.Path, fn)
	}

	obj, err := toObject(arg)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", p.Path, fn, err)
	}
	u := p.newUnit(ctx, env)
	res, err := u.invoke(ctx, fn, obj)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRuntime, p.Path, err)
	}
	if e, ok := res.(*tengo.Error); ok {
		return nil, fmt.Errorf("%w: %s: %s returned %s", ErrRuntime, p.Path, fn, e)
	}
	return tengo.ToInterface(res), nil
}

// funcName resolves a function value or name passed by the script.
func (u *unit) funcName(o tengo.Object) (string, error) {
	switch v := o.(type) {
	case *tengo.String:
		if n, ok := u.prog.arity[v.Value]; ok && n != 0 {
			return v.Value, nil
		}
		return "", fmt.Errorf("%w: %q", ErrNoFunction, v.Value)
	case *tengo.CompiledFunction:
		name, ok := u.prog.funcs[v]
		if !ok {
			return "", fmt.Errorf("%w: closures cannot be dispatched, pass a top-level function", ErrNoFunction)
		}
		if u.prog.arity[name] == 0 {
			return "", fmt.Errorf("%w: %s takes no argument", ErrNoFunction, name)
		}
		return name, nil
	}
	return "", tengo.ErrInvalidArgumentType{Name: "fn", Expected: "function or string", Found: o.TypeName()}
}
