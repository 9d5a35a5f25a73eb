package script

import (
	"github.com/d5/tengo/v2"

	"github.com/lotus-scan/lotus/pkg/params"
	"github.com/lotus-scan/lotus/pkg/target"
)

// httpMessage exposes URL manipulation over the unit's target. setUrl is
// the only method that changes it.
func (u *unit) httpMessage(msg *params.Message, req *target.Request) *tengo.ImmutableMap {
	noArgs := func(f func() tengo.Object) tengo.CallableFunc {
		return func(args ...tengo.Object) (tengo.Object, error) {
			if len(args) != 0 {
				return nil, tengo.ErrWrongNumArguments
			}
			return f(), nil
		}
	}

	return module(map[string]tengo.CallableFunc{
		"Url":       noArgs(func() tengo.Object { return str(msg.URL()) }),
		"Path":      noArgs(func() tengo.Object { return str(msg.Path()) }),
		"Host":      noArgs(func() tengo.Object { return str(msg.Host()) }),
		"TxtParams": noArgs(func() tengo.Object { return str(msg.RawQuery()) }),
		"Params": noArgs(func() tengo.Object {
			ps := msg.Params()
			arr := make([]tengo.Object, len(ps))
			for i, p := range ps {
				arr[i] = &tengo.ImmutableMap{Value: map[string]tengo.Object{
					"name":  str(p.Name),
					"value": str(p.Value),
				}}
			}
			return &tengo.Array{Value: arr}
		}),
		"Request": noArgs(func() tengo.Object {
			if req == nil {
				return tengo.UndefinedValue
			}
			return &tengo.Map{Value: map[string]tengo.Object{
				"method":  str(req.Method),
				"url":     str(req.URL),
				"headers": stringMapObject(req.Headers),
				"body":    str(req.Body),
			}}
		}),
		"setParam": func(args ...tengo.Object) (tengo.Object, error) {
			if err := wantArgs(args, 2, 3); err != nil {
				return nil, err
			}
			name, err := argString(args, 0, "name")
			if err != nil {
				return nil, err
			}
			payload, err := argString(args, 1, "payload")
			if err != nil {
				return nil, err
			}
			replace := false
			if len(args) == 3 {
				if replace, err = argBool(args, 2, "remove_content"); err != nil {
					return nil, err
				}
			}
			return str(msg.SetParam(name, payload, replace)), nil
		},
		"setAllParams": func(args ...tengo.Object) (tengo.Object, error) {
			if err := wantArgs(args, 1, 2); err != nil {
				return nil, err
			}
			payload, err := argString(args, 0, "payload")
			if err != nil {
				return nil, err
			}
			replace := false
			if len(args) == 2 {
				if replace, err = argBool(args, 1, "remove_content"); err != nil {
					return nil, err
				}
			}
			out := make(map[string]tengo.Object)
			for _, v := range msg.SetAllParams(payload, replace) {
				out[v.Name] = str(v.URL)
			}
			return &tengo.Map{Value: out}, nil
		},
		"urlJoin": func(args ...tengo.Object) (tengo.Object, error) {
			if err := wantArgs(args, 1, 1); err != nil {
				return nil, err
			}
			ref, err := argString(args, 0, "ref")
			if err != nil {
				return nil, err
			}
			joined, err := msg.Join(ref)
			if err != nil {
				return errValue(err.Error()), nil
			}
			return str(joined), nil
		},
		"setUrl": func(args ...tengo.Object) (tengo.Object, error) {
			if err := wantArgs(args, 1, 1); err != nil {
				return nil, err
			}
			raw, err := argString(args, 0, "url")
			if err != nil {
				return nil, err
			}
			if err := msg.SetURL(raw); err != nil {
				return errValue(err.Error()), nil
			}
			return tengo.TrueValue, nil
		},
	})
}
