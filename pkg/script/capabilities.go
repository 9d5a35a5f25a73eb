package script

import (
	"github.com/d5/tengo/v2"

	"github.com/lotus-scan/lotus/pkg/params"
	"github.com/lotus-scan/lotus/pkg/target"
)

// module builds an immutable namespace of host functions.
func module(fns map[string]tengo.CallableFunc) *tengo.ImmutableMap {
	m := make(map[string]tengo.Object, len(fns))
	for name, fn := range fns {
		m[name] = &tengo.UserFunction{Name: name, Value: fn}
	}
	return &tengo.ImmutableMap{Value: m}
}

func fn(name string, f tengo.CallableFunc) tengo.Object {
	return &tengo.UserFunction{Name: name, Value: f}
}

// capabilities returns the globals of one unit: the per-unit values first,
// then the capability surface. Globals not set here stay undefined.
func (u *unit) capabilities() map[string]tengo.Object {
	env := u.env
	b := map[string]tengo.Object{
		"SCRIPT_PATH":  str(u.prog.Path),
		"FUZZ_WORKERS": &tengo.Int{Value: int64(env.FuzzWorkers)},
	}
	if vars, err := toObject(env.Vars); err == nil {
		b["ENV"] = vars
	} else {
		u.logger.Warn("env vars not bound", "error", err)
	}

	t := env.Target
	switch t.Kind {
	case target.Host:
		b["TARGET_HOST"] = str(t.Value)
	case target.Custom:
		if data, err := toObject(t.Data); err == nil {
			b["INPUT_DATA"] = data
		} else {
			u.logger.Warn("input data not bound", "error", err)
		}
	case target.URL, target.Path, target.FullHTTP:
		raw := t.Value
		if t.Request != nil {
			raw = t.Request.URL
		}
		if msg, err := params.Parse(raw); err == nil {
			b["HttpMessage"] = u.httpMessage(msg, t.Request)
		} else {
			u.logger.Warn("target url not bound", "error", err)
		}
	}

	b["http"] = u.httpModule()

	matcher := u.matcherModule()
	b["Matcher"] = matcher
	b["is_match"] = matcher.Value["is_match"]
	for name, f := range u.htmlFuncs() {
		b[name] = f
	}
	for name, f := range codecFuncs() {
		b[name] = f
	}

	b["Reports"] = u.reportsModule()
	threader := u.threaderModule()
	b["Threader"] = threader
	b["LuaThreader"] = threader
	b["ParamScan"] = &ParamScan{}

	for name, f := range u.logFuncs() {
		b[name] = f
	}
	for name, f := range u.helperFuncs() {
		b[name] = f
	}

	if env.OOB != nil {
		b["OOB"] = u.oobModule()
	}
	if env.Browser != nil {
		b["Browser"] = u.browserModule()
	}
	return b
}
