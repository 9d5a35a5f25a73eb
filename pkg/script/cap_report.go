package script

import (
	"fmt"

	"github.com/d5/tengo/v2"

	"github.com/lotus-scan/lotus/pkg/finding"
)

var vulnFields = map[string]bool{
	"risk": true, "name": true, "description": true, "url": true,
	"parameter": true, "attack_payload": true, "evidence": true,
}

// reportsModule appends to the unit's sink. add accepts the tagged shapes
// {Vuln: {...}} and {CVE: {...}}, a flat CVE with matchers, a flat
// vulnerability, and anything else as a raw JSON finding.
func (u *unit) reportsModule() *tengo.ImmutableMap {
	sink := u.env.Sink
	one := func(build func(tengo.Object) (finding.Finding, error)) tengo.CallableFunc {
		return func(args ...tengo.Object) (tengo.Object, error) {
			if err := wantArgs(args, 1, 1); err != nil {
				return nil, err
			}
			f, err := build(args[0])
			if err != nil {
				return nil, err
			}
			if f.IsZero() {
				return nil, fmt.Errorf("%w: got %s", finding.ErrEmptyFinding, args[0].TypeName())
			}
			sink.Add(f)
			return nil, nil
		}
	}
	return module(map[string]tengo.CallableFunc{
		"add":      one(toFinding),
		"add_vuln": one(vulnFinding),
		"add_cve":  one(cveFinding),
		"add_raw": one(func(o tengo.Object) (finding.Finding, error) {
			return finding.NewRaw(tengo.ToInterface(o)), nil
		}),
		"count": func(args ...tengo.Object) (tengo.Object, error) {
			if err := wantArgs(args, 0, 0); err != nil {
				return nil, err
			}
			return &tengo.Int{Value: int64(sink.Len())}, nil
		},
	})
}

func toFinding(o tengo.Object) (finding.Finding, error) {
	m, ok := mapValue(o)
	if !ok {
		return finding.NewRaw(tengo.ToInterface(o)), nil
	}
	if len(m) == 1 {
		if v, ok := m["Vuln"]; ok {
			return vulnFinding(v)
		}
		if v, ok := m["CVE"]; ok {
			return cveFinding(v)
		}
	}
	if _, ok := m["matchers"]; ok {
		return cveFinding(o)
	}
	for k := range m {
		if !vulnFields[k] {
			return finding.NewRaw(tengo.ToInterface(o)), nil
		}
	}
	return vulnFinding(o)
}

func fieldString(m map[string]tengo.Object, key string) string {
	v, ok := m[key]
	if !ok || v == tengo.UndefinedValue {
		return ""
	}
	s, _ := tengo.ToString(v)
	return s
}

func vulnFinding(o tengo.Object) (finding.Finding, error) {
	m, ok := mapValue(o)
	if !ok {
		return finding.Finding{}, tengo.ErrInvalidArgumentType{Name: "vuln", Expected: "map", Found: o.TypeName()}
	}
	return finding.NewVuln(finding.Vulnerability{
		Risk:          fieldString(m, "risk"),
		Name:          fieldString(m, "name"),
		Description:   fieldString(m, "description"),
		URL:           fieldString(m, "url"),
		Parameter:     fieldString(m, "parameter"),
		AttackPayload: fieldString(m, "attack_payload"),
		Evidence:      fieldString(m, "evidence"),
	}), nil
}

// cveFinding reads matchers as an array of single-key maps such as
// {ResponseBody: "root:x:0:0"}.
func cveFinding(o tengo.Object) (finding.Finding, error) {
	m, ok := mapValue(o)
	if !ok {
		return finding.Finding{}, tengo.ErrInvalidArgumentType{Name: "cve", Expected: "map", Found: o.TypeName()}
	}
	c := finding.CVE{
		Name:        fieldString(m, "name"),
		Description: fieldString(m, "description"),
		URL:         fieldString(m, "url"),
		Risk:        fieldString(m, "risk"),
	}
	if raw, ok := m["matchers"]; ok && raw != tengo.UndefinedValue {
		entries, err := elements(raw, "matchers")
		if err != nil {
			return finding.Finding{}, err
		}
		for i, e := range entries {
			em, ok := mapValue(e)
			if !ok || len(em) != 1 {
				return finding.Finding{}, fmt.Errorf("matchers[%d]: want a map with one tag", i)
			}
			for tag, v := range em {
				kind, err := finding.ParseMatcherKind(tag)
				if err != nil {
					return finding.Finding{}, fmt.Errorf("matchers[%d]: %w", i, err)
				}
				c.Matchers = append(c.Matchers, finding.Matcher{Kind: kind, Value: tengo.ToInterface(v)})
			}
		}
	}
	return finding.NewCVE(c), nil
}
