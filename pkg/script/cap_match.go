package script

import (
	"strings"

	"github.com/d5/tengo/v2"

	"github.com/lotus-scan/lotus/pkg/encoding"
	"github.com/lotus-scan/lotus/pkg/htmlutil"
	"github.com/lotus-scan/lotus/pkg/regexcache"
)

// matcherModule matches by containment; is_match is the regex form.
func (u *unit) matcherModule() *tengo.ImmutableMap {
	return module(map[string]tengo.CallableFunc{
		"match_body": func(args ...tengo.Object) (tengo.Object, error) {
			body, patterns, err := matchArgs(args)
			if err != nil {
				return nil, err
			}
			for _, p := range patterns {
				if strings.Contains(body, p) {
					return tengo.TrueValue, nil
				}
			}
			return tengo.FalseValue, nil
		},
		"match_body_once": func(args ...tengo.Object) (tengo.Object, error) {
			body, patterns, err := matchArgs(args)
			if err != nil {
				return nil, err
			}
			for _, p := range patterns {
				if strings.Contains(body, p) {
					return str(p), nil
				}
			}
			return str(""), nil
		},
		"is_match": func(args ...tengo.Object) (tengo.Object, error) {
			if err := wantArgs(args, 2, 2); err != nil {
				return nil, err
			}
			pattern, err := argString(args, 0, "pattern")
			if err != nil {
				return nil, err
			}
			text, err := argString(args, 1, "text")
			if err != nil {
				return nil, err
			}
			ok, err := regexcache.IsMatch(pattern, text)
			if err != nil {
				u.logger.Debug("regex failed", "pattern", pattern, "error", err)
				return errValue(err.Error()), nil
			}
			return boolean(ok), nil
		},
	})
}

// matchArgs reads (body, patterns); patterns may be one string or an array.
func matchArgs(args []tengo.Object) (string, []string, error) {
	if err := wantArgs(args, 2, 2); err != nil {
		return "", nil, err
	}
	body, err := argString(args, 0, "body")
	if err != nil {
		return "", nil, err
	}
	patterns, err := stringsOf(args[1], "patterns")
	if err != nil {
		return "", nil, err
	}
	return body, patterns, nil
}

func (u *unit) htmlFuncs() map[string]tengo.Object {
	return map[string]tengo.Object{
		"generate_css_selector": fn("generate_css_selector", func(args ...tengo.Object) (tengo.Object, error) {
			if err := wantArgs(args, 1, 1); err != nil {
				return nil, err
			}
			fragment, err := argString(args, 0, "fragment")
			if err != nil {
				return nil, err
			}
			sel, err := htmlutil.Selector(fragment)
			if err != nil {
				return errValue(err.Error()), nil
			}
			return str(sel), nil
		}),
		"html_parse": fn("html_parse", func(args ...tengo.Object) (tengo.Object, error) {
			if err := wantArgs(args, 2, 2); err != nil {
				return nil, err
			}
			body, err := argString(args, 0, "html")
			if err != nil {
				return nil, err
			}
			payload, err := argString(args, 1, "payload")
			if err != nil {
				return nil, err
			}
			locs := htmlutil.Locate(body, payload)
			arr := make([]tengo.Object, len(locs))
			for i, l := range locs {
				arr[i] = &tengo.ImmutableMap{Value: map[string]tengo.Object{
					"type":  str(l.Kind.String()),
					"value": str(l.Value),
				}}
			}
			return &tengo.Array{Value: arr}, nil
		}),
		"html_search": fn("html_search", func(args ...tengo.Object) (tengo.Object, error) {
			if err := wantArgs(args, 2, 2); err != nil {
				return nil, err
			}
			body, err := argString(args, 0, "html")
			if err != nil {
				return nil, err
			}
			sel, err := argString(args, 1, "selector")
			if err != nil {
				return nil, err
			}
			found, err := htmlutil.Search(body, sel)
			if err != nil {
				return errValue(err.Error()), nil
			}
			return stringArray(found), nil
		}),
		"XSSGenerator": fn("XSSGenerator", func(args ...tengo.Object) (tengo.Object, error) {
			if err := wantArgs(args, 3, 3); err != nil {
				return nil, err
			}
			body, err := argString(args, 0, "response")
			if err != nil {
				return nil, err
			}
			kind, err := locationKind(args[1])
			if err != nil {
				return nil, err
			}
			seed, err := argString(args, 2, "payload")
			if err != nil {
				return nil, err
			}
			payloads := u.env.XSS.Generate(body, kind, seed)
			arr := make([]tengo.Object, len(payloads))
			for i, p := range payloads {
				arr[i] = &tengo.ImmutableMap{Value: map[string]tengo.Object{
					"search":  str(p.Search),
					"payload": str(p.Payload),
				}}
			}
			return &tengo.Array{Value: arr}, nil
		}),
	}
}

// locationKind accepts an html_parse entry or a bare tag name.
func locationKind(o tengo.Object) (htmlutil.Kind, error) {
	name, ok := o.(*tengo.String)
	if !ok {
		m, isMap := mapValue(o)
		if !isMap {
			return 0, tengo.ErrInvalidArgumentType{Name: "location", Expected: "map or string", Found: o.TypeName()}
		}
		if name, ok = m["type"].(*tengo.String); !ok {
			return 0, tengo.ErrInvalidArgumentType{Name: "location.type", Expected: "string", Found: "undefined"}
		}
	}
	k, ok := htmlutil.ParseKind(name.Value)
	if !ok {
		return 0, tengo.ErrInvalidArgumentType{Name: "location", Expected: "Text, TagName, AttrName, AttrValue or Comment", Found: name.Value}
	}
	return k, nil
}

func codecFuncs() map[string]tengo.Object {
	plain := func(name string, f func(string) string) tengo.Object {
		return fn(name, func(args ...tengo.Object) (tengo.Object, error) {
			if err := wantArgs(args, 1, 1); err != nil {
				return nil, err
			}
			s, err := argString(args, 0, "s")
			if err != nil {
				return nil, err
			}
			return str(f(s)), nil
		})
	}
	fallible := func(name string, f func(string) (string, error)) tengo.Object {
		return fn(name, func(args ...tengo.Object) (tengo.Object, error) {
			if err := wantArgs(args, 1, 1); err != nil {
				return nil, err
			}
			s, err := argString(args, 0, "s")
			if err != nil {
				return nil, err
			}
			out, err := f(s)
			if err != nil {
				return errValue(err.Error()), nil
			}
			return str(out), nil
		})
	}
	named := func(name string, f func(string, string) (string, error)) tengo.Object {
		return fn(name, func(args ...tengo.Object) (tengo.Object, error) {
			if err := wantArgs(args, 2, 2); err != nil {
				return nil, err
			}
			enc, err := argString(args, 0, "encoder")
			if err != nil {
				return nil, err
			}
			s, err := argString(args, 1, "s")
			if err != nil {
				return nil, err
			}
			out, err := f(enc, s)
			if err != nil {
				return errValue(err.Error()), nil
			}
			return str(out), nil
		})
	}

	return map[string]tengo.Object{
		"base64encode": plain("base64encode", encoding.Base64Encode),
		"base64decode": fallible("base64decode", encoding.Base64Decode),
		"urlencode":    plain("urlencode", encoding.URLEncode),
		"urldecode":    fallible("urldecode", encoding.URLDecode),
		"htmlencode":   plain("htmlencode", encoding.HTMLEncode),
		"htmldecode":   plain("htmldecode", encoding.HTMLDecode),
		"encode":       named("encode", encoding.Encode),
		"decode":       named("decode", encoding.Decode),
	}
}
