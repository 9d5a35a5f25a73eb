package script

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/d5/tengo/v2"

	"github.com/lotus-scan/lotus/pkg/httpclient"
)

// httpModule binds the unit's Sender. A failed send returns an error value
// whose payload is the classification tag, e.g. error("timeout_error").
func (u *unit) httpModule() *tengo.ImmutableMap {
	s := u.env.Sender
	return module(map[string]tengo.CallableFunc{
		"send": func(args ...tengo.Object) (tengo.Object, error) {
			if err := wantArgs(args, 1, 2); err != nil {
				return nil, err
			}
			opts, err := sendOptions(args)
			if err != nil {
				return nil, err
			}
			resp, err := s.Send(u.ctx, opts)
			if err != nil {
				kind := httpclient.Classify(err)
				detail := err.Error()
				var he *httpclient.Error
				if errors.As(err, &he) {
					detail = he.Detail()
				}
				u.logger.Debug("http send failed",
					slog.String("url", opts.URL),
					slog.String("error", detail))
				return errValue(string(kind)), nil
			}
			return responseObject(resp), nil
		},
		"set_proxy": func(args ...tengo.Object) (tengo.Object, error) {
			if err := wantArgs(args, 1, 1); err != nil {
				return nil, err
			}
			if args[0] == tengo.UndefinedValue {
				s.SetProxy("")
				return nil, nil
			}
			p, err := argString(args, 0, "proxy")
			if err != nil {
				return nil, err
			}
			if _, err := httpclient.ParseProxyURL(p); err != nil {
				return errValue(string(httpclient.KindExternal)), nil
			}
			s.SetProxy(p)
			return nil, nil
		},
		"set_timeout": func(args ...tengo.Object) (tengo.Object, error) {
			if err := wantArgs(args, 1, 1); err != nil {
				return nil, err
			}
			d, err := argSeconds(args[0], "seconds")
			if err != nil {
				return nil, err
			}
			s.SetTimeout(d)
			return nil, nil
		},
		"set_redirects": func(args ...tengo.Object) (tengo.Object, error) {
			if err := wantArgs(args, 1, 1); err != nil {
				return nil, err
			}
			n, err := argInt(args, 0, "count")
			if err != nil {
				return nil, err
			}
			s.SetRedirects(n)
			return nil, nil
		},
		"merge_headers": func(args ...tengo.Object) (tengo.Object, error) {
			if err := wantArgs(args, 1, 1); err != nil {
				return nil, err
			}
			h, err := stringMap(args[0], "headers")
			if err != nil {
				return nil, err
			}
			s.MergeHeaders(h)
			return nil, nil
		},
	})
}

// sendOptions reads send(opts) or the shorthand send(method, url).
func sendOptions(args []tengo.Object) (httpclient.Options, error) {
	if len(args) == 2 {
		method, err := argString(args, 0, "method")
		if err != nil {
			return httpclient.Options{}, err
		}
		rawURL, err := argString(args, 1, "url")
		if err != nil {
			return httpclient.Options{}, err
		}
		return httpclient.Options{Method: method, URL: rawURL}, nil
	}
	if s, ok := args[0].(*tengo.String); ok {
		return httpclient.Options{URL: s.Value}, nil
	}

	m, err := argMap(args, 0, "opts")
	if err != nil {
		return httpclient.Options{}, err
	}

	var opts httpclient.Options
	for key, v := range m {
		if v == tengo.UndefinedValue {
			continue
		}
		switch key {
		case "method":
			opts.Method, _ = tengo.ToString(v)
		case "url":
			opts.URL, _ = tengo.ToString(v)
		case "body":
			opts.Body, _ = tengo.ToString(v)
		case "headers":
			if opts.Headers, err = stringMap(v, "headers"); err != nil {
				return opts, err
			}
		case "merge_headers":
			opts.NoMerge = v.IsFalsy()
		case "multipart":
			if opts.Multipart, err = multipart(v); err != nil {
				return opts, err
			}
		case "timeout":
			if opts.Timeout, err = argSeconds(v, "timeout"); err != nil {
				return opts, err
			}
		case "proxy":
			p, _ := tengo.ToString(v)
			opts.Proxy = &p
		case "redirect", "redirects":
			n, ok := tengo.ToInt(v)
			if !ok {
				return opts, tengo.ErrInvalidArgumentType{Name: key, Expected: "int", Found: v.TypeName()}
			}
			opts.Redirects = &n
		case "http1_only":
			opts.HTTP1Only = !v.IsFalsy()
		case "http2_only":
			opts.HTTP2Only = !v.IsFalsy()
		}
	}
	if opts.URL == "" {
		return opts, tengo.ErrInvalidArgumentType{Name: "opts.url", Expected: "string", Found: "undefined"}
	}
	return opts, nil
}

func multipart(o tengo.Object) (map[string]httpclient.Part, error) {
	m, ok := mapValue(o)
	if !ok {
		return nil, tengo.ErrInvalidArgumentType{Name: "multipart", Expected: "map", Found: o.TypeName()}
	}
	parts := make(map[string]httpclient.Part, len(m))
	for name, v := range m {
		if s, ok := v.(*tengo.String); ok {
			parts[name] = httpclient.Part{Content: s.Value}
			continue
		}
		pm, ok := mapValue(v)
		if !ok {
			return nil, tengo.ErrInvalidArgumentType{Name: "multipart." + name, Expected: "map or string", Found: v.TypeName()}
		}
		var p httpclient.Part
		if c, ok := pm["content"]; ok {
			p.Content, _ = tengo.ToString(c)
		}
		if f, ok := pm["filename"]; ok && f != tengo.UndefinedValue {
			p.Filename, _ = tengo.ToString(f)
		}
		if ct, ok := pm["content_type"]; ok && ct != tengo.UndefinedValue {
			p.ContentType, _ = tengo.ToString(ct)
		}
		if h, ok := pm["headers"]; ok && h != tengo.UndefinedValue {
			hs, err := stringMap(h, "multipart."+name+".headers")
			if err != nil {
				return nil, err
			}
			p.Headers = hs
		}
		parts[name] = p
	}
	return parts, nil
}

func responseObject(r *httpclient.Response) tengo.Object {
	headers := make(map[string]tengo.Object, len(r.Headers))
	for k, v := range r.Headers {
		headers[strings.ToLower(k)] = str(v)
	}
	return &tengo.Map{Value: map[string]tengo.Object{
		"reason":      str(r.Reason),
		"version":     str(r.Version),
		"is_redirect": boolean(r.IsRedirect),
		"url":         str(r.URL),
		"status":      &tengo.Int{Value: int64(r.Status)},
		"body":        str(r.Body),
		"headers":     &tengo.Map{Value: headers},
	}}
}
