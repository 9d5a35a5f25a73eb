package script

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/lotus-scan/lotus/pkg/target"
)

// starter is the body of a new script. Each kind gets the globals it is
// bound and a main that shows the usual calls for that kind.
const starter = `// {{ .Name }}: {{ .Description | default "new scan script" }}
// generated {{ now | date "2006-01-02" }}

SCAN_TYPE := "{{ .Kind }}"

{{- if eq .Kind "url" "path" "full_http" }}

PAYLOADS := ["'", "\"", "<{{ .Name | snakecase | upper }}>"]

check := func(payload) {
	for name, link in HttpMessage.setAllParams(payload, false) {
		resp := http.send({method: "GET", url: link})
		if is_error(resp) {
			log_debug(name, resp.value)
			continue
		}
		if Matcher.match_body(resp.body, payload) {
			Reports.add({Vuln: {
				risk: "{{ .Risk }}",
				name: "{{ .Name }}",
				url: link,
				parameter: name,
				attack_payload: payload,
				evidence: payload
			}})
			Threader.stop_scan()
			return
		}
	}
}

main := func() {
	Threader.run_scan(PAYLOADS, check, FUZZ_WORKERS)
}
{{- else if eq .Kind "host" }}

main := func() {
	resp := http.send({method: "GET", url: "http://" + TARGET_HOST + "/"})
	if is_error(resp) {
		return
	}
	if resp.status == 200 {
		Reports.add({Vuln: {risk: "{{ .Risk }}", name: "{{ .Name }}", url: resp.url}})
	}
}
{{- else }}

main := func() {
	log_info("input", INPUT_DATA)
}

parse_input := func(lines) {
	out := []
	for line in lines {
		out = append(out, {value: line})
	}
	return out
}
{{- end }}
`

// StarterOptions configures NewStarter.
type StarterOptions struct {
	Name        string
	Kind        target.Kind
	Risk        string
	Description string
}

var starterTmpl = template.Must(template.New("starter").Funcs(sprig.TxtFuncMap()).Parse(starter))

// NewStarter renders a starter script for one target kind.
func NewStarter(opts StarterOptions) ([]byte, error) {
	if !opts.Kind.Valid() {
		return nil, fmt.Errorf("starter: unknown scan type %d", opts.Kind)
	}
	if opts.Name == "" {
		opts.Name = "new-check"
	}
	if opts.Risk == "" {
		opts.Risk = "medium"
	}
	var buf bytes.Buffer
	err := starterTmpl.Execute(&buf, map[string]any{
		"Name":        opts.Name,
		"Kind":        opts.Kind.String(),
		"Risk":        opts.Risk,
		"Description": opts.Description,
	})
	if err != nil {
		return nil, fmt.Errorf("render starter: %w", err)
	}
	return buf.Bytes(), nil
}
