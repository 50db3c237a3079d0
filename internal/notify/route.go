package notify

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/google/cel-go/cel"

	"github.com/katasec/dstream-rowwatch/pkg/cdc"
)

// RouteConfig describes the message sent for each row of one change class.
type RouteConfig struct {
	Change    cdc.ChangeType
	To        string // text/template
	Message   string // text/template
	Reference string // optional reference lookup exposed as .Ref and ref
	When      string // optional CEL filter over row, id and ref
}

// Route is a compiled RouteConfig.
type Route struct {
	change    cdc.ChangeType
	to        *template.Template
	message   *template.Template
	reference string
	when      cel.Program
}

// TemplateData is what To and Message templates see.
type TemplateData struct {
	Watcher string
	Change  cdc.ChangeType
	ID      cdc.Identity
	Row     cdc.Row
	Ref     cdc.Row
}

var filterEnv *cel.Env

func init() {
	var err error
	filterEnv, err = cel.NewEnv(
		cel.Variable("row", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("ref", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("id", cel.IntType),
	)
	if err != nil {
		panic(err)
	}
}

// NewRoute compiles the templates and filter of cfg.
func NewRoute(cfg RouteConfig) (*Route, error) {
	switch cfg.Change {
	case cdc.Insert, cdc.Update, cdc.Delete:
	default:
		return nil, fmt.Errorf("unknown change type %q", cfg.Change)
	}

	to, err := parseTemplate("to", cfg.To)
	if err != nil {
		return nil, err
	}
	message, err := parseTemplate("message", cfg.Message)
	if err != nil {
		return nil, err
	}

	r := &Route{change: cfg.Change, to: to, message: message, reference: cfg.Reference}
	if strings.TrimSpace(cfg.When) != "" {
		ast, issues := filterEnv.Compile(cfg.When)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("CEL compile error: %w", issues.Err())
		}
		r.when, err = filterEnv.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("CEL program creation error: %w", err)
		}
	}
	return r, nil
}

func parseTemplate(name, text string) (*template.Template, error) {
	if text == "" {
		return nil, fmt.Errorf("%s template cannot be empty", name)
	}
	t, err := template.New(name).Funcs(sprig.TxtFuncMap()).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("invalid %s template: %w", name, err)
	}
	return t, nil
}

// Change returns the change class the route reacts to.
func (r *Route) Change() cdc.ChangeType { return r.change }

// Match evaluates the filter; routes without one match every row.
func (r *Route) Match(data TemplateData) (bool, error) {
	if r.when == nil {
		return true, nil
	}
	out, _, err := r.when.Eval(map[string]any{
		"row": nonNil(data.Row),
		"ref": nonNil(data.Ref),
		"id":  int64(data.ID),
	})
	if err != nil {
		return false, fmt.Errorf("CEL evaluation error: %w", err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("filter returned %T, want bool", out.Value())
	}
	return b, nil
}

// Render produces the destination and body for one row.
func (r *Route) Render(data TemplateData) (to, body string, err error) {
	var buf bytes.Buffer
	if err := r.to.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("failed to render destination: %w", err)
	}
	to = strings.TrimSpace(buf.String())

	buf.Reset()
	if err := r.message.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("failed to render message: %w", err)
	}
	return to, buf.String(), nil
}

func nonNil(row cdc.Row) map[string]any {
	if row == nil {
		return map[string]any{}
	}
	return row
}
