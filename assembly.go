package imago

import (
	"net/http"
	"strings"

	"github.com/camshaft/imago/params"
)

const (
	importStep = "import"
	outStep    = "out"

	importRobot = "/s3/import"
	resizeRobot = "/image/resize"

	templateParam = "template_id"
)

// Step is one step of an assembly: a robot name plus its parameters.
type Step map[string]any

// Assembly is the job description submitted for a single request.
type Assembly struct {
	Steps map[string]Step `json:"steps,omitempty"`

	// TemplateID selects a server side template. It is coerced like any
	// other parameter, so it may hold a non-string value.
	TemplateID any `json:"template_id,omitempty"`
}

// Credentials give the import step access to the source bucket.
type Credentials struct {
	Bucket string
	Key    string
	Secret string
}

// ObjectKey returns the storage key addressed by r: the request path without
// its leading slash and without the query string.
func ObjectKey(r *http.Request) string {
	return strings.TrimPrefix(r.URL.Path, "/")
}

// BuildAssembly assembles the job for the object at path. The out step gets
// every catalog parameter that is present in query or has a non-nil default,
// coerced. template_id is copied next to the steps when present.
func BuildAssembly(path string, query params.Query, creds Credentials, catalog *params.Catalog) *Assembly {
	out := Step{
		"robot": resizeRobot,
		"use":   importStep,
	}
	for _, p := range catalog.All() {
		setParam(out, query, p.Name, p.Default)
	}

	a := &Assembly{
		Steps: map[string]Step{
			importStep: {
				"robot":  importRobot,
				"key":    creds.Key,
				"secret": creds.Secret,
				"bucket": creds.Bucket,
				"path":   path,
			},
			outStep: out,
		},
	}

	if v, ok := query.Get(templateParam); ok {
		a.TemplateID = coerceSet(v)
	}
	return a
}

// setParam resolves name from query, falling back to def unless def is nil.
func setParam(step Step, query params.Query, name string, def any) {
	v, ok := query.Get(name)
	if !ok {
		if def == nil {
			return
		}
		v = def
	}
	step[name] = coerceSet(v)
}

func coerceSet(v any) any {
	if v == nil {
		return nil
	}
	return params.Coerce(v)
}
