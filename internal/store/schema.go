package store

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/tessera-qa/tessera/internal/model"
)

//go:embed schema/case.schema.json
var caseSchemaJSON []byte

//go:embed schema/suite.schema.json
var suiteSchemaJSON []byte

//go:embed schema/plan.schema.json
var planSchemaJSON []byte

var (
	caseSchema  = mustCompileSchema("case.schema.json", caseSchemaJSON)
	suiteSchema = mustCompileSchema("suite.schema.json", suiteSchemaJSON)
	planSchema  = mustCompileSchema("plan.schema.json", planSchemaJSON)
)

func mustCompileSchema(name string, raw []byte) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(name, bytes.NewReader(raw)); err != nil {
		panic(fmt.Sprintf("add embedded schema %s: %v", name, err))
	}
	return c.MustCompile(name)
}

// validateManifestSchema checks raw manifest bytes against an embedded
// schema before any struct decoding happens. Plan environment violations
// map to Plan.Environment.Invalid; everything else is Manifest.Invalid
// carrying the offending field location.
func validateManifestSchema(schema *jsonschema.Schema, raw []byte, path string, plan bool) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return model.Errorf(model.ErrManifestInvalid, "not valid JSON: %v", err).
			With("path", path).With("field", "")
	}
	if err := schema.Validate(doc); err != nil {
		field := violationLocation(err)
		if plan && (field == "/environment" || strings.HasPrefix(field, "/environment/")) {
			return model.Errorf(model.ErrPlanEnvironmentInvalid, "plan environment allows only the env property").
				With("path", path)
		}
		return model.Errorf(model.ErrManifestInvalid, "schema violation: %v", err).
			With("path", path).With("field", field)
	}
	return nil
}

// violationLocation digs the deepest instance location out of a
// jsonschema validation error.
func violationLocation(err error) string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return ""
	}
	deepest := ve.InstanceLocation
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.InstanceLocation) > len(deepest) {
			deepest = e.InstanceLocation
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return deepest
}
