// Package resume implements the reboot-resume control channel: the strict
// control/reboot.json contract, the persisted resume session, and the
// autostart/reboot hook boundary.
package resume

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/tessera-qa/tessera/internal/model"
)

//go:embed schema/reboot.schema.json
var rebootSchemaJSON []byte

var rebootSchema = func() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource("reboot.schema.json", bytes.NewReader(rebootSchemaJSON)); err != nil {
		panic(fmt.Sprintf("add reboot schema: %v", err))
	}
	return c.MustCompile("reboot.schema.json")
}()

// RebootType is the only accepted control request type.
const RebootType = "control.reboot_required"

// RebootRequest is a validated control/reboot.json.
type RebootRequest struct {
	Type      string  `json:"type"`
	NextPhase int     `json:"nextPhase"`
	Reason    string  `json:"reason"`
	Reboot    *Reboot `json:"reboot,omitempty"`
}

// Reboot carries the optional reboot parameters.
type Reboot struct {
	DelaySec int `json:"delaySec,omitempty"`
}

// DelaySec returns the requested reboot delay, defaulting to zero.
func (r *RebootRequest) DelaySec() int {
	if r.Reboot == nil {
		return 0
	}
	return r.Reboot.DelaySec
}

// ReadRebootRequest reads and strictly validates control/reboot.json. A
// missing file returns (nil, nil): the subprocess made no request. Any
// schema deviation — an extra property, a wrong type, a zero phase — is a
// Reboot.Request.Invalid error; the machine is never rebooted on a
// malformed request.
func ReadRebootRequest(path string) (*RebootRequest, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, model.Errorf(model.ErrRebootRequestInvalid, "read %s: %v", path, err).
			With("field", "").With("reason", "Unreadable")
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, model.Errorf(model.ErrRebootRequestInvalid, "reboot request is not valid JSON: %v", err).
			With("field", "").With("reason", "NotJSON")
	}
	if err := rebootSchema.Validate(doc); err != nil {
		field := ""
		if ve, ok := err.(*jsonschema.ValidationError); ok {
			field = deepestLocation(ve)
		}
		return nil, model.Errorf(model.ErrRebootRequestInvalid, "reboot request violates the control schema: %v", err).
			With("field", field).With("reason", "SchemaViolation")
	}

	var req RebootRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, model.Errorf(model.ErrRebootRequestInvalid, "decode reboot request: %v", err).
			With("field", "").With("reason", "Undecodable")
	}
	return &req, nil
}

func deepestLocation(ve *jsonschema.ValidationError) string {
	deepest := ve.InstanceLocation
	for _, c := range ve.Causes {
		if loc := deepestLocation(c); len(loc) > len(deepest) {
			deepest = loc
		}
	}
	return deepest
}
