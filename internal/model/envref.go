package model

// EnvRef is an input value that indirects through an environment variable.
// It is discriminated from literal JSON objects by the presence of the
// "$env" property.
type EnvRef struct {
	Env      string `json:"$env"`
	Default  any    `json:"default,omitempty"`
	Required bool   `json:"required,omitempty"`
	Secret   bool   `json:"secret,omitempty"`
}

// AsEnvRef inspects a raw JSON value; if it is an object carrying "$env"
// it is decoded as an EnvRef, otherwise ok is false and the value is a
// literal.
func AsEnvRef(raw any) (EnvRef, bool) {
	obj, isObj := raw.(map[string]any)
	if !isObj {
		return EnvRef{}, false
	}
	key, has := obj["$env"]
	if !has {
		return EnvRef{}, false
	}
	ref := EnvRef{}
	if s, ok := key.(string); ok {
		ref.Env = s
	}
	if d, ok := obj["default"]; ok {
		ref.Default = d
	}
	if r, ok := obj["required"].(bool); ok {
		ref.Required = r
	}
	if s, ok := obj["secret"].(bool); ok {
		ref.Secret = s
	}
	return ref, true
}
