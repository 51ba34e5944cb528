// Package values implements the parameter type system: conversion of JSON
// literals and environment-variable strings into typed effective values.
package values

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tessera-qa/tessera/internal/model"
)

// CoerceLiteral converts a raw JSON value into the typed form of t.
// The JSON kind must match the target type, with two relaxations: string
// literals may parse as numbers for int/double, and booleans additionally
// accept the numbers 1/0 and the strings "true"/"false".
func CoerceLiteral(raw any, t model.ParamType) (any, error) {
	if raw == nil {
		return nil, nil
	}
	if t.Array {
		arr, ok := raw.([]any)
		if !ok {
			return nil, typeErr(t, raw, "expected a JSON array")
		}
		out := make([]any, 0, len(arr))
		elem := model.ParamType{Base: t.Base}
		for i, item := range arr {
			v, err := CoerceLiteral(item, elem)
			if err != nil {
				return nil, typeErr(t, raw, fmt.Sprintf("element %d: %v", i, err))
			}
			out = append(out, v)
		}
		return out, nil
	}
	return coerceScalar(raw, t)
}

// CoerceEnvString converts an environment-variable string into the typed
// form of t using invariant formatting rules. Array types require the
// string to be a JSON array literal.
func CoerceEnvString(s string, t model.ParamType) (any, error) {
	if t.Array {
		var arr []any
		if err := json.Unmarshal([]byte(s), &arr); err != nil {
			return nil, typeErr(t, s, "expected a JSON array literal")
		}
		return CoerceLiteral(arr, t)
	}
	switch t.Base {
	case model.TypeInt:
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
		if err != nil {
			return nil, typeErr(t, s, "not a 32-bit decimal integer")
		}
		return int32(n), nil
	case model.TypeDouble:
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, typeErr(t, s, "not a number")
		}
		return f, nil
	case model.TypeBoolean:
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "1":
			return true, nil
		case "false", "0":
			return false, nil
		}
		return nil, typeErr(t, s, "not a boolean (true|false|1|0)")
	case model.TypeString, model.TypePath, model.TypeFile, model.TypeFolder, model.TypeEnum:
		return s, nil
	case model.TypeJSON:
		var v any
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, typeErr(t, s, "not valid JSON")
		}
		return v, nil
	}
	return nil, typeErr(t, s, "unsupported type")
}

func coerceScalar(raw any, t model.ParamType) (any, error) {
	switch t.Base {
	case model.TypeInt:
		switch v := raw.(type) {
		case float64:
			if v != math.Trunc(v) || v > math.MaxInt32 || v < math.MinInt32 {
				return nil, typeErr(t, raw, "not a 32-bit integer")
			}
			return int32(v), nil
		case json.Number:
			n, err := strconv.ParseInt(v.String(), 10, 32)
			if err != nil {
				return nil, typeErr(t, raw, "not a 32-bit integer")
			}
			return int32(n), nil
		case string:
			n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 32)
			if err != nil {
				return nil, typeErr(t, raw, "string does not parse as a 32-bit integer")
			}
			return int32(n), nil
		}
		return nil, typeErr(t, raw, "expected a number")
	case model.TypeDouble:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case json.Number:
			f, err := v.Float64()
			if err != nil {
				return nil, typeErr(t, raw, "not a number")
			}
			return f, nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, typeErr(t, raw, "string does not parse as a number")
			}
			return f, nil
		}
		return nil, typeErr(t, raw, "expected a number")
	case model.TypeBoolean:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case float64:
			if v == 1 {
				return true, nil
			}
			if v == 0 {
				return false, nil
			}
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true":
				return true, nil
			case "false":
				return false, nil
			}
		}
		return nil, typeErr(t, raw, "expected a boolean")
	case model.TypeString, model.TypePath, model.TypeFile, model.TypeFolder, model.TypeEnum:
		s, ok := raw.(string)
		if !ok {
			return nil, typeErr(t, raw, "expected a string")
		}
		return s, nil
	case model.TypeJSON:
		return raw, nil
	}
	return nil, typeErr(t, raw, "unsupported type")
}

func typeErr(t model.ParamType, raw any, reason string) error {
	return model.Errorf(model.ErrInputsTypeInvalid, "cannot convert %v to %s: %s", raw, t, reason)
}

// FormatToken renders a scalar effective value as a subprocess argument
// token with invariant formatting.
func FormatToken(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
