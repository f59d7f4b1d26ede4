package catalog

import (
	"encoding/base64"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/text/language"

	"mediabridge/internal/piapi"
)

// ValidationError reports locally detected bad input. It is raised before any
// network call is made.
type ValidationError struct {
	Param  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("catalog: invalid parameter %q: %s", e.Param, e.Reason)
}

// Binary is a file payload handed over by the host's binary-data facility.
type Binary struct {
	Data     []byte
	MIME     string
	Filename string
}

// DataURL encodes the payload as a data URL, the form the remote API accepts
// for inline media.
func (b Binary) DataURL() string {
	return "data:" + b.MIME + ";base64," + base64.StdEncoding.EncodeToString(b.Data)
}

// BuildSubmit maps user-supplied parameter values onto the remote submit body
// according to the descriptor. All validation happens here; a returned
// ValidationError means no request should be sent.
func BuildSubmit(desc *Descriptor, params map[string]any) (piapi.SubmitRequest, error) {
	req := piapi.SubmitRequest{
		Model:    desc.Model,
		TaskType: desc.TaskType,
		Input:    map[string]any{},
	}
	for i := range desc.Params {
		p := &desc.Params[i]
		raw, ok := params[p.Name]
		if !ok || raw == nil || raw == "" {
			if p.Default != nil {
				raw = p.Default
			} else if p.Required {
				return piapi.SubmitRequest{}, &ValidationError{Param: p.Name, Reason: "required value is missing"}
			} else {
				continue
			}
		}
		value, err := coerce(p, raw)
		if err != nil {
			return piapi.SubmitRequest{}, err
		}
		setTarget(&req, p.Target, value)
	}
	return req, nil
}

func coerce(p *Param, raw any) (any, error) {
	switch p.Type {
	case ParamString:
		return asString(raw), nil
	case ParamInt:
		return coerceInt(p, raw)
	case ParamFloat:
		return coerceFloat(p, raw)
	case ParamBool:
		return coerceBool(p, raw)
	case ParamURL:
		return coerceURL(p, raw)
	case ParamBinary:
		return coerceBinary(p, raw)
	case ParamOptions:
		return coerceOption(p, raw)
	case ParamLanguage:
		return coerceLanguage(p, raw)
	}
	return nil, &ValidationError{Param: p.Name, Reason: fmt.Sprintf("unknown parameter type %q", p.Type)}
}

func asString(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	default:
		return fmt.Sprintf("%v", raw)
	}
}

func coerceInt(p *Param, raw any) (any, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return nil, &ValidationError{Param: p.Name, Reason: fmt.Sprintf("expected integer, got %v", v)}
		}
		return int(v), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, &ValidationError{Param: p.Name, Reason: fmt.Sprintf("expected integer, got %q", v)}
		}
		return i, nil
	}
	return nil, &ValidationError{Param: p.Name, Reason: fmt.Sprintf("expected integer, got %T", raw)}
}

func coerceFloat(p *Param, raw any) (any, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, &ValidationError{Param: p.Name, Reason: fmt.Sprintf("expected number, got %q", v)}
		}
		return f, nil
	}
	return nil, &ValidationError{Param: p.Name, Reason: fmt.Sprintf("expected number, got %T", raw)}
}

func coerceBool(p *Param, raw any) (any, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return nil, &ValidationError{Param: p.Name, Reason: fmt.Sprintf("expected boolean, got %q", v)}
		}
		return b, nil
	}
	return nil, &ValidationError{Param: p.Name, Reason: fmt.Sprintf("expected boolean, got %T", raw)}
}

func coerceURL(p *Param, raw any) (any, error) {
	s := strings.TrimSpace(asString(raw))
	parsed, err := url.Parse(s)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, &ValidationError{Param: p.Name, Reason: fmt.Sprintf("malformed url %q", s)}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" && parsed.Scheme != "data" {
		return nil, &ValidationError{Param: p.Name, Reason: fmt.Sprintf("unsupported url scheme %q", parsed.Scheme)}
	}
	return s, nil
}

func coerceBinary(p *Param, raw any) (any, error) {
	var bin Binary
	switch v := raw.(type) {
	case Binary:
		bin = v
	case *Binary:
		if v == nil {
			return nil, &ValidationError{Param: p.Name, Reason: "binary payload is empty"}
		}
		bin = *v
	case map[string]any:
		// JSON form handed over the HTTP surface.
		encoded := asString(v["data"])
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, &ValidationError{Param: p.Name, Reason: "binary data is not valid base64"}
		}
		bin = Binary{Data: data, MIME: asString(v["mime"]), Filename: asString(v["filename"])}
	default:
		return nil, &ValidationError{Param: p.Name, Reason: fmt.Sprintf("expected binary payload, got %T", raw)}
	}
	if len(bin.Data) == 0 {
		return nil, &ValidationError{Param: p.Name, Reason: "binary payload is empty"}
	}
	if bin.MIME == "" {
		return nil, &ValidationError{Param: p.Name, Reason: "binary payload has no content type"}
	}
	if p.MIME != "" && !strings.HasPrefix(bin.MIME, p.MIME+"/") && bin.MIME != p.MIME {
		return nil, &ValidationError{
			Param:  p.Name,
			Reason: fmt.Sprintf("expected %s payload, got %s", p.MIME, bin.MIME),
		}
	}
	return bin.DataURL(), nil
}

func coerceOption(p *Param, raw any) (any, error) {
	s := asString(raw)
	for _, opt := range p.Options {
		if s == opt {
			return s, nil
		}
	}
	return nil, &ValidationError{
		Param:  p.Name,
		Reason: fmt.Sprintf("%q is not one of [%s]", s, strings.Join(p.Options, ", ")),
	}
}

func coerceLanguage(p *Param, raw any) (any, error) {
	s := strings.TrimSpace(asString(raw))
	tag, err := language.Parse(s)
	if err != nil {
		return nil, &ValidationError{Param: p.Name, Reason: fmt.Sprintf("invalid language tag %q", s)}
	}
	return tag.String(), nil
}

// setTarget places value at the dot path inside the submit body. Targets are
// validated at descriptor load time, so the root is always input or config.
func setTarget(req *piapi.SubmitRequest, target string, value any) {
	root, rest, _ := strings.Cut(target, ".")
	var section map[string]any
	switch root {
	case "config":
		if req.Config == nil {
			req.Config = map[string]any{}
		}
		section = req.Config
	default:
		section = req.Input
	}
	if rest == "" {
		// Target names only the section, which load-time validation rejects.
		return
	}
	parts := strings.Split(rest, ".")
	for _, key := range parts[:len(parts)-1] {
		child, ok := section[key].(map[string]any)
		if !ok {
			child = map[string]any{}
			section[key] = child
		}
		section = child
	}
	section[parts[len(parts)-1]] = value
}
