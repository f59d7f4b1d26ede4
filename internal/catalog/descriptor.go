package catalog

import (
	"fmt"
	"strings"
)

// Kind separates the two endpoint families: task adapters submit a job and
// poll for completion, chat adapters call the chat-completions endpoint and
// stream the response back.
type Kind string

const (
	KindTask Kind = "task"
	KindChat Kind = "chat"
)

// Auth names the two credential header schemes.
const (
	AuthSchemeAPIKey = "api-key"
	AuthSchemeBearer = "bearer"
)

// ParamType enumerates the value kinds a descriptor parameter can declare.
type ParamType string

const (
	ParamString   ParamType = "string"
	ParamInt      ParamType = "int"
	ParamFloat    ParamType = "float"
	ParamBool     ParamType = "bool"
	ParamURL      ParamType = "url"
	ParamBinary   ParamType = "binary"
	ParamOptions  ParamType = "options"
	ParamLanguage ParamType = "language"
)

// Param declares one user-facing input and where its value lands in the
// submit body. Target is a dot path rooted at "input" or "config".
type Param struct {
	Name     string    `yaml:"name"`
	Label    string    `yaml:"label,omitempty"`
	Type     ParamType `yaml:"type"`
	Required bool      `yaml:"required,omitempty"`
	Default  any       `yaml:"default,omitempty"`
	Options  []string  `yaml:"options,omitempty"`
	Target   string    `yaml:"target"`
	// MIME restricts binary parameters to a media class, e.g. "image" or
	// "audio". Checked against the payload's declared content type.
	MIME string `yaml:"mime,omitempty"`
}

// Poll carries the per-adapter retry budget. Long-running media types ship
// larger budgets in their descriptor files.
type Poll struct {
	MaxRetries int `yaml:"max_retries,omitempty"`
	IntervalMS int `yaml:"interval_ms,omitempty"`
}

// Descriptor is one declarative adapter definition: the parameter schema, the
// mapping onto the remote submit body, and the polling budget. Descriptors
// are plain data loaded from YAML; there is no per-adapter Go code.
type Descriptor struct {
	Name        string  `yaml:"name"`
	DisplayName string  `yaml:"display_name,omitempty"`
	Description string  `yaml:"description,omitempty"`
	Kind        Kind    `yaml:"kind,omitempty"`
	Model       string  `yaml:"model"`
	TaskType    string  `yaml:"task_type,omitempty"`
	Auth        string  `yaml:"auth,omitempty"`
	Params      []Param `yaml:"params"`
	Poll        Poll    `yaml:"poll,omitempty"`
	// OutputPaths optionally pins where result URLs live in the terminal
	// payload (dot paths under output). When empty the runner scans for
	// URL-shaped fields generically.
	OutputPaths []string `yaml:"output_paths,omitempty"`
}

// Validate checks descriptor consistency at load time, before the descriptor
// is ever executed.
func (d *Descriptor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("catalog: descriptor name is required")
	}
	if d.Kind == "" {
		d.Kind = KindTask
	}
	if d.Kind != KindTask && d.Kind != KindChat {
		return fmt.Errorf("catalog: descriptor %q: unknown kind %q", d.Name, d.Kind)
	}
	if d.Auth == "" {
		if d.Kind == KindChat {
			d.Auth = AuthSchemeBearer
		} else {
			d.Auth = AuthSchemeAPIKey
		}
	}
	if d.Auth != AuthSchemeAPIKey && d.Auth != AuthSchemeBearer {
		return fmt.Errorf("catalog: descriptor %q: unknown auth scheme %q", d.Name, d.Auth)
	}
	if strings.TrimSpace(d.Model) == "" {
		return fmt.Errorf("catalog: descriptor %q: model is required", d.Name)
	}
	if d.Kind == KindTask && strings.TrimSpace(d.TaskType) == "" {
		return fmt.Errorf("catalog: descriptor %q: task_type is required", d.Name)
	}
	seen := make(map[string]struct{}, len(d.Params))
	for i := range d.Params {
		p := &d.Params[i]
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("catalog: descriptor %q: parameter #%d has no name", d.Name, i)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("catalog: descriptor %q: duplicate parameter %q", d.Name, p.Name)
		}
		seen[p.Name] = struct{}{}
		if p.Type == "" {
			p.Type = ParamString
		}
		switch p.Type {
		case ParamString, ParamInt, ParamFloat, ParamBool, ParamURL, ParamBinary, ParamOptions, ParamLanguage:
		default:
			return fmt.Errorf("catalog: descriptor %q: parameter %q has unknown type %q", d.Name, p.Name, p.Type)
		}
		if p.Type == ParamOptions && len(p.Options) == 0 {
			return fmt.Errorf("catalog: descriptor %q: parameter %q declares no options", d.Name, p.Name)
		}
		if err := validateTarget(p.Target); err != nil {
			return fmt.Errorf("catalog: descriptor %q: parameter %q: %w", d.Name, p.Name, err)
		}
	}
	return nil
}

func validateTarget(target string) error {
	if strings.TrimSpace(target) == "" {
		return fmt.Errorf("target is required")
	}
	root, rest, _ := strings.Cut(target, ".")
	if root != "input" && root != "config" {
		return fmt.Errorf("target must be rooted at input or config, got %q", target)
	}
	if strings.TrimSpace(rest) == "" {
		return fmt.Errorf("target must name a field under %s, got %q", root, target)
	}
	return nil
}
