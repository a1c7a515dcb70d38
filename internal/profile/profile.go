// Package profile holds the declarative description of a gateway: where each
// action is posted and how the gateway's responses are read back.
//
// Profiles are JSON documents validated against an embedded schema and then
// compiled. Success conditions are govaluate expressions over the top-level
// fields of the parsed response body.
package profile

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/yourorg/payment-gateway/internal/action"
	"github.com/yourorg/payment-gateway/internal/classifier"
	"github.com/yourorg/payment-gateway/internal/response"
)

//go:embed schema.json
var schemaJSON string

//go:embed builtin/*.json
var builtins embed.FS

var documentSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
})

// Document is the on-disk form of a profile.
type Document struct {
	Name               string                    `json:"name"`
	TestURL            string                    `json:"test_url,omitempty"`
	LiveURL            string                    `json:"live_url,omitempty"`
	AuthorizationField string                    `json:"authorization_field"`
	ErrorCodeField     string                    `json:"error_code_field,omitempty"`
	ErrorCodes         map[string]string         `json:"error_codes,omitempty"`
	Actions            map[string]ActionDocument `json:"actions"`
}

// ActionDocument describes one action inside a Document.
type ActionDocument struct {
	Endpoint      string   `json:"endpoint"`
	Success       string   `json:"success"`
	MessageFields []string `json:"message_fields,omitempty"`
}

// ActionSpec is the compiled per-action entry.
type ActionSpec struct {
	Endpoint      string
	Success       *Predicate
	MessageFields []string
}

// Message returns the first message field present in fields, or "".
func (s ActionSpec) Message(fields map[string]any) string {
	for _, name := range s.MessageFields {
		if v, ok := fields[name]; ok && v != nil {
			if str, isStr := v.(string); isStr {
				return str
			}
			return fmt.Sprint(v)
		}
	}
	return ""
}

// Profile is a compiled, immutable gateway description.
type Profile struct {
	Name               string
	TestURL            string
	LiveURL            string
	AuthorizationField string
	ErrorCodeField     string
	ErrorCodes         classifier.Table
	Actions            map[action.Action]ActionSpec
}

// Action returns the spec for a, if the profile defines one.
func (p *Profile) Action(a action.Action) (ActionSpec, bool) {
	spec, ok := p.Actions[a]
	return spec, ok
}

// ValidationError lists schema violations of a profile document.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "invalid profile: " + strings.Join(e.Errors, "; ")
}

// Parse validates raw against the profile schema and compiles it.
func Parse(raw []byte) (*Profile, error) {
	schema, err := documentSchema()
	if err != nil {
		return nil, fmt.Errorf("load profile schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("validate profile: %w", err)
	}
	if !result.Valid() {
		verr := &ValidationError{}
		for _, desc := range result.Errors() {
			verr.Errors = append(verr.Errors, desc.String())
		}
		return nil, verr
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return Compile(doc)
}

// Compile turns a Document into a Profile. Every action must be defined and
// every error code must map to a known error kind.
func Compile(doc Document) (*Profile, error) {
	if doc.Name == "" {
		return nil, fmt.Errorf("profile name is required")
	}
	if doc.AuthorizationField == "" {
		return nil, fmt.Errorf("profile %s: authorization_field is required", doc.Name)
	}

	p := &Profile{
		Name:               doc.Name,
		TestURL:            doc.TestURL,
		LiveURL:            doc.LiveURL,
		AuthorizationField: doc.AuthorizationField,
		ErrorCodeField:     doc.ErrorCodeField,
		ErrorCodes:         make(classifier.Table, len(doc.ErrorCodes)),
		Actions:            make(map[action.Action]ActionSpec, len(doc.Actions)),
	}

	for name, ad := range doc.Actions {
		a, err := action.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("profile %s: %w", doc.Name, err)
		}
		if ad.Endpoint == "" {
			return nil, fmt.Errorf("profile %s: action %s has no endpoint", doc.Name, name)
		}
		pred, err := CompilePredicate(ad.Success)
		if err != nil {
			return nil, fmt.Errorf("profile %s: action %s: %w", doc.Name, name, err)
		}
		p.Actions[a] = ActionSpec{
			Endpoint:      ad.Endpoint,
			Success:       pred,
			MessageFields: append([]string(nil), ad.MessageFields...),
		}
	}
	for _, a := range action.All {
		if _, ok := p.Actions[a]; !ok {
			return nil, fmt.Errorf("profile %s: action %s is not defined", doc.Name, a)
		}
	}

	for code, name := range doc.ErrorCodes {
		kind, err := response.ParseErrorKind(name)
		if err != nil {
			return nil, fmt.Errorf("profile %s: error code %s: %w", doc.Name, code, err)
		}
		p.ErrorCodes[code] = kind
	}
	return p, nil
}

// Load reads and parses the profile document at path.
func Load(path string) (*Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	return Parse(raw)
}

// Builtin returns one of the profiles shipped with the binary.
func Builtin(name string) (*Profile, error) {
	raw, err := builtins.ReadFile("builtin/" + name + ".json")
	if err != nil {
		return nil, fmt.Errorf("unknown builtin profile %q", name)
	}
	return Parse(raw)
}

// Resolve loads ref from disk when it names a .json file and otherwise
// treats it as a builtin profile name.
func Resolve(ref string) (*Profile, error) {
	if strings.HasSuffix(ref, ".json") {
		return Load(ref)
	}
	return Builtin(ref)
}
