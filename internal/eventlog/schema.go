package eventlog

import (
	"bytes"
	"embed"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaBase = "https://keyprofile.local/schema/"

//go:embed schema/*.json
var schemaFS embed.FS

var (
	schemaOnce    sync.Once
	eventSchema   *jsonschema.Schema
	sessionSchema *jsonschema.Schema
	schemaErr     error
)

func loadSchemas() error {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		for _, name := range []string{"event.schema.json", "session.schema.json"} {
			data, err := schemaFS.ReadFile("schema/" + name)
			if err != nil {
				schemaErr = fmt.Errorf("failed to read schema %s: %w", name, err)
				return
			}
			if err := compiler.AddResource(schemaBase+name, bytes.NewReader(data)); err != nil {
				schemaErr = fmt.Errorf("failed to add schema %s: %w", name, err)
				return
			}
		}
		if eventSchema, schemaErr = compiler.Compile(schemaBase + "event.schema.json"); schemaErr != nil {
			return
		}
		sessionSchema, schemaErr = compiler.Compile(schemaBase + "session.schema.json")
	})
	return schemaErr
}

// ValidateEvent checks a decoded JSON value against the key event schema.
func ValidateEvent(v any) error {
	if err := loadSchemas(); err != nil {
		return err
	}
	return eventSchema.Validate(v)
}

// ValidateSession checks a decoded JSON value against the session upload
// schema.
func ValidateSession(v any) error {
	if err := loadSchemas(); err != nil {
		return err
	}
	return sessionSchema.Validate(v)
}
