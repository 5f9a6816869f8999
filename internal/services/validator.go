package services

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ideahub/backend/internal/models"
)

// Request schema names.
const (
	SchemaCreateTask     = "create_task"
	SchemaSubmitTask     = "submit_task"
	SchemaOpenDispute    = "open_dispute"
	SchemaResolveDispute = "resolve_dispute"
	SchemaCreateItem     = "create_item"
	SchemaWalletAmount   = "wallet_amount"
	SchemaRegister       = "register"
	SchemaLogin          = "login"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Validator checks request bodies against the embedded JSON schemas before
// they are decoded into typed requests.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// NewValidator compiles every schema under schemas/, keyed by file name
// without the extension.
func NewValidator() (*Validator, error) {
	entries, err := fs.ReadDir(schemaFS, "schemas")
	if err != nil {
		return nil, fmt.Errorf("read schemas: %w", err)
	}
	schemas := make(map[string]*jsonschema.Schema, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), path.Ext(e.Name()))
		data, err := schemaFS.ReadFile(path.Join("schemas", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", e.Name(), err)
		}
		schemas[name], err = jsonschema.CompileString("https://ideahub.dev/schemas/"+name, string(data))
		if err != nil {
			return nil, fmt.Errorf("compile schema %q: %w", name, err)
		}
	}
	return &Validator{schemas: schemas}, nil
}

// Validate rejects body unless it is JSON matching the named schema. Failures
// wrap models.ErrValidation.
func (v *Validator) Validate(name string, body []byte) error {
	schema, ok := v.schemas[name]
	if !ok {
		return fmt.Errorf("unknown schema %q", name)
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", models.ErrValidation, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	return nil
}
