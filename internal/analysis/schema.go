package analysis

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var schemaCache sync.Map

var ErrSchemaViolation = errors.New("analysis schema violation")

func schemaFile(t Type) string {
	return "schemas/" + strings.ToLower(string(t)) + ".json"
}

func validate(t Type, raw []byte) error {
	schema, err := loadSchema(t)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return err
	}
	if result.Valid() {
		return nil
	}
	if len(result.Errors()) == 0 {
		return ErrSchemaViolation
	}
	return fmt.Errorf("%w: %s", ErrSchemaViolation, result.Errors()[0].String())
}

func loadSchema(t Type) (*gojsonschema.Schema, error) {
	if val, ok := schemaCache.Load(t); ok {
		return val.(*gojsonschema.Schema), nil
	}
	data, err := schemaFS.ReadFile(schemaFile(t))
	if err != nil {
		return nil, fmt.Errorf("no schema for %s: %w", t, err)
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, err
	}
	schemaCache.Store(t, schema)
	return schema, nil
}
