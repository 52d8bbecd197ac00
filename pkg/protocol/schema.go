package protocol

import (
	"reflect"
	"sync"

	"github.com/invopop/jsonschema"
)

// schemaCache memoizes JSON schemas derived from Go struct types, keyed by
// reflect.Type identity. Insert-only, safe under concurrent readers and
// writers, and lives for the process — mirroring hector's
// jsonschema.Reflector usage in cmd/hector/schema.go and
// pkg/server/http.go, generalized from "reflect the config struct" to
// "reflect any registered entity type".
type schemaCache struct {
	mu    sync.RWMutex
	byType map[reflect.Type]*jsonschema.Schema
}

var globalSchemaCache = &schemaCache{
	byType: make(map[reflect.Type]*jsonschema.Schema),
}

// reflector is shared across lookups; it carries no per-call state.
var reflector = &jsonschema.Reflector{
	AllowAdditionalProperties: false,
	DoNotReference:            true,
}

// JSONSchemaFor returns the memoized JSON schema for entity's concrete
// type, computing and caching it on first use.
func JSONSchemaFor(entity any) *jsonschema.Schema {
	t := reflect.TypeOf(entity)
	if t == nil {
		return nil
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	globalSchemaCache.mu.RLock()
	schema, ok := globalSchemaCache.byType[t]
	globalSchemaCache.mu.RUnlock()
	if ok {
		return schema
	}

	globalSchemaCache.mu.Lock()
	defer globalSchemaCache.mu.Unlock()
	if schema, ok := globalSchemaCache.byType[t]; ok {
		return schema
	}

	schema = reflector.ReflectFromType(t)
	globalSchemaCache.byType[t] = schema
	return schema
}

// ResetSchemaCacheForTest clears the process-wide cache; exercised only by
// tests that need to observe a fresh compute.
func ResetSchemaCacheForTest() {
	globalSchemaCache.mu.Lock()
	defer globalSchemaCache.mu.Unlock()
	globalSchemaCache.byType = make(map[reflect.Type]*jsonschema.Schema)
}
