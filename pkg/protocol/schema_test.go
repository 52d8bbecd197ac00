package protocol

import (
	"testing"
)

type sampleEntity struct {
	Foo string `json:"foo"`
	Bar int    `json:"bar"`
}

func TestJSONSchemaForIsMemoized(t *testing.T) {
	ResetSchemaCacheForTest()

	first := JSONSchemaFor(sampleEntity{})
	second := JSONSchemaFor(sampleEntity{})
	if first != second {
		t.Fatalf("expected memoized pointer identity, got distinct schemas")
	}

	third := JSONSchemaFor(&sampleEntity{})
	if third != first {
		t.Fatalf("expected pointer and value types to share a cache entry")
	}
}

func TestJSONSchemaForNilEntity(t *testing.T) {
	if s := JSONSchemaFor(nil); s != nil {
		t.Fatalf("expected nil schema for nil entity, got %+v", s)
	}
}
