package config

import (
	"encoding/json"
	"testing"
)

func TestGenerateSchema(t *testing.T) {
	data, err := generateSchema()
	if err != nil {
		t.Fatalf("generateSchema: %v", err)
	}

	var schema struct {
		Schema     string                     `json:"$schema"`
		Title      string                     `json:"title"`
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(data, &schema); err != nil {
		t.Fatalf("schema is not JSON: %v", err)
	}

	if schema.Schema != "https://json-schema.org/draft/2020-12/schema" {
		t.Errorf("$schema = %q", schema.Schema)
	}
	for _, section := range []string{"logging", "telemetry", "metrics", "api", "scheduler", "pool", "workload", "shutdown_timeout"} {
		if _, ok := schema.Properties[section]; !ok {
			t.Errorf("schema has no %q property", section)
		}
	}

	var scheduler struct {
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(schema.Properties["scheduler"], &scheduler); err != nil {
		t.Fatalf("scheduler property: %v", err)
	}
	for _, key := range []string{"bin_shift", "bin_size", "max_threads_per_file", "max_reqs_per_thread"} {
		if _, ok := scheduler.Properties[key]; !ok {
			t.Errorf("scheduler schema has no %q property", key)
		}
	}
}
