package entrypoint

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadWorkflows reads nats_subjects_file: a JSON object mapping workflow
// name to the ingress subject suffix a gRPC call on that workflow publishes
// to (e.g. {"echo": "entrypoint"}), matching
// original_source/kre-entrypoint/src/kre_grpc.py's "json.load(f)" read of
// config.nats_subjects_file.
func LoadWorkflows(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("entrypoint: read nats_subjects_file %s: %w", path, err)
	}
	var workflows map[string]string
	if err := json.Unmarshal(data, &workflows); err != nil {
		return nil, fmt.Errorf("entrypoint: parse nats_subjects_file %s: %w", path, err)
	}
	return workflows, nil
}
