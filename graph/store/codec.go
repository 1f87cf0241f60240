package store

import "encoding/json"

// copyCheckpoint clones a checkpoint through a JSON round trip. The same
// representation the SQL backends persist is used here, so MemStore and the
// durable stores hand back identically-shaped values (interrupt payloads
// come back as decoded JSON either way).
func copyCheckpoint[S any](cp Checkpoint[S]) (Checkpoint[S], error) {
	var out Checkpoint[S]
	data, err := json.Marshal(cp)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, err
	}
	return out, nil
}
