package repositories

import (
	"encoding/json"
	"fmt"

	"github.com/cbodonnell/hokm/pkg/state"
)

func encodeSnapshot(snapshot state.Snapshot) ([]byte, error) {
	b, err := state.Canonical(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %v", err)
	}
	return b, nil
}

func decodeSnapshot(b []byte) (state.Snapshot, error) {
	snapshot := state.Snapshot{}
	if err := json.Unmarshal(b, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %v", err)
	}
	return snapshot, nil
}
