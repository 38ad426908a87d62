package ranking

import (
	"encoding/json"
	"os"

	"github.com/banshee-data/cohort.report/internal/habitat"
)

// SnapshotVersion is the current snapshot artifact format version.
const SnapshotVersion = 1

// Snapshot is the raw rating state: a versioned key-value map of animal id
// to (mu, sigma). It is the persistence artifact that lets a later recording
// session resume ranking instead of restarting from the neutral prior.
// The trajectory rides along in memory but is not part of the artifact.
type Snapshot struct {
	Version int               `json:"version"`
	Ratings map[string]Rating `json:"ratings"`

	Trajectory []TrajectoryPoint `json:"-"`
}

// Marshal encodes the snapshot deterministically: identical rating state
// always produces identical bytes, so artifacts compare and resume
// byte-for-byte across runs.
func (s Snapshot) Marshal() ([]byte, error) {
	out, err := json.MarshalIndent(struct {
		Version int               `json:"version"`
		Ratings map[string]Rating `json:"ratings"`
	}{Version: s.Version, Ratings: s.Ratings}, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

// LoadSnapshot decodes a snapshot artifact.
func LoadSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, &habitat.ConfigurationError{Msg: "invalid rating snapshot", Err: err}
	}
	if s.Version != SnapshotVersion {
		return nil, habitat.Configf("unsupported rating snapshot version %d", s.Version)
	}
	for id, r := range s.Ratings {
		if r.Sigma <= 0 {
			return nil, habitat.Configf("rating snapshot entry %q has non-positive sigma", id)
		}
	}
	return &s, nil
}

// ReadSnapshotFile loads a snapshot artifact from disk.
func ReadSnapshotFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &habitat.ConfigurationError{Msg: "reading rating snapshot " + path, Err: err}
	}
	return LoadSnapshot(data)
}

// WriteFile persists the snapshot artifact to disk.
func (s Snapshot) WriteFile(path string) error {
	data, err := s.Marshal()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
