package snapshotstore

import (
	"encoding/json"
	"os"
)

// Read loads a previously written Document. A missing file is reported
// through the wrapped os.IsNotExist error so callers can treat a
// never-written snapshot as optional, mirroring the teacher's
// snapshot.Load convention.
func Read(path string) (Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return Document{}, err
	}
	defer f.Close()

	var doc Document
	if err := json.NewDecoder(f).Decode(&doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}
