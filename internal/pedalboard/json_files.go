package pedalboard

import (
	"encoding/json"
	"os"
)

// AddressingRecord is one entry of addressings.json.
type AddressingRecord struct {
	Instance int     `json:"instance"`
	Port     string  `json:"port"`
	Label    string  `json:"label"`
	Minimum  float32 `json:"minimum"`
	Maximum  float32 `json:"maximum"`
	Steps    int     `json:"steps"`
}

// AddressingsFile is the addressings.json document: actuator URI -> bindings.
type AddressingsFile map[string][]AddressingRecord

// WriteAddressingsJSON marshals and writes addressings.json.
func WriteAddressingsJSON(path string, doc AddressingsFile) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadAddressingsJSON reads and unmarshals addressings.json. Returns an
// empty document, not an error, when the file does not exist -- an
// addressingless bundle is valid.
func ReadAddressingsJSON(path string) (AddressingsFile, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return AddressingsFile{}, nil
	}
	if err != nil {
		return nil, err
	}
	var doc AddressingsFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// PresetEntry is one extra preset recorded in presets.json, beyond the
// implicit "Default" snapshot taken at load time.
type PresetEntry struct {
	Name  string                        `json:"name"`
	Ports map[int]map[string]float32    `json:"ports"`
}

// WritePresetsJSON writes presets.json, or removes it when entries is
// empty: a bundle with no extra presets carries no presets.json at all.
func WritePresetsJSON(path string, entries []PresetEntry) error {
	if len(entries) == 0 {
		err := os.Remove(path)
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadPresetsJSON reads the full file into memory before parsing it,
// rather than decoding straight off an open file handle. Returns an empty
// slice, not an error, when the file is absent.
func ReadPresetsJSON(path string) ([]PresetEntry, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entries []PresetEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
