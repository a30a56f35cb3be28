package models

// ManifestEntry is one deduplicated case discovered during Stage 2. A case
// seen under multiple procedures keeps a single entry whose procedure set
// grows instead.
type ManifestEntry struct {
	CaseExternalID       string   `json:"case_external_id"`
	ProcedureExternalIDs []string `json:"procedure_external_ids"`
	FirstSeenOrder       int      `json:"first_seen_order"`
	Occurrences          int      `json:"occurrences"`
}

// Manifest is the ordered, deduplicated list of case ids driving Stage 3.
// Entries keep insertion order so a checkpoint cursor stays stable.
type Manifest struct {
	RunID                string          `json:"run_id"`
	Entries              []ManifestEntry `json:"entries"`
	DuplicateOccurrences int             `json:"duplicate_occurrences"`

	index map[string]int
}

// NewManifest creates an empty manifest for a run
func NewManifest(runID string) *Manifest {
	return &Manifest{
		RunID: runID,
		index: make(map[string]int),
	}
}

// ensureIndex rebuilds the lookup index after JSON decoding
func (m *Manifest) ensureIndex() {
	if m.index != nil {
		return
	}
	m.index = make(map[string]int, len(m.Entries))
	for i, entry := range m.Entries {
		m.index[entry.CaseExternalID] = i
	}
}

// Add records one listing row. If the case id is already present the entry's
// procedure set grows and the duplicate counter increments instead of a
// second entry being created. Returns true when the row was a duplicate.
func (m *Manifest) Add(caseExternalID, procedureExternalID string) bool {
	m.ensureIndex()

	if i, ok := m.index[caseExternalID]; ok {
		entry := &m.Entries[i]
		entry.Occurrences++
		m.DuplicateOccurrences++

		for _, pid := range entry.ProcedureExternalIDs {
			if pid == procedureExternalID {
				return true
			}
		}
		entry.ProcedureExternalIDs = append(entry.ProcedureExternalIDs, procedureExternalID)
		return true
	}

	m.index[caseExternalID] = len(m.Entries)
	m.Entries = append(m.Entries, ManifestEntry{
		CaseExternalID:       caseExternalID,
		ProcedureExternalIDs: []string{procedureExternalID},
		FirstSeenOrder:       len(m.Entries),
		Occurrences:          1,
	})
	return false
}

// Len returns the number of unique entries
func (m *Manifest) Len() int {
	return len(m.Entries)
}

// DuplicateUniqueIDs returns the number of case ids seen more than once
func (m *Manifest) DuplicateUniqueIDs() int {
	n := 0
	for _, entry := range m.Entries {
		if entry.Occurrences > 1 {
			n++
		}
	}
	return n
}
