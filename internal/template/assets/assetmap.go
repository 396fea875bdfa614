package assets

type AssetRecord struct {
	RelativePath string `json:"relativePath"`
	Kind         Kind   `json:"kind"`
	PublicURL    string `json:"publicUrl"`
	Size         int    `json:"size"`
}

// AssetMap is keyed by root-relative path. It belongs to a single run.
type AssetMap struct {
	records map[string]AssetRecord
	order   []string
}

func NewAssetMap() *AssetMap {
	return &AssetMap{records: make(map[string]AssetRecord)}
}

// Put stores rec; a later record for the same path replaces the earlier one.
func (m *AssetMap) Put(rec AssetRecord) {
	if _, exists := m.records[rec.RelativePath]; !exists {
		m.order = append(m.order, rec.RelativePath)
	}
	m.records[rec.RelativePath] = rec
}

func (m *AssetMap) Get(relativePath string) (AssetRecord, bool) {
	rec, ok := m.records[relativePath]
	return rec, ok
}

// Lookup has the shape the stylesheet rewriter expects.
func (m *AssetMap) Lookup(relativePath string) (string, bool) {
	rec, ok := m.records[relativePath]
	return rec.PublicURL, ok
}

func (m *AssetMap) Len() int {
	return len(m.records)
}

// URLs is the path to public URL table persisted as asset_urls.
func (m *AssetMap) URLs() map[string]string {
	out := make(map[string]string, len(m.records))
	for p, rec := range m.records {
		out[p] = rec.PublicURL
	}
	return out
}

// Records returns records in first-insertion order.
func (m *AssetMap) Records() []AssetRecord {
	out := make([]AssetRecord, 0, len(m.order))
	for _, p := range m.order {
		out = append(out, m.records[p])
	}
	return out
}

// Count reports how many relocated assets are of kind.
func (m *AssetMap) Count(kind Kind) int {
	n := 0
	for _, rec := range m.records {
		if rec.Kind == kind {
			n++
		}
	}
	return n
}
