package listing

// Record represents one classified ad parsed from a listing page
type Record struct {
	Title        string `json:"title"`
	Price        *int64 `json:"price,omitempty"`
	PriceText    string `json:"price_text"`
	Distance     *int64 `json:"km,omitempty"`
	DistanceText string `json:"km_text"`
	BottomNote   string `json:"bottom"`
	Tag          string `json:"tag"`
	URL          string `json:"url"`
	ImageURL     string `json:"image"`
}

// HasPrice reports whether the record carries a parsed price
func (r Record) HasPrice() bool {
	return r.Price != nil
}

// Set accumulates records keyed by URL, keeping the first observation of each ad.
// The zero value is not usable; call NewSet.
type Set struct {
	index   map[string]int
	records []Record
}

// NewSet creates an empty record set
func NewSet() *Set {
	return &Set{
		index: make(map[string]int),
	}
}

// Add stores r unless a record with the same URL was already seen.
// It returns true when r was stored.
func (s *Set) Add(r Record) bool {
	if r.URL == "" {
		return false
	}
	if _, exists := s.index[r.URL]; exists {
		return false
	}
	s.index[r.URL] = len(s.records)
	s.records = append(s.records, r)
	return true
}

// Merge adds every record in order and returns how many were new
func (s *Set) Merge(records []Record) int {
	added := 0
	for _, r := range records {
		if s.Add(r) {
			added++
		}
	}
	return added
}

// Len returns the number of distinct records
func (s *Set) Len() int {
	return len(s.records)
}

// Get returns the record stored for url
func (s *Set) Get(url string) (Record, bool) {
	i, ok := s.index[url]
	if !ok {
		return Record{}, false
	}
	return s.records[i], true
}

// Records returns a copy of the records in insertion order
func (s *Set) Records() []Record {
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}
