package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jbctechsolutions/listingsync/internal/application/ports"
	"github.com/jbctechsolutions/listingsync/internal/domain/record"
)

// FixedClock returns a clock that always reports t.
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// ListingJSON is a representative listing payload.
const ListingJSON = `{
	"id": "L-100",
	"reference": "PF-100",
	"title": {"en": "Marina <b>view</b> apartment", "ar": "شقة"},
	"description": {"en": "<p>Bright unit<script>x()</script></p>"},
	"category": "residential",
	"type": "apartment",
	"price": {"type": "sale", "amounts": {"sale": 1200000}},
	"bedrooms": "2",
	"size": 1450,
	"amenities": ["pool", "gym"],
	"location": {"id": 50, "name": "Dubai Marina"},
	"assignedTo": {"id": 7},
	"media": {"images": [
		{"original": {"url": "https://cdn.example.com/l100/1.jpg"}},
		{"original": {"url": "https://cdn.example.com/l100/2.jpg"}}
	]}
}`

// AgentJSON is a representative agent payload.
const AgentJSON = `{
	"id": 7,
	"firstName": "Sara",
	"lastName": "Haddad",
	"email": "Sara@Example.com",
	"publicProfile": {
		"id": 9007,
		"name": "Sara Haddad",
		"isSuperAgent": true,
		"imageVariants": {"large": {"default": "https://cdn.example.com/agents/7.jpg"}}
	}
}`

// Update is one UpdateRecord call seen by FakeAPI.
type Update struct {
	Entity     record.EntityType
	ExternalID string
	Payload    record.External
}

// FakeAPI is an in-memory ports.ExternalAPI.
type FakeAPI struct {
	mu sync.Mutex

	records   map[record.EntityType][]record.External
	pageErrs  map[int]error
	fetchErr  error
	updateErr error
	accept    bool
	locations []ports.LocationSummary

	Updates []Update
	Calls   int
}

// NewFakeAPI creates a fake API that accepts every update.
func NewFakeAPI() *FakeAPI {
	return &FakeAPI{
		records:  make(map[record.EntityType][]record.External),
		pageErrs: make(map[int]error),
		accept:   true,
	}
}

// Add appends raw JSON records for entity.
func (f *FakeAPI) Add(entity record.EntityType, raw ...string) *FakeAPI {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range raw {
		f.records[entity] = append(f.records[entity], record.External(r))
	}
	return f
}

// Replace swaps the record with the same external id.
func (f *FakeAPI) Replace(entity record.EntityType, raw string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ext := record.External(raw)
	for i, r := range f.records[entity] {
		if r.ID() == ext.ID() {
			f.records[entity][i] = ext
			return
		}
	}
	f.records[entity] = append(f.records[entity], ext)
}

// FailPage makes index requests for page fail with err.
func (f *FakeAPI) FailPage(page int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageErrs[page] = err
}

// FailFetch makes id-filtered requests fail with err.
func (f *FakeAPI) FailFetch(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchErr = err
}

// RejectUpdates makes UpdateRecord return false with err.
func (f *FakeAPI) RejectUpdates(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accept = false
	f.updateErr = err
}

// SetLocations sets the location search results.
func (f *FakeAPI) SetLocations(locs ...ports.LocationSummary) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locations = locs
}

// GetRecords implements ports.ExternalAPI.
func (f *FakeAPI) GetRecords(ctx context.Context, entity record.EntityType, filter ports.Filter, page, perPage int) (ports.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++

	if ids, ok := filter[ports.FilterIDs]; ok {
		if f.fetchErr != nil {
			return ports.Page{}, f.fetchErr
		}
		want := make(map[string]bool)
		for _, id := range strings.Split(ids, ",") {
			want[strings.TrimSpace(id)] = true
		}
		var out []record.External
		for _, r := range f.records[entity] {
			if want[r.ID()] {
				out = append(out, r)
			}
		}
		return ports.Page{Results: out, Pagination: ports.Pagination{Page: 1, PerPage: perPage, Total: len(out), TotalPages: 1}}, nil
	}

	if err := f.pageErrs[page]; err != nil {
		return ports.Page{}, err
	}
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 50
	}
	all := f.records[entity]
	totalPages := (len(all) + perPage - 1) / perPage
	if totalPages == 0 {
		totalPages = 1
	}
	start := (page - 1) * perPage
	end := start + perPage
	if start > len(all) {
		start = len(all)
	}
	if end > len(all) {
		end = len(all)
	}
	next := 0
	if page < totalPages {
		next = page + 1
	}
	return ports.Page{
		Results: append([]record.External(nil), all[start:end]...),
		Pagination: ports.Pagination{
			Page: page, PerPage: perPage, Total: len(all), TotalPages: totalPages, NextPage: next,
		},
	}, nil
}

// UpdateRecord implements ports.ExternalAPI.
func (f *FakeAPI) UpdateRecord(ctx context.Context, entity record.EntityType, externalID string, payload record.External) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	f.Updates = append(f.Updates, Update{Entity: entity, ExternalID: externalID, Payload: payload})
	return f.accept, f.updateErr
}

// SearchLocations implements ports.ExternalAPI.
func (f *FakeAPI) SearchLocations(ctx context.Context, query string, perPage int) ([]ports.LocationSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	var out []ports.LocationSummary
	for _, l := range f.locations {
		if strings.Contains(strings.ToLower(l.Name), strings.ToLower(query)) {
			out = append(out, l)
		}
	}
	if perPage > 0 && len(out) > perPage {
		out = out[:perPage]
	}
	return out, nil
}

// FakeMediaFetcher serves canned media by URL.
type FakeMediaFetcher struct {
	mu    sync.Mutex
	errs  map[string]error
	Calls []string
}

// NewFakeMediaFetcher creates a fetcher that returns the URL bytes as content.
func NewFakeMediaFetcher() *FakeMediaFetcher {
	return &FakeMediaFetcher{errs: make(map[string]error)}
}

// Fail makes fetches of url fail with err.
func (f *FakeMediaFetcher) Fail(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[url] = err
}

// Fetch implements ports.MediaFetcher.
func (f *FakeMediaFetcher) Fetch(ctx context.Context, url string) (ports.Media, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, url)
	if err := f.errs[url]; err != nil {
		return ports.Media{}, err
	}
	return ports.Media{SourceURL: url, ContentType: "image/jpeg", Data: []byte("img:" + url)}, nil
}

// CallCount returns how many times url was fetched.
func (f *FakeMediaFetcher) CallCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if c == url {
			n++
		}
	}
	return n
}

// ListingPage builds n minimal listing payloads with ids prefix-1..prefix-n.
func ListingPage(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf(`{"id":"%s-%d","title":{"en":"Listing %d"},"price":{"type":"yearly","amounts":{"yearly":%d}}}`,
			prefix, i+1, i+1, (i+1)*1000)
	}
	return out
}
