package importer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jbctechsolutions/listingsync/internal/adapters/store/memory"
	"github.com/jbctechsolutions/listingsync/internal/application/observability"
	"github.com/jbctechsolutions/listingsync/internal/application/ports"
	"github.com/jbctechsolutions/listingsync/internal/application/status"
	"github.com/jbctechsolutions/listingsync/internal/domain/mapping"
	"github.com/jbctechsolutions/listingsync/internal/domain/outcome"
	"github.com/jbctechsolutions/listingsync/internal/domain/record"
	"github.com/jbctechsolutions/listingsync/internal/infrastructure/logging"
	"github.com/jbctechsolutions/listingsync/internal/infrastructure/testutil"
)

var testNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type harness struct {
	api     *testutil.FakeAPI
	media   *testutil.FakeMediaFetcher
	store   *memory.Store
	tracker *status.Tracker
	imp     *Importer
}

func newHarness(t *testing.T, configure ...func(*Config)) *harness {
	t.Helper()

	registry, err := mapping.DefaultRegistry(nil)
	if err != nil {
		t.Fatalf("DefaultRegistry() error = %v", err)
	}
	h := &harness{
		api:   testutil.NewFakeAPI(),
		media: testutil.NewFakeMediaFetcher(),
		store: memory.New(),
	}
	clock := testutil.FixedClock(testNow)
	h.tracker = status.New(h.store, status.WithClock(clock), status.WithLogger(logging.Discard()))

	cfg := Config{
		API:      h.api,
		Store:    h.store,
		Registry: registry,
		Tracker:  h.tracker,
		Observer: observability.NewService(observability.ServiceConfig{Logger: logging.Discard(), Clock: clock}),
		Media:    h.media,
		Clock:    clock,
	}
	for _, fn := range configure {
		fn(&cfg)
	}
	h.imp, err = New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return h
}

func (h *harness) fields(t *testing.T, id record.RecordID) record.Fields {
	t.Helper()
	_, f, err := h.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%s) error = %v", id, err)
	}
	return f
}

func TestNew_RequiresCollaborators(t *testing.T) {
	registry, _ := mapping.DefaultRegistry(nil)
	store := memory.New()
	tracker := status.New(store)

	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing api", Config{Store: store, Registry: registry, Tracker: tracker}},
		{"missing store", Config{API: testutil.NewFakeAPI(), Registry: registry, Tracker: tracker}},
		{"missing registry", Config{API: testutil.NewFakeAPI(), Store: store, Tracker: tracker}},
		{"missing tracker", Config{API: testutil.NewFakeAPI(), Store: store, Registry: registry}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestImportOne_CreatesRecord(t *testing.T) {
	h := newHarness(t)
	h.api.Add(record.EntityListing, testutil.ListingJSON)

	o := h.imp.ImportOne(context.Background(), record.EntityListing, "L-100")

	if o.Status != outcome.StatusCreated {
		t.Fatalf("Status = %s (%s), want created", o.Status, o.Message)
	}
	if o.RecordID == "" || o.ID == "" {
		t.Errorf("outcome missing ids: %+v", o)
	}
	if len(o.RawPayload) == 0 {
		t.Error("expected raw payload snapshot")
	}

	f := h.fields(t, o.RecordID)
	checks := map[string]any{
		record.FieldExternalID:         "L-100",
		mapping.FieldPriceType:         "sale",
		mapping.FieldOfferingType:      "sale",
		mapping.FieldPriceAmount:       int64(1200000),
		mapping.FieldAssignedAgentRef:  "7",
		record.FieldLastSynced:         testNow.Format(time.RFC3339),
		record.FieldPrimaryImageSource: "https://cdn.example.com/l100/1.jpg",
		"amenities":                    []any{"pool", "gym"},
	}
	for k, want := range checks {
		if got := f[k]; !record.ValuesEqual(got, want) {
			t.Errorf("field %s = %#v, want %#v", k, got, want)
		}
	}
	if _, ok := f[record.FieldAssignedAgentID]; ok {
		t.Error("agent should stay pending until imported")
	}
}

func TestImportOne_Idempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.api.Add(record.EntityListing, testutil.ListingJSON)

	first := h.imp.ImportOne(ctx, record.EntityListing, "L-100")
	before := h.fields(t, first.RecordID)

	second := h.imp.ImportOne(ctx, record.EntityListing, "L-100")

	if second.Status != outcome.StatusUnchanged {
		t.Fatalf("Status = %s (%v), want unchanged", second.Status, second.Changed)
	}
	if second.RecordID != first.RecordID {
		t.Errorf("RecordID = %s, want %s", second.RecordID, first.RecordID)
	}
	if len(second.Changed) != 0 {
		t.Errorf("Changed = %v, want none", second.Changed)
	}

	after := h.fields(t, first.RecordID)
	if _, changed := before.Diff(after); len(changed) != 0 {
		t.Errorf("fields changed on re-import: %v", changed)
	}
	if n := h.store.Count(record.EntityListing); n != 1 {
		t.Errorf("listing count = %d, want 1", n)
	}
	if n := h.media.CallCount("https://cdn.example.com/l100/1.jpg"); n != 1 {
		t.Errorf("primary image fetched %d times, want 1", n)
	}
}

func TestImportOne_UpdatesChangedFields(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.api.Add(record.EntityListing, testutil.ListingJSON)
	first := h.imp.ImportOne(ctx, record.EntityListing, "L-100")

	h.api.Replace(record.EntityListing, strings.Replace(testutil.ListingJSON, `"size": 1450`, `"size": 1500`, 1))
	o := h.imp.ImportOne(ctx, record.EntityListing, "L-100")

	testutil.AssertOutcome(t, o, outcome.StatusUpdated)
	testutil.AssertChanged(t, o, "size")
	testutil.AssertField(t, h.fields(t, first.RecordID), "size", int64(1500))
}

func TestImportOne_FetchFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("transport error", func(t *testing.T) {
		h := newHarness(t)
		h.api.FailFetch(errors.New("connection reset"))

		o := h.imp.ImportOne(ctx, record.EntityListing, "L-100")

		if o.Status != outcome.StatusError {
			t.Fatalf("Status = %s, want error", o.Status)
		}
		if o.Message != "fetch failed: connection reset" {
			t.Errorf("Message = %q", o.Message)
		}
		stored, err := h.tracker.LastOutcomeByExternal(ctx, record.EntityListing, "L-100")
		if err != nil || stored == nil || stored.Status != outcome.StatusError {
			t.Errorf("stored outcome = %+v, %v", stored, err)
		}
	})

	t.Run("failed re-import supersedes the record outcome", func(t *testing.T) {
		h := newHarness(t)
		h.api.Add(record.EntityListing, testutil.ListingJSON)
		first := h.imp.ImportOne(ctx, record.EntityListing, "L-100")
		testutil.AssertOutcome(t, first, outcome.StatusCreated)

		h.api.FailFetch(errors.New("connection reset"))
		second := h.imp.ImportOne(ctx, record.EntityListing, "L-100")

		testutil.AssertOutcome(t, second, outcome.StatusError)
		testutil.AssertEqual(t, second.RecordID, first.RecordID)
		last, err := h.tracker.LastOutcome(ctx, first.RecordID)
		testutil.AssertNoError(t, err)
		if last == nil || last.ID != second.ID {
			t.Errorf("LastOutcome() = %+v, want the failed attempt", last)
		}
		byExt, _ := h.tracker.LastOutcomeByExternal(ctx, record.EntityListing, "L-100")
		if byExt == nil || byExt.ID != second.ID {
			t.Errorf("LastOutcomeByExternal() = %+v, want the failed attempt", byExt)
		}
	})

	t.Run("record not returned", func(t *testing.T) {
		h := newHarness(t)

		o := h.imp.ImportOne(ctx, record.EntityListing, "L-404")

		if o.Status != outcome.StatusError || !strings.HasPrefix(o.Message, "fetch failed") {
			t.Errorf("outcome = %s %q", o.Status, o.Message)
		}
		if h.store.Count(record.EntityListing) != 0 {
			t.Error("no record should be created")
		}
	})
}

func TestImportOne_AmbiguousMatch(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.api.Add(record.EntityListing, testutil.ListingJSON)

	oldest, _ := h.store.Create(ctx, record.EntityListing, record.Fields{record.FieldExternalID: "L-100"})
	_, _ = h.store.Create(ctx, record.EntityListing, record.Fields{record.FieldExternalID: "L-100"})

	o := h.imp.ImportOne(ctx, record.EntityListing, "L-100")

	if o.RecordID != oldest {
		t.Errorf("RecordID = %s, want oldest %s", o.RecordID, oldest)
	}
	if o.Status != outcome.StatusUpdated {
		t.Errorf("Status = %s, want updated", o.Status)
	}
	if len(o.Warnings) == 0 || !strings.Contains(o.Warnings[0], "multiple local records") {
		t.Errorf("Warnings = %v, want ambiguity warning", o.Warnings)
	}
	if n := h.store.Count(record.EntityListing); n != 2 {
		t.Errorf("listing count = %d, duplicates must not be removed", n)
	}
}

func TestImportOne_Media(t *testing.T) {
	ctx := context.Background()
	const (
		primaryURL = "https://cdn.example.com/l100/1.jpg"
		galleryURL = "https://cdn.example.com/l100/2.jpg"
	)

	t.Run("first image is primary and the rest form the gallery", func(t *testing.T) {
		h := newHarness(t)
		h.api.Add(record.EntityListing, testutil.ListingJSON)

		o := h.imp.ImportOne(ctx, record.EntityListing, "L-100")

		assets, primary := h.store.Media(o.RecordID)
		if len(assets) != 2 {
			t.Fatalf("assets = %d, want 2", len(assets))
		}
		if string(assets[primary].Data) != "img:"+primaryURL {
			t.Errorf("primary asset = %q", assets[primary].Data)
		}
		gallery := record.GalleryFromField(h.fields(t, o.RecordID)[record.FieldGallery])
		if len(gallery) != 1 || gallery[0].SourceURL != galleryURL {
			t.Errorf("gallery = %+v", gallery)
		}
	})

	t.Run("failed download is a warning and is retried next import", func(t *testing.T) {
		h := newHarness(t)
		h.api.Add(record.EntityListing, testutil.ListingJSON)
		h.media.Fail(galleryURL, errors.New("404"))

		first := h.imp.ImportOne(ctx, record.EntityListing, "L-100")
		if first.Status != outcome.StatusCreated {
			t.Fatalf("Status = %s, want created", first.Status)
		}
		if len(first.Warnings) != 1 || !strings.Contains(first.Warnings[0], "media download failed") {
			t.Errorf("Warnings = %v", first.Warnings)
		}

		h.media = testutil.NewFakeMediaFetcher()
		h.imp.media = h.media
		second := h.imp.ImportOne(ctx, record.EntityListing, "L-100")

		if second.Status != outcome.StatusUpdated {
			t.Errorf("Status = %s, want updated", second.Status)
		}
		if h.media.CallCount(primaryURL) != 0 || h.media.CallCount(galleryURL) != 1 {
			t.Errorf("fetch calls = %v", h.media.Calls)
		}
	})

	t.Run("media sync disabled", func(t *testing.T) {
		h := newHarness(t, func(c *Config) { c.Media = nil })
		h.api.Add(record.EntityListing, testutil.ListingJSON)

		o := h.imp.ImportOne(ctx, record.EntityListing, "L-100")

		if assets, _ := h.store.Media(o.RecordID); len(assets) != 0 {
			t.Errorf("assets = %d, want 0", len(assets))
		}
	})
}

func TestImportOne_PreserveLocal(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, func(c *Config) {
		c.PreserveLocal = map[record.EntityType][]string{record.EntityListing: {"bedrooms"}}
	})
	h.api.Add(record.EntityListing, testutil.ListingJSON)

	first := h.imp.ImportOne(ctx, record.EntityListing, "L-100")
	if err := h.store.Update(ctx, first.RecordID, record.Fields{"bedrooms": "3"}); err != nil {
		t.Fatal(err)
	}

	o := h.imp.ImportOne(ctx, record.EntityListing, "L-100")

	if got := h.fields(t, first.RecordID)["bedrooms"]; got != "3" {
		t.Errorf("bedrooms = %v, want local value 3", got)
	}
	if o.Status != outcome.StatusUnchanged {
		t.Errorf("Status = %s, want unchanged", o.Status)
	}
	if len(o.Warnings) != 1 || !strings.Contains(o.Warnings[0], "bedrooms") {
		t.Errorf("Warnings = %v", o.Warnings)
	}
}

func TestImportOne_AgentReferences(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.api.Add(record.EntityListing, testutil.ListingJSON)
	h.api.Add(record.EntityAgent, testutil.AgentJSON)

	listing := h.imp.ImportOne(ctx, record.EntityListing, "L-100")
	agent := h.imp.ImportOne(ctx, record.EntityAgent, "7")

	if agent.Status != outcome.StatusCreated {
		t.Fatalf("agent Status = %s (%s)", agent.Status, agent.Message)
	}
	af := h.fields(t, agent.RecordID)
	if af[mapping.FieldIsSuperAgent] != "1" {
		t.Errorf("is_super_agent = %v, want 1", af[mapping.FieldIsSuperAgent])
	}
	if af["email"] != "sara@example.com" {
		t.Errorf("email = %v", af["email"])
	}
	if af[record.FieldPrimaryImageSource] != "https://cdn.example.com/agents/7.jpg" {
		t.Errorf("primary_image_source = %v", af[record.FieldPrimaryImageSource])
	}

	if got := h.fields(t, listing.RecordID)[record.FieldAssignedAgentID]; got != string(agent.RecordID) {
		t.Errorf("pending listing assigned_agent_id = %v, want %s", got, agent.RecordID)
	}

	h.api.Add(record.EntityListing, strings.Replace(testutil.ListingJSON, `"L-100"`, `"L-101"`, 1))
	second := h.imp.ImportOne(ctx, record.EntityListing, "L-101")
	if got := h.fields(t, second.RecordID)[record.FieldAssignedAgentID]; got != string(agent.RecordID) {
		t.Errorf("new listing assigned_agent_id = %v, want %s", got, agent.RecordID)
	}
}

func TestImportPage(t *testing.T) {
	ctx := context.Background()

	t.Run("imports records in order", func(t *testing.T) {
		h := newHarness(t, func(c *Config) { c.PerPage = 2 })
		h.api.Add(record.EntityListing, testutil.ListingPage("P", 3)...)

		outcomes := h.imp.ImportPage(ctx, record.EntityListing, nil, 2)

		if len(outcomes) != 1 || outcomes[0].ExternalID != "P-3" {
			t.Errorf("outcomes = %+v", outcomes)
		}
	})

	t.Run("records without an id fail by position", func(t *testing.T) {
		h := newHarness(t)
		h.api.Add(record.EntityListing,
			`{"title":{"en":"No id"}}`,
			testutil.ListingJSON,
			`{"title":{"en":"Also no id"}}`,
		)

		outcomes := h.imp.ImportPage(ctx, record.EntityListing, nil, 1)

		if len(outcomes) != 3 {
			t.Fatalf("outcomes = %d, want 3", len(outcomes))
		}
		testutil.AssertOutcome(t, outcomes[1], outcome.StatusCreated)
		for i, want := range map[int]string{0: "page 1 item 1: ", 2: "page 1 item 3: "} {
			o := outcomes[i]
			testutil.AssertOutcome(t, o, outcome.StatusError)
			if !strings.HasPrefix(o.Message, want) {
				t.Errorf("outcome %d message = %q, want prefix %q", i, o.Message, want)
			}
		}
	})

	t.Run("index failure is a single fatal outcome", func(t *testing.T) {
		h := newHarness(t)
		h.api.Add(record.EntityListing, testutil.ListingPage("P", 3)...)
		h.api.FailPage(1, errors.New("502 bad gateway"))

		outcomes := h.imp.ImportPage(ctx, record.EntityListing, nil, 1)

		if len(outcomes) != 1 {
			t.Fatalf("outcomes = %d, want 1", len(outcomes))
		}
		if outcomes[0].Status != outcome.StatusError || !strings.Contains(outcomes[0].Message, "502 bad gateway") {
			t.Errorf("outcome = %+v", outcomes[0])
		}
	})
}

func TestImportAll(t *testing.T) {
	ctx := context.Background()

	t.Run("walks every page", func(t *testing.T) {
		h := newHarness(t, func(c *Config) { c.PerPage = 2 })
		h.api.Add(record.EntityListing, testutil.ListingPage("P", 5)...)

		res := h.imp.ImportAll(ctx, record.EntityListing, nil)

		if res.Summary.Pages != 3 || res.Summary.Created != 5 || res.Summary.Fatal != "" {
			t.Errorf("Summary = %+v", res.Summary)
		}
		if len(res.Outcomes) != 5 {
			t.Errorf("outcomes = %d, want 5", len(res.Outcomes))
		}
	})

	t.Run("second page failure keeps first page outcomes", func(t *testing.T) {
		h := newHarness(t, func(c *Config) { c.PerPage = 2 })
		h.api.Add(record.EntityListing, testutil.ListingPage("P", 4)...)
		h.api.FailPage(2, errors.New("timeout"))

		res := h.imp.ImportAll(ctx, record.EntityListing, nil)

		if len(res.Outcomes) != 3 {
			t.Fatalf("outcomes = %d, want 2 records and 1 fatal", len(res.Outcomes))
		}
		for _, o := range res.Outcomes[:2] {
			if o.Status != outcome.StatusCreated {
				t.Errorf("outcome %s = %s, want created", o.ExternalID, o.Status)
			}
		}
		last := res.Outcomes[2]
		if last.Status != outcome.StatusError || last.RecordID != "" {
			t.Errorf("fatal outcome = %+v", last)
		}
		if res.Summary.Pages != 1 || res.Summary.Created != 2 || !strings.Contains(res.Summary.Fatal, "page 2") {
			t.Errorf("Summary = %+v", res.Summary)
		}
		if h.store.Count(record.EntityListing) != 2 {
			t.Errorf("listing count = %d, want 2", h.store.Count(record.EntityListing))
		}
	})

	t.Run("re-run over unchanged data", func(t *testing.T) {
		h := newHarness(t, func(c *Config) { c.PerPage = 2 })
		h.api.Add(record.EntityListing, testutil.ListingPage("P", 3)...)

		h.imp.ImportAll(ctx, record.EntityListing, ports.Filter{})
		res := h.imp.ImportAll(ctx, record.EntityListing, ports.Filter{})

		if res.Summary.Unchanged != 3 || res.Summary.Total() != 3 {
			t.Errorf("Summary = %+v", res.Summary)
		}
	})
}

func TestAttempt_AdvanceRejectsGoingBack(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	a := &attempt{stage: stageMatched}
	a.advance(stageMapped)
}

func TestStage_Next(t *testing.T) {
	tests := []struct {
		from stage
		want stage
	}{
		{"", "fetch"},
		{stageFetched, "map"},
		{stageMapped, "match"},
		{stageMatched, "persist"},
		{stagePersisted, "record"},
	}
	for _, tt := range tests {
		if got := tt.from.next(); got != tt.want {
			t.Errorf("%q.next() = %q, want %q", tt.from, got, tt.want)
		}
	}
}
