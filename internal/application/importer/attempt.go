package importer

import (
	"fmt"
	"time"

	"github.com/jbctechsolutions/listingsync/internal/application/matcher"
	"github.com/jbctechsolutions/listingsync/internal/application/observability"
	"github.com/jbctechsolutions/listingsync/internal/domain/outcome"
	"github.com/jbctechsolutions/listingsync/internal/domain/record"
)

// stage is the last stage an attempt completed.
type stage string

const (
	stageStarted   stage = "started"
	stageFetched   stage = "fetched"
	stageMapped    stage = "mapped"
	stageMatched   stage = "matched"
	stagePersisted stage = "persisted"
	stageRecorded  stage = "recorded"
)

var stageOrder = []stage{stageStarted, stageFetched, stageMapped, stageMatched, stagePersisted, stageRecorded}

// next names the operation that runs after s, which is where a failure
// following s is reported.
func (s stage) next() stage {
	switch s {
	case "", stageStarted:
		return "fetch"
	case stageFetched:
		return "map"
	case stageMapped:
		return "match"
	case stageMatched:
		return "persist"
	default:
		return "record"
	}
}

// attempt is the state of one record import.
type attempt struct {
	entity     record.EntityType
	externalID string
	position   string // "page N item M" for page imports
	stage      stage
	obs        *observability.AttemptObserver

	ext     record.External
	fields  record.Fields // as mapped from ext
	current record.Fields // local state after persist
	match   matcher.Match
	id      record.RecordID

	status   outcome.Status
	changed  []string
	warnings []string
}

// advance moves the attempt forward. Going backwards is a programming error.
func (a *attempt) advance(to stage) {
	if stageIndex(to) <= stageIndex(a.stage) {
		panic(fmt.Sprintf("importer: attempt cannot move from %q to %q", a.stage, to))
	}
	a.stage = to
}

func stageIndex(s stage) int {
	if s == "" {
		return 0
	}
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

func (a *attempt) warn(msg string) {
	a.warnings = append(a.warnings, msg)
	a.obs.Warn(msg)
}

func (a *attempt) outcome(now time.Time) outcome.Outcome {
	return outcome.Outcome{
		RecordID:   a.id,
		EntityType: a.entity,
		ExternalID: a.externalID,
		Direction:  outcome.DirectionPull,
		Status:     a.status,
		Message:    a.message(),
		Warnings:   a.warnings,
		Changed:    a.changed,
		Timestamp:  now.UTC(),
		RawPayload: rawPayload(a.ext),
	}
}

func (a *attempt) message() string {
	switch a.status {
	case outcome.StatusCreated:
		return fmt.Sprintf("created %s %s as %s", a.entity, a.externalID, a.id)
	case outcome.StatusUpdated:
		return fmt.Sprintf("updated %d field(s) of %s", len(a.changed), a.id)
	case outcome.StatusUnchanged:
		return fmt.Sprintf("%s is up to date", a.id)
	}
	return ""
}
