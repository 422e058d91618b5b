package importer

import (
	"context"
	"fmt"

	"github.com/jbctechsolutions/listingsync/internal/domain/mapping"
	"github.com/jbctechsolutions/listingsync/internal/domain/record"
)

// Agent fields a listing's agent reference may point at, in lookup order.
var agentReferenceFields = []string{mapping.FieldPublicProfileID, record.FieldExternalID}

// syncReferences links a listing to its assigned agent, or links waiting
// listings to a freshly imported agent. Failures become warnings.
func (im *Importer) syncReferences(ctx context.Context, a *attempt) {
	switch a.entity {
	case record.EntityListing:
		im.resolveAgent(ctx, a)
	case record.EntityAgent:
		im.adoptListings(ctx, a)
	}
}

// resolveAgent sets assigned_agent_id when the referenced agent exists
// locally. Otherwise the raw reference stays pending on the listing.
func (im *Importer) resolveAgent(ctx context.Context, a *attempt) {
	ref, ok := a.current.String(mapping.FieldAssignedAgentRef)
	if !ok || ref == "" {
		return
	}
	agentID, found, err := im.matcher.ResolveReference(ctx, record.EntityAgent, ref, agentReferenceFields)
	if err != nil {
		a.warn(fmt.Sprintf("resolving agent %s: %v", ref, err))
		return
	}
	if !found {
		im.observer.Logger().DebugContext(ctx, "agent reference pending", "agent_ref", ref)
		return
	}
	if cur, _ := a.current.String(record.FieldAssignedAgentID); cur == string(agentID) {
		return
	}
	if err := im.store.Update(ctx, a.id, record.Fields{record.FieldAssignedAgentID: string(agentID)}); err != nil {
		a.warn(fmt.Sprintf("linking agent %s: %v", agentID, err))
		return
	}
	a.current[record.FieldAssignedAgentID] = string(agentID)
	im.markUpdated(a, record.FieldAssignedAgentID)
}

// adoptListings points every listing waiting on this agent at its record.
func (im *Importer) adoptListings(ctx context.Context, a *attempt) {
	var values []string
	for _, k := range []string{record.FieldExternalID, mapping.FieldPublicProfileID} {
		if v, ok := a.current.String(k); ok && v != "" {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return
	}
	adopted, err := im.matcher.AdoptPending(ctx, record.EntityListing, mapping.FieldAssignedAgentRef, record.FieldAssignedAgentID, values, a.id)
	if err != nil {
		a.warn(fmt.Sprintf("linking pending listings: %v", err))
	}
	if len(adopted) > 0 {
		im.observer.Logger().InfoContext(ctx, "linked pending listings", "count", len(adopted))
	}
}
