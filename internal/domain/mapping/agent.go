package mapping

import "github.com/jbctechsolutions/listingsync/internal/domain/record"

// Agent field keys referenced outside the mapping table.
const (
	FieldPublicProfileID = "public_profile_id"
	FieldPhotoURL        = "photo_url"
	FieldDisplayName     = "display_name"
	FieldIsSuperAgent    = "is_super_agent"
)

// AgentRules is the base mapping for agents. Older payloads carried the
// profile attributes at the top level, which the alternate paths cover.
func AgentRules() []Rule {
	return []Rule{
		{Source: "id", Target: record.FieldExternalID, Kind: KindText},
		{Source: "firstName", Target: "first_name", Kind: KindText},
		{Source: "lastName", Target: "last_name", Kind: KindText},
		{Source: "email", Target: "email", Kind: KindEmail},
		{Source: "mobile", Target: "mobile", Kind: KindText},
		{Source: "status", Target: "status", Kind: KindText, PullOnly: true},
		{Source: "role.name", Target: "role", Kind: KindText, PullOnly: true},

		{Source: "publicProfile.id", Target: FieldPublicProfileID, Kind: KindText, PullOnly: true},
		{Source: "publicProfile.name", Alt: []string{"name"}, Target: FieldDisplayName, Kind: KindText},
		{Source: "publicProfile.email", Target: "public_email", Kind: KindEmail},
		{Source: "publicProfile.phone", Alt: []string{"phone"}, Target: "phone", Kind: KindText},
		{Source: "publicProfile.whatsappPhone", Target: "whatsapp", Kind: KindText},
		{Source: "publicProfile.bio.primary", Alt: []string{"bio"}, Target: "bio", Kind: KindRichText},
		{Source: "publicProfile.position.primary", Target: "position", Kind: KindText},
		{Source: "publicProfile.linkedinAddress", Target: "linkedin_url", Kind: KindURL},
		{Source: "publicProfile.isSuperAgent", Alt: []string{"isSuperAgent"}, Target: FieldIsSuperAgent, Kind: KindBoolean},
		{Source: "publicProfile.languages", Target: "languages", Kind: KindArray},
		{Source: "publicProfile.verification.status", Target: "verification_status", Kind: KindText, PullOnly: true},
		{Source: "publicProfile.imageVariants.large.default", Target: FieldPhotoURL, Kind: KindURL, PullOnly: true},
		{Source: "publicProfile.compliances", Target: "compliances", Kind: KindArray, Serialize: true, PullOnly: true},
	}
}
