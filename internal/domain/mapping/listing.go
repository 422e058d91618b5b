package mapping

import (
	"regexp"

	"github.com/jbctechsolutions/listingsync/internal/domain/record"
)

// Listing field keys referenced outside the mapping table.
const (
	FieldPriceType        = "price_type"
	FieldOfferingType     = "offering_type"
	FieldPriceAmount      = "price_amount"
	FieldImageURLs        = "image_urls"
	FieldAssignedAgentRef = "assigned_agent_ref"
	FieldTitle            = "title"
)

// Offering types derived from the price type.
const (
	OfferingSale = "sale"
	OfferingRent = "rent"
)

// PricePeriods lists the amount keys of a listing price, sale first.
var PricePeriods = []string{"sale", "yearly", "monthly", "weekly", "daily"}

var pricePeriodPattern = regexp.MustCompile(`^[a-z]+$`)

// OfferingTypeFor derives the offering type: "sale" stays sale, every other
// price type is a rental periodicity.
func OfferingTypeFor(priceType string) string {
	if priceType == OfferingSale {
		return OfferingSale
	}
	return OfferingRent
}

func deriveOfferingType(_ record.External, mapped record.Fields) (any, bool) {
	pt, ok := mapped.String(FieldPriceType)
	if !ok {
		return nil, false
	}
	return OfferingTypeFor(pt), true
}

func derivePriceAmount(ext record.External, mapped record.Fields) (any, bool) {
	pt, ok := mapped.String(FieldPriceType)
	if !ok || !pricePeriodPattern.MatchString(pt) {
		return nil, false
	}
	return ext.Get("price.amounts." + pt)
}

// ListingRules is the base mapping for listings. The price rules must stay
// ahead of the rules that derive from price_type.
func ListingRules() []Rule {
	return []Rule{
		{Source: "id", Target: record.FieldExternalID, Kind: KindText},
		{Source: "reference", Target: "reference", Kind: KindText},
		{Source: "title.en", Alt: []string{"title"}, Target: FieldTitle, Kind: KindText},
		{Source: "title.ar", Target: "title_ar", Kind: KindText},
		{Source: "description.en", Alt: []string{"description"}, Target: "description", Kind: KindRichText},
		{Source: "description.ar", Target: "description_ar", Kind: KindRichText},
		{Source: "category", Target: "category", Kind: KindText},
		{Source: "type", Target: "property_type", Kind: KindText},

		{Source: "price.type", Target: FieldPriceType, Kind: KindText},
		{Source: "price.type", Target: FieldOfferingType, Kind: KindText, Derive: deriveOfferingType},
		{Source: "price.amounts", Target: FieldPriceAmount, Kind: KindNumber, Derive: derivePriceAmount},
		{Source: "price.amounts", Target: "price_amounts", Kind: KindNested, Serialize: true, PullOnly: true},
		{Source: "price.downpayment", Target: "price_downpayment", Kind: KindNumber},
		{Source: "price.numberOfCheques", Target: "price_cheques", Kind: KindNumber, Numeric: NumericInt},
		{Source: "price.onRequest", Target: "price_on_request", Kind: KindBoolean},

		{Source: "bedrooms", Target: "bedrooms", Kind: KindText},
		{Source: "bathrooms", Target: "bathrooms", Kind: KindText},
		{Source: "size", Target: "size", Kind: KindNumber},
		{Source: "plotSize", Target: "plot_size", Kind: KindNumber},
		{Source: "furnishingType", Target: "furnishing", Kind: KindText},
		{Source: "availableFrom", Target: "available_from", Kind: KindDate},
		{Source: "amenities", Target: "amenities", Kind: KindArray},
		{Source: "uaeEmirate", Target: "emirate", Kind: KindText},
		{Source: "compliance.listingAdvertisementNumber", Target: "permit_number", Kind: KindText},

		{Source: "location.id", Target: "location_id", Kind: KindScalar},
		{Source: "location", Target: "location", Kind: KindNested, Serialize: true, PullOnly: true},
		{Source: "assignedTo.id", Target: FieldAssignedAgentRef, Kind: KindText},

		{Source: "media.images", Target: Computed},
		{Source: "media.images.#.original.url", Target: FieldImageURLs, Kind: KindArray, Serialize: true, PullOnly: true},
		{Source: "media.videos.default", Target: "video_url", Kind: KindURL},

		{Source: "state.type", Target: "state", Kind: KindText, PullOnly: true},
		{Source: "portals.propertyfinder.isLive", Target: "is_live", Kind: KindBoolean, PullOnly: true},
		{Source: "qualityScore.value", Target: "quality_score", Kind: KindNumber, PullOnly: true},
		{Source: "createdAt", Target: "remote_created_at", Kind: KindDate, PullOnly: true},
		{Source: "updatedAt", Target: "remote_updated_at", Kind: KindDate, PullOnly: true},
	}
}
