// Package payload assembles outbound API payloads from local records.
package payload

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/tidwall/sjson"

	"github.com/jbctechsolutions/listingsync/internal/domain/mapping"
	"github.com/jbctechsolutions/listingsync/internal/domain/record"
)

// Builder turns local fields into the external record shape.
type Builder struct {
	registry *mapping.Registry
	mapper   *mapping.Mapper
}

// NewBuilder creates a builder. The mapper should carry ListingPriceHook
// among its build hooks; DefaultMapper does.
func NewBuilder(registry *mapping.Registry, mapper *mapping.Mapper) *Builder {
	if mapper == nil {
		mapper = DefaultMapper()
	}
	return &Builder{registry: registry, mapper: mapper}
}

// DefaultMapper returns a mapper with the listing price hook installed.
func DefaultMapper(opts ...mapping.Option) *mapping.Mapper {
	opts = append(opts, mapping.WithBuildHooks(ListingPriceHook))
	return mapping.NewMapper(opts...)
}

// Build assembles the payload for one record. Required-field checks are
// left to the API.
func (b *Builder) Build(entity record.EntityType, fields record.Fields) (record.External, error) {
	table, err := b.registry.Table(entity)
	if err != nil {
		return nil, err
	}
	return b.mapper.Build(table, fields)
}

// ListingPriceHook writes a listing's price object. Without a price type the
// whole price object is dropped. The chosen period carries price_amount and
// every other period is zero.
func ListingPriceHook(entity record.EntityType, fields record.Fields, payload []byte) ([]byte, error) {
	if entity != record.EntityListing {
		return payload, nil
	}

	priceType, ok := fields.String(mapping.FieldPriceType)
	if !ok || priceType == "" {
		return sjson.DeleteBytes(payload, "price")
	}

	out, err := sjson.SetBytes(payload, "price.type", priceType)
	if err != nil {
		return nil, err
	}
	amount, hasAmount := fields[mapping.FieldPriceAmount]
	for _, period := range mapping.PricePeriods {
		var v any = 0
		if hasAmount && period == priceType {
			v = amount
		}
		if out, err = sjson.SetBytes(out, "price.amounts."+period, v); err != nil {
			return nil, fmt.Errorf("writing price amount %s: %w", period, err)
		}
	}
	return out, nil
}

// Hash returns the hex sha256 of the payload's canonical JSON form.
func Hash(p record.External) (string, error) {
	canonical, err := record.MarshalCanonical(p)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
