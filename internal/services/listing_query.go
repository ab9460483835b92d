package services

import (
	"go.mongodb.org/mongo-driver/bson"

	"github.com/kaanagar1/equimarket-sub000/internal/models"
)

// Sort options accepted by listing search.
const (
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortNewest    = "newest"
	SortOldest    = "oldest"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	MaxPage         = 10000
)

// BuildListingFilter turns a ListingFilter into a conjunctive Mongo filter.
// Unless a status is requested or the query is scoped to one seller, only
// active listings match.
func BuildListingFilter(f models.ListingFilter) bson.M {
	filter := bson.M{}

	exact := map[string]string{
		"breed":  f.Breed,
		"gender": f.Gender,
		"color":  f.Color,
		"city":   f.City,
	}
	for field, v := range exact {
		if v != "" {
			filter[field] = v
		}
	}
	if f.Seller != nil {
		filter["seller"] = *f.Seller
	}

	if r := rangeFilter(f.MinPrice, f.MaxPrice); r != nil {
		filter["price"] = r
	}
	if f.MinAge != nil || f.MaxAge != nil {
		r := bson.M{}
		if f.MinAge != nil {
			r["$gte"] = *f.MinAge
		}
		if f.MaxAge != nil {
			r["$lte"] = *f.MaxAge
		}
		filter["age"] = r
	}

	if f.Query != "" {
		filter["$text"] = bson.M{"$search": f.Query}
	}

	switch {
	case f.Status != "":
		filter["status"] = f.Status
	case f.Seller == nil:
		filter["status"] = models.ListingActive
	}
	return filter
}

func rangeFilter(min, max *float64) bson.M {
	if min == nil && max == nil {
		return nil
	}
	r := bson.M{}
	if min != nil {
		r["$gte"] = *min
	}
	if max != nil {
		r["$lte"] = *max
	}
	return r
}

// BuildListingSort maps a sort option to a Mongo sort document.
// The default puts featured listings first, then newest.
func BuildListingSort(sortBy string) bson.D {
	switch sortBy {
	case SortPriceAsc:
		return bson.D{{Key: "price", Value: 1}, {Key: "_id", Value: 1}}
	case SortPriceDesc:
		return bson.D{{Key: "price", Value: -1}, {Key: "_id", Value: 1}}
	case SortNewest:
		return bson.D{{Key: "created_at", Value: -1}}
	case SortOldest:
		return bson.D{{Key: "created_at", Value: 1}}
	}
	return bson.D{{Key: "featured", Value: -1}, {Key: "created_at", Value: -1}}
}

// NormalizePage clamps page and limit to sane values. Pages past MaxPage
// are served as MaxPage so the skip offset stays bounded.
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return page, limit
}
