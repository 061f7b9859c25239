package routing

import (
	"github.com/cespare/xxhash/v2"

	"github.com/edgelink/shortener/internal/model"
)

// PickVariant buckets clientKey into one of the test's variants in
// proportion to their weights. The bucket depends only on the test id and the
// key, so a visitor keeps the same variant for the lifetime of the test.
func PickVariant(test *model.ABTest, clientKey string) (model.Variant, bool) {
	if test == nil {
		return model.Variant{}, false
	}

	var total uint64
	for _, v := range test.Variants {
		if usable(v) {
			total += uint64(v.Weight)
		}
	}
	if total == 0 {
		return model.Variant{}, false
	}

	bucket := xxhash.Sum64String(test.ID+":"+clientKey) % total
	var acc uint64
	for _, v := range test.Variants {
		if !usable(v) {
			continue
		}
		acc += uint64(v.Weight)
		if bucket < acc {
			return v, true
		}
	}
	return model.Variant{}, false
}

func usable(v model.Variant) bool {
	return v.Weight > 0 && v.URL != ""
}
