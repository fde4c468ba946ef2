// Package idempotency derives the dedup key that collapses duplicate
// checkout submissions into a single order attempt.
package idempotency

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"time"

	"oxe-delivery/pkg/models"
)

// BucketWidth is the dedup window: two identical submissions inside the same
// bucket derive the same key. Cart edits inside a bucket, or identical carts
// straddling a bucket boundary, intentionally produce distinct keys.
const BucketWidth = 5 * time.Minute

// DeriveKey builds a deterministic token from the customer phone, the cart
// contents and a coarse time bucket. FNV-1a is enough here: the key is a
// collision-tolerant dedup marker, not a security token.
func DeriveKey(phone string, items []models.OrderItemRequest, now time.Time) string {
	bucket := now.Unix() / int64(BucketWidth/time.Second)

	h := fnv.New64a()
	h.Write([]byte(phone))
	h.Write([]byte{'|'})
	h.Write([]byte(canonicalItems(items)))
	h.Write([]byte{'|'})
	fmt.Fprintf(h, "%d", bucket)

	return fmt.Sprintf("%x-%d", h.Sum64(), bucket)
}

// canonicalItems serializes line items independent of their order in the
// request, so a reshuffled cart still counts as the same cart.
func canonicalItems(items []models.OrderItemRequest) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, fmt.Sprintf("%d:%d:%.2f", item.ProductID, item.Quantity, item.UnitPrice))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}
