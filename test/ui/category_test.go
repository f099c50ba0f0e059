package ui

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestCategoryFilterChangesListing opens the products page and applies a
// category filter, verifying the listing repopulates rather than staying on
// the unfiltered set.
func TestCategoryFilterChangesListing(t *testing.T) {
	utc := NewUITestContext(t, MaxUITestTimeout)
	defer utc.Cleanup()

	utc.OpenHome()

	products := utc.Site.Products()
	require.NoError(t, products.Open(utc.Ctx), "products page should open")
	utc.Screenshot("products_unfiltered")

	before, err := products.ProductCount(utc.Ctx)
	require.NoError(t, err)
	require.Greater(t, before, 0, "unfiltered listing should not be empty")

	require.NoError(t, products.FilterByCategory(utc.Ctx, "clothing"),
		"category filter should apply")
	utc.Screenshot("products_filtered")

	after, err := products.ProductCount(utc.Ctx)
	require.NoError(t, err)
	require.Greater(t, after, 0, "filtered listing should not be empty")
	utc.Log("Listing went from %d to %d cards after filtering", before, after)
	require.LessOrEqual(t, after, before, "a filter should never grow the listing")
}
