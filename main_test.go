package main

import (
	"testing"

	"github.com/schollz/progressbar/v2"
	"github.com/stretchr/testify/assert"

	"github.com/lumafield/s3-load-benchmark/sbmark"
)

func TestListingTicker(t *testing.T) {
	assert.IsType(t, &sbmark.NilTicker{}, listingTicker(0, 3))
	assert.IsType(t, &sbmark.NilTicker{}, listingTicker(-1, 3))
	assert.IsType(t, &sbmark.NilTicker{}, listingTicker(1000, 0))
	assert.IsType(t, &progressbar.ProgressBar{}, listingTicker(1000, 3))
}
