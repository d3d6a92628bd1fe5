package jsonutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrettyIndentsValidJSON(t *testing.T) {
	got := Pretty(` {"category":"signal","formatted_text":null} `)
	assert.Equal(t, "{\n  \"category\": \"signal\",\n  \"formatted_text\": null\n}", got)
}

func TestPrettyLeavesOtherTextAlone(t *testing.T) {
	assert.Equal(t, "upstream timeout", Pretty("upstream timeout\n"))
	assert.Equal(t, "", Pretty("   "))
}
