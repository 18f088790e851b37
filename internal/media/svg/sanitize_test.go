package svg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeStripsActiveContent(t *testing.T) {
	input := `<svg xmlns="http://www.w3.org/2000/svg" onload="alert(1)">` +
		`<script>alert(2)</script>` +
		`<a href="javascript:alert(3)"><circle r='4' onclick='x()'/></a>` +
		`<foreignObject><body>hi</body></foreignObject>` +
		`<rect width="10" height="10"/></svg>`

	out, err := Sanitize([]byte(input))
	require.NoError(t, err)

	s := string(out)
	assert.NotContains(t, s, "onload")
	assert.NotContains(t, s, "onclick")
	assert.NotContains(t, s, "<script")
	assert.NotContains(t, s, "javascript:")
	assert.NotContains(t, s, "foreignObject")
	assert.Contains(t, s, `<rect width="10" height="10"/>`)
}

func TestSanitizeRejectsNonSVG(t *testing.T) {
	_, err := Sanitize([]byte("<html><body></body></html>"))
	assert.ErrorIs(t, err, ErrNotSVG)
}
