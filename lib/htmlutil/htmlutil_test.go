package htmlutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func TestGetTextNestedMarkup(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(
		`<td><a href="/profile.php?id=1"><b>Red</b></a> of <i>Pallet</i></td>`,
	))
	require.NoError(t, err)

	require.Equal(t, "Red of Pallet", CollapseWhitespace(GetText(doc)))
}

func TestGetTextNilNode(t *testing.T) {
	require.Equal(t, "", GetText(nil))
}

func TestCollapseWhitespace(t *testing.T) {
	require.Equal(t, "a b c", CollapseWhitespace("  a\n\tb  c  "))
	require.Equal(t, "", CollapseWhitespace(" \n "))
}
