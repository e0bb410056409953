package confirm_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/imageport/pkg/confirm"
)

func TestAuto(t *testing.T) {
	yes, err := confirm.Auto(true).Confirm("delete?")
	require.NoError(t, err)
	assert.True(t, yes)

	no, err := confirm.Auto(false).Confirm("delete?")
	require.NoError(t, err)
	assert.False(t, no)
}

func TestReaderConfirmerYes(t *testing.T) {
	var out bytes.Buffer
	c := confirm.NewReaderConfirmer(strings.NewReader("y\n"), &out)

	yes, err := c.Confirm("Delete the object 'disk.raw' after import?")
	require.NoError(t, err)
	assert.True(t, yes)
	assert.Contains(t, out.String(), "Delete the object 'disk.raw' after import? (y/n):")
}

func TestReaderConfirmerNo(t *testing.T) {
	c := confirm.NewReaderConfirmer(strings.NewReader("n\n"), &bytes.Buffer{})

	yes, err := c.Confirm("delete?")
	require.NoError(t, err)
	assert.False(t, yes)
}

func TestReaderConfirmerCaseAndWhitespace(t *testing.T) {
	c := confirm.NewReaderConfirmer(strings.NewReader("  Y \n"), &bytes.Buffer{})

	yes, err := c.Confirm("delete?")
	require.NoError(t, err)
	assert.True(t, yes)
}

func TestReaderConfirmerRepromptsOnGarbage(t *testing.T) {
	var out bytes.Buffer
	c := confirm.NewReaderConfirmer(strings.NewReader("maybe\nyes\nn\n"), &out)

	yes, err := c.Confirm("delete?")
	require.NoError(t, err)
	assert.False(t, yes)

	// Two invalid answers, three prompts.
	assert.Equal(t, 2, strings.Count(out.String(), "Invalid input"))
	assert.Equal(t, 3, strings.Count(out.String(), "(y/n):"))
}

func TestReaderConfirmerInputClosed(t *testing.T) {
	c := confirm.NewReaderConfirmer(strings.NewReader(""), &bytes.Buffer{})

	_, err := c.Confirm("delete?")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input closed")
}

func TestReaderConfirmerSequentialQuestions(t *testing.T) {
	c := confirm.NewReaderConfirmer(strings.NewReader("y\nn\n"), &bytes.Buffer{})

	first, err := c.Confirm("first?")
	require.NoError(t, err)
	assert.True(t, first)

	second, err := c.Confirm("second?")
	require.NoError(t, err)
	assert.False(t, second)
}
