package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeEmptyInput(t *testing.T) {
	fp := Compute(nil)
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", fp.String())
	assert.Equal(t, fp, Compute([]byte{}))
}

func TestComputeIsDeterministic(t *testing.T) {
	content := []byte("certificate JH-NU-2019-000123")
	first := Compute(content)
	second := Compute(content)

	assert.Equal(t, first, second)
	assert.True(t, Valid(first.String()))
}

func TestComputeDistinguishesContent(t *testing.T) {
	corpus := [][]byte{
		[]byte(""),
		[]byte("a"),
		[]byte("b"),
		[]byte("ab"),
		[]byte("ba"),
		[]byte("certificate"),
		[]byte("certificate "),
		{0x00},
		{0x00, 0x00},
	}

	seen := make(map[string]int)
	for i, content := range corpus {
		fp := Compute(content).String()
		prev, dup := seen[fp]
		require.Falsef(t, dup, "collision between corpus entries %d and %d", prev, i)
		seen[fp] = i
	}
}

func TestValid(t *testing.T) {
	assert.False(t, Valid(""))
	assert.False(t, Valid("ABCDEF"))
	assert.False(t, Valid("E3B0C44298FC1C149AFBF4C8996FB92427AE41E4649B934CA495991B7852B855"))
	assert.True(t, Valid("e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"))
}
