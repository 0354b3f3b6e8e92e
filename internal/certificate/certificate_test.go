package certificate

import (
	"bytes"
	"errors"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadUploadedFileKeepsMetadata(t *testing.T) {
	file, err := ReadUploadedFile(bytes.NewReader([]byte("test")), "degree.pdf", "application/pdf", 4)

	require.NoError(t, err)
	assert.Equal(t, "degree.pdf", file.Name)
	assert.Equal(t, "application/pdf", file.MediaType)
	assert.Equal(t, int64(4), file.DeclaredSize)
	assert.Equal(t, []byte("test"), file.Content)
}

func TestReadUploadedFileAcceptsEmptyContent(t *testing.T) {
	file, err := ReadUploadedFile(bytes.NewReader(nil), "empty.png", "image/png", 0)

	require.NoError(t, err)
	assert.Empty(t, file.Content)
}

func TestReadUploadedFileUnreadable(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "nil reader"},
		{name: "read failure", err: errors.New("connection reset")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				file UploadedFile
				err  error
			)
			if tt.err == nil {
				file, err = ReadUploadedFile(nil, "degree.pdf", "application/pdf", 4)
			} else {
				file, err = ReadUploadedFile(iotest.ErrReader(tt.err), "degree.pdf", "application/pdf", 4)
			}

			require.Error(t, err)
			if tt.err != nil {
				assert.Contains(t, err.Error(), tt.err.Error())
			}
			assert.True(t, errors.Is(err, ErrUnreadableInput))
			assert.Equal(t, UploadedFile{}, file)
		})
	}
}

func TestUploadedFileIsImage(t *testing.T) {
	cases := map[string]bool{
		"image/png":       true,
		"IMAGE/PNG":       true,
		"Image/Jpeg":      true,
		"application/pdf": false,
		"":                false,
	}
	for mediaType, want := range cases {
		assert.Equal(t, want, UploadedFile{MediaType: mediaType}.IsImage(), mediaType)
	}
}

func TestParseStatus(t *testing.T) {
	cases := []struct {
		in   string
		want Status
		ok   bool
	}{
		{in: "valid", want: StatusValid, ok: true},
		{in: " SUSPECT ", want: StatusSuspect, ok: true},
		{in: "Invalid", want: StatusInvalid, ok: true},
		{in: "unknown"},
		{in: ""},
	}
	for _, tc := range cases {
		got, ok := ParseStatus(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestEvidenceBundleAddIssueKeepsOrder(t *testing.T) {
	var e EvidenceBundle
	e.AddIssue("first")
	e.AddIssue("second")

	assert.Equal(t, []string{"first", "second"}, e.Issues)
}
