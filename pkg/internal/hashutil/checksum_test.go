package hashutil

import (
	"testing"

	"github.com/arthur-debert/treetx/pkg/filesystem"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksumBytes(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"empty", "", "sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
		{"hello", "hello\n", "sha256:5891b5b522d5df086d0ff0b110fbd9d21bb4fc7163af34d08286a2e846f6be03"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ChecksumBytes([]byte(tt.data)))
		})
	}
}

func TestChecksumFS(t *testing.T) {
	fsys := filesystem.NewAferoFS(afero.NewMemMapFs())
	require.NoError(t, fsys.WriteFile("/f", []byte("hello\n"), 0644))

	sum, err := ChecksumFS(fsys, "/f")
	require.NoError(t, err)
	assert.Equal(t, ChecksumBytes([]byte("hello\n")), sum)

	_, err = ChecksumFS(fsys, "/missing")
	assert.Error(t, err)
}
