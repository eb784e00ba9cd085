package errors_test

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/arthur-debert/treetx/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorString(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "plain",
			err:  errors.New(errors.ErrDuplicateKey, "new-3 already has a name"),
			want: "[DUPLICATE_KEY] new-3 already has a name",
		},
		{
			name: "formatted",
			err:  errors.Newf(errors.ErrMalformedTransform, "%d conflicts", 2),
			want: "[MALFORMED_TRANSFORM] 2 conflicts",
		},
		{
			name: "wrapped",
			err:  errors.Wrap(fs.ErrPermission, errors.ErrRenameFailed, "moving limbo/new-1"),
			want: "[RENAME_FAILED] moving limbo/new-1: permission denied",
		},
		{
			name: "wrapped formatted",
			err:  errors.Wrapf(fs.ErrNotExist, errors.ErrFileAccess, "reading %s", "a/b"),
			want: "[FILE_ACCESS] reading a/b: file does not exist",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, errors.Wrap(nil, errors.ErrFileAccess, "x"))
	assert.Nil(t, errors.Wrapf(nil, errors.ErrFileAccess, "x %d", 1))
}

func TestCodesSurviveWrapping(t *testing.T) {
	inner := errors.New(errors.ErrLockContention, "tree is locked")
	outer := fmt.Errorf("opening transform: %w", inner)

	assert.True(t, errors.IsErrorCode(outer, errors.ErrLockContention))
	assert.False(t, errors.IsErrorCode(outer, errors.ErrNotLocked))
	assert.Equal(t, errors.ErrLockContention, errors.GetErrorCode(outer))
	assert.True(t, stderrors.Is(outer, errors.New(errors.ErrLockContention, "other message")))

	wrapped := errors.Wrap(fs.ErrExist, errors.ErrFileExists, "target exists")
	assert.True(t, stderrors.Is(wrapped, fs.ErrExist))

	assert.Equal(t, errors.ErrUnknown, errors.GetErrorCode(stderrors.New("plain")))
	assert.Equal(t, errors.ErrUnknown, errors.GetErrorCode(nil))
	assert.False(t, errors.IsErrorCode(nil, errors.ErrUnknown))
}

func TestDetails(t *testing.T) {
	err := errors.New(errors.ErrMalformedTransform, "conflicts").
		WithDetail("conflicts", []string{"duplicate"}).
		WithDetail("count", 1)

	details := errors.GetErrorDetails(fmt.Errorf("apply: %w", err))
	require.NotNil(t, details)
	assert.Equal(t, []string{"duplicate"}, details["conflicts"])
	assert.Equal(t, 1, details["count"])

	bare := &errors.TxError{Code: errors.ErrInternal}
	bare.WithDetail("k", "v")
	assert.Equal(t, "v", bare.Details["k"])

	assert.Nil(t, errors.GetErrorDetails(stderrors.New("plain")))
}

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		err  error
		want errors.Category
	}{
		{errors.New(errors.ErrDuplicateKey, ""), errors.CategoryProgramming},
		{errors.New(errors.ErrReusingTransform, ""), errors.CategoryProgramming},
		{errors.New(errors.ErrMultipleRoots, ""), errors.CategoryProgramming},
		{errors.New(errors.ErrMalformedTransform, ""), errors.CategoryStructural},
		{errors.New(errors.ErrImmortalLimbo, ""), errors.CategoryEnvironment},
		{errors.New(errors.ErrRenameFailed, ""), errors.CategoryEnvironment},
		{stderrors.New("disk full"), errors.CategoryEnvironment},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, errors.CategoryOf(tt.err))
		})
	}
	assert.Equal(t, "structural", errors.CategoryStructural.String())
	assert.Equal(t, "programming", errors.CategoryProgramming.String())
	assert.Equal(t, "environment", errors.CategoryEnvironment.String())
}
