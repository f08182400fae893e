package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func allSentinels() []error {
	return []error{
		ErrTenantMissing,
		ErrRootFolderMissing,
		ErrCredentialMissing,
		ErrAuthExpired,
		ErrQuotaExceeded,
		ErrNotFound,
		ErrTransport,
		ErrRunInProgress,
		ErrInvalidTransition,
		ErrRunNotFound,
		ErrStorageConfigNotFound,
		ErrDocumentNotFound,
	}
}

func TestSentinelErrors_ImplementErrorInterface(t *testing.T) {
	for _, err := range allSentinels() {
		assert.NotEmpty(t, err.Error(), "sentinel error should have non-empty message")
	}
}

func TestSentinelErrors_AreDistinct(t *testing.T) {
	sentinels := allSentinels()
	for i := 0; i < len(sentinels); i++ {
		for j := i + 1; j < len(sentinels); j++ {
			assert.NotEqual(t, sentinels[i], sentinels[j],
				"sentinel errors should be distinct: %q vs %q", sentinels[i], sentinels[j])
		}
	}
}

func TestSentinelErrors_ExpectedMessages(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrRootFolderMissing, "remote root folder is not configured"},
		{ErrCredentialMissing, "remote storage credential is missing"},
		{ErrAuthExpired, "remote credential rejected or expired"},
		{ErrRunInProgress, "a sync run is already in progress for this tenant"},
		{ErrInvalidTransition, "invalid sync run state transition"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.err.Error())
	}
}
