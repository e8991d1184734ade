package adapter

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fsPermissionError struct{}

func (*fsPermissionError) Error() string { return "open /dev/rfcomm0: permission denied" }
func (*fsPermissionError) Unwrap() error { return fs.ErrPermission }

func TestRetryable(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transmission", &TransmissionError{Kind: KindSocket, Err: errors.New("reset")}, true},
		{"wrapped transmission", fmt.Errorf("job: %w", &TransmissionError{Kind: KindSocket, Err: errors.New("reset")}), true},
		{"not connected", &TransmissionError{Kind: KindSocket, Err: ErrNotConnected}, true},
		{"timeout", &ConnectionError{Kind: KindSocket, Err: ErrConnectionTimeout}, false},
		{"permission", &TransmissionError{Kind: KindCable, Err: ErrPermissionDenied}, false},
		{"unsupported", ErrUnsupported, false},
		{"capability", ErrCapabilityUnavailable, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Retryable(tc.err))
		})
	}
}

func TestClassify(t *testing.T) {
	err := classify(&fsPermissionError{})
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.ErrorIs(t, err, fs.ErrPermission)

	plain := errors.New("no such file")
	assert.Equal(t, plain, classify(plain))
	assert.Nil(t, classify(nil))
}

func TestErrorMessages(t *testing.T) {
	cerr := &ConnectionError{Kind: KindSocket, Address: "10.0.0.9:9100", Err: ErrConnectionTimeout}
	assert.Equal(t, `socket connect "10.0.0.9:9100": connection timed out`, cerr.Error())

	terr := &TransmissionError{Kind: KindWireless, Err: errors.New("link lost")}
	assert.Equal(t, "wireless send: link lost", terr.Error())
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("cable")
	require.NoError(t, err)
	assert.Equal(t, KindCable, k)

	_, err = ParseKind("infrared")
	assert.ErrorIs(t, err, ErrUnsupported)
}
