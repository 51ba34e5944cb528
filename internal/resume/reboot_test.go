package resume

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-qa/tessera/internal/model"
)

func writeReboot(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reboot.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadRebootRequestAbsent(t *testing.T) {
	req, err := ReadRebootRequest(filepath.Join(t.TempDir(), "reboot.json"))
	require.NoError(t, err)
	assert.Nil(t, req, "a missing file means no request")
}

func TestReadRebootRequestValid(t *testing.T) {
	path := writeReboot(t, `{"type":"control.reboot_required","nextPhase":2,"reason":"patch"}`)
	req, err := ReadRebootRequest(path)
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, 2, req.NextPhase)
	assert.Equal(t, "patch", req.Reason)
	assert.Equal(t, 0, req.DelaySec())
}

func TestReadRebootRequestWithDelay(t *testing.T) {
	path := writeReboot(t, `{"type":"control.reboot_required","nextPhase":3,"reason":"driver install","reboot":{"delaySec":30}}`)
	req, err := ReadRebootRequest(path)
	require.NoError(t, err)
	assert.Equal(t, 30, req.DelaySec())
}

func TestReadRebootRequestViolations(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "not json", content: `{broken`},
		{name: "wrong type", content: `{"type":"control.shutdown","nextPhase":1,"reason":"x"}`},
		{name: "missing reason", content: `{"type":"control.reboot_required","nextPhase":1}`},
		{name: "empty reason", content: `{"type":"control.reboot_required","nextPhase":1,"reason":""}`},
		{name: "zero phase", content: `{"type":"control.reboot_required","nextPhase":0,"reason":"x"}`},
		{name: "non-integer phase", content: `{"type":"control.reboot_required","nextPhase":1.5,"reason":"x"}`},
		{name: "extra property", content: `{"type":"control.reboot_required","nextPhase":1,"reason":"x","bonus":true}`},
		{name: "extra reboot property", content: `{"type":"control.reboot_required","nextPhase":1,"reason":"x","reboot":{"delaySec":1,"force":true}}`},
		{name: "negative delay", content: `{"type":"control.reboot_required","nextPhase":1,"reason":"x","reboot":{"delaySec":-1}}`},
		{name: "array", content: `[1,2]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeReboot(t, tt.content)
			req, err := ReadRebootRequest(path)
			require.Error(t, err)
			assert.Nil(t, req)
			assert.Equal(t, model.ErrRebootRequestInvalid, model.KindOf(err))
		})
	}
}
