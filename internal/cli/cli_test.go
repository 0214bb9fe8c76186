package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectCommand(t *testing.T) {
	var out bytes.Buffer
	detectCmd.SetOut(&out)
	detectCmd.SetContext(context.Background())

	require.NoError(t, runDetect(detectCmd, []string{"We", "follow", "Moms", "on", "Call"}))

	var got []map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "care_framework", got[0]["fact_type"])
}

func TestDetectCommand_Stdin(t *testing.T) {
	var out bytes.Buffer
	detectCmd.SetOut(&out)
	detectCmd.SetIn(strings.NewReader("nothing to see"))
	detectCmd.SetContext(context.Background())

	require.NoError(t, runDetect(detectCmd, nil))
	assert.Equal(t, "[]\n", out.String())
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)
	assert.Contains(t, out.String(), "havi-knowledge dev")
}

func TestNewLogger(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	logger, err := newLogger()
	require.NoError(t, err)
	assert.NotNil(t, logger)

	t.Setenv("LOG_LEVEL", "loud")
	_, err = newLogger()
	assert.Error(t, err)
}

func TestOpenBackend_SQLite(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", t.TempDir()+"/havi.db")
	t.Setenv("POLICY_FILE", "")

	logger, err := newLogger()
	require.NoError(t, err)
	b, err := openBackend(context.Background(), false, logger)
	require.NoError(t, err)
	defer b.close()

	assert.Equal(t, "sqlite", b.driver)
	require.NoError(t, b.pinger.Ping(context.Background()))

	svc, err := newKnowledgeService(b, logger)
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestOpenBackend_UnknownDriver(t *testing.T) {
	t.Setenv("STORE_DRIVER", "mongo")
	logger, err := newLogger()
	require.NoError(t, err)
	_, err = openBackend(context.Background(), false, logger)
	assert.ErrorContains(t, err, "unknown STORE_DRIVER")
}
