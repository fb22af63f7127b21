package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Subcommands(t *testing.T) {
	root := newRootCommand()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"build", "up", "down", "logs", "test", "run", "migrate", "queue", "token"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
}

func TestRootCommand_HelpNamesServicesAndOrder(t *testing.T) {
	long := newRootCommand().Long
	for _, svc := range []string{"postgres", "redis", "minio", "ollama", "api", "worker"} {
		assert.Contains(t, long, svc)
	}
	assert.Less(t, strings.Index(long, "receiptdrop migrate"), strings.Index(long, "receiptdrop up api worker"))
}

func TestMigrate_PrintsSchema(t *testing.T) {
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"migrate", "--print"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "CREATE TABLE IF NOT EXISTS extractions")
}

func TestWriteStats_FoldsRetryIntoDelayed(t *testing.T) {
	var out bytes.Buffer
	err := writeStats(&out, &asynq.QueueInfo{Queue: "extractions", Active: 1, Pending: 2, Scheduled: 3, Retry: 4, Archived: 5})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Contains(t, lines, "delayed          7")
	assert.Contains(t, lines, "failed           5")
}

func TestFlagArgs(t *testing.T) {
	assert.Nil(t, flagArgs(false, "-d"))
	assert.Equal(t, []string{"-d"}, flagArgs(true, "-d"))
}
