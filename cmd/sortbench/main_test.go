package main

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sortbench/sortbench/internal/recorder"
)

func TestRunRejectsBadArguments(t *testing.T) {
	for _, args := range [][]string{{"-h"}, {"--help"}, {"-x"}, {"-s", "0"}, {"-s", "abc"}} {
		assert.Equal(t, 1, run(args), "%v", args)
	}
}

func TestRunLoadsAndRecords(t *testing.T) {
	dir := t.TempDir()
	summary := filepath.Join(dir, "outputfile.summary")
	cfgPath := filepath.Join(dir, "sortbench.yaml")
	cfgYAML := fmt.Sprintf(`left_table_size: 30
right_table_size: 5
insert_size: 10
data_dir: %s
summary_path: %s
log_level: error
report: false
`, filepath.Join(dir, "data"), summary)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgYAML), 0644))

	require.Equal(t, 0, run([]string{"--config", cfgPath, "-s", "3", "--engine", "badger"}))

	last, err := recorder.LastResult(summary)
	require.NoError(t, err)
	assert.Equal(t, 3, last.ScaleFactor)
}
