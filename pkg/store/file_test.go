package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCatalogue(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jobs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const sampleCatalogue = `
jobs:
  - id: KNDB1010
    handler: kndb1010Job
    description: lesson fee correction
    cron: "0 0 1 1 * ?"
    target_description: t_info_lesson
  - id: KNDB2020
    handler: kndb2020Job
    description: fee validation
  - id: KNDB9000
    handler: kndb9000Job
    description: retired job
    cron: "0 */5 * * * ?"
    enabled: false
mail:
  - job_id: KNDB1010
    from: batch@knpiano.example
    maintainers: "dev@knpiano.example, ops@knpiano.example"
    users: teacher@knpiano.example
    user_content: Fees were corrected.
`

func TestFile_LoadJobDefinitions(t *testing.T) {
	f := NewFile(writeCatalogue(t, sampleCatalogue), nil)

	defs, err := f.LoadJobDefinitions(context.Background())
	require.NoError(t, err)
	require.Len(t, defs, 3)

	assert.Equal(t, "KNDB1010", defs[0].ID)
	assert.Equal(t, "kndb1010Job", defs[0].HandlerRef)
	assert.Equal(t, "0 0 1 1 * ?", defs[0].CronExpression)
	assert.Equal(t, "t_info_lesson", defs[0].TargetDescription)
	assert.True(t, defs[0].Enabled)

	assert.True(t, defs[1].Enabled, "enabled defaults to true")
	assert.False(t, defs[1].IsScheduled())
	assert.False(t, defs[2].Enabled)
}

func TestFile_RequiredFields(t *testing.T) {
	tests := map[string]string{
		"missing id":          "jobs:\n  - handler: xJob\n    description: x\n",
		"missing handler":     "jobs:\n  - id: X\n    description: x\n",
		"missing description": "jobs:\n  - id: X\n    handler: xJob\n",
		"malformed yaml":      "jobs: [",
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewFile(writeCatalogue(t, content), nil).LoadJobDefinitions(context.Background())
			assert.Error(t, err)
		})
	}
}

func TestFile_MissingFile(t *testing.T) {
	_, err := NewFile(filepath.Join(t.TempDir(), "absent.yaml"), nil).LoadJobDefinitions(context.Background())
	assert.Error(t, err)
}

func TestFile_FindJobDefinition(t *testing.T) {
	f := NewFile(writeCatalogue(t, sampleCatalogue), nil)

	def, err := f.FindJobDefinition(context.Background(), "KNDB9000")
	require.NoError(t, err)
	require.NotNil(t, def)
	assert.False(t, def.Enabled)

	def, err = f.FindJobDefinition(context.Background(), "JOBX")
	require.NoError(t, err)
	assert.Nil(t, def)
}

func TestFile_FindMailConfig(t *testing.T) {
	f := NewFile(writeCatalogue(t, sampleCatalogue), nil)

	mc, err := f.FindMailConfig(context.Background(), "KNDB1010")
	require.NoError(t, err)
	require.NotNil(t, mc)
	assert.Equal(t, "batch@knpiano.example", mc.From)
	assert.Equal(t, []string{"dev@knpiano.example", "ops@knpiano.example"}, mc.Maintainers)
	assert.Equal(t, []string{"teacher@knpiano.example"}, mc.Users)
	assert.Equal(t, "Fees were corrected.", mc.UserContent)

	mc, err = f.FindMailConfig(context.Background(), "KNDB2020")
	require.NoError(t, err)
	assert.Nil(t, mc)
}
