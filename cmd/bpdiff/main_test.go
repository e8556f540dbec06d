package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const baseYAML = `id: bp-1
nodes:
  - id: A
    type: http
    config:
      url: https://a.example
    position: {x: 0, y: 0}
  - id: B
    type: transform
    position: {x: 100, y: 0}
edges:
  - source: A
    sourcePort: out
    target: B
    targetPort: in
`

const localJSON = `{"id":"bp-1","nodes":[
  {"id":"A","type":"http","config":{"url":"https://local.example"},"position":{"x":0,"y":0}},
  {"id":"B","type":"transform","position":{"x":100,"y":0}}
],"edges":[{"source":"A","sourcePort":"out","target":"B","targetPort":"in"}]}`

const proposalJSON = `{"id":"bp-1","nodes":[
  {"id":"A","type":"http","config":{"url":"https://proposal.example"},"position":{"x":0,"y":0}},
  {"id":"B","type":"transform","position":{"x":100,"y":0}},
  {"id":"C","type":"notify","position":{"x":200,"y":0}}
],"edges":[{"source":"A","sourcePort":"out","target":"B","targetPort":"in"}]}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestDiffThenApplyReproducesTarget(t *testing.T) {
	dir := t.TempDir()
	base := writeFile(t, dir, "base.yaml", baseYAML)
	target := writeFile(t, dir, "proposal.json", proposalJSON)

	out, err := run(t, "diff", base, target)
	require.NoError(t, err)

	var p struct {
		Ops []map[string]interface{} `json:"ops"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &p))
	require.NotEmpty(t, p.Ops)

	patchPath := writeFile(t, dir, "change.json", out)
	out, err = run(t, "apply", base, patchPath)
	require.NoError(t, err)

	var doc struct {
		Nodes []struct {
			ID string `json:"id"`
		} `json:"nodes"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Len(t, doc.Nodes, 3)
}

func TestDiffIdenticalIsEmpty(t *testing.T) {
	dir := t.TempDir()
	base := writeFile(t, dir, "base.yaml", baseYAML)

	out, err := run(t, "diff", base, base)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ops":[]}`, out)
}

func TestApplyAcceptsYAMLPatchAndPrintsYAML(t *testing.T) {
	dir := t.TempDir()
	base := writeFile(t, dir, "base.yaml", baseYAML)
	patchPath := writeFile(t, dir, "patch.yml", `ops:
  - path: nodes/C
    kind: add
    value: {id: C, type: notify, position: {x: 1, y: 2}}
`)

	out, err := run(t, "apply", "-o", "yaml", base, patchPath)
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "bp-1", doc["id"])
	assert.Len(t, doc["nodes"], 3)
}

func TestConflictsClassifiesProposal(t *testing.T) {
	dir := t.TempDir()
	base := writeFile(t, dir, "base.yaml", baseYAML)
	local := writeFile(t, dir, "local.json", localJSON)
	proposal := writeFile(t, dir, "proposal.json", proposalJSON)

	out, err := run(t, "conflicts", base, local, proposal)
	require.NoError(t, err)

	var report struct {
		Clean     []json.RawMessage `json:"clean"`
		Conflicts []struct {
			Kind string `json:"kind"`
		} `json:"conflicts"`
		Blocking int `json:"blocking"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Len(t, report.Clean, 1)
	require.Len(t, report.Conflicts, 1)
	assert.Equal(t, "value-value", report.Conflicts[0].Kind)
	assert.Equal(t, 1, report.Blocking)

	_, err = run(t, "conflicts", "--fail-on-conflict", base, local, proposal)
	var conflictErr *conflictError
	require.ErrorAs(t, err, &conflictErr)
	assert.Equal(t, 1, conflictErr.count)
}

func TestRejectsUnknownExtensionAndArity(t *testing.T) {
	dir := t.TempDir()
	base := writeFile(t, dir, "base.yaml", baseYAML)
	other := writeFile(t, dir, "base.toml", "id = 1")

	_, err := run(t, "diff", base, other)
	assert.ErrorContains(t, err, "unsupported extension")

	_, err = run(t, "diff", base)
	assert.Error(t, err)
}
