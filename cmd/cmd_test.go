package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/shadowstream/internal/config"
	"github.com/conneroisu/shadowstream/internal/errors"
	"github.com/conneroisu/shadowstream/internal/render"
	"github.com/conneroisu/shadowstream/internal/version"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("SHADOWSTREAM_CONFIG_FILE", "")

	root := NewRootCommand(config.New())
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func TestRenderCommand(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"page.html":          `${>partials/head}<p>${name}</p>`,
		"partials/head.html": `<h1>${title}</h1>`,
		"data.yml":           "name: Ada\ntitle: Notes\n",
	})

	stdout, _, err := run(t, "render", filepath.Join(dir, "page.html"), "--data", filepath.Join(dir, "data.yml"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, "<!--tpl-part:"))
	assert.Contains(t, stdout, "<h1>"+render.PartOpen+"Notes"+render.PartClose+"</h1>")
	assert.Contains(t, stdout, "<p>"+render.PartOpen+"Ada"+render.PartClose+"</p>")
}

func TestRenderCommandErrors(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"page.html": `<p>${name}</p>`,
		"README":    "x",
	})

	_, _, err := run(t, "render", filepath.Join(dir, "missing.html"))
	assert.True(t, errors.HasCode(err, errors.ErrCodeFileNotFound))

	_, _, err = run(t, "render", filepath.Join(dir, "README"))
	assert.ErrorContains(t, err, "no extension")

	_, _, err = run(t, "render", filepath.Join(dir, "page.html"), "--data", filepath.Join(dir, "none.yml"))
	assert.True(t, errors.HasCode(err, errors.ErrCodeFileNotFound))

	_, _, err = run(t, "render")
	assert.Error(t, err)
}

func TestCompileCommand(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"page.html": `<a href="${url}">${label}</a>`,
	})
	file := filepath.Join(dir, "page.html")

	t.Run("table", func(t *testing.T) {
		stdout, _, err := run(t, "compile", file)
		require.NoError(t, err)
		assert.Contains(t, stdout, "slots 2")
		assert.Contains(t, stdout, "ATTRIBUTE_PART")
		assert.Contains(t, stdout, "CHILD_PART")
	})

	t.Run("json", func(t *testing.T) {
		stdout, _, err := run(t, "compile", file, "-o", "json")
		require.NoError(t, err)

		var program struct {
			Digest string `json:"digest"`
			Slots  int    `json:"slots"`
			Ops    []struct {
				Kind string `json:"kind"`
			} `json:"ops"`
		}
		require.NoError(t, json.Unmarshal([]byte(stdout), &program))
		assert.NotEmpty(t, program.Digest)
		assert.Equal(t, 2, program.Slots)
		require.NotEmpty(t, program.Ops)
		assert.Equal(t, "POSSIBLE_NODE_MARKER", program.Ops[0].Kind)
	})

	t.Run("yaml", func(t *testing.T) {
		stdout, _, err := run(t, "compile", file, "--output", "yaml")
		require.NoError(t, err)

		var program struct {
			Digest string `yaml:"digest"`
			Slots  int    `yaml:"slots"`
		}
		require.NoError(t, yaml.Unmarshal([]byte(stdout), &program))
		assert.NotEmpty(t, program.Digest)
		assert.Equal(t, 2, program.Slots)
	})

	t.Run("unknown format", func(t *testing.T) {
		_, _, err := run(t, "compile", file, "-o", "xml")
		assert.ErrorContains(t, err, "unsupported format")
	})
}

func TestCompileCommandRejectsBadTemplate(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"bad.html": `<script>${code}</script>`,
	})

	_, _, err := run(t, "compile", filepath.Join(dir, "bad.html"))
	assert.True(t, errors.IsCompile(err))
}

func TestConfigFile(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"good.yml":  "log:\n  level: debug\n",
		"bad.yml":   "log:\n  level: loud\n",
		"page.html": `<p>${x}</p>`,
	})

	_, stderr, err := run(t, "--config", filepath.Join(dir, "good.yml"), "render", filepath.Join(dir, "page.html"))
	require.NoError(t, err)
	assert.Contains(t, stderr, "Using config file:")

	_, _, err = run(t, "--config", filepath.Join(dir, "bad.yml"), "render", filepath.Join(dir, "page.html"))
	assert.ErrorContains(t, err, "invalid configuration")

	_, _, err = run(t, "--config", filepath.Join(dir, "none.yml"), "render", filepath.Join(dir, "page.html"))
	assert.ErrorContains(t, err, "read config")
}

func TestBuildCommand(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"site/index.html":      `${>_head}<p>${name}</p>`,
		"site/_head.html":      `<header>${name}</header>`,
		"site/docs/guide.html": `<h1>Guide</h1>`,
		"site/data.yml":        "name: Ada\n",
	})
	site := filepath.Join(dir, "site")
	out := filepath.Join(dir, "dist")

	stdout, _, err := run(t, "build", "--templates", site, "--data", filepath.Join(site, "data.yml"), "--out", out, "--workers", "2")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Exported 2 pages, 0 failed")

	index, err := os.ReadFile(filepath.Join(out, "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(index), "<header>"+render.PartOpen+"Ada"+render.PartClose+"</header>")
	assert.FileExists(t, filepath.Join(out, "docs", "guide.html"))
	assert.NoFileExists(t, filepath.Join(out, "_head.html"))
}

func TestBuildCommandReportsFailures(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"site/ok.html":  `<p>ok</p>`,
		"site/bad.html": `<textarea>${x}</textarea>`,
	})

	stdout, _, err := run(t, "build", "--templates", filepath.Join(dir, "site"), "--out", filepath.Join(dir, "dist"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: ")
	assert.Contains(t, stdout, "✗ bad")
	assert.Contains(t, stdout, "Exported 2 pages, 1 failed")
}

func TestVersionCommand(t *testing.T) {
	stdout, _, err := run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, "shadowstream "))

	stdout, _, err = run(t, "version", "--format", "json")
	require.NoError(t, err)
	var info version.Info
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.NotEmpty(t, info.Version)
	assert.True(t, strings.HasPrefix(info.GoVersion, "go"))

	stdout, _, err = run(t, "version", "--detailed")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Platform: ")

	_, _, err = run(t, "version", "--format", "xml")
	assert.Error(t, err)
}

func TestWithin(t *testing.T) {
	assert.True(t, within("site", "site/data.yml"))
	assert.True(t, within("site", "site/nested/data.yml"))
	assert.False(t, within("site", "data.yml"))
	assert.False(t, within("site", "../data.yml"))
}
