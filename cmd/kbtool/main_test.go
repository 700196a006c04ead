// Copyright 2024 AI SA Assistant Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDocs(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"printer.json": `{"description":"Printer is offline","fix":"Restart the print spooler.","error_keywords":["printer","offline"]}`,
		"vpn.json":     `{"description":"VPN keeps disconnecting","fix":"Update the VPN client.","error_keywords":["vpn","disconnect"]}`,
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	// keep the developer's config file out of the test
	t.Setenv("CONFIG_PATH", "")
	t.Chdir(t.TempDir())

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	names := make(map[string]bool)
	for _, cmd := range root.Commands() {
		names[cmd.Name()] = true
		if cmd.Short == "" {
			t.Errorf("command %s should have a Short description", cmd.Name())
		}
	}
	for _, want := range []string{"validate", "resolve", "ticket", "stats"} {
		if !names[want] {
			t.Errorf("command %s not registered", want)
		}
	}
}

func TestValidate(t *testing.T) {
	dir := writeDocs(t)

	out, err := run(t, "validate", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "2 records loaded")
}

func TestValidate_StrictFailsOnInvalidRecord(t *testing.T) {
	dir := writeDocs(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte(`{"description":`), 0o644))

	out, err := run(t, "validate", dir)
	require.NoError(t, err, "skipped files are reported, not fatal")
	assert.Contains(t, out, "skipped broken.json")

	_, err = run(t, "validate", "--strict", dir)
	assert.True(t, errors.Is(err, ErrInvalidRecords), "got %v", err)
}

func TestValidate_MissingDir(t *testing.T) {
	_, err := run(t, "validate", filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	dir := writeDocs(t)

	out, err := run(t, "--docs", dir, "resolve", "the", "printer", "is", "offline")
	require.NoError(t, err)

	var result resolveOutput
	require.NoError(t, json.Unmarshal([]byte(out), &result), out)
	assert.True(t, result.Found)
	assert.Equal(t, "printer.json", result.SourceID)
	assert.Equal(t, "keyword", result.Strategy)

	out, err = run(t, "--docs", dir, "resolve", "--extractor", "statistical", "coffee machine leaking")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &result), out)
	assert.False(t, result.Found)
}

func TestResolve_LLMExtractorNeedsKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := run(t, "--docs", writeDocs(t), "resolve", "--extractor", "llm", "printer offline")
	assert.Error(t, err)
}

func TestTicket(t *testing.T) {
	var payload map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "bot" || pass != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":{"number":"INC0000123","sys_id":"abc"}}`))
	}))
	defer srv.Close()

	t.Setenv("SERVICENOW_INSTANCE", srv.URL)
	t.Setenv("SERVICENOW_USERNAME", "bot")
	t.Setenv("SERVICENOW_PASSWORD", "pw")

	out, err := run(t, "ticket", "--short", "Laptop will not boot", "--email", "ana@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "INC0000123")
	assert.Equal(t, "Laptop will not boot", payload["short_description"])
}

func TestTicket_NotConfigured(t *testing.T) {
	t.Setenv("SERVICENOW_INSTANCE", "")
	t.Setenv("SERVICENOW_USERNAME", "")
	t.Setenv("SERVICENOW_PASSWORD", "")

	_, err := run(t, "ticket", "--short", "Laptop will not boot")
	assert.Error(t, err)
}

func TestStats(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "feedback.jsonl")
	lines := []string{
		`{"id":"1","query":"printer offline","outcome":"answered","fix_source_id":"printer.json"}`,
		`{"id":"2","query":"printer offline","outcome":"resolved","fix_source_id":"printer.json"}`,
		`{"id":"3","query":"monitor","outcome":"unmatched"}`,
	}
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))

	t.Setenv("HELPDESK_FEEDBACK_STORAGE_TYPE", "file")
	t.Setenv("HELPDESK_FEEDBACK_FILE_PATH", path)

	out, err := run(t, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "3 interactions")
	assert.Contains(t, out, "printer.json: answered=1 resolved=1 escalated=0 rate=100%")
}
