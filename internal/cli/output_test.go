package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rendered struct{ Name string }

func (r rendered) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "rendered %s\n", r.Name)
	return err
}

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.SuccessRun("run-1", map[string]string{"result": "success"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-1", resp.RunID)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Error(CodeSource, "cannot read requirements.md", map[string]string{"path": "requirements.md"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeSource, resp.Error.Code)
	assert.Equal(t, "cannot read requirements.md", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextUsesRenderer(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success(rendered{Name: "plan"}))
	assert.Equal(t, "rendered plan\n", buf.String())

	buf.Reset()
	require.NoError(t, formatter.Success("plain value"))
	assert.Equal(t, "plain value\n", buf.String())
}

func TestOutputFormatter_TextErrorGoesToErrWriter(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: out, ErrWriter: errOut, Verbose: true}

	require.NoError(t, formatter.Error(CodeRun, "2 requirement(s) failed", "REQ-001, REQ-002"))
	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "Error [E_RUN]: 2 requirement(s) failed")
	assert.Contains(t, errOut.String(), "Details: REQ-001, REQ-002")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut}

	formatter.VerboseLog("hidden %d", 1)
	assert.Empty(t, errOut.String())

	formatter.Verbose = true
	formatter.VerboseLog("read %d requirement(s)", 3)
	assert.Equal(t, "read 3 requirement(s)\n", errOut.String())
	assert.Empty(t, out.String(), "diagnostics never reach the JSON stream")
}

func TestExitError(t *testing.T) {
	err := WrapExitError(ExitPersistFailure, "mapping store commit failed", assert.AnError)
	assert.Equal(t, "mapping store commit failed: "+assert.AnError.Error(), err.Error())
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, "1 failed", NewExitError(ExitFailure, "1 failed").Error())
}
