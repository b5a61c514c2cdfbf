package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/velora/internal/ir"
	"github.com/roach88/velora/internal/reconcile"
)

func runPlanCommand(t *testing.T, w *workspace, format string, args ...string) string {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewPlanCommand(w.rootOptions(format))
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{}, args...))
	require.NoError(t, cmd.Execute())
	return buf.String()
}

func TestPlan_ShowsDecisionsWithDiff(t *testing.T) {
	w := newWorkspace(t, "")
	_, err := w.sync(t)
	require.NoError(t, err)

	w.write(t, strings.Replace(twoRequirements, "via SAML", "via SAML and OIDC", 1)+"\n# REQ-003: Audit\n\nLog every login.\n")
	out := runPlanCommand(t, w, "text", "--diff")

	assert.Contains(t, out, "mode: full_sync")
	assert.Contains(t, out, "planned: CREATE=1 REGENERATE=1 SKIP=1 RETIRE=0")
	assert.Contains(t, out, "REQ-002 +1/-1")
	assert.Contains(t, out, "+Support single sign-on via SAML and OIDC.")
	assert.Contains(t, out, "-Support single sign-on via SAML.")
}

func TestPlan_JSONIsThePlan(t *testing.T) {
	w := newWorkspace(t, "")
	out := runPlanCommand(t, w, "json", "--mode", "intelligent")

	var resp struct {
		Status string         `json:"status"`
		Data   reconcile.Plan `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, ir.ModeIntelligent, resp.Data.Mode)
	require.Len(t, resp.Data.Actions, 2)
	assert.Equal(t, 2, resp.Data.Count(ir.ActionCreate))
}

func TestPlan_ReportsAmbiguousIdentity(t *testing.T) {
	w := newWorkspace(t, "")
	w.write(t, "# Login\n\nEmail login.\n\n# Login\n\nPasskey login.\n")
	out := runPlanCommand(t, w, "text")

	assert.Contains(t, out, "warnings:")
	assert.Contains(t, out, string(ir.KindClassificationAmbiguous))
}
