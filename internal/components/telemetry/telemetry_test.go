package telemetry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScopedAPI(t *testing.T) {
	rec := NewRecorder()
	scoped := NewScopedAPI("sipac_auth", rec)

	err := errors.New("ticket rejected")
	scoped.ReportBroken("manager.authenticate", err, 2)
	scoped.ReportWarning("manager.refresh")
	scoped.ReportDebug("manager.cookies", []string{"JSESSIONID"})

	require.Equal(t, []Report{
		{Kind: "broken", Id: "sipac_auth: manager.authenticate", Params: []any{err, 2}},
	}, rec.Reports("broken"))
	require.True(t, rec.Has("warning", "sipac_auth: manager.refresh"))
	require.True(t, rec.Has("debug", "manager.cookies"))
	require.False(t, rec.Has("broken", "manager.refresh"))
	require.Len(t, rec.Reports(""), 3)
}
