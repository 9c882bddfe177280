package statusline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatusLineIdle(t *testing.T) {
	var r Record
	line := "<Idle|MPos:-1.0000,-1.0000,-1.0000,0.0000,0.0000|WPos:287.6600,201.0800,78.1109,nan,0.0000|F:0.0,3000.0,100.0|S:0.0,12000.0,100.0,0,23.2,24.2|T:2,-7.208,-1|W:0.00|L:0,0,0,0.0,100.0>"
	require.NoError(t, r.ParseStatusLine(line))

	assert.Equal(t, "Idle", r.State)
	assert.Equal(t, -1.0, r.MachinePos.X)
	assert.Equal(t, 287.66, r.WorkPos.X)
	// nan is zeroed, not propagated.
	assert.Equal(t, 0.0, r.WorkPos.A)
	assert.Equal(t, 3000.0, r.Feed.Target)
	assert.Equal(t, 100, r.Feed.Override)
	assert.Equal(t, 12000.0, r.Spindle.TargetRPM)
	assert.Equal(t, 2, r.Tool.Current)
}

func TestParseStatusLineRejectsMalformed(t *testing.T) {
	var r Record
	assert.Error(t, r.ParseStatusLine("Idle|MPos:0.0,0.0,0.0"))
	assert.Error(t, r.ParseStatusLine(""))
	assert.Error(t, r.ParseStatusLine("<>"))
}

func TestParseDiagnoseLine(t *testing.T) {
	var r Record
	line := "{S:1,8000|L:0,0|F:1,75|V:1,50|G:1|T:1|R:0|C:1|E:0,1,0,1,1,0|P:1,0|A:1,1|I:0}"
	require.NoError(t, r.ParseDiagnoseLine(line))

	assert.Equal(t, 1, r.Switches.Spindle)
	assert.Equal(t, 8000, r.Levels.Spindle)
	assert.Equal(t, 75, r.Levels.SpindleFan)
	assert.Equal(t, 0, r.Sensors.XMin)
	assert.Equal(t, 1, r.Sensors.XMax)
	assert.Equal(t, 1, r.Sensors.ATCHome)
	assert.Equal(t, 0, r.Sensors.EStop)
}

func TestParseDiagnoseLineRejectsMalformed(t *testing.T) {
	var r Record
	assert.Error(t, r.ParseDiagnoseLine("{"))
	assert.Error(t, r.ParseDiagnoseLine("S:1,8000"))
}

func TestParseStateLine(t *testing.T) {
	var r Record
	require.NoError(t, r.ParseStateLine("[G0 G54 G17 G21 G90 G94 M0 M5 M9 T0 F3000.0000 S1.0000]"))

	assert.Equal(t, "G54", r.ActiveWCS)
	assert.Equal(t, 0, r.Tool.Current)
	assert.Equal(t, 3000.0, r.Feed.Target)
	assert.Equal(t, 1.0, r.Spindle.TargetRPM)
}

func TestParseStateLineIgnoresUnknownWCS(t *testing.T) {
	var r Record
	r.ActiveWCS = "G54"
	require.NoError(t, r.ParseStateLine("[G0 G59.1 M5]"))
	// G59.1 is not one of the recognized work coordinate systems, so the
	// previous value is preserved.
	assert.Equal(t, "G54", r.ActiveWCS)
}
