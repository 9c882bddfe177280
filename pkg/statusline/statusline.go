// Package statusline parses the three bracket-delimited line shapes a CNC
// mill emits in response to status/diagnose/modal-state queries. It has no
// dependents inside this module other than its own tests: it exists because
// the calling contract requires a collaborator that "consumes a line and
// mutates a record", not because the session dispatcher drives it.
package statusline

import (
	"fmt"
	"strconv"
	"strings"
)

// Position holds the five mill axes: X, Y, Z, A, B.
type Position struct {
	X, Y, Z, A, B float64
}

// Feed holds current/target feed rate and its override percentage.
type Feed struct {
	Current  float64
	Target   float64
	Override int
}

// Spindle holds current/target RPM, override, and temperature telemetry.
type Spindle struct {
	CurrentRPM  float64
	TargetRPM   float64
	Override    int
	VacuumMode  int
	Temperature float64
	BedTemp     float64
}

// Tool holds the currently mounted and pending tool numbers plus offset.
type Tool struct {
	Current      int
	LengthOffset float64
	Target       int
}

// Limits holds laser-mode switch/power telemetry reported under the L field.
type Limits struct {
	Mode    int
	State   int
	Testing int
	Power   float64
	Scale   float64
}

// Record is the plain data record mutated by ParseStatusLine,
// ParseDiagnoseLine and ParseStateLine. Fields untouched by a given line
// shape retain their previous value.
type Record struct {
	State      string
	MachinePos Position
	WorkPos    Position
	Feed       Feed
	Spindle    Spindle
	Tool       Tool
	Limits     Limits

	// Switches, Levels and Sensors are populated by ParseDiagnoseLine only.
	Switches Switches
	Levels   SwitchLevels
	Sensors  Sensors

	ActiveWCS string
}

// Switches mirrors the named digital outputs reported by a diagnose line.
type Switches struct {
	Spindle     int
	Laser       int
	SpindleFan  int
	Vacuum      int
	Light       int
	ToolSensor  int
	Air         int
	WPChargePwr int
}

// SwitchLevels mirrors the analog level reported alongside the switches
// that carry one (spindle, fan, vacuum, laser report switch and level
// as a two-value pair; the rest are on/off only).
type SwitchLevels struct {
	Spindle    int
	SpindleFan int
	Vacuum     int
	Laser      int
}

// Sensors mirrors the named digital inputs reported by a diagnose line.
type Sensors struct {
	XMin, XMax, YMin, YMax, ZMax, Cover int
	Probe, Calibrate                    int
	ATCHome, ToolSensor                 int
	EStop                               int
}

// ParseStatusLine parses a `<State|Key:v,v,...|...>` status line into r.
// NaN position components are zeroed rather than propagated, preserving a
// quirk of the reference parser.
func (r *Record) ParseStatusLine(line string) error {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "<") || !strings.HasSuffix(line, ">") {
		return fmt.Errorf("statusline: not a status line: %q", line)
	}
	content := line[1 : len(line)-1]
	if content == "" {
		return fmt.Errorf("statusline: empty status line: %q", line)
	}
	parts := strings.Split(content, "|")
	if len(parts) > 0 {
		r.State = parts[0]
	}
	for _, part := range parts[1:] {
		key, value, ok := splitField(part)
		if !ok {
			continue
		}
		r.parseStatusField(key, value)
	}
	return nil
}

func (r *Record) parseStatusField(key, value string) {
	switch key {
	case "MPos":
		coords := floatList(value)
		assignPosition(&r.MachinePos, coords)
	case "WPos":
		coords := floatList(value)
		assignPosition(&r.WorkPos, coords)
	case "F":
		f := strings.Split(value, ",")
		r.Feed.Current = floatAt(f, 0, 0)
		r.Feed.Target = floatAt(f, 1, 0)
		r.Feed.Override = int(floatAt(f, 2, 100))
	case "S":
		s := strings.Split(value, ",")
		r.Spindle.CurrentRPM = floatAt(s, 0, 0)
		r.Spindle.TargetRPM = floatAt(s, 1, 0)
		r.Spindle.Override = int(floatAt(s, 2, 100))
		r.Spindle.VacuumMode = int(floatAt(s, 3, 0))
		r.Spindle.Temperature = floatAt(s, 4, 0)
		r.Spindle.BedTemp = floatAt(s, 5, 0)
	case "T":
		t := strings.Split(value, ",")
		r.Tool.Current = int(floatAt(t, 0, -1))
		r.Tool.LengthOffset = floatAt(t, 1, 0)
		r.Tool.Target = int(floatAt(t, 2, -1))
	case "L":
		l := strings.Split(value, ",")
		r.Limits.Mode = int(floatAt(l, 0, 0))
		r.Limits.State = int(floatAt(l, 1, 0))
		r.Limits.Testing = int(floatAt(l, 2, 0))
		r.Limits.Power = floatAt(l, 3, 0)
		r.Limits.Scale = floatAt(l, 4, 100)
	}
}

// ParseDiagnoseLine parses a `{Key:v,v,...|...}` diagnose line into r.
func (r *Record) ParseDiagnoseLine(line string) error {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "{") || !strings.HasSuffix(line, "}") {
		return fmt.Errorf("statusline: not a diagnose line: %q", line)
	}
	content := line[1 : len(line)-1]
	for _, part := range strings.Split(content, "|") {
		key, value, ok := splitField(part)
		if !ok {
			continue
		}
		values := intList(value)
		r.parseDiagnoseField(key, values)
	}
	return nil
}

func (r *Record) parseDiagnoseField(key string, v []int) {
	switch key {
	case "S":
		r.Switches.Spindle = intAt(v, 0)
		r.Levels.Spindle = intAt(v, 1)
	case "L":
		r.Switches.Laser = intAt(v, 0)
		r.Levels.Laser = intAt(v, 1)
	case "F":
		r.Switches.SpindleFan = intAt(v, 0)
		r.Levels.SpindleFan = intAt(v, 1)
	case "V":
		r.Switches.Vacuum = intAt(v, 0)
		r.Levels.Vacuum = intAt(v, 1)
	case "G":
		r.Switches.Light = intAt(v, 0)
	case "T":
		r.Switches.ToolSensor = intAt(v, 0)
	case "R":
		r.Switches.Air = intAt(v, 0)
	case "C":
		r.Switches.WPChargePwr = intAt(v, 0)
	case "E":
		r.Sensors.XMin = intAt(v, 0)
		r.Sensors.XMax = intAt(v, 1)
		r.Sensors.YMin = intAt(v, 2)
		r.Sensors.YMax = intAt(v, 3)
		r.Sensors.ZMax = intAt(v, 4)
		r.Sensors.Cover = intAt(v, 5)
	case "P":
		r.Sensors.Probe = intAt(v, 0)
		r.Sensors.Calibrate = intAt(v, 1)
	case "A":
		r.Sensors.ATCHome = intAt(v, 0)
		r.Sensors.ToolSensor = intAt(v, 1)
	case "I":
		r.Sensors.EStop = intAt(v, 0)
	}
}

// ParseStateLine parses a `[G0 G54 ... F3000.0000 S1.0000]` modal-state
// line into r. Unrecognized tokens are ignored rather than rejected.
func (r *Record) ParseStateLine(line string) error {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "[") || !strings.HasSuffix(line, "]") {
		return fmt.Errorf("statusline: not a state line: %q", line)
	}
	content := line[1 : len(line)-1]
	for _, tok := range strings.Fields(content) {
		if tok == "" {
			continue
		}
		switch tok[0] {
		case 'G':
			switch tok {
			case "G54", "G55", "G56", "G57", "G58", "G59":
				r.ActiveWCS = tok
			}
		case 'T':
			if n, err := strconv.Atoi(tok[1:]); err == nil {
				r.Tool.Current = n
			}
		case 'F':
			if f, err := strconv.ParseFloat(tok[1:], 64); err == nil {
				r.Feed.Target = f
			}
		case 'S':
			if f, err := strconv.ParseFloat(tok[1:], 64); err == nil {
				r.Spindle.TargetRPM = f
			}
		}
	}
	return nil
}

func splitField(part string) (key, value string, ok bool) {
	i := strings.IndexByte(part, ':')
	if i < 0 {
		return "", "", false
	}
	return part[:i], part[i+1:], true
}

func floatList(value string) []float64 {
	fields := strings.Split(value, ",")
	out := make([]float64, len(fields))
	for i, f := range fields {
		f = strings.TrimSpace(f)
		if f == "nan" {
			out[i] = 0
			continue
		}
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			out[i] = 0
			continue
		}
		out[i] = v
	}
	return out
}

func intList(value string) []int {
	fields := strings.Split(value, ",")
	out := make([]int, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}

func floatAt(fields []string, i int, def float64) float64 {
	if i >= len(fields) {
		return def
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(fields[i]), 64)
	if err != nil {
		return def
	}
	return v
}

func intAt(v []int, i int) int {
	if i >= len(v) {
		return 0
	}
	return v[i]
}

func assignPosition(p *Position, coords []float64) {
	if len(coords) > 0 {
		p.X = coords[0]
	}
	if len(coords) > 1 {
		p.Y = coords[1]
	}
	if len(coords) > 2 {
		p.Z = coords[2]
	}
	if len(coords) > 3 {
		p.A = coords[3]
	}
	if len(coords) > 4 {
		p.B = coords[4]
	}
}
