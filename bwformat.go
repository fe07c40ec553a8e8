package brainwash

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"
)

// ParseError reports a malformed line of a .bw file.
type ParseError struct {
	Line int // 1-based
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

var errMissingFields = errors.New("missing fields")

// ReadPatch parses a patch in the line-oriented .bw format. Blank lines, lines
// starting with # and unknown directives are skipped. Lines between "track"
// and "end" are the track notation, joined with newlines.
func ReadPatch(r io.Reader) (Patch, error) {
	p := NewPatch()
	ids := make(map[int]int) // module id -> index in p.Modules
	var trackLines []string
	inTrack := false
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if inTrack {
			if line == "end" {
				inTrack = false
				p.Track = strings.Join(trackLines, "\n")
			} else {
				trackLines = append(trackLines, line)
			}
			continue
		}
		fields := strings.Fields(line)
		if err := readDirective(&p, ids, fields); err != nil {
			return Patch{}, &ParseError{Line: lineNo, Err: err}
		}
		if fields[0] == "track" {
			inTrack = true
			trackLines = trackLines[:0]
		}
	}
	if err := scanner.Err(); err != nil {
		return Patch{}, fmt.Errorf("could not read patch: %w", err)
	}
	if inTrack {
		return Patch{}, &ParseError{Line: lineNo, Err: errors.New("track block is missing its end line")}
	}
	for i := range p.Modules {
		slices.SortStableFunc(p.Modules[i].Env, func(a, b EnvPoint) int {
			switch {
			case a.Time < b.Time:
				return -1
			case a.Time > b.Time:
				return 1
			}
			return 0
		})
	}
	return p, nil
}

func readDirective(p *Patch, ids map[int]int, f []string) error {
	need := func(n int) error {
		if len(f) < n {
			return fmt.Errorf("%s: %w", f[0], errMissingFields)
		}
		return nil
	}
	module := func(s string) (*Module, error) {
		id, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid module id %q", f[0], s)
		}
		i, ok := ids[id]
		if !ok {
			return nil, fmt.Errorf("%s: no module with id %d", f[0], id)
		}
		return &p.Modules[i], nil
	}
	var err error
	switch f[0] {
	case "bpm":
		if err = need(2); err == nil {
			p.BPM, err = parseFloat(f[1], 64)
		}
	case "bars":
		if err = need(2); err == nil {
			p.Bars, err = strconv.Atoi(f[1])
		}
	case "scale":
		if err = need(2); err == nil {
			p.Scale = f[1]
		}
	case "root":
		if err = need(2); err == nil {
			p.Root = f[1]
		}
	case "master":
		if err = need(2); err == nil {
			p.Master, err = parseFloat32(f[1])
		}
	case "module":
		if err := need(5); err != nil {
			return err
		}
		var m Module
		if m.ID, err = strconv.Atoi(f[1]); err != nil {
			return fmt.Errorf("module: invalid id: %w", err)
		}
		if _, ok := ids[m.ID]; ok {
			return fmt.Errorf("module: duplicate id %d", m.ID)
		}
		kind, err := ParseModuleKind(f[2])
		if err != nil {
			return err
		}
		m = NewModule(m.ID, kind, 0, 0)
		if m.X, err = strconv.Atoi(f[3]); err != nil {
			return fmt.Errorf("module: invalid x: %w", err)
		}
		if m.Y, err = strconv.Atoi(f[4]); err != nil {
			return fmt.Errorf("module: invalid y: %w", err)
		}
		if len(f) > 5 {
			if m.Orientation, err = ParseOrientation(f[5]); err != nil {
				return err
			}
		}
		ids[m.ID] = len(p.Modules)
		p.Modules = append(p.Modules, m)
	case "param":
		if err := need(4); err != nil {
			return err
		}
		m, err := module(f[1])
		if err != nil {
			return err
		}
		index, err := strconv.Atoi(f[2])
		if err != nil || index < 0 || index >= MaxParams {
			return fmt.Errorf("param: invalid index %q", f[2])
		}
		if m.Params[index], err = parseFloat32(f[3]); err != nil {
			return fmt.Errorf("param: invalid value: %w", err)
		}
	case "port":
		if err := need(3); err != nil {
			return err
		}
		m, err := module(f[1])
		if err != nil {
			return err
		}
		mask, err := strconv.ParseUint(f[2], 0, 8)
		if err != nil {
			return fmt.Errorf("port: invalid mask: %w", err)
		}
		m.Ports = uint8(mask)
	case "env":
		if err := need(4); err != nil {
			return err
		}
		m, err := module(f[1])
		if err != nil {
			return err
		}
		var pt EnvPoint
		if pt.Time, err = parseFloat32(f[2]); err != nil {
			return fmt.Errorf("env: invalid time: %w", err)
		}
		if pt.Value, err = parseFloat32(f[3]); err != nil {
			return fmt.Errorf("env: invalid value: %w", err)
		}
		pt.Curve = len(f) > 4 && f[4] == "curve"
		m.Env = append(m.Env, pt)
	}
	return err
}

var errNotFinite = errors.New("not a finite number")

// parseFloat is strconv.ParseFloat refusing NaN and infinities, which would
// otherwise reach the audio thread.
func parseFloat(s string, bitSize int) (float64, error) {
	v, err := strconv.ParseFloat(s, bitSize)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%q: %w", s, errNotFinite)
	}
	return v, nil
}

func parseFloat32(s string) (float32, error) {
	v, err := parseFloat(s, 32)
	return float32(v), err
}

// Write serializes the patch in the .bw format. Only values that differ from
// their defaults are written, so a fresh patch produces no global or param
// lines. Groups of directives are separated by blank lines.
func (p *Patch) Write(w io.Writer) error {
	var sections []string
	var s strings.Builder
	flush := func() {
		if s.Len() > 0 {
			sections = append(sections, s.String())
			s.Reset()
		}
	}
	if p.BPM != DefaultBPM {
		fmt.Fprintf(&s, "bpm %s\n", strconv.FormatFloat(p.BPM, 'f', -1, 64))
	}
	if p.Bars != DefaultBars {
		fmt.Fprintf(&s, "bars %d\n", p.Bars)
	}
	if p.Scale != DefaultScale {
		fmt.Fprintf(&s, "scale %s\n", p.Scale)
	}
	if p.Root != DefaultRoot {
		fmt.Fprintf(&s, "root %s\n", p.Root)
	}
	if math.Abs(float64(p.Master-DefaultMaster)) > 1e-4 {
		fmt.Fprintf(&s, "master %s\n", formatFloat(float64(p.Master)))
	}
	flush()
	for _, m := range p.Modules {
		fmt.Fprintf(&s, "module %d %s %d %d", m.ID, m.Kind, m.X, m.Y)
		if m.Orientation == Vertical {
			s.WriteString(" v")
		}
		s.WriteByte('\n')
	}
	flush()
	for _, m := range p.Modules {
		defaults := m.Kind.DefaultParams()
		for i := range m.Kind.Type().Params {
			if math.Abs(float64(m.Params[i]-defaults[i])) > 1e-4 {
				fmt.Fprintf(&s, "param %d %d %s\n", m.ID, i, formatFloat(float64(m.Params[i])))
			}
		}
	}
	flush()
	for _, m := range p.Modules {
		if m.Ports != AllPortsOpen {
			fmt.Fprintf(&s, "port %d 0x%02X\n", m.ID, m.Ports)
		}
	}
	flush()
	for _, m := range p.Modules {
		for _, pt := range m.Env {
			fmt.Fprintf(&s, "env %d %s %s", m.ID, formatFloat(float64(pt.Time)), formatFloat(float64(pt.Value)))
			if pt.Curve {
				s.WriteString(" curve")
			}
			s.WriteByte('\n')
		}
	}
	flush()
	if p.Track != "" {
		s.WriteString("track\n")
		s.WriteString(p.Track)
		if !strings.HasSuffix(p.Track, "\n") {
			s.WriteByte('\n')
		}
		s.WriteString("end\n")
	}
	flush()
	if _, err := io.WriteString(w, strings.Join(sections, "\n")); err != nil {
		return fmt.Errorf("could not write patch: %w", err)
	}
	return nil
}
