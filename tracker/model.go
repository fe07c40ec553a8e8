package tracker

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/brainwash-synth/brainwash"
	"github.com/brainwash-synth/brainwash/graph"
	"github.com/brainwash-synth/brainwash/track"
	"github.com/brainwash-synth/brainwash/vm"
	"gopkg.in/yaml.v3"
)

// Model is the control actor. It owns the patch and every edit to it; after
// each edit it compiles what changed and publishes a new snapshot to the
// player. Parameter edits skip the compilation: they are stored atomically
// into the program the player is already running.
//
// A Model is not safe for concurrent use. It is owned by one goroutine, which
// also feeds it the messages the player, the detector and the watcher send
// through the broker.
type (
	// modelData is the part of the model that gets saved to the recovery file
	modelData struct {
		Patch                brainwash.Patch `yaml:"patch"`
		FilePath             string          `yaml:"file_path,omitempty"`
		ChangedSinceSave     bool            `yaml:"changed_since_save"`
		RecoveryFilePath     string          `yaml:"-"`
		ChangedSinceRecovery bool            `yaml:"-"`

		PrevUndoKind    string            `yaml:"-"`
		UndoSkipCounter int               `yaml:"-"`
		UndoStack       []brainwash.Patch `yaml:"-"`
		RedoStack       []brainwash.Patch `yaml:"-"`
	}

	Model struct {
		d modelData

		build    *Build
		opts     SynthOptions
		broker   *Broker
		player   *Player
		alerts   Alerts
		report   PlayerReport
		levels   DetectorResult
		reloaded int
	}

	// ReloadMsg is sent by the watcher when the file being played changed.
	ReloadMsg struct {
		Path  string
		Patch brainwash.Patch
		Err   error
	}
)

const maxUndo = 100

// consecutive edits of the same parameter are undone together, up to this
// many
const paramUndoSkip = 20

var ErrNoRecoveryFile = errors.New("no recovery file path")

// NewModel returns a model playing the patch through the player. The patch
// must compile.
func NewModel(broker *Broker, player *Player, opts SynthOptions, p brainwash.Patch, recoveryFilePath string) (*Model, error) {
	m := &Model{broker: broker, player: player, opts: opts}
	m.d.RecoveryFilePath = recoveryFilePath
	if err := m.setPatchNoUndo(p); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Model) Patch() brainwash.Patch { return m.d.Patch.Copy() }

func (m *Model) Build() *Build { return m.build }

func (m *Model) Rejected() []graph.RejectedEdge { return m.build.Rejected }

func (m *Model) Events() []track.NoteEvent { return m.build.Events }

func (m *Model) Report() PlayerReport { return m.report }

func (m *Model) Levels() DetectorResult { return m.levels }

func (m *Model) Alerts() *Alerts { return &m.alerts }

// Reloads tells how many times the watcher reloaded the patch.
func (m *Model) Reloads() int { return m.reloaded }

func (m *Model) FilePath() string { return m.d.FilePath }

func (m *Model) SetFilePath(value string) { m.d.FilePath = value }

func (m *Model) ChangedSinceSave() bool { return m.d.ChangedSinceSave }

// Load replaces the patch and clears the undo history.
func (m *Model) Load(p brainwash.Patch) error {
	if err := m.setPatchNoUndo(p); err != nil {
		return err
	}
	m.ClearUndoHistory()
	m.d.ChangedSinceSave = false
	return nil
}

// Save writes the patch in the .bw format.
func (m *Model) Save(w io.Writer) error {
	if err := m.d.Patch.Write(w); err != nil {
		return err
	}
	m.d.ChangedSinceSave = false
	return nil
}

func (m *Model) Play() { m.player.Play() }

func (m *Model) Stop() { m.player.Stop() }

// NoteOn plays a live note, e.g. from the computer keyboard. Live note ids
// are negative, below LiveVoiceID, so they never collide with the track.
func (m *Model) NoteOn(note int) {
	TrySend(m.broker.ToPlayer, any(NoteOnMsg{ID: liveNoteID(note), Freq: float32(brainwash.NoteFrequency(float64(note)))}))
}

func (m *Model) NoteOff(note int) {
	TrySend(m.broker.ToPlayer, any(NoteOffMsg{ID: liveNoteID(note)}))
}

func (m *Model) Panic() {
	TrySend(m.broker.ToPlayer, any(PanicMsg{}))
}

func liveNoteID(note int) int {
	return LiveVoiceID - 1 - note
}

// AddModule places a new module with default parameters on the grid and
// returns its id.
func (m *Model) AddModule(kind brainwash.ModuleKind, x, y int, o brainwash.Orientation) (int, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("%w: %d", brainwash.ErrUnknownModuleKind, int(kind))
	}
	id := m.d.Patch.NextID()
	err := m.change("AddModule", 0, func(p *brainwash.Patch) error {
		mod := brainwash.NewModule(id, kind, x, y)
		mod.Orientation = o
		p.Modules = append(p.Modules, mod)
		return nil
	})
	return id, err
}

func (m *Model) RemoveModule(id int) error {
	return m.change("RemoveModule", 0, func(p *brainwash.Patch) error {
		i := slices.IndexFunc(p.Modules, func(mod brainwash.Module) bool { return mod.ID == id })
		if i < 0 {
			return fmt.Errorf("%w: module %d", brainwash.ErrUnknownNode, id)
		}
		p.Modules = slices.Delete(p.Modules, i, i+1)
		return nil
	})
}

func (m *Model) MoveModule(id, x, y int) error {
	return m.changeModule("MoveModule", id, func(mod *brainwash.Module) error {
		mod.X, mod.Y = x, y
		return nil
	})
}

func (m *Model) SetOrientation(id int, o brainwash.Orientation) error {
	return m.changeModule("SetOrientation", id, func(mod *brainwash.Module) error {
		mod.Orientation = o
		return nil
	})
}

func (m *Model) SetPorts(id int, mask uint8) error {
	return m.changeModule("SetPorts", id, func(mod *brainwash.Module) error {
		mod.Ports = mask
		return nil
	})
}

func (m *Model) SetEnv(id int, points []brainwash.EnvPoint) error {
	return m.changeModule("SetEnv", id, func(mod *brainwash.Module) error {
		if mod.Kind != brainwash.Env {
			return fmt.Errorf("module %d is %v, not %v", id, mod.Kind, brainwash.Env)
		}
		mod.Env = slices.Clone(points)
		return nil
	})
}

// SetParam changes a parameter. The value is clamped to the range of the
// parameter and stored straight into the running program, so the change is
// heard without recompiling.
func (m *Model) SetParam(id, index int, value float32) error {
	mod, err := m.d.Patch.Module(id)
	if err != nil {
		return fmt.Errorf("%w: %v", brainwash.ErrUnknownNode, err)
	}
	defs := mod.Kind.Type().Params
	if index < 0 || index >= len(defs) {
		return fmt.Errorf("%w: %v has no parameter %d", brainwash.ErrPortIndexOutOfRange, mod.Kind, index)
	}
	value = defs[index].Clamp(value)
	m.saveUndo("SetParam"+strconv.Itoa(id)+":"+strconv.Itoa(index), paramUndoSkip)
	mod.Params[index] = value
	if h, ok := m.build.Graph.Lookup(id); ok {
		m.build.Program.SetParam(h, index, value)
		m.build.Graph.SetParam(h, index, value)
	}
	return nil
}

// SetTrack replaces the track notation. Invalid notation is refused with the
// syntax error and the old track keeps playing.
func (m *Model) SetTrack(text string) error {
	return m.change("SetTrack", 0, func(p *brainwash.Patch) error {
		p.Track = text
		return nil
	})
}

func (m *Model) SetBPM(bpm float64) error {
	return m.change("SetBPM", 0, func(p *brainwash.Patch) error {
		p.BPM = bpm
		return nil
	})
}

func (m *Model) SetBars(bars int) error {
	return m.change("SetBars", 0, func(p *brainwash.Patch) error {
		p.Bars = bars
		return nil
	})
}

func (m *Model) SetScale(name string) error {
	return m.change("SetScale", 0, func(p *brainwash.Patch) error {
		p.Scale = name
		return nil
	})
}

func (m *Model) SetRoot(note string) error {
	return m.change("SetRoot", 0, func(p *brainwash.Patch) error {
		p.Root = note
		return nil
	})
}

func (m *Model) SetMaster(gain float32) error {
	return m.change("SetMaster", 0, func(p *brainwash.Patch) error {
		p.Master = gain
		return nil
	})
}

func (m *Model) Undo() {
	if !m.CanUndo() {
		return
	}
	cur := m.d.Patch.Copy()
	if err := m.setPatchNoUndo(m.d.UndoStack[len(m.d.UndoStack)-1]); err != nil {
		m.alert("Undo", err)
		return
	}
	m.d.RedoStack = append(m.d.RedoStack, cur)
	m.d.UndoStack = m.d.UndoStack[:len(m.d.UndoStack)-1]
	m.limitUndoRedoLengths()
	m.d.PrevUndoKind = ""
	m.d.ChangedSinceSave = true
	m.d.ChangedSinceRecovery = true
}

func (m *Model) CanUndo() bool { return len(m.d.UndoStack) > 0 }

func (m *Model) Redo() {
	if !m.CanRedo() {
		return
	}
	next := m.d.RedoStack[len(m.d.RedoStack)-1]
	cur := m.d.Patch.Copy()
	if err := m.setPatchNoUndo(next); err != nil {
		m.alert("Redo", err)
		return
	}
	m.d.UndoStack = append(m.d.UndoStack, cur)
	m.d.RedoStack = m.d.RedoStack[:len(m.d.RedoStack)-1]
	m.limitUndoRedoLengths()
	m.d.PrevUndoKind = ""
	m.d.ChangedSinceSave = true
	m.d.ChangedSinceRecovery = true
}

func (m *Model) CanRedo() bool { return len(m.d.RedoStack) > 0 }

func (m *Model) ClearUndoHistory() {
	m.d.UndoStack = m.d.UndoStack[:0]
	m.d.RedoStack = m.d.RedoStack[:0]
	m.d.PrevUndoKind = ""
}

// ProcessMsg handles a message from the broker.
func (m *Model) ProcessMsg(msg MsgToModel) {
	if msg.HasReport {
		m.report = msg.Report
	}
	if msg.HasDetectorResult {
		m.levels = msg.DetectorResult
	}
	switch e := msg.Data.(type) {
	case Alert:
		m.alerts.Add(e, time.Now())
	case ReloadMsg:
		if e.Err != nil {
			m.alert("Reload", e.Err)
			return
		}
		if err := m.change("Reload", 0, func(p *brainwash.Patch) error {
			*p = e.Patch.Copy()
			return nil
		}); err != nil {
			m.alert("Reload", err)
			return
		}
		m.reloaded++
		m.alerts.Add(Alert{Name: "Reload", Priority: Info, Message: "reloaded " + e.Path}, time.Now())
	}
}

// SaveRecovery writes the patch to the recovery file, if it changed since the
// last time.
func (m *Model) SaveRecovery() error {
	if !m.d.ChangedSinceRecovery {
		return nil
	}
	if m.d.RecoveryFilePath == "" {
		return ErrNoRecoveryFile
	}
	out, err := yaml.Marshal(&m.d)
	if err != nil {
		return fmt.Errorf("could not marshal recovery data: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.d.RecoveryFilePath), os.ModePerm); err != nil {
		return fmt.Errorf("could not create recovery directory: %w", err)
	}
	if err := os.WriteFile(m.d.RecoveryFilePath, out, 0o644); err != nil {
		return fmt.Errorf("could not write recovery file: %w", err)
	}
	m.d.ChangedSinceRecovery = false
	return nil
}

// LoadRecovery replaces the patch with the one in the recovery file. A
// missing file is not an error; found tells if anything was loaded.
func (m *Model) LoadRecovery() (found bool, err error) {
	if m.d.RecoveryFilePath == "" {
		return false, ErrNoRecoveryFile
	}
	b, err := os.ReadFile(m.d.RecoveryFilePath)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("could not read recovery file: %w", err)
	}
	d := modelData{Patch: brainwash.NewPatch()}
	if err := yaml.Unmarshal(b, &d); err != nil {
		return false, fmt.Errorf("could not unmarshal recovery data: %w", err)
	}
	if err := m.Load(d.Patch); err != nil {
		return false, err
	}
	m.d.FilePath = d.FilePath
	m.d.ChangedSinceSave = d.ChangedSinceSave
	return true, nil
}

// change applies an edit to a copy of the patch and publishes the result. If
// the edited patch does not compile, the edit is refused and nothing
// changes.
func (m *Model) change(kind string, undoSkipping int, edit func(p *brainwash.Patch) error) error {
	p := m.d.Patch.Copy()
	if err := edit(&p); err != nil {
		return err
	}
	prev := m.d.Patch.Copy()
	if err := m.setPatchNoUndo(p); err != nil {
		return err
	}
	m.pushUndo(kind, undoSkipping, prev)
	return nil
}

func (m *Model) changeModule(kind string, id int, edit func(mod *brainwash.Module) error) error {
	return m.change(kind, 0, func(p *brainwash.Patch) error {
		mod, err := p.Module(id)
		if err != nil {
			return fmt.Errorf("%w: %v", brainwash.ErrUnknownNode, err)
		}
		return edit(mod)
	})
}

// setPatchNoUndo compiles the patch and publishes it. Only the parts that
// changed are rebuilt: a new track keeps the synth, moved modules keep the
// cues, so the player neither resets its voices nor its loop for nothing.
func (m *Model) setPatchNoUndo(p brainwash.Patch) error {
	old := m.build
	graphSame := old != nil && sameGraph(&m.d.Patch, &p)
	trackSame := old != nil && sameTiming(&m.d.Patch, &p)
	b := &Build{}
	if graphSame {
		b.Graph, b.Program, b.Rejected = old.Graph, old.Program, old.Rejected
	} else {
		var err error
		if b.Graph, b.Program, b.Rejected, err = compileGraph(&p); err != nil {
			return err
		}
	}
	t := &compiledTrack{}
	if trackSame {
		t.track, t.events = old.Track, old.Events
		t.cues, t.length, t.layers = old.Snapshot.Cues, old.Snapshot.Length, old.Snapshot.Layers
	} else {
		var err error
		if t, err = compileTrack(&p); err != nil {
			return err
		}
	}
	var synth *vm.Synth
	if graphSame && p.Master == m.d.Patch.Master {
		synth = old.Snapshot.Synth
		syncParams(b, &p)
	} else {
		var err error
		if synth, err = newSynth(b.Program, &p, m.opts); err != nil {
			return err
		}
	}
	b.Track, b.Events = t.track, t.events
	b.Snapshot = &Snapshot{Synth: synth, Cues: t.cues, Length: t.length, Layers: t.layers}
	m.build = b
	m.d.Patch = p
	m.player.Publish(b.Snapshot)
	if !graphSame {
		for _, r := range b.Rejected {
			m.alerts.Add(Alert{Name: fmt.Sprintf("Rejected%d:%d", r.Dst, r.DstPort), Priority: Warning, Message: r.Error()}, time.Now())
		}
	}
	return nil
}

// syncParams stores the parameter values of the patch into a reused program.
func syncParams(b *Build, p *brainwash.Patch) {
	for i := range p.Modules {
		mod := &p.Modules[i]
		h, ok := b.Graph.Lookup(mod.ID)
		if !ok {
			continue
		}
		for j := range mod.Kind.Type().Params {
			if v, _ := b.Program.Param(h, j); v != mod.Params[j] {
				b.Program.SetParam(h, j, mod.Params[j])
				b.Graph.SetParam(h, j, mod.Params[j])
			}
		}
	}
}

func (m *Model) pushUndo(kind string, undoSkipping int, prev brainwash.Patch) {
	m.d.ChangedSinceSave = true
	m.d.ChangedSinceRecovery = true
	if m.d.PrevUndoKind == kind && m.d.UndoSkipCounter < undoSkipping {
		m.d.UndoSkipCounter++
		return
	}
	m.d.PrevUndoKind = kind
	m.d.UndoSkipCounter = 0
	m.d.UndoStack = append(m.d.UndoStack, prev)
	m.d.RedoStack = m.d.RedoStack[:0]
	m.limitUndoRedoLengths()
}

// saveUndo records the current patch before an edit made in place.
func (m *Model) saveUndo(kind string, undoSkipping int) {
	m.pushUndo(kind, undoSkipping, m.d.Patch.Copy())
}

func (m *Model) limitUndoRedoLengths() {
	if len(m.d.UndoStack) > maxUndo {
		m.d.UndoStack = m.d.UndoStack[len(m.d.UndoStack)-maxUndo:]
	}
	if len(m.d.RedoStack) > maxUndo {
		m.d.RedoStack = m.d.RedoStack[len(m.d.RedoStack)-maxUndo:]
	}
}

func (m *Model) alert(name string, err error) {
	m.alerts.Add(Alert{Name: name, Priority: Error, Message: err.Error()}, time.Now())
}

// sameGraph tells if two patches have the same modules, ignoring the
// parameter values of modules that are equal otherwise.
func sameGraph(a, b *brainwash.Patch) bool {
	return slices.EqualFunc(a.Modules, b.Modules, func(x, y brainwash.Module) bool {
		return x.ID == y.ID && x.Kind == y.Kind && x.X == y.X && x.Y == y.Y &&
			x.Orientation == y.Orientation && x.Ports == y.Ports && slices.Equal(x.Env, y.Env)
	})
}

func sameTiming(a, b *brainwash.Patch) bool {
	return a.Track == b.Track && a.BPM == b.BPM && a.Bars == b.Bars && a.Scale == b.Scale && a.Root == b.Root
}
