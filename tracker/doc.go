/*
Package tracker runs a brainwash patch in real time.

Three actors share the work and talk through a Broker. The Model owns the
patch: every edit goes through it, is compiled, and the result is published to
the Player as an immutable Snapshot holding the synth, the note cues of the
track and the loop length. The Player runs on the audio thread; at the start of
every buffer it picks up the latest snapshot, so an edit is heard within one
buffer and never blocks the audio. Parameter edits skip the snapshot: the model
stores them straight into the running program. The Detector measures the
output level on its own goroutine from copies of the rendered buffers.

Stopping is a flag the player reads at the start of every buffer. Messages to
the player carry live notes, e.g. from the computer keyboard; MIDI input
arrives through the PlayerProcessContext so that notes land on the exact frame
they were received at.

The Watcher reloads the patch file when it changes on disk, and Metrics
exports what the player and the detector report for Prometheus.
*/
package tracker
