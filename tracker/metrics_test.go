package tracker_test

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/brainwash-synth/brainwash/tracker"
	"github.com/brainwash-synth/brainwash/vm"
)

func TestMetricsExportReports(t *testing.T) {
	m := tracker.NewMetrics()
	m.Observe(tracker.MsgToModel{HasReport: true, Report: tracker.PlayerReport{
		Playing: true, Position: 22050, Length: 88200,
		Stats: vm.Stats{Triggers: 3, Steals: 1, Active: 2},
	}})
	m.Observe(tracker.MsgToModel{HasReport: true, Report: tracker.PlayerReport{
		Playing: true, Position: 44100, Length: 88200,
		Stats: vm.Stats{Triggers: 5, Steals: 1, Releases: 2, Active: 2},
	}})
	m.Observe(tracker.MsgToModel{HasDetectorResult: true, DetectorResult: tracker.DetectorResult{
		Peak: [2]tracker.Decibel{-3, -6},
		RMS:  [2]tracker.Decibel{-9, -12},
	}})
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"brainwash_voice_triggers_total 5",
		"brainwash_voice_steals_total 1",
		"brainwash_voice_releases_total 2",
		"brainwash_voices_active 2",
		"brainwash_loop_position_seconds 1",
		`brainwash_output_peak_dbfs{channel="left"} -3`,
		`brainwash_output_rms_dbfs{channel="right"} -12`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics do not contain %q:\n%s", want, body)
		}
	}
}
