package tracker

import (
	"net/http"

	"github.com/brainwash-synth/brainwash"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exports what the player and the detector report as Prometheus
// metrics. Observe is called by the goroutine owning the model; the handler
// may be served from any goroutine.
type Metrics struct {
	registry *prometheus.Registry

	triggers     prometheus.Counter
	steals       prometheus.Counter
	slides       prometheus.Counter
	releases     prometheus.Counter
	activeVoices prometheus.Gauge
	position     prometheus.Gauge
	peak         *prometheus.GaugeVec
	rms          *prometheus.GaugeVec

	last PlayerReport
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		triggers: f.NewCounter(prometheus.CounterOpts{
			Namespace: "brainwash", Name: "voice_triggers_total",
			Help: "Notes started, including legato slides.",
		}),
		steals: f.NewCounter(prometheus.CounterOpts{
			Namespace: "brainwash", Name: "voice_steals_total",
			Help: "Notes that stole a sounding voice.",
		}),
		slides: f.NewCounter(prometheus.CounterOpts{
			Namespace: "brainwash", Name: "voice_slides_total",
			Help: "Legato notes that slid a held voice to a new frequency.",
		}),
		releases: f.NewCounter(prometheus.CounterOpts{
			Namespace: "brainwash", Name: "voice_releases_total",
			Help: "Notes released.",
		}),
		activeVoices: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "brainwash", Name: "voices_active",
			Help: "Voices that are not free.",
		}),
		position: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "brainwash", Name: "loop_position_seconds",
			Help: "Position of the player in the loop.",
		}),
		peak: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "brainwash", Name: "output_peak_dbfs",
			Help: "Momentary peak level of the output.",
		}, []string{"channel"}),
		rms: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "brainwash", Name: "output_rms_dbfs",
			Help: "Momentary RMS level of the output.",
		}, []string{"channel"}),
	}
}

var channelNames = [2]string{"left", "right"}

// Observe updates the metrics from a message the model received.
func (m *Metrics) Observe(msg MsgToModel) {
	if msg.HasReport {
		r := msg.Report
		// counters carry over when a new synth adopts the voices, so they
		// only go down if the player was replaced
		if r.Stats.Triggers >= m.last.Stats.Triggers {
			m.triggers.Add(float64(r.Stats.Triggers - m.last.Stats.Triggers))
			m.steals.Add(float64(r.Stats.Steals - m.last.Stats.Steals))
			m.slides.Add(float64(r.Stats.Slides - m.last.Stats.Slides))
			m.releases.Add(float64(r.Stats.Releases - m.last.Stats.Releases))
		}
		m.activeVoices.Set(float64(r.Stats.Active))
		m.position.Set(float64(r.Position) / brainwash.SampleRate)
		m.last = r
	}
	if msg.HasDetectorResult {
		for i, name := range channelNames {
			m.peak.WithLabelValues(name).Set(float64(msg.DetectorResult.Peak[i]))
			m.rms.WithLabelValues(name).Set(float64(msg.DetectorResult.RMS[i]))
		}
	}
}

// Handler serves the metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests and for adding process collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
