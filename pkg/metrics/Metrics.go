/*
Package metrics holds the prometheus instruments of the photo map.
All methods are safe to call on a nil *Metrics, which records nothing.
*/
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	versioncollector "github.com/prometheus/client_golang/prometheus/collectors/version"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	tilesRendered *prometheus.CounterVec
	tileCacheHits prometheus.Counter
	generated     *prometheus.CounterVec
	jsonRequests  *prometheus.CounterVec
	scanErrors    prometheus.Counter
	imagesIndexed prometheus.Gauge
}

func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		tilesRendered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prometheus.BuildFQName(namespace, "tiles", "rendered_total"),
			Help: "Number of map tiles rendered",
		}, []string{"layer"}),

		tileCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prometheus.BuildFQName(namespace, "tiles", "cache_hits_total"),
			Help: "Number of tile requests answered from the tile cache",
		}),

		generated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prometheus.BuildFQName(namespace, "images", "generated_total"),
			Help: "Number of photo icons and thumbnails generated from source images",
		}, []string{"kind"}),

		jsonRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prometheus.BuildFQName(namespace, "http", "json_requests_total"),
			Help: "Number of JSON API requests",
		}, []string{"endpoint"}),

		scanErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prometheus.BuildFQName(namespace, "scan", "errors_total"),
			Help: "Number of images that could not be read during a scan",
		}),

		imagesIndexed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: prometheus.BuildFQName(namespace, "images", "indexed"),
			Help: "Number of located images shown on the map",
		}),
	}

	m.registry.MustRegister(
		versioncollector.NewCollector(namespace),
		m.tilesRendered,
		m.tileCacheHits,
		m.generated,
		m.jsonRequests,
		m.scanErrors,
		m.imagesIndexed,
	)

	return m
}

/*
Handler serves the registered metrics in the prometheus exposition format.
*/
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}

	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) TileRendered(layer string) {
	if m != nil {
		m.tilesRendered.WithLabelValues(layer).Inc()
	}
}

func (m *Metrics) TileCacheHit() {
	if m != nil {
		m.tileCacheHits.Inc()
	}
}

func (m *Metrics) Generated(kind string) {
	if m != nil {
		m.generated.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) JSONRequest(endpoint string) {
	if m != nil {
		m.jsonRequests.WithLabelValues(endpoint).Inc()
	}
}

func (m *Metrics) ScanErrors(n int) {
	if m != nil {
		m.scanErrors.Add(float64(n))
	}
}

func (m *Metrics) ImagesIndexed(n int) {
	if m != nil {
		m.imagesIndexed.Set(float64(n))
	}
}
