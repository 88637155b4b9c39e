package metrics

import (
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/John-Robertt/vidcollect/internal/domain"
)

// Metrics 持有一次进程内的计数器；使用私有 registry，不带 Go runtime 指标。
// 输出形式是 node_exporter textfile collector 可读取的 .prom 文件。
type Metrics struct {
	reg *prometheus.Registry

	files     *prometheus.CounterVec
	bytes     prometheus.Counter
	published *prometheus.CounterVec
	duration  prometheus.Gauge
	lastRun   prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vidcollect_files_total",
			Help: "Matched video files by result status.",
		}, []string{"status"}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vidcollect_bytes_copied_total",
			Help: "Bytes written to the destination directory.",
		}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vidcollect_published_total",
			Help: "Object storage uploads by result.",
		}, []string{"result"}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vidcollect_run_duration_seconds",
			Help: "Wall time of the last run.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vidcollect_last_run_timestamp_seconds",
			Help: "Unix time the last run finished.",
		}),
	}
	m.reg.MustRegister(m.files, m.bytes, m.published, m.duration, m.lastRun)

	// 预先创建全部标签组合：没有发生的结果也输出 0，便于告警规则编写。
	for _, s := range []string{domain.StatusCopied, domain.StatusSkipped, domain.StatusFailed, domain.StatusPlanned} {
		m.files.WithLabelValues(s)
	}
	m.published.WithLabelValues("ok")
	m.published.WithLabelValues("failed")
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Observe 把一次运行的汇总累加进计数器（rr 需已 Finalize）。
func (m *Metrics) Observe(rr domain.RunReport, dur time.Duration) {
	s := rr.Summary
	m.files.WithLabelValues(domain.StatusCopied).Add(float64(s.Copied))
	m.files.WithLabelValues(domain.StatusSkipped).Add(float64(s.Skipped))
	m.files.WithLabelValues(domain.StatusFailed).Add(float64(s.Failed))
	m.files.WithLabelValues(domain.StatusPlanned).Add(float64(s.Planned))
	m.bytes.Add(float64(s.BytesCopied))
	m.published.WithLabelValues("ok").Add(float64(s.Published))
	m.published.WithLabelValues("failed").Add(float64(s.PublishFailed))

	m.duration.Set(dur.Seconds())
	finished := rr.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	m.lastRun.Set(float64(finished.UnixNano()) / 1e9)
}

// WriteTextfile 原子写出 .prom 文件（WriteToTextfile 内部是临时文件 + rename）。
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return prometheus.WriteToTextfile(path, m.reg)
}
