package mergequeue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/simplesurance/mergequeue/internal/logfields"
)

const metricNamespace = "mergequeue"

const (
	processedEventsMetricName = "processed_events_total"
	transitionsMetricName     = "transitions_total"
	queueSizeMetricName       = "pull_requests_count"
)

const (
	repositoryLabel = "repository"
	eventLabel      = "event"
	transitionLabel = "transition"
	stateLabel      = "state"
)

type transitionLabelVal string

const (
	transitionEnqueued          transitionLabelVal = "enqueued"
	transitionPromoted          transitionLabelVal = "promoted"
	transitionEvicted           transitionLabelVal = "evicted"
	transitionMerged            transitionLabelVal = "merged"
	transitionMergeFailed       transitionLabelVal = "merge_failed"
	transitionAdmissionRejected transitionLabelVal = "admission_rejected"
	transitionStaleEvent        transitionLabelVal = "stale_event"
)

type stateLabelVal string

const (
	stateLabelMergingVal stateLabelVal = "merging"
	stateLabelQueuedVal  stateLabelVal = "queued"
)

type metricCollector struct {
	logger          *zap.Logger
	processedEvents *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	queueSize       *prometheus.GaugeVec
}

var metrics = newMetricCollector()

func newMetricCollector() *metricCollector {
	return &metricCollector{
		logger: zap.L().Named(loggerName).Named("metrics"),
		processedEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      processedEventsMetricName,
				Help:      "count of processed merge queue events",
			},
			[]string{repositoryLabel, eventLabel},
		),
		transitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      transitionsMetricName,
				Help:      "count of pull request state transitions",
			},
			[]string{repositoryLabel, transitionLabel},
		),
		queueSize: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricNamespace,
				Name:      queueSizeMetricName,
				Help:      "number of pull requests in the merging slot and in the queue, as observed when the last event was processed",
			},
			[]string{repositoryLabel, stateLabel},
		),
	}
}

func (m *metricCollector) logGetMetricFailed(metricName string, err error) {
	m.logger.Warn(
		"could not record metric",
		zap.String("metric", metricName),
		logfields.Event("recording_metric_failed"),
		zap.Error(err),
	)
}

func (m *metricCollector) ProcessedEventsInc(repo *Repository, event string) {
	cnt, err := m.processedEvents.GetMetricWith(prometheus.Labels{
		repositoryLabel: repo.String(),
		eventLabel:      event,
	})
	if err != nil {
		m.logGetMetricFailed(processedEventsMetricName, err)
		return
	}

	cnt.Inc()
}

func (m *metricCollector) TransitionInc(repo *Repository, transition transitionLabelVal) {
	cnt, err := m.transitions.GetMetricWith(prometheus.Labels{
		repositoryLabel: repo.String(),
		transitionLabel: string(transition),
	})
	if err != nil {
		m.logGetMetricFailed(transitionsMetricName, err)
		return
	}

	cnt.Inc()
}

func (m *metricCollector) RecordQueueSize(snapshot *QueueSnapshot) {
	for state, label := range map[stateLabelVal]*Label{
		stateLabelMergingVal: snapshot.Merging,
		stateLabelQueuedVal:  snapshot.Queued,
	} {
		gauge, err := m.queueSize.GetMetricWith(prometheus.Labels{
			repositoryLabel: snapshot.Repository.String(),
			stateLabel:      string(state),
		})
		if err != nil {
			m.logGetMetricFailed(queueSizeMetricName, err)
			continue
		}

		gauge.Set(float64(len(label.PullRequests)))
	}
}
