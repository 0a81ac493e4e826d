package prometheusmetrics

import (
	"github.com/prebid/adstxt-validator/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// preloadLabelValues creates every known label combination so dashboards see zero values
// instead of missing series.
func preloadLabelValues(m *Metrics) {
	var (
		endpointValues     = endpointsAsString()
		requestStatuses    = requestStatusesAsString()
		documentTypeValues = documentTypesAsString()
		fetchStatusValues  = fetchStatusesAsString()
		cacheResultValues  = cacheResultsAsString()
		boolValues         = []string{"true", "false"}
	)

	preloadLabelValuesForCounter(m.connectionsError, map[string][]string{
		connectionErrorLabel: {connectionAcceptError, connectionCloseError},
	})

	preloadLabelValuesForCounter(m.requests, map[string][]string{
		endpointLabel: endpointValues,
		statusLabel:   requestStatuses,
	})

	preloadLabelValuesForHistogram(m.requestsTimer, map[string][]string{
		endpointLabel: endpointValues,
	})

	preloadLabelValuesForCounter(m.fetches, map[string][]string{
		documentTypeLabel: documentTypeValues,
		fetchStatusLabel:  fetchStatusValues,
	})

	preloadLabelValuesForHistogram(m.fetchTimer, map[string][]string{
		documentTypeLabel: documentTypeValues,
	})

	preloadLabelValuesForCounter(m.fetchRetries, map[string][]string{
		documentTypeLabel: documentTypeValues,
	})

	preloadLabelValuesForCounter(m.cacheResults, map[string][]string{
		documentTypeLabel: documentTypeValues,
		cacheResultLabel:  cacheResultValues,
	})

	preloadLabelValuesForCounter(m.validations, map[string][]string{
		successLabel: boolValues,
	})
}

func preloadLabelValuesForCounter(counter *prometheus.CounterVec, labelsWithValues map[string][]string) {
	registerLabelPermutations(labelsWithValues, func(labels prometheus.Labels) {
		counter.With(labels)
	})
}

func preloadLabelValuesForHistogram(histogram *prometheus.HistogramVec, labelsWithValues map[string][]string) {
	registerLabelPermutations(labelsWithValues, func(labels prometheus.Labels) {
		histogram.With(labels)
	})
}

func registerLabelPermutations(labelsWithValues map[string][]string, register func(prometheus.Labels)) {
	if len(labelsWithValues) == 0 {
		return
	}

	keys := make([]string, 0, len(labelsWithValues))
	values := make([][]string, 0, len(labelsWithValues))
	for k, v := range labelsWithValues {
		keys = append(keys, k)
		values = append(values, v)
	}

	labels := prometheus.Labels{}
	registerLabelPermutationsRecursive(0, keys, values, labels, register)
}

func registerLabelPermutationsRecursive(depth int, keys []string, values [][]string, labels prometheus.Labels, register func(prometheus.Labels)) {
	label := keys[depth]
	isLeaf := depth == len(keys)-1

	if isLeaf {
		for _, v := range values[depth] {
			labels[label] = v
			register(cloneLabels(labels))
		}
	} else {
		for _, v := range values[depth] {
			labels[label] = v
			registerLabelPermutationsRecursive(depth+1, keys, values, labels, register)
		}
	}
}

func cloneLabels(labels prometheus.Labels) prometheus.Labels {
	clone := prometheus.Labels{}
	for k, v := range labels {
		clone[k] = v
	}
	return clone
}

func endpointsAsString() []string {
	values := metrics.Endpoints()
	valuesAsString := make([]string, len(values))
	for i, v := range values {
		valuesAsString[i] = string(v)
	}
	return valuesAsString
}

func requestStatusesAsString() []string {
	values := metrics.RequestStatuses()
	valuesAsString := make([]string, len(values))
	for i, v := range values {
		valuesAsString[i] = string(v)
	}
	return valuesAsString
}

func documentTypesAsString() []string {
	values := metrics.DocumentTypes()
	valuesAsString := make([]string, len(values))
	for i, v := range values {
		valuesAsString[i] = string(v)
	}
	return valuesAsString
}

func fetchStatusesAsString() []string {
	values := metrics.FetchStatuses()
	valuesAsString := make([]string, len(values))
	for i, v := range values {
		valuesAsString[i] = string(v)
	}
	return valuesAsString
}

func cacheResultsAsString() []string {
	values := metrics.CacheResults()
	valuesAsString := make([]string, len(values))
	for i, v := range values {
		valuesAsString[i] = string(v)
	}
	return valuesAsString
}
