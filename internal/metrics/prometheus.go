package metrics

import (
	"sort"
	"strconv"
	"strings"
)

// PrometheusFormat renders every series in the text exposition format.
// Families without series are omitted.
func (m *Metrics) PrometheusFormat() string {
	var sb strings.Builder

	writeCounters(&sb, m.Runs.name, m.Runs.help, m.Runs.all())
	writeHistogram(&sb, m.RunDuration)
	writeCounters(&sb, m.Samples.name, m.Samples.help, []*Counter{m.Samples})
	writeCounters(&sb, m.Edges.name, m.Edges.help, []*Counter{m.Edges})
	writeGauges(&sb, m.ReportValue.name, m.ReportValue.help, m.ReportValue.all())
	writeCounters(&sb, m.BusEvents.name, m.BusEvents.help, m.BusEvents.all())

	writeCounters(&sb, m.HTTPRequests.name, m.HTTPRequests.help, m.HTTPRequests.all())
	writeHistogram(&sb, m.HTTPDuration)
	writeGauges(&sb, m.HTTPRequestsInFlight.name, m.HTTPRequestsInFlight.help, []*Gauge{m.HTTPRequestsInFlight})

	return sb.String()
}

func writeHeader(sb *strings.Builder, name, help, kind string) {
	sb.WriteString("# HELP " + name + " " + help + "\n")
	sb.WriteString("# TYPE " + name + " " + kind + "\n")
}

func writeCounters(sb *strings.Builder, name, help string, counters []*Counter) {
	if len(counters) == 0 {
		return
	}
	writeHeader(sb, name, help, "counter")
	for _, c := range counters {
		sb.WriteString(c.name)
		writeLabels(sb, c.labels)
		sb.WriteString(" " + strconv.FormatInt(c.Value(), 10) + "\n")
	}
}

func writeGauges(sb *strings.Builder, name, help string, gauges []*Gauge) {
	if len(gauges) == 0 {
		return
	}
	writeHeader(sb, name, help, "gauge")
	for _, g := range gauges {
		sb.WriteString(g.name)
		writeLabels(sb, g.labels)
		sb.WriteString(" " + formatFloat(g.Value()) + "\n")
	}
}

func writeHistogram(sb *strings.Builder, h *Histogram) {
	counts, sum, count := h.Snapshot()
	writeHeader(sb, h.name, h.help, "histogram")
	for i, bound := range h.buckets {
		sb.WriteString(h.name + `_bucket{le="` + formatFloat(bound) + `"} ` + strconv.FormatInt(counts[i], 10) + "\n")
	}
	sb.WriteString(h.name + `_bucket{le="+Inf"} ` + strconv.FormatInt(counts[len(counts)-1], 10) + "\n")
	sb.WriteString(h.name + "_sum " + formatFloat(sum) + "\n")
	sb.WriteString(h.name + "_count " + strconv.FormatInt(count, 10) + "\n")
}

// writeLabels writes {k="v",...} with keys sorted.
func writeLabels(sb *strings.Builder, labels map[string]string) {
	if len(labels) == 0 {
		return
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sb.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(k + `="` + escapeLabel(labels[k]) + `"`)
	}
	sb.WriteString("}")
}

func escapeLabel(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return strings.ReplaceAll(s, "\n", `\n`)
}

// formatFloat uses the exposition spellings NaN, +Inf and -Inf.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
