package telemetry

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"
)

// PrometheusHandler serves every registered metric in Prometheus text
// exposition format. Series are sorted so scrapes are deterministic and
// diffs between them are readable.
func (tp *TelemetryProvider) PrometheusHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		var b strings.Builder

		tp.reg.mu.Lock()
		counters := make(map[string]int64, len(tp.reg.counters))
		for k, v := range tp.reg.counters {
			counters[k] = v
		}
		gauges := make(map[string]int64, len(tp.reg.gauges))
		for k, v := range tp.reg.gauges {
			gauges[k] = v
		}
		hists := make(map[string]*hist, len(tp.reg.hists))
		for k, h := range tp.reg.hists {
			hists[k] = &hist{
				bounds: h.bounds,
				counts: append([]int64(nil), h.counts...),
				total:  h.total,
				sum:    h.sum,
			}
		}
		tp.reg.mu.Unlock()

		writeScalarFamily(&b, metricHTTPRequests, counters)
		writeScalarFamily(&b, metricHTTPInFlight, gauges)
		writeScalarFamily(&b, metricBookingOps, counters)
		writeHistFamily(&b, metricHTTPDuration, hists)

		return c.String(http.StatusOK, b.String())
	}
}

func writeHeader(b *strings.Builder, family string) {
	if meta, ok := familyHelp[family]; ok {
		fmt.Fprintf(b, "# HELP %s %s\n", family, meta[0])
		fmt.Fprintf(b, "# TYPE %s %s\n", family, meta[1])
	}
}

// writeScalarFamily emits every counter or gauge series belonging to one
// family. Series keys are already rendered exposition names.
func writeScalarFamily(b *strings.Builder, family string, values map[string]int64) {
	keys := familyKeys(family, values)
	writeHeader(b, family)
	if len(keys) == 0 {
		// Scalar families without labels still report a zero sample.
		if family == metricHTTPInFlight {
			fmt.Fprintf(b, "%s 0\n", family)
		}
	}
	for _, k := range keys {
		fmt.Fprintf(b, "%s %d\n", k, values[k])
	}
	b.WriteByte('\n')
}

func writeHistFamily(b *strings.Builder, family string, hists map[string]*hist) {
	keys := make([]string, 0, len(hists))
	for k := range hists {
		if seriesFamily(k) == family {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	writeHeader(b, family)
	for _, k := range keys {
		h := hists[k]
		labels := seriesLabels(k)
		for i, bound := range h.bounds {
			fmt.Fprintf(b, "%s_bucket{%sle=\"%g\"} %d\n",
				family, labels, bound, h.counts[i])
		}
		fmt.Fprintf(b, "%s_bucket{%sle=\"+Inf\"} %d\n", family, labels, h.total)
		suffix := ""
		if labels != "" {
			suffix = "{" + strings.TrimSuffix(labels, ",") + "}"
		}
		fmt.Fprintf(b, "%s_sum%s %g\n", family, suffix, h.sum)
		fmt.Fprintf(b, "%s_count%s %d\n", family, suffix, h.total)
	}
	b.WriteByte('\n')
}

// familyKeys returns the sorted series keys in values that belong to
// family.
func familyKeys(family string, values map[string]int64) []string {
	keys := make([]string, 0)
	for k := range values {
		if seriesFamily(k) == family {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// seriesFamily strips the label block off a rendered series key.
func seriesFamily(key string) string {
	if i := strings.IndexByte(key, '{'); i >= 0 {
		return key[:i]
	}
	return key
}

// seriesLabels returns the label block of a series key with a trailing
// comma, ready to prepend to an le= label. Empty for unlabeled series.
func seriesLabels(key string) string {
	i := strings.IndexByte(key, '{')
	if i < 0 {
		return ""
	}
	inner := strings.TrimSuffix(key[i+1:], "}")
	if inner == "" {
		return ""
	}
	return inner + ","
}
