package condmutex

import (
	"reflect"
	"strings"
	"unicode"

	"github.com/prometheus/client_golang/prometheus"
)

type statDesc struct {
	desc  *prometheus.Desc
	field int
}

type collector struct {
	m     *Mutex
	descs []statDesc
}

var _ prometheus.Collector = (*collector)(nil)

// NewCollector exports m's Stats as counters named condmutex_<stat>_total, labelled with name.
func NewCollector(name string, m *Mutex) prometheus.Collector {
	c := &collector{m: m}
	t := reflect.TypeFor[Stats]()
	for i := 0; i < t.NumField(); i++ {
		c.descs = append(c.descs, statDesc{
			desc: prometheus.NewDesc(
				prometheus.BuildFQName("condmutex", "", snakeCase(t.Field(i).Name)+"_total"),
				"condmutex "+t.Field(i).Name+" count.",
				nil,
				prometheus.Labels{"mutex": name},
			),
			field: i,
		})
	}
	return c
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs {
		ch <- d.desc
	}
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.m.Stats()
	v := reflect.ValueOf(&stats).Elem()
	for _, d := range c.descs {
		n := v.Field(d.field).Addr().Interface().(*Count).Int64()
		ch <- prometheus.MustNewConstMetric(d.desc, prometheus.CounterValue, float64(n))
	}
}

func snakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
