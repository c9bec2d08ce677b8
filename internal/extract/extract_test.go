package extract

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func newExtractor() *Extractor {
	log, _ := test.NewNullLogger()
	return New(log)
}

func TestExtract_DocumentedShapes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		want     []int
		strategy string
	}{
		{
			name:     "direct array",
			input:    `[{"id":81001,"timestamp":1690000000},{"id":81002,"timestamp":0},{"id":81003,"timestamp":1690000001}]`,
			want:     []int{81001, 81003},
			strategy: "known-arrays",
		},
		{
			name:     "legacy source with value.achievements",
			input:    `{"source":"椰羊成就","value":{"achievements":[{"id":1,"timestamp":5},{"id":2,"timestamp":0}]}}`,
			want:     []int{1},
			strategy: "known-arrays",
		},
		{
			name:     "generic data.list",
			input:    `{"data":{"list":[{"id":"7","timestamp":3},{"id":8,"timestamp":0},{"id":9}]}}`,
			want:     []int{7, 9},
			strategy: "known-arrays",
		},
		{
			name:     "uiaf-like info.app",
			input:    `{"info":{"app":"椰羊成就"},"achievements":[{"id":4,"timestamp":1},{"id":5,"timestamp":0}]}`,
			want:     []int{4},
			strategy: "known-arrays",
		},
		{
			name:     "first known path with ids wins",
			input:    `{"list":[{"id":1}],"achievements":[{"id":2}]}`,
			want:     []int{1},
			strategy: "known-arrays",
		},
		{
			name:     "completedIds",
			input:    `{"completedIds":[3,1,"x",2,0,-4]}`,
			want:     []int{1, 2, 3},
			strategy: "normalized-ids",
		},
		{
			name:     "bare numeric array",
			input:    `[5,6,6,7]`,
			want:     []int{5, 6, 7},
			strategy: "normalized-ids",
		},
		{
			name:     "unlocked_achievements",
			input:    `{"meta":{},"unlocked_achievements":[10,11]}`,
			want:     []int{10, 11},
			strategy: "normalized-ids",
		},
		{
			name:     "deep nested entries",
			input:    `{"payload":{"user":{"progress":[{"id":20,"timestamp":9},{"id":21,"timestamp":0}]}}}`,
			want:     []int{20},
			strategy: "deep-scan",
		},
		{
			name:     "deep synonyms",
			input:    `{"payload":{"rows":[{"row":{"achievementId":30}},{"row":{"taskId":"31"}}]}}`,
			want:     []int{30, 31},
			strategy: "deep-scan",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := newExtractor().Extract([]byte(tt.input))
			assert.Equal(t, tt.want, res.Sorted())
			assert.Equal(t, tt.strategy, res.Strategy)
		})
	}
}

func TestExtract_LegacyExportStrategy(t *testing.T) {
	doc := gjson.Parse(`{"source":"椰羊成就","achievements":[{"id":3,"timestamp":1}]}`)
	ids, ok := legacyExport(doc)
	require.True(t, ok)
	assert.Equal(t, map[int]bool{3: true}, ids)

	_, ok = legacyExport(gjson.Parse(`{"source":"other","achievements":[{"id":3}]}`))
	assert.False(t, ok)

	ids, ok = legacyExport(gjson.Parse(`{"info":{"export_app":"cocogoat"},"list":[{"id":8,"timestamp":2}]}`))
	require.True(t, ok)
	assert.Equal(t, map[int]bool{8: true}, ids)
}

func TestExtract_NeverFails(t *testing.T) {
	inputs := []string{
		``,
		`not json`,
		`{"achievements":`,
		`null`,
		`42`,
		`"hello"`,
		`{}`,
		`[]`,
		`{"list":[{"id":1,"timestamp":0}]}`,
		`{"user":{"id":12345,"name":"someone"}}`,
	}
	for _, in := range inputs {
		t.Run(fmt.Sprintf("%q", in), func(t *testing.T) {
			res := newExtractor().Extract([]byte(in))
			assert.NotNil(t, res.IDs)
			assert.Empty(t, res.IDs)
			assert.Empty(t, res.Strategy)
		})
	}
}

func TestExtract_EncodedStringPayload(t *testing.T) {
	res := newExtractor().Extract([]byte(`"{\"achievements\":[{\"id\":12,\"timestamp\":1}]}"`))
	assert.Equal(t, []int{12}, res.Sorted())
}

func TestExtract_Deduplicates(t *testing.T) {
	res := newExtractor().Extract([]byte(`{"list":[{"id":1},{"id":1},{"id":"1"}]}`))
	assert.Equal(t, []int{1}, res.Sorted())
}

func TestExtract_SanityWarning(t *testing.T) {
	log, hook := test.NewNullLogger()
	e := New(log)

	e.Extract([]byte(`[1,2,3]`))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)

	hook.Reset()
	var b strings.Builder
	b.WriteString("[")
	for i := 1; i <= SanityThreshold; i++ {
		if i > 1 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, "%d", i)
	}
	b.WriteString("]")
	e.Extract([]byte(b.String()))
	for _, entry := range hook.AllEntries() {
		assert.NotEqual(t, logrus.WarnLevel, entry.Level)
	}
}

func TestDeepScan_SampleThenFlat(t *testing.T) {
	// 30 non-id entries hide the ids from the flat pass.
	var parts []string
	for range scanSampleLen {
		parts = append(parts, `"x"`)
	}
	parts = append(parts, "100", "101")
	ids, ok := deepScan(gjson.Parse(`{"a":[` + strings.Join(parts, ",") + `]}`))
	assert.False(t, ok)
	assert.Empty(t, ids)

	// A hit in the sample turns on the flat pass for the remainder.
	parts[0] = "99"
	ids, ok = deepScan(gjson.Parse(`{"a":[` + strings.Join(parts, ",") + `]}`))
	require.True(t, ok)
	assert.Equal(t, map[int]bool{99: true, 100: true, 101: true}, ids)
}

func TestDeepScan_DepthLimit(t *testing.T) {
	nest := func(levels int) string {
		s := `{"achievementId":77}`
		for range levels {
			s = `{"n":` + s + `}`
		}
		return s
	}

	_, ok := deepScan(gjson.Parse(nest(maxScanDepth)))
	assert.True(t, ok)

	_, ok = deepScan(gjson.Parse(nest(maxScanDepth + 1)))
	assert.False(t, ok)
}

func TestDeepScan_SkipsLockedObjects(t *testing.T) {
	ids, ok := deepScan(gjson.Parse(`{"wrap":{"timestamp":0,"achievementId":5,"inner":{"achievementId":6}}}`))
	assert.False(t, ok)
	assert.Empty(t, ids)
}

func TestCustomStrategies(t *testing.T) {
	only := Strategy{
		Name: "always-42",
		Apply: func(gjson.Result) (map[int]bool, bool) {
			return map[int]bool{42: true}, true
		},
	}
	log, _ := test.NewNullLogger()
	res := New(log, only).Extract([]byte(`{}`))
	assert.Equal(t, "always-42", res.Strategy)
	assert.Equal(t, []int{42}, res.Sorted())
}
