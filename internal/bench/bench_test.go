package bench

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ivan00700/os-cp/alloc"
)

func TestRunProducesOneRowPerScenario(t *testing.T) {
	for _, tag := range []alloc.Tag{alloc.Segregated, alloc.Buddy} {
		t.Run(tag.String(), func(t *testing.T) {
			results := Run(tag, tag.String(), 500)
			require.Len(t, results, len(Scenarios))
			for i, r := range results {
				assert.Equal(t, Scenarios[i].Name, r.Benchmark)
				assert.Equal(t, tag.String(), r.Allocator)
				assert.GreaterOrEqual(t, r.AllocOps, r.FreeOps)
			}
		})
	}
}

func TestWriteCSVMatchesHeaderSchema(t *testing.T) {
	results := Run(alloc.Segregated, "SegregatedFreeList", 100)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, results))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, len(results)+1)
	assert.Equal(t, strings.Join(Header, ","), lines[0])
}
