package encode

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prodbi/extractor/pkg/engine"
	jsonpool "github.com/prodbi/extractor/pkg/json"
)

func sampleDataset() *engine.Dataset {
	return &engine.Dataset{
		Records: []engine.Record{
			{"id": "1", "name": "alpha", "qty": float64(3)},
			{"id": "2", "name": "beta"},
		},
		TotalCount: 2,
		Metadata:   engine.DatasetMetadata{Source: "acme", PagesFetched: 1, PageSize: 250},
	}
}

func TestJSONRoundTrip(t *testing.T) {
	payload, err := JSON(sampleDataset())
	require.NoError(t, err)

	var decoded engine.Dataset
	require.NoError(t, jsonpool.Unmarshal(payload, &decoded))
	assert.Equal(t, 2, decoded.TotalCount)
	assert.Equal(t, "acme", decoded.Metadata.Source)
	require.Len(t, decoded.Records, 2)
	assert.Equal(t, "alpha", decoded.Records[0]["name"])
}

func TestRecordsJSONOmitsEnvelope(t *testing.T) {
	payload, err := RecordsJSON(sampleDataset())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(string(payload)), "["))
	assert.NotContains(t, string(payload), "metadata")
}

func TestCSVSortedHeaderAndMissingValues(t *testing.T) {
	payload, err := CSV(sampleDataset())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(payload)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "id,name,qty", lines[0])
	assert.Equal(t, "1,alpha,3", lines[1])
	// record without qty renders an empty cell
	assert.Equal(t, "2,beta,", lines[2])
}

func TestCSVEmptyDataset(t *testing.T) {
	payload, err := CSV(&engine.Dataset{})
	require.NoError(t, err)
	assert.Empty(t, strings.TrimSpace(string(payload)))
}

func TestParquetWritesMagicBytes(t *testing.T) {
	payload, err := Parquet(sampleDataset())
	require.NoError(t, err)
	require.Greater(t, len(payload), 8)
	assert.Equal(t, "PAR1", string(payload[:4]))
	assert.Equal(t, "PAR1", string(payload[len(payload)-4:]))
}

func TestParquetNestedValuesFallBackToString(t *testing.T) {
	dataset := &engine.Dataset{
		Records: []engine.Record{
			{"id": "1", "tags": []interface{}{"a", "b"}},
		},
		TotalCount: 1,
	}
	payload, err := Parquet(dataset)
	require.NoError(t, err)
	assert.NotEmpty(t, payload)
}
