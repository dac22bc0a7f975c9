package codec

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"etlrepo/internal/domain"
)

func sampleInfos() []domain.ObjectInfo {
	when := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return []domain.ObjectInfo{
		{Kind: domain.KindTransformation, ID: 2, Name: "load_orders", Directory: "/etl/daily", ModifiedUser: "etl", ModifiedDate: when},
		{Kind: domain.KindJob, ID: 1, Name: "nightly", Directory: "/etl"},
		{Kind: domain.KindTransformation, ID: 3, Name: "load_items", Directory: "/etl/daily", Description: "items"},
	}
}

func TestNewInventory(t *testing.T) {
	inv := NewInventory(sampleInfos())
	require.Len(t, inv.Directories, 2)
	assert.Equal(t, "/etl", inv.Directories[0].Path)
	assert.Len(t, inv.Directories[0].Jobs, 1)
	assert.Empty(t, inv.Directories[0].Transformations)

	daily := inv.Directories[1]
	assert.Equal(t, "/etl/daily", daily.Path)
	require.Len(t, daily.Transformations, 2)
	assert.Equal(t, "load_orders", daily.Transformations[0].Name)
	assert.Equal(t, "items", daily.Transformations[1].Description)
	assert.Equal(t, 3, inv.Count())
}

func TestInventoryCodecs(t *testing.T) {
	for _, format := range []string{"yaml", "json"} {
		t.Run(format, func(t *testing.T) {
			exp, err := ExporterFor(format)
			require.NoError(t, err)
			assert.Equal(t, format, exp.Format())

			var buf bytes.Buffer
			require.NoError(t, exp.Export(NewInventory(sampleInfos()), &buf))
			assert.Contains(t, buf.String(), "load_orders")

			imp, ok := exp.(Importer)
			require.True(t, ok)
			got, err := imp.Parse(&buf)
			require.NoError(t, err)
			require.Len(t, got.Directories, 2)
			assert.Equal(t, "/etl/daily", got.Directories[1].Path)
			assert.Equal(t, int64(2), got.Directories[1].Transformations[0].ID)
			assert.True(t, got.Directories[1].Transformations[0].ModifiedDate.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)))
		})
	}
}

func TestInventoryValidation(t *testing.T) {
	c := NewYAMLCodec()

	inv, err := c.Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, inv.Directories)

	_, err = c.Parse(strings.NewReader("directories:\n  - transformations:\n      - name: x\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path is required")

	_, err = c.Parse(strings.NewReader("folders: []\n"))
	require.Error(t, err)

	inv, err = c.Parse(strings.NewReader("directories:\n  - path: etl//daily/\n"))
	require.NoError(t, err)
	assert.Equal(t, "/etl/daily", inv.Directories[0].Path)

	j := NewJSONCodec()
	_, err = j.Parse(strings.NewReader(`{"directories":[{"path":"/etl","jobs":[{"id":1}]}]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name is required")

	_, err = j.Parse(strings.NewReader(`{"folders":[]}`))
	require.Error(t, err)
}

func TestExporterForUnknownFormat(t *testing.T) {
	_, err := ExporterFor("csv")
	assert.Error(t, err)

	exp, err := ExporterFor("YML")
	require.NoError(t, err)
	assert.Equal(t, "yaml", exp.Format())
}
