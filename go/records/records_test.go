package records

import (
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"
)

func TestParseAttribute(t *testing.T) {
	for _, a := range Attributes {
		var parsed, err = ParseAttribute(string(a))
		require.NoError(t, err)
		require.Equal(t, a, parsed)
	}

	var _, err = ParseAttribute("password")
	require.EqualError(t, err, `unknown source column "password"`)

	// Attribute matching is exact, not case-folded.
	_, err = ParseAttribute("ID")
	require.Error(t, err)
}

func TestProjectionSelectSQL(t *testing.T) {
	var proj = Projection{
		{Source: AttrID, Target: "ID"},
		{Source: AttrName, Target: "Name"},
	}
	require.Equal(t, "SELECT id, name FROM records", proj.SelectSQL(0))
	require.Equal(t, "SELECT id, name FROM records LIMIT 500", proj.SelectSQL(500))

	var all = Projection{
		{Source: AttrID, Target: "id"},
		{Source: AttrCreatedAt, Target: "created_at"},
		{Source: AttrName, Target: "name"},
		{Source: AttrValue, Target: "value"},
		{Source: AttrMetadata, Target: "metadata"},
	}
	require.Equal(t,
		"SELECT id, created_at, name, value, metadata FROM records",
		all.SelectSQL(0))
}

func TestProjectionTargets(t *testing.T) {
	var proj = Projection{
		{Source: AttrID, Target: "Identifier"},
		{Source: AttrID, Target: "Again"},
	}
	require.Equal(t, []string{"Identifier", "Again"}, proj.Targets())
}

func TestNewScanRowDestinations(t *testing.T) {
	var proj = Projection{
		{Source: AttrID, Target: "id"},
		{Source: AttrCreatedAt, Target: "created_at"},
		{Source: AttrName, Target: "name"},
		{Source: AttrValue, Target: "value"},
		{Source: AttrMetadata, Target: "metadata"},
	}
	var row = proj.NewScanRow()
	require.Len(t, row, 5)
	require.IsType(t, &pgtype.Int8{}, row[0])
	require.IsType(t, &pgtype.Timestamptz{}, row[1])
	require.IsType(t, &pgtype.Text{}, row[2])
	require.IsType(t, &pgtype.Numeric{}, row[3])
	require.IsType(t, new([]byte), row[4])

	// Each call allocates fresh destinations.
	require.NotSame(t, row[0], proj.NewScanRow()[0])
}
