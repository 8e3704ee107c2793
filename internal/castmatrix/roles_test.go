package castmatrix

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bobarin/muvi/internal/models"
)

func TestSortCastRoleThenImpact(t *testing.T) {
	cast := []models.CastMember{
		{CastID: "extra_1", Role: models.RoleExtra, Impact: 0.3},
		{CastID: "supporting_1", Role: models.RoleSupporting, Impact: 0.8},
		{CastID: "lead_2", Role: models.RoleLead, Impact: 0.6},
		{CastID: "lead_1", Role: models.RoleLead, Impact: 0.9},
	}

	sorted := SortCast(cast)
	var order []string
	for _, c := range sorted {
		order = append(order, c.CastID)
	}
	require.Equal(t, []string{"lead_1", "lead_2", "supporting_1", "extra_1"}, order)
}

func TestPrimaryLead(t *testing.T) {
	cast := []models.CastMember{
		{CastID: "lead_1", Role: models.RoleLead, Impact: 0.6},
		{CastID: "lead_2", Role: models.RoleLead, Impact: 0.9},
		{CastID: "supporting_1", Role: models.RoleSupporting, Impact: 1.0},
	}
	require.Equal(t, "lead_2", PrimaryLeadID(cast))

	// Ties break by cast order.
	tied := []models.CastMember{
		{CastID: "lead_1", Role: models.RoleLead, Impact: 0.8},
		{CastID: "lead_2", Role: models.RoleLead, Impact: 0.8},
	}
	require.Equal(t, "lead_1", PrimaryLeadID(tied))

	require.Empty(t, PrimaryLeadID([]models.CastMember{
		{CastID: "extra_1", Role: models.RoleExtra, Impact: 1.0},
	}))
}

func TestUsageSeeds(t *testing.T) {
	cast := []models.CastMember{
		{CastID: "lead_1", Role: models.RoleLead, Impact: 0.9},
		{CastID: "lead_2", Role: models.RoleLead, Impact: 0.6},
		{CastID: "supporting_1", Role: models.RoleSupporting, Impact: 0.8},
		{CastID: "extra_1", Role: models.RoleExtra, Impact: 0.3},
	}

	roster := Roster(cast)
	require.Len(t, roster, 4)
	require.True(t, strings.HasPrefix(roster[0].Usage, "PRIMARY PROTAGONIST"), roster[0].Usage)
	require.True(t, strings.HasPrefix(roster[1].Usage, "CO-LEAD"), roster[1].Usage)
	require.True(t, strings.HasPrefix(roster[2].Usage, "MEDIUM PRESENCE"), roster[2].Usage)
	require.True(t, strings.HasPrefix(roster[3].Usage, "MINIMAL PRESENCE"), roster[3].Usage)
}

func TestUsageSeedSupportingAndExtraThresholds(t *testing.T) {
	low := UsageSeed(models.CastMember{Role: models.RoleSupporting, Impact: 0.4}, false)
	require.True(t, strings.HasPrefix(low, "LOW PRESENCE"), low)

	busyExtra := UsageSeed(models.CastMember{Role: models.RoleExtra, Impact: 0.6}, false)
	require.True(t, strings.HasPrefix(busyExtra, "LOW PRESENCE"), busyExtra)

	coLead := UsageSeed(models.CastMember{Role: models.RoleLead, Impact: 0.75}, false)
	require.Contains(t, coLead, "60%+")
}
