package progression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelForXP(t *testing.T) {
	table := Default()

	tests := []struct {
		name string
		xp   int64
		want int
	}{
		{name: "zero xp", xp: 0, want: 1},
		{name: "below first threshold", xp: 99, want: 1},
		{name: "exactly first threshold", xp: 100, want: 2},
		{name: "just above first threshold", xp: 110, want: 2},
		{name: "mid ladder", xp: 850, want: 6},
		{name: "one below mid threshold", xp: 849, want: 5},
		{name: "last threshold", xp: 9500, want: 20},
		{name: "beyond last threshold", xp: 1000000, want: 20},
		{name: "negative xp clamps to first level", xp: -5, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, table.LevelForXP(tt.xp))
		})
	}
}

func TestLevelForXP_Monotone(t *testing.T) {
	table := Default()

	prev := 0
	for xp := int64(0); xp <= 10000; xp += 7 {
		level := table.LevelForXP(xp)
		require.GreaterOrEqual(t, level, prev, "level decreased at xp=%d", xp)
		require.LessOrEqual(t, level, table.MaxLevel())
		prev = level
	}
}

func TestNextLevelThreshold(t *testing.T) {
	table := Default()

	next, ok := table.NextLevelThreshold(1)
	require.True(t, ok)
	assert.Equal(t, int64(100), next)

	next, ok = table.NextLevelThreshold(19)
	require.True(t, ok)
	assert.Equal(t, int64(9500), next)

	_, ok = table.NextLevelThreshold(20)
	assert.False(t, ok, "last level has no next threshold")

	_, ok = table.NextLevelThreshold(0)
	assert.False(t, ok)
}

func TestLevelBadge(t *testing.T) {
	table := Default()

	spec, ok := table.LevelBadge(1)
	require.True(t, ok)
	assert.Equal(t, "Rookie", spec.Name)

	spec, ok = table.LevelBadge(20)
	require.True(t, ok)
	assert.Equal(t, "Hustle Legend", spec.Name)

	_, ok = table.LevelBadge(21)
	assert.False(t, ok, "level beyond the catalog must not panic")
}

func TestCrossedAwards(t *testing.T) {
	table := Default()

	tests := []struct {
		name string
		from int
		to   int
		want []string
	}{
		{name: "jump over several levels", from: 2, to: 5, want: []string{"Skill Sprinter", "Task Tackler", "Smart Hustler"}},
		{name: "single level up", from: 1, to: 2, want: []string{"Hustle Initiate"}},
		{name: "no level change", from: 3, to: 3, want: nil},
		{name: "reversed range", from: 5, to: 2, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			awards := table.CrossedAwards(tt.from, tt.to)
			require.Len(t, awards, len(tt.want))
			for i, award := range awards {
				assert.Equal(t, tt.from+1+i, award.Level)
				assert.Equal(t, tt.want[i], award.Spec.Name)
			}
		})
	}
}

func TestCrossedAwards_ShortCatalog(t *testing.T) {
	// У уровней без бейджа выдачи нет, остальные не теряются.
	table := &Table{
		Thresholds:  []int64{0, 100, 250},
		LevelBadges: []BadgeSpec{{Name: "Only One"}},
	}

	awards := table.CrossedAwards(0, 3)
	require.Len(t, awards, 1)
	assert.Equal(t, 1, awards[0].Level)
	assert.Equal(t, "Only One", awards[0].Spec.Name)
}

func TestLevelBadge_ShortCatalog(t *testing.T) {
	// Лестница длиннее каталога: уровень есть, бейджа нет.
	table := &Table{
		Thresholds:  []int64{0, 100, 250},
		LevelBadges: []BadgeSpec{{Name: "Only One"}},
	}

	require.Equal(t, 3, table.LevelForXP(300))

	_, ok := table.LevelBadge(2)
	assert.False(t, ok)
}
