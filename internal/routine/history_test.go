package routine

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDate(t *testing.T, raw string) HistoryRecord {
	t.Helper()
	d, err := ParseDate(raw)
	require.NoError(t, err)
	return HistoryRecord{ID: uuid.New(), Date: d, Sections: NewSections()}
}

func eventDates(events []CompletionEvent) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Date)
	}
	return out
}

func TestBuildHistoryDeduplicatesAcrossShapes(t *testing.T) {
	rec := mustDate(t, "2024-03-27")
	rec.Sections.Set(SectionBodyCare, "ducha", true)
	rec.Legacy = LegacyHistory{
		History: map[Section]map[string]map[string]bool{
			SectionBodyCare: {"2024-03-27": {"ducha": true}},
		},
		Snapshots: []Snapshot{
			{Date: "2024-03-25", Sections: Sections{SectionBodyCare: {"ducha": true}}},
			{Date: "not-a-date", Sections: Sections{SectionBodyCare: {"ducha": true}}},
		},
		CompletionsByWeek: map[Section]map[string]WeekCompletions{
			SectionBodyCare: {"ducha": {"2024-03-27", "2024-03-26T10:00:00Z"}},
		},
	}

	h := BuildHistory([]HistoryRecord{rec}, SectionBodyCare, "ducha")

	require.Len(t, h.Events, 3)
	assert.Equal(t, []string{"2024-03-25", "2024-03-26", "2024-03-27"}, eventDates(h.Events))
	assert.Equal(t, SourceSnapshot, h.Events[0].Source)
	assert.Equal(t, SourceWeekly, h.Events[1].Source)
	assert.Equal(t, SourceDirect, h.Events[2].Source, "earlier adapter wins the tie")
	assert.Equal(t, rec.ID, h.Events[2].RoutineID)

	assert.Equal(t, []string{"not-a-date"}, h.Rejected)
	assert.Len(t, h.ByWeek["2024-03-24"], 3)
	assert.Len(t, h.ByMonth["2024-03"], 3)
	assert.Equal(t, HistoryStats{Total: 3, CurrentStreak: 3, LongestStreak: 3}, h.Stats)
}

func TestBuildHistoryAcrossRecords(t *testing.T) {
	older := mustDate(t, "2024-02-28")
	older.Sections.Set(SectionExercise, "correr", true)
	older.Legacy.History = map[Section]map[string]map[string]bool{
		SectionExercise: {"2024-03-01": {"correr": true}, "2024-02-29": {"correr": false}},
	}

	newer := mustDate(t, "2024-03-01")
	newer.Sections.Set(SectionExercise, "correr", true)

	other := mustDate(t, "2024-03-03")
	other.Sections.Set(SectionExercise, "pesas", true)

	h := BuildHistory([]HistoryRecord{newer, other, older}, SectionExercise, "correr")

	assert.Equal(t, []string{"2024-02-28", "2024-03-01"}, eventDates(h.Events))
	assert.Equal(t, older.ID, h.Events[1].RoutineID, "records are visited oldest first")
	assert.Len(t, h.ByWeek["2024-02-25"], 2)
	assert.Len(t, h.ByMonth["2024-02"], 1)
	assert.Len(t, h.ByMonth["2024-03"], 1)
	assert.Equal(t, 1, h.Stats.CurrentStreak)
	assert.Equal(t, 1, h.Stats.LongestStreak)
}

func TestBuildHistoryEmpty(t *testing.T) {
	h := BuildHistory(nil, SectionCleaning, "cocina")
	assert.NotNil(t, h.Events)
	assert.Empty(t, h.Events)
	assert.Empty(t, h.ByWeek)
	assert.Equal(t, HistoryStats{}, h.Stats)
}

func TestBuildHistoryInRange(t *testing.T) {
	var records []HistoryRecord
	for _, d := range []string{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-05"} {
		rec := mustDate(t, d)
		rec.Sections.Set(SectionNutrition, "agua", true)
		records = append(records, rec)
	}

	clamp, err := ClampRange(records[1].Date, records[3].Date, 0)
	require.NoError(t, err)

	h := BuildHistoryInRange(records, SectionNutrition, "agua", clamp.Window)
	assert.Equal(t, []string{"2024-01-02", "2024-01-03", "2024-01-05"}, eventDates(h.Events))
	assert.Equal(t, 1, h.Stats.CurrentStreak)
	assert.Equal(t, 2, h.Stats.LongestStreak)
}

func TestClampRange(t *testing.T) {
	start := mustDate(t, "2024-01-01").Date
	end := mustDate(t, "2024-12-31").Date

	got, err := ClampRange(start, end, 90)
	require.NoError(t, err)
	assert.True(t, got.Clamped)
	assert.Equal(t, "2024-01-01", DateKey(got.Window.Start))
	assert.Equal(t, "2024-03-30", DateKey(got.Window.End))
	assert.Equal(t, "2024-12-31", DateKey(got.Requested.End))

	got, err = ClampRange(start, start.AddDate(0, 0, 89), 90)
	require.NoError(t, err)
	assert.False(t, got.Clamped)

	_, err = ClampRange(end, start, 90)
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestWeekCompletionsDecode(t *testing.T) {
	var fromList WeekCompletions
	require.NoError(t, json.Unmarshal([]byte(`["2024-01-02","2024-01-01"]`), &fromList))
	assert.Equal(t, WeekCompletions{"2024-01-02", "2024-01-01"}, fromList)

	var fromMap WeekCompletions
	require.NoError(t, json.Unmarshal([]byte(`{"2024-01-02":true,"2024-01-01":true,"2024-01-03":false}`), &fromMap))
	assert.Equal(t, WeekCompletions{"2024-01-01", "2024-01-02"}, fromMap)

	var bad WeekCompletions
	assert.Error(t, json.Unmarshal([]byte(`42`), &bad))
}

func TestLegacyHistoryDecode(t *testing.T) {
	raw := `{
		"historial": {"bodyCare": {"2024-01-01": {"ducha": true}}},
		"historialRutinas": [{"fecha": "2024-01-02", "secciones": {"bodyCare": {"ducha": true}}}],
		"completacionesPorSemana": {"bodyCare": {"ducha": {"2024-01-03": true}}}
	}`
	var legacy LegacyHistory
	require.NoError(t, json.Unmarshal([]byte(raw), &legacy))
	assert.False(t, legacy.Empty())

	rec := HistoryRecord{ID: uuid.New(), Legacy: legacy}
	h := BuildHistory([]HistoryRecord{rec}, SectionBodyCare, "ducha")
	assert.Equal(t, []string{"2024-01-01", "2024-01-02", "2024-01-03"}, eventDates(h.Events))
	assert.True(t, LegacyHistory{}.Empty())
}
