package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventDesk/internal/model"
)

func ptr[T any](v T) *T { return &v }

func TestWriteCSV(t *testing.T) {
	regs := []model.Registration{
		{
			ID:                  "r1",
			Name:                "Lin, Mei",
			Email:               ptr("mei@example.org"),
			EventName:           "Art",
			RegistrationDate:    "2025-06-01",
			DietaryRequirements: ptr("vegan"),
			Notes:               ptr("says \"hi\""),
			Status:              model.StatusPending,
			SubmittedAt:         time.Date(2025, 5, 20, 9, 30, 0, 0, time.UTC),
		},
		{
			ID:        "r2",
			Name:      "Tom",
			Phone:     ptr("0912345678"),
			EventName: model.DeletedEventName,
			Status:    model.StatusProcessed,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, regs, nil))

	out := buf.String()
	require.True(t, strings.HasPrefix(out, bom))

	records, err := csv.NewReader(strings.NewReader(strings.TrimPrefix(out, bom))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, header, records[0])
	assert.Equal(t, []string{
		"2025-05-20 09:30", "Lin, Mei", "mei@example.org", "", "",
		"Art", "2025-06-01", "vegan", "says \"hi\"", "Pending",
	}, records[1])
	assert.Equal(t, "", records[2][0])
	assert.Equal(t, "0912345678", records[2][3])
	assert.Equal(t, model.DeletedEventName, records[2][5])
	assert.Equal(t, "Processed", records[2][9])
}

func TestWriteCSV_Location(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	regs := []model.Registration{{Name: "A", Status: "archived", SubmittedAt: time.Date(2025, 5, 20, 20, 0, 0, 0, time.UTC)}}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, regs, loc))

	assert.Contains(t, buf.String(), "2025-05-21 04:00")
	assert.Contains(t, buf.String(), "archived")
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "registrations_2025-05-20.csv", FileName(time.Date(2025, 5, 20, 23, 0, 0, 0, time.UTC)))
}
