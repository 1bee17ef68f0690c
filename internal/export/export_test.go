package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bustrack/internal/models"
)

func TestWriteBusesCSV(t *testing.T) {
	lat, lng := 12.9716, 77.5946
	driver := "Ravi, Senior"
	buses := []models.Bus{
		{BusNumber: "01", BusID: "BUS_01", RouteName: "North Loop", DriverName: &driver, Status: models.BusStatusMoving,
			Latitude: &lat, Longitude: &lng, UpdatedAt: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)},
		{BusNumber: "02", BusID: "BUS_02", Status: models.BusStatusOffline, UpdatedAt: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteBusesCSV(&buf, buses))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Bus Number,Bus ID,Route,Driver,Status,Latitude,Longitude,Last Updated", lines[0])
	assert.Equal(t, `01,BUS_01,North Loop,"Ravi, Senior",moving,12.9716,77.5946,2024-05-01T09:00:00Z`, lines[1])
	assert.Equal(t, "02,BUS_02,,,offline,,,2024-05-01T09:00:00Z", lines[2])
}

func TestRiderRecordsOmitCredentials(t *testing.T) {
	sid := "STU001"
	records := RiderRecords([]models.Rider{{ID: "1", Name: "Asha", Email: "asha@campus.edu", PasswordHash: []byte("secret"),
		Role: models.RiderRoleStudent, StudentID: &sid}})

	require.Len(t, records, 1)
	assert.Equal(t, "STU001", records[0].StudentID)
	assert.Equal(t, "student", records[0].Role)
}
