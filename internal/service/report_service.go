package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bustrack/internal/export"
	"bustrack/internal/models"
)

const analyticsDays = 7

// Archiver keeps a copy of an export and returns a download link.
type Archiver interface {
	ArchiveExport(ctx context.Context, name string, contentType string, data []byte) (string, error)
}

type ReportService struct {
	buses        BusStore
	riders       RiderStore
	history      HistoryStore
	archiver     Archiver
	activeWindow time.Duration
	now          func() time.Time
}

func NewReportService(buses BusStore, riders RiderStore, history HistoryStore, archiver Archiver, activeWindow time.Duration) *ReportService {
	return &ReportService{
		buses:        buses,
		riders:       riders,
		history:      history,
		archiver:     archiver,
		activeWindow: activeWindow,
		now:          time.Now,
	}
}

type DashboardStats struct {
	TotalUsers    int `json:"totalUsers"`
	TotalStudents int `json:"totalStudents"`
	TotalDrivers  int `json:"totalDrivers"`
	TotalAdmins   int `json:"totalAdmins"`
	TotalBuses    int `json:"totalBuses"`
	ActiveBuses   int `json:"activeBuses"`
	InactiveBuses int `json:"inactiveBuses"`
}

type Dashboard struct {
	Stats        DashboardStats
	RecentBuses  []models.Bus
	RecentRiders []models.Rider
}

func (s *ReportService) Dashboard(ctx context.Context) (Dashboard, error) {
	byRole, err := s.riders.CountByRole(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	counts, err := s.buses.Counts(ctx, s.now().Add(-s.activeWindow))
	if err != nil {
		return Dashboard{}, err
	}

	stats := DashboardStats{
		TotalStudents: byRole[models.RiderRoleStudent],
		TotalDrivers:  byRole[models.RiderRoleDriver],
		TotalAdmins:   byRole[models.RiderRoleAdmin],
		TotalBuses:    counts.Total,
		ActiveBuses:   counts.Active,
		InactiveBuses: counts.Total - counts.Active,
	}
	for _, n := range byRole {
		stats.TotalUsers += n
	}

	recentBuses, err := s.buses.List(ctx, models.BusFilter{Limit: defaultRecentListLimit})
	if err != nil {
		return Dashboard{}, err
	}
	recentRiders, err := s.riders.List(ctx, models.RiderFilter{Limit: defaultRecentListLimit})
	if err != nil {
		return Dashboard{}, err
	}

	return Dashboard{Stats: stats, RecentBuses: recentBuses, RecentRiders: recentRiders}, nil
}

type Analytics struct {
	Since      time.Time          `json:"since"`
	RiderStats []models.DateCount `json:"userStats"`
	BusStats   []models.DateCount `json:"busStats"`
}

// Analytics buckets new riders and accepted location events per UTC day
// over the last week, today included.
func (s *ReportService) Analytics(ctx context.Context) (Analytics, error) {
	today := s.now().UTC().Truncate(24 * time.Hour)
	since := today.AddDate(0, 0, -(analyticsDays - 1))

	riderStats, err := s.riders.CreatedPerDay(ctx, since)
	if err != nil {
		return Analytics{}, err
	}
	busStats, err := s.history.CountPerDay(ctx, since)
	if err != nil {
		return Analytics{}, err
	}

	return Analytics{
		Since:      since,
		RiderStats: fillDays(riderStats, since, analyticsDays),
		BusStats:   fillDays(busStats, since, analyticsDays),
	}, nil
}

// fillDays returns one bucket per day, zero where the store had none.
func fillDays(counts []models.DateCount, since time.Time, days int) []models.DateCount {
	byDay := make(map[string]int, len(counts))
	for _, c := range counts {
		byDay[c.Date] = c.Count
	}
	out := make([]models.DateCount, 0, days)
	for i := 0; i < days; i++ {
		day := since.AddDate(0, 0, i).Format("2006-01-02")
		out = append(out, models.DateCount{Date: day, Count: byDay[day]})
	}
	return out
}

type ExportFile struct {
	Name        string
	ContentType string
	Data        []byte
	// URL is set when the file was archived.
	URL string
}

func (s *ReportService) Export(ctx context.Context, kind string, format string, archive bool) (ExportFile, error) {
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "csv" {
		return ExportFile{}, validationf("invalid export format %q", format)
	}

	var (
		file ExportFile
		err  error
	)
	switch kind {
	case "users":
		file, err = s.exportRiders(ctx, format)
	case "buses":
		file, err = s.exportBuses(ctx, format)
	default:
		return ExportFile{}, validationf("invalid export type %q", kind)
	}
	if err != nil {
		return ExportFile{}, err
	}

	if archive {
		if s.archiver == nil {
			return ExportFile{}, validationf("export archiving is not configured")
		}
		url, err := s.archiver.ArchiveExport(ctx, file.Name, file.ContentType, file.Data)
		if err != nil {
			return ExportFile{}, fmt.Errorf("archive export: %w", err)
		}
		file.URL = url
	}
	return file, nil
}

func (s *ReportService) exportRiders(ctx context.Context, format string) (ExportFile, error) {
	riders, err := s.riders.List(ctx, models.RiderFilter{})
	if err != nil {
		return ExportFile{}, err
	}
	if format == "csv" {
		var buf bytes.Buffer
		if err := export.WriteRidersCSV(&buf, riders); err != nil {
			return ExportFile{}, err
		}
		return ExportFile{Name: "users.csv", ContentType: "text/csv", Data: buf.Bytes()}, nil
	}
	data, err := json.Marshal(map[string]any{"success": true, "users": export.RiderRecords(riders)})
	if err != nil {
		return ExportFile{}, err
	}
	return ExportFile{Name: "users.json", ContentType: "application/json", Data: data}, nil
}

func (s *ReportService) exportBuses(ctx context.Context, format string) (ExportFile, error) {
	buses, err := s.buses.List(ctx, models.BusFilter{})
	if err != nil {
		return ExportFile{}, err
	}
	if format == "csv" {
		var buf bytes.Buffer
		if err := export.WriteBusesCSV(&buf, buses); err != nil {
			return ExportFile{}, err
		}
		return ExportFile{Name: "buses.csv", ContentType: "text/csv", Data: buf.Bytes()}, nil
	}
	data, err := json.Marshal(map[string]any{"success": true, "buses": export.BusRecords(buses)})
	if err != nil {
		return ExportFile{}, err
	}
	return ExportFile{Name: "buses.json", ContentType: "application/json", Data: data}, nil
}
