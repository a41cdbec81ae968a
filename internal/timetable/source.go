package timetable

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/nickaq/tg-bot-schedule/internal/models"
)

// Source yields the timetable slots relevant to one user. Implementations
// are read-only within a scheduler tick.
type Source interface {
	Slots(ctx context.Context, user *models.User) ([]models.TimetableSlot, error)
}

// FileSource loads slots from a CSV export on disk, the way the original
// deployment shipped its group timetable. The file is shared across users.
type FileSource struct {
	Path string
	Loc  *time.Location
}

// Slots implements Source.
func (s *FileSource) Slots(ctx context.Context, _ *models.User) ([]models.TimetableSlot, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open timetable file: %w", err)
	}
	defer f.Close()

	return ParseCSV(f, s.Loc)
}

// HTTPSource fetches a CSV timetable export from the portal.
type HTTPSource struct {
	URL    string
	Loc    *time.Location
	Client *http.Client
}

// Slots implements Source.
func (s *HTTPSource) Slots(ctx context.Context, _ *models.User) ([]models.TimetableSlot, error) {
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch timetable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch timetable: unexpected status %s", resp.Status)
	}

	return ParseCSV(resp.Body, s.Loc)
}
