package reports

import (
	"fmt"
	"sort"
	"time"

	"github.com/mroshb/tiktok_claims/internal/models"
	"github.com/xuri/excelize/v2"
)

const (
	HistorySheet = "History"
	TotalsSheet  = "Totals"
	timestampFmt = "2006-01-02 15:04:05"
)

var (
	historyHeader = []interface{}{"Claim ID", "User ID", "Reward", "Video Index", "Credited At"}
	totalsHeader  = []interface{}{"User ID", "Claims", "Total Reward"}
)

// UserTotal aggregates the credited claims of one user.
type UserTotal struct {
	UserID string
	Claims int
	Reward int64
}

// Totals sums entries per user, ordered by user id.
func Totals(entries []models.ClaimHistoryEntry) []UserTotal {
	byUser := make(map[string]*UserTotal)
	for _, e := range entries {
		t, ok := byUser[e.UserID]
		if !ok {
			t = &UserTotal{UserID: e.UserID}
			byUser[e.UserID] = t
		}
		t.Claims++
		t.Reward += e.RewardAmount
	}

	out := make([]UserTotal, 0, len(byUser))
	for _, t := range byUser {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// BuildHistoryWorkbook lays entries out on a History sheet, one row per credit,
// and a Totals sheet with per-user sums. Timestamps are rendered in loc.
func BuildHistoryWorkbook(entries []models.ClaimHistoryEntry, loc *time.Location) (*excelize.File, error) {
	f := excelize.NewFile()

	// NewFile starts with "Sheet1"
	if err := f.SetSheetName(f.GetSheetName(0), HistorySheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeRow(f, HistorySheet, 1, historyHeader); err != nil {
		f.Close()
		return nil, err
	}
	for i, e := range entries {
		var video interface{} = ""
		if e.VideoIndex != nil {
			video = *e.VideoIndex
		}
		row := []interface{}{e.ClaimID, e.UserID, e.RewardAmount, video, e.CreatedAt.In(loc).Format(timestampFmt)}
		if err := writeRow(f, HistorySheet, i+2, row); err != nil {
			f.Close()
			return nil, err
		}
	}

	if _, err := f.NewSheet(TotalsSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("create totals sheet: %w", err)
	}
	if err := writeRow(f, TotalsSheet, 1, totalsHeader); err != nil {
		f.Close()
		return nil, err
	}
	for i, t := range Totals(entries) {
		if err := writeRow(f, TotalsSheet, i+2, []interface{}{t.UserID, t.Claims, t.Reward}); err != nil {
			f.Close()
			return nil, err
		}
	}

	return f, nil
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}
