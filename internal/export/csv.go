package export

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/kingrea/auralynx/internal/api"
)

type songRow struct {
	ID       int64  `csv:"id"`
	Title    string `csv:"title"`
	Genre    string `csv:"genre"`
	Duration string `csv:"duration_seconds"`
	MixURL   string `csv:"mix_url"`
	Created  string `csv:"created_at"`
}

// WriteSongsCSV writes one row per song, lyrics excluded.
func WriteSongsCSV(w io.Writer, songs []api.Song) error {
	rows := make([]*songRow, 0, len(songs))
	for _, s := range songs {
		row := &songRow{
			ID:     s.ID,
			Title:  s.Title,
			Genre:  s.Genre,
			MixURL: s.MixURL,
		}
		if s.DurationSeconds != nil {
			row.Duration = strconv.Itoa(*s.DurationSeconds)
		}
		if !s.CreatedAt.IsZero() {
			row.Created = s.CreatedAt.UTC().Format(time.RFC3339)
		}
		rows = append(rows, row)
	}
	if err := gocsv.Marshal(&rows, w); err != nil {
		return fmt.Errorf("export: couldn't write csv: %w", err)
	}
	return nil
}
