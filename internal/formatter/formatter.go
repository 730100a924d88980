// package formatter renders key records and playlist reports as CSV, Markdown or styled text
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/keyfinder/internal/models"
	"github.com/desertthunder/keyfinder/internal/music"
	"github.com/desertthunder/keyfinder/internal/shared"
)

// Format names an output format.
type Format string

const (
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
)

// ParseFormat accepts csv, md/markdown and text/txt.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return FormatCSV, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	case "", "text", "txt":
		return FormatText, nil
	}
	return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, s)
}

// Confidence renders an optional confidence with two decimals, or "" when absent.
func Confidence(c *float64) string {
	if c == nil {
		return ""
	}
	return strconv.FormatFloat(*c, 'f', 2, 64)
}

// Pitch renders a record's key, or "Unknown" for a nil record.
func Pitch(rec *models.KeyRecord) string {
	if rec == nil {
		return music.PitchName(-1, -1)
	}
	return music.PitchName(rec.Key, rec.Mode)
}

// KeysToCSV renders cached key records with columns: Track ID, Title, Artist, Pitch, Key, Mode, Confidence, MBID, Updated
func KeysToCSV(records []*models.KeyRecord) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Track ID", "Title", "Artist", "Pitch", "Key", "Mode", "Confidence", "MBID", "Updated"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, rec := range records {
		row := []string{
			rec.TrackID,
			rec.Title,
			rec.Artist,
			Pitch(rec),
			strconv.Itoa(rec.Key),
			strconv.Itoa(rec.Mode),
			Confidence(rec.Confidence),
			rec.ExternalRecordingID,
			rec.UpdatedAt.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// KeysToMarkdown renders cached key records as a Markdown table.
func KeysToMarkdown(records []*models.KeyRecord) []byte {
	var buf bytes.Buffer

	buf.WriteString("# Cached Keys\n\n")
	fmt.Fprintf(&buf, "**Tracks**: %d\n\n", len(records))
	buf.WriteString("| Track | Artist | Title | Key | Confidence |\n")
	buf.WriteString("|---|---|---|---|---|\n")
	for _, rec := range records {
		fmt.Fprintf(&buf, "| %s | %s | %s | %s | %s |\n",
			rec.TrackID, cell(rec.Artist), cell(rec.Title), Pitch(rec), Confidence(rec.Confidence))
	}

	return buf.Bytes()
}

// KeysToText renders cached key records one per line with styled pitch names.
func KeysToText(records []*models.KeyRecord) []byte {
	var buf bytes.Buffer

	buf.WriteString(Title(fmt.Sprintf("Cached keys: %d", len(records))) + "\n\n")
	for i, rec := range records {
		buf.WriteString(keyLine(i+1, rec.TrackID, rec.Artist, rec.Title, rec))
	}

	return buf.Bytes()
}

// ReportToCSV renders playlist tracks with their features and keys.
//
// Columns: Track ID, Title, Artist, Duration, Tempo, Spotify Key, Key, Confidence
func ReportToCSV(tracks []models.PlaylistTrack) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Track ID", "Title", "Artist", "Duration", "Tempo", "Spotify Key", "Key", "Confidence"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, tr := range tracks {
		tempo, spotifyKey := "", ""
		if tr.Features != nil {
			tempo = strconv.FormatFloat(tr.Features.Tempo, 'f', 1, 64)
			spotifyKey = music.PitchName(tr.Features.Key, tr.Features.Mode)
		}

		key, conf := "", ""
		if tr.Key != nil {
			key = Pitch(tr.Key)
			conf = Confidence(tr.Key.Confidence)
		}

		row := []string{tr.ID, tr.Title, tr.Artist, FormatDuration(tr.DurationMs), tempo, spotifyKey, key, conf}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ReportToMarkdown renders a playlist report as a numbered list.
func ReportToMarkdown(playlistID string, tracks []models.PlaylistTrack) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# Playlist %s\n\n", playlistID)
	fmt.Fprintf(&buf, "**Tracks**: %d\n\n", len(tracks))

	buf.WriteString("## Tracks\n\n")
	for i, tr := range tracks {
		fmt.Fprintf(&buf, "%d. %s - %s [%s]", i+1, tr.Artist, tr.Title, FormatDuration(tr.DurationMs))
		if tr.Key != nil {
			fmt.Fprintf(&buf, " **%s**", Pitch(tr.Key))
		}
		if tr.Features != nil {
			fmt.Fprintf(&buf, " %.0f BPM", tr.Features.Tempo)
		}
		buf.WriteString("\n")
	}

	return buf.Bytes()
}

// ReportToText renders a playlist report for the terminal.
func ReportToText(playlistID string, tracks []models.PlaylistTrack) []byte {
	var buf bytes.Buffer

	buf.WriteString(Title(fmt.Sprintf("Playlist %s: %d tracks", playlistID, len(tracks))) + "\n\n")
	for i := range tracks {
		tr := &tracks[i]
		buf.WriteString(keyLine(i+1, tr.ID, tr.Artist, tr.Title, tr.Key))
		if tr.Features != nil {
			buf.WriteString(Help(fmt.Sprintf("     spotify: %s, %.0f BPM",
				music.PitchName(tr.Features.Key, tr.Features.Mode), tr.Features.Tempo)) + "\n")
		}
	}

	return buf.Bytes()
}

func keyLine(n int, id, artist, title string, rec *models.KeyRecord) string {
	name := title
	if artist != "" {
		name = artist + " - " + title
	}
	if name == "" {
		name = id
	}

	if rec == nil {
		return fmt.Sprintf("%3d. %s  %s\n", n, name, Warn("Unknown"))
	}

	line := fmt.Sprintf("%3d. %s  %s", n, name, OK(Pitch(rec)))
	if c := Confidence(rec.Confidence); c != "" {
		line += " " + Help("("+c+")")
	}
	return line + "\n"
}

// FormatDuration renders milliseconds as m:ss.
func FormatDuration(ms int64) string {
	if ms <= 0 {
		return "0:00"
	}
	secs := ms / 1000
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

// cell escapes pipes so a value cannot break a Markdown table row.
func cell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// RenderKeys renders records in the given format.
func RenderKeys(format Format, records []*models.KeyRecord) ([]byte, error) {
	switch format {
	case FormatCSV:
		return KeysToCSV(records)
	case FormatMarkdown:
		return KeysToMarkdown(records), nil
	default:
		return KeysToText(records), nil
	}
}

// RenderReport renders playlist tracks in the given format.
func RenderReport(format Format, playlistID string, tracks []models.PlaylistTrack) ([]byte, error) {
	switch format {
	case FormatCSV:
		return ReportToCSV(tracks)
	case FormatMarkdown:
		return ReportToMarkdown(playlistID, tracks), nil
	default:
		return ReportToText(playlistID, tracks), nil
	}
}

// WriteExport writes rendered data to path.
func WriteExport(path string, data []byte) error {
	if path == "" {
		return fmt.Errorf("%w: output path", shared.ErrMissingArgument)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}
	return nil
}
