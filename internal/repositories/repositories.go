package repositories

import (
	"database/sql"

	"github.com/desertthunder/keyfinder/internal/models"
)

const keyColumns = "track_id, source, key, mode, confidence, mbid, title, artist, updated_at"

// rowScanner is satisfied by *sql.Row, *sql.Rows and pgx.Row.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanKeyRecord reads a row selected with keyColumns.
func scanKeyRecord(row rowScanner) (*models.KeyRecord, error) {
	var (
		rec        models.KeyRecord
		source     string
		confidence sql.NullFloat64
		mbid       sql.NullString
		title      sql.NullString
		artist     sql.NullString
	)

	if err := row.Scan(&rec.TrackID, &source, &rec.Key, &rec.Mode, &confidence, &mbid, &title, &artist, &rec.UpdatedAt); err != nil {
		return nil, err
	}

	rec.Source = models.Source(source)
	if confidence.Valid {
		c := confidence.Float64
		rec.Confidence = &c
	}
	rec.ExternalRecordingID = mbid.String
	rec.Title = title.String
	rec.Artist = artist.String

	return &rec, nil
}

// keyArgs returns the insert arguments in keyColumns order, minus updated_at.
func keyArgs(rec *models.KeyRecord) []any {
	var confidence any
	if rec.Confidence != nil {
		confidence = *rec.Confidence
	}
	return []any{
		rec.TrackID,
		string(rec.Source),
		rec.Key,
		rec.Mode,
		confidence,
		nullString(rec.ExternalRecordingID),
		nullString(rec.Title),
		nullString(rec.Artist),
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
