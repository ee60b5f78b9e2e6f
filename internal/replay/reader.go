package replay

import (
	"context"
	"database/sql"
	"time"

	"github.com/dolphie-go/dolphie/internal/dolphieerr"
)

// Entry is one decoded, ready-to-render replay row.
type Entry struct {
	ID        int64
	Timestamp time.Time
	Payload   Payload
}

// Reader opens a replay file read-only and serves sequential/seek access
// over it for the Tab Runtime's replay substitution path.
type Reader struct {
	db       *sql.DB
	Metadata Metadata
	comp     *compressor
}

// OpenReader opens path read-only and loads its metadata and compression
// dictionary.
func OpenReader(ctx context.Context, path string) (*Reader, error) {
	db, err := openForRead(path)
	if err != nil {
		return nil, err
	}
	meta, err := readMetadata(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	comp, err := newCompressor(meta.CompressionDict)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Reader{db: db, Metadata: meta, comp: comp}, nil
}

// NextAfter returns the row with the smallest id greater than currentId, or
// nil if none exists.
func (r *Reader) NextAfter(ctx context.Context, currentID int64) (*Entry, error) {
	var id int64
	var tsRaw string
	var data []byte
	err := r.db.QueryRowContext(ctx,
		"SELECT id, timestamp, data FROM replay_data WHERE id > ? ORDER BY id ASC LIMIT 1", currentID,
	).Scan(&id, &tsRaw, &data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, dolphieerr.Wrap(dolphieerr.ReplayFormat, err, "reading next replay row")
	}
	ts, _ := time.Parse(time.RFC3339Nano, tsRaw)
	return r.decodeRow(row{ID: id, Timestamp: ts, Data: data})
}

// SeekToTimestamp positions the cursor just before ts: if an exact match
// exists, NextAfter will return it; otherwise it positions just before the
// greatest row with a timestamp less than ts. Returns the id to pass as
// currentID to the next NextAfter call, and the actual timestamp landed on.
// ok is false if no row at or before ts exists.
func (r *Reader) SeekToTimestamp(ctx context.Context, ts time.Time) (id int64, actual time.Time, ok bool, err error) {
	var exactID int64
	var exactTS string
	rowErr := r.db.QueryRowContext(ctx,
		"SELECT id, timestamp FROM replay_data WHERE timestamp = ?", formatTS(ts),
	).Scan(&exactID, &exactTS)
	if rowErr == nil {
		parsedExact, _ := time.Parse(time.RFC3339Nano, exactTS)
		return exactID - 1, parsedExact, true, nil
	}
	if rowErr != sql.ErrNoRows {
		return 0, time.Time{}, false, dolphieerr.Wrap(dolphieerr.ReplayFormat, rowErr, "seeking exact replay timestamp")
	}

	var priorID int64
	var priorTS string
	rowErr = r.db.QueryRowContext(ctx,
		"SELECT id, timestamp FROM replay_data WHERE timestamp < ? ORDER BY timestamp DESC LIMIT 1", formatTS(ts),
	).Scan(&priorID, &priorTS)
	if rowErr == sql.ErrNoRows {
		return 0, time.Time{}, false, nil
	}
	if rowErr != nil {
		return 0, time.Time{}, false, dolphieerr.Wrap(dolphieerr.ReplayFormat, rowErr, "seeking prior replay timestamp")
	}
	parsed, _ := time.Parse(time.RFC3339Nano, priorTS)
	return priorID - 1, parsed, true, nil
}

// Bounds reports the min/max row id and timestamp, for the UI scrub bar.
func (r *Reader) Bounds(ctx context.Context) (minID, maxID int64, minTS, maxTS time.Time, err error) {
	var minTSRaw, maxTSRaw sql.NullString
	var minIDN, maxIDN sql.NullInt64
	row := r.db.QueryRowContext(ctx, "SELECT MIN(id), MAX(id), MIN(timestamp), MAX(timestamp) FROM replay_data")
	if scanErr := row.Scan(&minIDN, &maxIDN, &minTSRaw, &maxTSRaw); scanErr != nil {
		return 0, 0, time.Time{}, time.Time{}, dolphieerr.Wrap(dolphieerr.ReplayFormat, scanErr, "reading replay bounds")
	}
	minID, maxID = minIDN.Int64, maxIDN.Int64
	if minTSRaw.Valid {
		minTS, _ = time.Parse(time.RFC3339Nano, minTSRaw.String)
	}
	if maxTSRaw.Valid {
		maxTS, _ = time.Parse(time.RFC3339Nano, maxTSRaw.String)
	}
	return minID, maxID, minTS, maxTS, nil
}

func formatTS(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339Nano)
}

func (r *Reader) decodeRow(rw row) (*Entry, error) {
	decompressed, err := r.comp.Decompress(rw.Data)
	if err != nil {
		return nil, err
	}
	payload, err := decodePayload(decompressed)
	if err != nil {
		return nil, err
	}
	return &Entry{ID: rw.ID, Timestamp: rw.Timestamp, Payload: payload}, nil
}

// Close releases the underlying file and compressor resources.
func (r *Reader) Close() error {
	r.comp.Close()
	return r.db.Close()
}
