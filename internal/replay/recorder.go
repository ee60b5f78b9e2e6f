package replay

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/dolphie-go/dolphie/internal/dolphieerr"
	"github.com/dolphie-go/dolphie/internal/metricstore"
	"github.com/dolphie-go/dolphie/internal/sample"
)

// RecorderConfig configures one replay file's retention policy and identity.
type RecorderConfig struct {
	Path             string
	Host             string
	Port             int
	HostDistro       string
	ConnectionSource string
	AppVersion       string
	RetentionWindow  time.Duration // default: kept forever if zero
}

// Recorder serializes one sample cycle per call to Record, training a
// content dictionary after the first dictionaryTrainingSize payloads and
// compressing every payload from then on.
type Recorder struct {
	mu sync.Mutex

	db    *sql.DB
	log   *zap.Logger
	cfg   RecorderConfig
	dict  []byte
	comp  *compressor
	train *dictionaryTrainer

	cronSched *cron.Cron
	lastSweep time.Time
}

// NewRecorder opens or creates the replay file at cfg.Path and starts the
// hourly retention sweep.
func NewRecorder(cfg RecorderConfig, log *zap.Logger) (*Recorder, error) {
	db, err := openForWrite(cfg.Path, Metadata{
		Host: cfg.Host, Port: cfg.Port, HostDistro: cfg.HostDistro,
		ConnectionSource: cfg.ConnectionSource, AppVersion: cfg.AppVersion,
	})
	if err != nil {
		if log != nil {
			log.Error("refusing replay file", zap.String("path", cfg.Path), zap.Error(err))
		}
		return nil, err
	}

	comp, err := newCompressor(nil)
	if err != nil {
		db.Close()
		return nil, err
	}

	r := &Recorder{db: db, log: log, cfg: cfg, train: newDictionaryTrainer(), comp: comp}

	if cfg.RetentionWindow > 0 {
		r.cronSched = cron.New()
		_, err := r.cronSched.AddFunc("@hourly", r.sweepRetention)
		if err != nil {
			db.Close()
			return nil, dolphieerr.Wrap(dolphieerr.ReplayFormat, err, "scheduling retention sweep")
		}
		r.cronSched.Start()
	}
	return r, nil
}

// Record serializes and stores one sample cycle: the preprocessed raw
// sample, the current metric store snapshot, and its timestamp buffer.
//
// Every call inserts a row immediately, matching ReplayManager.py's
// insert-on-every-sample behavior: the first dictionaryTrainingSize payloads
// go in compressed with no dictionary, and once the dictionary trains the
// remaining payloads compress against it. A dictionary-bound decoder still
// decodes the earlier, dict-less frames, so nothing already written needs
// re-encoding.
func (r *Recorder) Record(ctx context.Context, ts time.Time, raw sample.RawSample, metrics metricstore.Snapshot) error {
	payload := Payload{
		Raw:        PreprocessForReplay(raw),
		Metrics:    metrics,
		Timestamps: metrics.Timestamps,
	}
	encoded, err := encodePayload(payload)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.insert(ctx, ts, r.comp.Compress(encoded)); err != nil {
		return err
	}

	if r.dict != nil {
		return nil
	}
	dict := r.train.Add(encoded)
	if dict == nil {
		return nil
	}
	r.dict = dict
	comp, err := newCompressor(dict)
	if err != nil {
		return err
	}
	r.comp.Close()
	r.comp = comp
	return r.persistDictionary(ctx, dict)
}

func (r *Recorder) insert(ctx context.Context, ts time.Time, data []byte) (int64, error) {
	res, err := r.db.ExecContext(ctx, "INSERT INTO replay_data (timestamp, data) VALUES (?, ?)", ts.UTC().Format(time.RFC3339Nano), data)
	if err != nil {
		return 0, dolphieerr.Wrap(dolphieerr.ReplayFormat, err, "inserting replay row")
	}
	return res.LastInsertId()
}

func (r *Recorder) persistDictionary(ctx context.Context, dict []byte) error {
	_, err := r.db.ExecContext(ctx, "UPDATE metadata SET compression_dict = ?", dict)
	if err != nil {
		return dolphieerr.Wrap(dolphieerr.ReplayFormat, err, "persisting replay compression dictionary")
	}
	return nil
}

// sweepRetention deletes rows older than the retention window. It is
// scheduled at most once per hour via cron and is a no-op within the same
// hour it last ran.
func (r *Recorder) sweepRetention() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if time.Since(r.lastSweep) < time.Hour {
		return
	}
	cutoff := time.Now().Add(-r.cfg.RetentionWindow).UTC().Format(time.RFC3339Nano)
	if _, err := r.db.Exec("DELETE FROM replay_data WHERE timestamp < ?", cutoff); err != nil && r.log != nil {
		r.log.Warn("replay retention sweep failed", zap.Error(err))
	}
	r.lastSweep = time.Now()
}

// Close stops the retention scheduler and closes the underlying file.
func (r *Recorder) Close() error {
	if r.cronSched != nil {
		r.cronSched.Stop()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.comp != nil {
		r.comp.Close()
	}
	return r.db.Close()
}
