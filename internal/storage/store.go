// Package storage persists trained models and the tabular log that
// aggregates them.
package storage

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/san-kum/gravnn/internal/network"
	"github.com/san-kum/gravnn/internal/pinn"
	"gopkg.in/yaml.v3"
)

const (
	networksDir   = "Networks"
	dataframesDir = "Dataframes"
	networkFile   = "network.json"
	configFile    = "config.yaml"

	// oneMillisecond in Julian days.
	oneMillisecond = 1.0 / 86400000
	maxIDAttempts  = 1000
)

// Store lays out models as <base>/Networks/<id>/{network.json,config.yaml}
// and logs as <base>/Dataframes/<name>.
type Store struct {
	baseDir string
	logger  *slog.Logger
	now     func() time.Time
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir, logger: slog.Default(), now: time.Now}
}

// WithLogger sets the logger used for best-effort warnings.
func (s *Store) WithLogger(l *slog.Logger) *Store {
	s.logger = l
	return s
}

func (s *Store) Init() error {
	for _, dir := range []string{s.baseDir, filepath.Join(s.baseDir, networksDir), filepath.Join(s.baseDir, dataframesDir)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return &pinn.PersistenceError{Op: "init", Path: dir, Err: err}
		}
	}
	return nil
}

// NetworkDir returns the directory of a saved model.
func (s *Store) NetworkDir(id float64) string {
	return filepath.Join(s.baseDir, networksDir, FormatID(id))
}

// DataframePath returns the path of a named log.
func (s *Store) DataframePath(name string) string {
	return filepath.Join(s.baseDir, dataframesDir, name)
}

type SaveOptions struct {
	// Dataframe names the log to append a row to; empty skips the log.
	Dataframe string
	// Extra entries merged into the record, such as evaluation scores.
	Extra map[string]any
}

// Save writes the model under a fresh identifier and returns the record.
// Concurrent savers never share an identifier: the directory is created
// exclusively and the id advances by one millisecond on collision.
func (s *Store) Save(ctx context.Context, m *pinn.Model, opts SaveOptions) (Record, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}
	saved := s.now()
	id, dir, err := s.reserve(JulianDate(saved))
	if err != nil {
		return nil, err
	}

	netPath := filepath.Join(dir, networkFile)
	if err := m.Network().Save(netPath); err != nil {
		return nil, &pinn.PersistenceError{Op: "save network", Path: netPath, Err: err}
	}

	rec, err := NewRecord(m, id, saved)
	if err != nil {
		return nil, &pinn.PersistenceError{Op: "build record", Path: dir, Err: err}
	}
	if size, err := gzippedSize(netPath); err != nil {
		s.logger.Warn("could not measure network size", "path", netPath, "err", err)
	} else {
		rec.Set("size", size)
	}
	for k, v := range opts.Extra {
		rec.Set(k, v)
	}

	if err := writeRecord(filepath.Join(dir, configFile), rec); err != nil {
		return nil, err
	}

	if opts.Dataframe != "" {
		if err := s.appendLog(ctx, opts.Dataframe, rec); err != nil {
			s.logger.Warn("could not append dataframe row", "dataframe", opts.Dataframe, "err", err)
		}
	}
	s.logger.Info("saved model", "id", FormatID(id), "dir", dir)
	return rec, nil
}

func (s *Store) reserve(id float64) (float64, string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		dir := s.NetworkDir(id)
		err := os.Mkdir(dir, 0755)
		if err == nil {
			return id, dir, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return 0, "", &pinn.PersistenceError{Op: "create", Path: dir, Err: err}
		}
		id += oneMillisecond
	}
	return 0, "", &pinn.PersistenceError{Op: "create", Path: s.NetworkDir(id), Err: errors.New("no free identifier")}
}

func (s *Store) appendLog(ctx context.Context, name string, rec Record) error {
	l := NewLog(s.DataframePath(name))
	if err := l.Init(ctx); err != nil {
		return err
	}
	defer l.Close()
	return l.Append(ctx, rec)
}

// ReadRecord returns the raw, unmigrated record of a saved model.
func (s *Store) ReadRecord(id float64) (Record, error) {
	path := filepath.Join(s.NetworkDir(id), configFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &pinn.PersistenceError{Op: "read", Path: path, Err: err}
	}
	rec := Record{}
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, &pinn.PersistenceError{Op: "decode", Path: path, Err: err}
	}
	return rec, nil
}

// Load migrates the saved record and rebuilds the model.
func (s *Store) Load(id float64, opts ...pinn.Option) (*pinn.Model, Record, error) {
	rec, err := s.ReadRecord(id)
	if err != nil {
		return nil, nil, err
	}
	return s.Restore(rec, opts...)
}

// Restore rebuilds a model from a record, for example a log row, loading
// the weights from the record's network directory.
func (s *Store) Restore(rec Record, opts ...pinn.Option) (*pinn.Model, Record, error) {
	rec, err := Migrate(rec)
	if err != nil {
		return nil, nil, &pinn.PersistenceError{Op: "migrate", Path: s.baseDir, Err: err}
	}
	id, _ := rec.ID()
	cfg, set, err := rec.ToConfig()
	if err != nil {
		return nil, nil, err
	}
	netPath := filepath.Join(s.NetworkDir(id), networkFile)
	net, err := network.Load(netPath)
	if err != nil {
		return nil, nil, &pinn.PersistenceError{Op: "load network", Path: netPath, Err: err}
	}
	m, err := pinn.New(cfg, net, set, opts...)
	if err != nil {
		return nil, nil, err
	}
	if h, err := rec.History(); err != nil {
		s.logger.Warn("could not decode history", "id", FormatID(id), "err", err)
	} else {
		m.SetHistory(h)
	}
	return m, rec, nil
}

// LoadFromLog rebuilds a model from its row in a named log.
func (s *Store) LoadFromLog(ctx context.Context, dataframe string, id float64, opts ...pinn.Option) (*pinn.Model, Record, error) {
	path := s.DataframePath(dataframe)
	l := NewLog(path)
	if err := l.Init(ctx); err != nil {
		return nil, nil, &pinn.PersistenceError{Op: "open log", Path: path, Err: err}
	}
	defer l.Close()
	rec, ok, err := l.Get(ctx, id)
	if err != nil {
		return nil, nil, &pinn.PersistenceError{Op: "read log", Path: path, Err: err}
	}
	if !ok {
		return nil, nil, &pinn.PersistenceError{Op: "read log", Path: path, Err: fmt.Errorf("no row with id %s", FormatID(id))}
	}
	return s.Restore(rec, opts...)
}

// Summary is the listing view of a saved model.
type Summary struct {
	ID         float64
	Timetag    string
	Constraint string
	Loss       string
	Params     int
	Size       int64
	FinalLoss  float64
}

// List reads every saved model's record, newest first. Unreadable
// directories are skipped.
func (s *Store) List() ([]Summary, error) {
	entries, err := os.ReadDir(filepath.Join(s.baseDir, networksDir))
	if err != nil {
		if os.IsNotExist(err) {
			return []Summary{}, nil
		}
		return nil, &pinn.PersistenceError{Op: "list", Path: s.baseDir, Err: err}
	}

	out := make([]Summary, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id, err := ParseID(entry.Name())
		if err != nil {
			continue
		}
		rec, err := s.ReadRecord(id)
		if err != nil {
			continue
		}
		if rec, err = Migrate(rec); err != nil {
			continue
		}
		out = append(out, summarize(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// MigrateAll rewrites every saved record in its current form and returns
// how many were written.
func (s *Store) MigrateAll() (int, error) {
	entries, err := os.ReadDir(filepath.Join(s.baseDir, networksDir))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, &pinn.PersistenceError{Op: "list", Path: s.baseDir, Err: err}
	}
	n := 0
	for _, entry := range entries {
		id, err := ParseID(entry.Name())
		if !entry.IsDir() || err != nil {
			continue
		}
		rec, err := s.ReadRecord(id)
		if err != nil {
			return n, err
		}
		if rec, err = Migrate(rec); err != nil {
			return n, &pinn.PersistenceError{Op: "migrate", Path: s.NetworkDir(id), Err: err}
		}
		if err := writeRecord(filepath.Join(s.NetworkDir(id), configFile), rec); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func summarize(rec Record) Summary {
	sum := Summary{FinalLoss: math.NaN()}
	sum.ID, _ = rec.ID()
	sum.Timetag, _ = rec.String("timetag")
	sum.Constraint, _ = rec.String("PINN_constraint_fcn")
	sum.Loss, _ = rec.String("loss_fcn")
	if v, ok := rec.Float("params"); ok {
		sum.Params = int(v)
	}
	if v, ok := rec.Float("size"); ok {
		sum.Size = int64(v)
	}
	if v, ok := rec.Float("final_loss"); ok {
		sum.FinalLoss = v
	}
	return sum
}

func writeRecord(path string, rec Record) error {
	data, err := yaml.Marshal(rec)
	if err != nil {
		return &pinn.PersistenceError{Op: "encode", Path: path, Err: err}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return &pinn.PersistenceError{Op: "write", Path: path, Err: err}
	}
	return nil
}

func gzippedSize(path string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return 0, err
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("gzip: %w", err)
	}
	return int64(buf.Len()), nil
}
