package tables

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"github.com/soundprediction/likeness/pkg/report"
	"github.com/soundprediction/likeness/pkg/types"
)

// Table names. Each table is stored as <name>.parquet in the store directory.
const (
	ReferenceSimilarity = "reference_similarity"
	PeerSimilarity      = "peer_similarity"
	PeerPairs           = "peer_pairs"
	Symbolic            = "symbolic"
	Clusters            = "clusters"
	ClusterVerdicts     = "cluster_verdicts"
	LikenessVerdicts    = "likeness_verdicts"
	Report              = "report"
)

// ErrTableNotFound is returned by Read when the table file does not exist.
var ErrTableNotFound = errors.New("table not found")

// Store reads and writes the parquet tables of one run directory.
type Store struct {
	dir string
}

// NewStore creates dir if needed and returns a store over it.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("tables directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create tables directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the store directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the file path of table name.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name+".parquet")
}

// Exists reports whether table name has been written.
func (s *Store) Exists(name string) bool {
	_, err := os.Stat(s.Path(name))
	return err == nil
}

// Write replaces table name with rows. The file is written to a temporary
// path first and renamed into place.
func Write[T any](s *Store, name string, rows []T) error {
	path := s.Path(name)
	tmp := path + ".tmp"
	if err := parquet.WriteFile(tmp, rows); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write table %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace table %s: %w", name, err)
	}
	return nil
}

// Read loads every row of table name. A missing file wraps ErrTableNotFound.
func Read[T any](s *Store, name string) ([]T, error) {
	path := s.Path(name)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, fmt.Errorf("failed to read table %s: %w", name, err)
	}
	return rows, nil
}

// Features holds the per-answer feature tables.
type Features struct {
	Reference []types.SimilarityResult
	Peer      []types.SimilarityResult
	PeerPairs []types.PairSimilarity
	Symbolic  []types.SymbolicScore
	Clusters  []types.ClusterAssignment
}

// SaveFeatures writes every feature table.
func (s *Store) SaveFeatures(f Features) error {
	if err := Write(s, ReferenceSimilarity, f.Reference); err != nil {
		return err
	}
	if err := Write(s, PeerSimilarity, f.Peer); err != nil {
		return err
	}
	if err := Write(s, PeerPairs, f.PeerPairs); err != nil {
		return err
	}
	if err := Write(s, Symbolic, f.Symbolic); err != nil {
		return err
	}
	return Write(s, Clusters, f.Clusters)
}

// LoadFeatures reads every feature table. A missing table is an
// *types.InputDataError naming it.
func (s *Store) LoadFeatures() (Features, error) {
	var f Features
	var err error
	if f.Reference, err = readRequired[types.SimilarityResult](s, ReferenceSimilarity); err != nil {
		return Features{}, err
	}
	if f.Peer, err = readRequired[types.SimilarityResult](s, PeerSimilarity); err != nil {
		return Features{}, err
	}
	if f.PeerPairs, err = readRequired[types.PairSimilarity](s, PeerPairs); err != nil {
		return Features{}, err
	}
	if f.Symbolic, err = readRequired[types.SymbolicScore](s, Symbolic); err != nil {
		return Features{}, err
	}
	if f.Clusters, err = readRequired[types.ClusterAssignment](s, Clusters); err != nil {
		return Features{}, err
	}
	return f, nil
}

// SaveVerdicts replaces the likeness verdict table.
func (s *Store) SaveVerdicts(v []types.LikenessVerdict) error {
	return Write(s, LikenessVerdicts, v)
}

// LoadVerdicts reads prior likeness verdicts; none exist before the first run.
func (s *Store) LoadVerdicts() ([]types.LikenessVerdict, error) {
	return readOptional[types.LikenessVerdict](s, LikenessVerdicts)
}

// SaveClusterVerdicts replaces the cluster verdict table.
func (s *Store) SaveClusterVerdicts(v []types.ClusterVerdict) error {
	return Write(s, ClusterVerdicts, v)
}

// LoadClusterVerdicts reads cluster verdicts, empty when never written.
func (s *Store) LoadClusterVerdicts() ([]types.ClusterVerdict, error) {
	return readOptional[types.ClusterVerdict](s, ClusterVerdicts)
}

// SaveReport replaces the report table.
func (s *Store) SaveReport(rows []report.Row) error {
	return Write(s, Report, rows)
}

// LoadReport reads the report table. A missing report is an input error.
func (s *Store) LoadReport() ([]report.Row, error) {
	return readRequired[report.Row](s, Report)
}

func readRequired[T any](s *Store, name string) ([]T, error) {
	rows, err := Read[T](s, name)
	if err != nil {
		return nil, types.NewInputDataError(name, err)
	}
	return rows, nil
}

func readOptional[T any](s *Store, name string) ([]T, error) {
	rows, err := Read[T](s, name)
	if errors.Is(err, ErrTableNotFound) {
		return nil, nil
	}
	return rows, err
}
