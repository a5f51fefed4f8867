package store

import (
	"errors"
	"io/fs"
	"os"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/moby/sys/atomicwriter"
	"go.uber.org/zap"
)

const DefaultPath = "cve_data.json"

// FileStore keeps the advisory collection in a single pretty-printed JSON file.
type FileStore struct {
	path   string
	logger *zap.Logger
}

func NewFileStore(path string, logger *zap.Logger) *FileStore {
	if path == "" {
		path = DefaultPath
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{path: path, logger: logger}
}

func (s *FileStore) Path() string { return s.path }

// Load reads the collection. A missing or unreadable file yields an empty
// collection; Load never fails.
func (s *FileStore) Load() Collection {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("cannot read store, starting empty", zap.String("path", s.path), zap.Error(err))
		}
		return Collection{}
	}
	coll, err := decode(b)
	if err != nil {
		s.logger.Warn("store content is malformed, starting empty", zap.String("path", s.path), zap.Error(err))
		return Collection{}
	}
	s.logger.Info("loaded existing advisories", zap.String("path", s.path), zap.Int("count", len(coll)))
	return coll
}

func decode(b []byte) (Collection, error) {
	var raw jsontext.Value
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	switch raw.Kind() {
	case '{':
		var m map[string]Advisory
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		coll := make(Collection, len(m))
		for key, a := range m {
			if a.ID == "" {
				a.ID = key
			}
			coll[a.ID] = a
		}
		return coll, nil
	case '[':
		// legacy shape: a plain list of records
		var list []Advisory
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		coll := make(Collection, len(list))
		for _, a := range list {
			if a.ID == "" {
				continue
			}
			coll[a.ID] = a
		}
		return coll, nil
	default:
		return nil, errors.New("expected a JSON object or array, got " + raw.Kind().String())
	}
}

func (s *FileStore) Save(coll Collection) error {
	b, err := Encode(coll)
	if err != nil {
		return err
	}
	if err := atomicwriter.WriteFile(s.path, b, 0o644); err != nil {
		return err
	}
	s.logger.Info("saved advisories", zap.String("path", s.path), zap.Int("count", len(coll)))
	return nil
}

func Encode(coll Collection) ([]byte, error) {
	if coll == nil {
		coll = Collection{}
	}
	b, err := json.Marshal(coll, json.Deterministic(true), jsontext.WithIndent("    "))
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}
