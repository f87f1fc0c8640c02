// Package episode persists finished episodes as JSON Lines and reads
// them back for offline analysis and threshold calibration.
package episode

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/x0rium/robust-semantic-agent/internal/domain"
	"github.com/x0rium/robust-semantic-agent/internal/semantics"
)

// Writer appends one JSON document per line to an episode log. Not
// safe for concurrent use; the batch runner gives each worker its own
// log file.
type Writer struct {
	logger *zap.Logger
	file   *os.File
	enc    *json.Encoder
	count  int
}

// NewWriter opens the log file for appending, creating it if needed.
func NewWriter(path string, logger *zap.Logger) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open episode log: %w", err)
	}
	return &Writer{logger: logger, file: f, enc: json.NewEncoder(f)}, nil
}

func (w *Writer) Record(ep *domain.EpisodeRecord) error {
	if err := w.enc.Encode(ep); err != nil {
		return fmt.Errorf("encode episode %s: %w", ep.ID, err)
	}
	w.count++
	return nil
}

func (w *Writer) Close() error {
	w.logger.Info("episode log closed",
		zap.String("path", w.file.Name()),
		zap.Int("episodes", w.count),
	)
	return w.file.Close()
}

// ReadRecords loads every episode from a log file. A JSON decoder is
// used rather than a line scanner so long episodes are not capped by a
// line-length limit.
func ReadRecords(path string) ([]domain.EpisodeRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open episode log: %w", err)
	}
	defer f.Close()

	var records []domain.EpisodeRecord
	dec := json.NewDecoder(f)
	for {
		var ep domain.EpisodeRecord
		if err := dec.Decode(&ep); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("decode episode %d: %w", len(records), err)
		}
		records = append(records, ep)
	}
	return records, nil
}

// Samples flattens the claim outcomes of a batch of episodes into
// calibration samples.
func Samples(records []domain.EpisodeRecord) []semantics.Sample {
	var out []semantics.Sample
	for _, ep := range records {
		for _, co := range ep.ClaimOutcomes {
			out = append(out, semantics.Sample{
				Support: co.Support,
				Counter: co.Counter,
				Outcome: co.Truth,
			})
		}
	}
	return out
}
