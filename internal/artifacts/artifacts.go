// Package artifacts persists the evidence reports backing a rollout
// decision. Each rollout gets its own directory containing the exact
// baseline and candidate reports the gates saw, plus a manifest with
// checksums so a postmortem can prove the evidence was not edited
// after the fact.
package artifacts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	fsio "github.com/stratops/stratroll/internal/io"
	"github.com/stratops/stratroll/internal/report"
	"github.com/stratops/stratroll/internal/rollout"
)

const (
	baselineFileName  = "baseline_report.json"
	candidateFileName = "candidate_report.json"
	manifestFileName  = "manifest.yaml"
)

// ManifestFile describes one persisted artifact.
type ManifestFile struct {
	Name       string `yaml:"name"`
	SHA256     string `yaml:"sha256"`
	Bytes      int    `yaml:"bytes"`
	StrategyID string `yaml:"strategy_id"`
	RunID      string `yaml:"run_id"`
}

// Manifest indexes a rollout's artifact directory.
type Manifest struct {
	RolloutID   string         `yaml:"rollout_id"`
	GeneratedAt time.Time      `yaml:"generated_at"`
	Files       []ManifestFile `yaml:"files"`
}

// Store writes rollout artifacts under a root directory.
type Store struct {
	root string
	now  func() time.Time
}

// NewStore creates the root directory when missing.
func NewStore(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("artifact store requires a root directory")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create artifacts root %s: %w", root, err)
	}
	return &Store{root: root, now: time.Now}, nil
}

// SaveReports writes both evidence reports and the manifest into the
// rollout's directory. Files are written atomically; returned paths
// carry the store root as it was configured.
func (s *Store) SaveReports(_ context.Context, rolloutID string, baseline, candidate *report.PerformanceReport) (rollout.ArtifactRefs, error) {
	var refs rollout.ArtifactRefs
	if rolloutID == "" {
		return refs, fmt.Errorf("artifact save requires a rollout id")
	}
	dir := filepath.Join(s.root, rolloutID)

	manifest := Manifest{RolloutID: rolloutID, GeneratedAt: s.now()}

	baselineEntry, err := s.writeReport(dir, baselineFileName, baseline)
	if err != nil {
		return refs, fmt.Errorf("persist baseline report: %w", err)
	}
	manifest.Files = append(manifest.Files, baselineEntry)

	candidateEntry, err := s.writeReport(dir, candidateFileName, candidate)
	if err != nil {
		return refs, fmt.Errorf("persist candidate report: %w", err)
	}
	manifest.Files = append(manifest.Files, candidateEntry)

	manifestData, err := yaml.Marshal(&manifest)
	if err != nil {
		return refs, fmt.Errorf("encode manifest: %w", err)
	}
	if err := fsio.WriteFileAtomic(filepath.Join(dir, manifestFileName), manifestData); err != nil {
		return refs, fmt.Errorf("persist manifest: %w", err)
	}

	refs.Dir = dir
	refs.BaselinePath = filepath.Join(dir, baselineFileName)
	refs.CandidatePath = filepath.Join(dir, candidateFileName)
	return refs, nil
}

func (s *Store) writeReport(dir, name string, rep *report.PerformanceReport) (ManifestFile, error) {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return ManifestFile{}, fmt.Errorf("encode report: %w", err)
	}
	if err := fsio.WriteFileAtomic(filepath.Join(dir, name), data); err != nil {
		return ManifestFile{}, err
	}
	sum := sha256.Sum256(data)
	return ManifestFile{
		Name:       name,
		SHA256:     hex.EncodeToString(sum[:]),
		Bytes:      len(data),
		StrategyID: rep.StrategyID,
		RunID:      rep.RunID,
	}, nil
}

// LoadManifest reads a rollout's manifest back for verification.
func (s *Store) LoadManifest(rolloutID string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(s.root, rolloutID, manifestFileName))
	if err != nil {
		return nil, fmt.Errorf("read manifest for rollout %s: %w", rolloutID, err)
	}
	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("decode manifest for rollout %s: %w", rolloutID, err)
	}
	return &manifest, nil
}

// Verify recomputes checksums for every manifest entry and returns the
// names that no longer match.
func (s *Store) Verify(rolloutID string) ([]string, error) {
	manifest, err := s.LoadManifest(rolloutID)
	if err != nil {
		return nil, err
	}
	var tampered []string
	for _, f := range manifest.Files {
		data, err := os.ReadFile(filepath.Join(s.root, rolloutID, f.Name))
		if err != nil {
			tampered = append(tampered, f.Name)
			continue
		}
		sum := sha256.Sum256(data)
		if hex.EncodeToString(sum[:]) != f.SHA256 {
			tampered = append(tampered, f.Name)
		}
	}
	return tampered, nil
}
