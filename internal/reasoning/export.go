package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/SamoraDC/Tetrad/internal/models"
	"github.com/SamoraDC/Tetrad/internal/store"
)

// ExportVersion is written into every export document. Import accepts any
// version with the same major number.
const ExportVersion = "2.0"

// Format is an export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat resolves a format name.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown export format: %q", s)
}

// ExportDocument is the portable form of a ReasoningBank.
type ExportDocument struct {
	Version    string                     `json:"version" yaml:"version"`
	ExportedAt time.Time                  `json:"exported_at" yaml:"exported_at"`
	Knowledge  *models.DistilledKnowledge `json:"knowledge" yaml:"knowledge"`
	Patterns   []*models.Pattern          `json:"patterns" yaml:"patterns"`
}

// Export writes a distilled snapshot plus every pattern to w.
func (b *Bank) Export(ctx context.Context, w io.Writer, format Format) (*ExportDocument, error) {
	doc := &ExportDocument{Version: ExportVersion, ExportedAt: b.now().UTC()}

	err := b.store.View(ctx, func(r store.Reader) error {
		var err error
		if doc.Knowledge, err = b.distill(ctx, r); err != nil {
			return err
		}
		doc.Patterns, err = r.ListPatterns(ctx, store.PatternFilter{})
		return err
	})
	if err != nil {
		return nil, storeErr("export", err)
	}
	if doc.Patterns == nil {
		doc.Patterns = []*models.Pattern{}
	}

	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("encode json: %w", err)
		}
	}

	b.logger.Info("patterns exported", zap.Int("patterns", len(doc.Patterns)), zap.String("format", string(format)))
	return doc, nil
}

// DecodeExport parses a JSON or YAML export document and validates it.
func DecodeExport(r io.Reader) (*ExportDocument, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read import data: %w", err)
	}

	doc := &ExportDocument{}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidImportData)
	}
	if trimmed[0] == '{' {
		err = json.Unmarshal(trimmed, doc)
	} else {
		err = yaml.Unmarshal(trimmed, doc)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImportData, err)
	}

	if err := doc.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImportData, err)
	}
	return doc, nil
}

func (d *ExportDocument) validate() error {
	major, _, _ := strings.Cut(d.Version, ".")
	wantMajor, _, _ := strings.Cut(ExportVersion, ".")
	if major != wantMajor {
		return fmt.Errorf("unsupported version %q", d.Version)
	}

	seen := make(map[string]int, len(d.Patterns))
	var errs []error
	for i, p := range d.Patterns {
		if p == nil {
			errs = append(errs, fmt.Errorf("pattern %d: empty", i))
			continue
		}
		if p.CodeSignature == "" {
			errs = append(errs, fmt.Errorf("pattern %d: missing code_signature", i))
		}
		if p.IssueCategory == "" {
			errs = append(errs, fmt.Errorf("pattern %d: missing issue_category", i))
		}
		if !p.Type.Valid() {
			errs = append(errs, fmt.Errorf("pattern %d: unknown pattern_type %q", i, p.Type))
		}
		if p.SuccessCount < 0 || p.FailureCount < 0 {
			errs = append(errs, fmt.Errorf("pattern %d: negative counts", i))
		}
		key := p.CodeSignature + "\x00" + p.IssueCategory
		if j, dup := seen[key]; dup {
			errs = append(errs, fmt.Errorf("pattern %d: duplicates pattern %d", i, j))
		}
		seen[key] = i
	}
	return errors.Join(errs...)
}

// Import merges an export document into the store. Patterns new to the store
// are inserted; ones matching an existing (signature, category) are merged
// into it. Counts take the larger side, so importing the same document twice
// changes nothing the second time. Nothing is written if the document is
// invalid or any write fails.
func (b *Bank) Import(ctx context.Context, r io.Reader) (*models.ImportSummary, error) {
	doc, err := DecodeExport(r)
	if err != nil {
		return nil, err
	}

	now := b.now().UTC()
	summary := &models.ImportSummary{}

	err = b.store.Update(ctx, func(w store.Writer) error {
		*summary = models.ImportSummary{}
		for _, in := range doc.Patterns {
			existing, err := w.GetPattern(ctx, in.CodeSignature, in.IssueCategory)
			switch {
			case errors.Is(err, store.ErrNotFound):
				p := *in
				p.ID = ""
				if p.CreatedAt.IsZero() {
					p.CreatedAt = now
				}
				if p.LastSeen.IsZero() {
					p.LastSeen = p.CreatedAt
				}
				p.Recalculate()
				if err := w.CreatePattern(ctx, &p); err != nil {
					return err
				}
				summary.Imported++
			case err != nil:
				return err
			default:
				if mergeImported(existing, in) {
					if err := w.UpdatePattern(ctx, existing); err != nil {
						return err
					}
				}
				summary.Merged++
			}
		}
		return nil
	})
	if err != nil {
		return nil, storeErr("import", err)
	}

	b.logger.Info("patterns imported", zap.Int("imported", summary.Imported), zap.Int("merged", summary.Merged))
	return summary, nil
}

// mergeImported folds in into existing and reports whether existing changed.
func mergeImported(existing, in *models.Pattern) bool {
	before := *existing

	existing.SuccessCount = max(existing.SuccessCount, in.SuccessCount)
	existing.FailureCount = max(existing.FailureCount, in.FailureCount)
	existing.Protected = existing.Protected || in.Protected
	if in.LastSeen.After(existing.LastSeen) {
		existing.LastSeen = in.LastSeen
		if in.Description != "" {
			existing.Description = in.Description
		}
		if in.Solution != "" {
			existing.Solution = in.Solution
		}
		existing.Type = in.Type
	}
	if existing.Solution == "" {
		existing.Solution = in.Solution
	}
	existing.Recalculate()

	return *existing != before
}
