// Package plan turns a validated episode mapping into a concrete,
// collision-free sequence of move operations and serializes it. Destination
// paths are built purely from trusted metadata; nothing the mapping oracle
// produced is ever spliced into a literal path.
package plan

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"aninamer/internal/mapping"
	"aninamer/internal/scanner"
	"aninamer/internal/services"
	"aninamer/internal/subtitles"
	"aninamer/internal/textutil"
)

// OpKind distinguishes video moves from subtitle moves.
type OpKind string

const (
	KindVideo    OpKind = "video"
	KindSubtitle OpKind = "subtitle"
)

// Op is a single planned move. SrcSize is recorded at build time; the
// executor uses it for staleness and idempotency checks.
type Op struct {
	SrcID   int    `json:"src_id"`
	Kind    OpKind `json:"kind"`
	Src     string `json:"src"`
	Dst     string `json:"dst"`
	SrcSize int64  `json:"src_size"`
}

// Plan is an ordered sequence of moves plus the provenance needed to apply
// it without re-consulting any provider.
type Plan struct {
	TMDBID      int64  `json:"tmdb_id"`
	SeriesTitle string `json:"series_title"`
	Year        int    `json:"year"`
	SourceDir   string `json:"source_dir"`
	OutputRoot  string `json:"output_root"`
	Fingerprint string `json:"fingerprint"`
	Ops         []Op   `json:"ops"`
}

// BuildErrorKind classifies plan construction failures.
type BuildErrorKind string

const (
	KindCollision  BuildErrorKind = "collision"
	KindPathEscape BuildErrorKind = "path_escape"
)

// BuildError aborts plan construction; no partial plan accompanies it.
type BuildError struct {
	Kind  BuildErrorKind
	Paths []string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, strings.Join(e.Paths, ", "))
}

// BuildInput is everything the builder needs. SubtitleVariants is keyed by
// subtitle candidate id; classification happens before planning and a
// missing entry falls back to the generic variant.
type BuildInput struct {
	Scan              *scanner.Result
	Mapping           *mapping.Result
	SeriesTitle       string
	Year              int
	OutputRoot        string
	AllowExistingDest bool
	SubtitleVariants  map[int]subtitles.Variant
}

// Build constructs the rename plan. Any duplicate computed destination, or a
// destination already present on disk unless AllowExistingDest is set,
// aborts with a collision BuildError; the one exception is a second subtitle
// claiming an already planned subtitle destination, which is disambiguated
// with a numeric counter instead. A destination escaping OutputRoot aborts
// with a path-escape BuildError. Op order is deterministic: videos first,
// then subtitles, each sorted by destination.
func Build(in BuildInput) (*Plan, error) {
	sourceDir, err := filepath.Abs(in.Scan.Dir)
	if err != nil {
		return nil, planErr("resolve source dir", err)
	}
	outputRoot, err := filepath.Abs(in.OutputRoot)
	if err != nil {
		return nil, planErr("resolve output root", err)
	}

	seriesFolder, err := textutil.SeriesRootFolder(in.SeriesTitle, in.Year, in.Mapping.TMDBID)
	if err != nil {
		return nil, err
	}

	used := make(map[string]int)
	var ops []Op
	addOp := func(op Op) error {
		if _, dup := used[op.Dst]; dup {
			return &BuildError{Kind: KindCollision, Paths: []string{op.Dst}}
		}
		if !in.AllowExistingDest {
			if _, statErr := os.Lstat(op.Dst); statErr == nil {
				return &BuildError{Kind: KindCollision, Paths: []string{op.Dst}}
			}
		}
		within, relErr := isWithin(outputRoot, op.Dst)
		if relErr != nil {
			return planErr("check output root containment", relErr)
		}
		if !within {
			return &BuildError{Kind: KindPathEscape, Paths: []string{op.Dst}}
		}
		used[op.Dst] = op.SrcID
		ops = append(ops, op)
		return nil
	}

	for _, entry := range in.Mapping.Entries {
		video := in.Scan.Candidate(entry.VideoID)
		if video == nil {
			return nil, planErr(fmt.Sprintf("video id %d not found in scan", entry.VideoID), nil)
		}
		src := filepath.Join(sourceDir, filepath.FromSlash(video.RelPath))
		size, err := sourceSize(src)
		if err != nil {
			return nil, planErr(fmt.Sprintf("video source %s missing", src), err)
		}

		base, err := textutil.EpisodeBase(in.SeriesTitle, entry.Season, entry.EpStart, entry.EpEnd)
		if err != nil {
			return nil, err
		}
		seasonDir := filepath.Join(outputRoot, seriesFolder, textutil.SeasonFolder(entry.Season))
		if err := addOp(Op{
			SrcID:   video.ID,
			Kind:    KindVideo,
			Src:     src,
			Dst:     filepath.Join(seasonDir, base+video.Ext),
			SrcSize: size,
		}); err != nil {
			return nil, wrapBuild(err)
		}

		for _, subID := range entry.SubtitleIDs {
			sub := in.Scan.Candidate(subID)
			if sub == nil {
				return nil, planErr(fmt.Sprintf("subtitle id %d not found in scan", subID), nil)
			}
			subSrc := filepath.Join(sourceDir, filepath.FromSlash(sub.RelPath))
			subSize, err := sourceSize(subSrc)
			if err != nil {
				return nil, planErr(fmt.Sprintf("subtitle source %s missing", subSrc), err)
			}
			variant, ok := in.SubtitleVariants[sub.ID]
			if !ok {
				variant = subtitles.VariantCHI
			}
			subDst := disambiguateSubtitleDst(filepath.Join(seasonDir, base+variant.DotSuffix()+sub.Ext), used)
			if err := addOp(Op{
				SrcID:   sub.ID,
				Kind:    KindSubtitle,
				Src:     subSrc,
				Dst:     subDst,
				SrcSize: subSize,
			}); err != nil {
				return nil, wrapBuild(err)
			}
		}
	}

	sort.Slice(ops, func(i, j int) bool {
		if ops[i].Kind != ops[j].Kind {
			return ops[i].Kind == KindVideo
		}
		return ops[i].Dst < ops[j].Dst
	})

	p := &Plan{
		TMDBID:      in.Mapping.TMDBID,
		SeriesTitle: in.SeriesTitle,
		Year:        in.Year,
		SourceDir:   sourceDir,
		OutputRoot:  outputRoot,
		Ops:         ops,
	}
	p.Fingerprint = FingerprintOps(ops)
	return p, nil
}

// Rollback returns the inverse plan for the given completed operations:
// source and destination swapped, order reversed.
func (p *Plan) Rollback(completed []Op) *Plan {
	ops := make([]Op, 0, len(completed))
	for i := len(completed) - 1; i >= 0; i-- {
		op := completed[i]
		ops = append(ops, Op{
			SrcID:   op.SrcID,
			Kind:    op.Kind,
			Src:     op.Dst,
			Dst:     op.Src,
			SrcSize: op.SrcSize,
		})
	}
	rb := &Plan{
		TMDBID:      p.TMDBID,
		SeriesTitle: p.SeriesTitle,
		Year:        p.Year,
		SourceDir:   p.OutputRoot,
		OutputRoot:  p.SourceDir,
		Ops:         ops,
	}
	rb.Fingerprint = FingerprintOps(ops)
	return rb
}

// disambiguateSubtitleDst inserts a numeric counter before the extension
// when the destination is already claimed within this plan, so a second
// subtitle with the same variant and extension lands at "….chs.1.ass".
// Video destinations never disambiguate; those collisions stay hard errors.
func disambiguateSubtitleDst(dst string, used map[string]int) string {
	if _, taken := used[dst]; !taken {
		return dst
	}
	ext := filepath.Ext(dst)
	stem := strings.TrimSuffix(dst, ext)
	for counter := 1; ; counter++ {
		candidate := fmt.Sprintf("%s.%d%s", stem, counter, ext)
		if _, taken := used[candidate]; !taken {
			return candidate
		}
	}
}

func sourceSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%s is not a regular file", path)
	}
	return info.Size(), nil
}

func isWithin(root, path string) (bool, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false, err
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)), nil
}

func planErr(message string, err error) error {
	return services.Wrap(services.ErrPlan, "plan", "build", message, err)
}

func wrapBuild(err error) error {
	var bErr *BuildError
	if errors.As(err, &bErr) {
		return services.Wrap(services.ErrPlan, "plan", "build", "", err)
	}
	return err
}
