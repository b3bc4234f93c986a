package scanner

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/fenilsonani/reclaim/internal/config"
	"github.com/fenilsonani/reclaim/pkg/utils"
	"github.com/rs/zerolog"
)

// quickHashChunk is read from each end of a file for the prefilter hash
const quickHashChunk = 1024 * 1024 // 1MB

// Signature identifies identical content
type Signature struct {
	Size int64
	Hash string // SHA-256, hex
}

// DuplicateContext is a candidate's role in its duplicate group
type DuplicateContext struct {
	Signature   Signature
	IsPrimary   bool
	PrimaryPath string
	GroupSize   int
}

// DuplicateGroup is a set of two or more candidates with equal content.
// Members are ordered primary first, then by path.
type DuplicateGroup struct {
	Signature Signature
	Primary   *Candidate
	Members   []*Candidate
}

// Superseded returns every member except the primary
func (g *DuplicateGroup) Superseded() []*Candidate {
	return g.Members[1:]
}

// DuplicateDetector groups large file candidates by size and content hash
type DuplicateDetector struct {
	minSize        int64
	maxFilesHashed int
	quickHash      func(path string, chunk int64) (string, error)
	fullHash       func(path string) (string, error)
	logger         zerolog.Logger
}

// NewDuplicateDetector creates a detector from the duplicates config
func NewDuplicateDetector(cfg config.DuplicatesConfig) (*DuplicateDetector, error) {
	minSize, err := utils.ParseSize(cfg.MinSize)
	if err != nil {
		return nil, fmt.Errorf("invalid duplicate min size: %w", err)
	}

	return &DuplicateDetector{
		minSize:        minSize,
		maxFilesHashed: cfg.MaxFilesHashed,
		quickHash:      utils.HashFileQuick,
		fullHash:       utils.HashFile,
		logger:         zerolog.Nop(),
	}, nil
}

// SetLogger sets the detector logger
func (d *DuplicateDetector) SetLogger(logger zerolog.Logger) {
	d.logger = logger.With().Str("component", "duplicates").Logger()
}

// Detect finds duplicate groups among candidates and returns the context
// of every grouped candidate keyed by path. Candidates without a key have
// no duplicate relationship. Every superseded copy gets a reason naming
// the primary.
func (d *DuplicateDetector) Detect(ctx context.Context, candidates []*Candidate) map[string]*DuplicateContext {
	contexts := make(map[string]*DuplicateContext)

	for _, group := range d.Groups(ctx, candidates) {
		for _, member := range group.Members {
			isPrimary := member == group.Primary
			contexts[member.Path] = &DuplicateContext{
				Signature:   group.Signature,
				IsPrimary:   isPrimary,
				PrimaryPath: group.Primary.Path,
				GroupSize:   len(group.Members),
			}
			if !isPrimary {
				member.AddReason(ReasonDuplicateCopy, "Duplicate of "+group.Primary.Path)
			}
		}
	}

	return contexts
}

// Groups returns the duplicate groups among candidates, largest files
// first. Only regular files at or above the minimum size are considered;
// unreadable files are treated as unique.
func (d *DuplicateDetector) Groups(ctx context.Context, candidates []*Candidate) []*DuplicateGroup {
	bySize := make(map[int64][]*Candidate)
	for _, c := range candidates {
		if c.Resource.IsDir || c.Resource.ContentType == "inode/symlink" || c.EstimatedSize < d.minSize {
			continue
		}
		bySize[c.EstimatedSize] = append(bySize[c.EstimatedSize], c)
	}

	sizes := make([]int64, 0, len(bySize))
	for size, members := range bySize {
		if len(members) > 1 {
			sizes = append(sizes, size)
		}
	}
	slices.Sort(sizes)
	slices.Reverse(sizes)

	var groups []*DuplicateGroup
	hashed := 0

	for _, size := range sizes {
		if ctx.Err() != nil {
			break
		}

		members := bySize[size]
		slices.SortFunc(members, func(a, b *Candidate) int { return cmp.Compare(a.Path, b.Path) })

		// A group too large for what is left is skipped; smaller ones may still fit
		if d.maxFilesHashed > 0 && hashed+len(members) > d.maxFilesHashed {
			d.logger.Debug().Int64("size", size).Int("members", len(members)).Int("hashed", hashed).Int("limit", d.maxFilesHashed).Msg("size group over hash budget")
			continue
		}
		hashed += len(members)

		groups = append(groups, d.groupBySize(size, members)...)
	}

	return groups
}

// groupBySize splits same-size members by quick hash, then confirms
// collisions with a full content hash
func (d *DuplicateDetector) groupBySize(size int64, members []*Candidate) []*DuplicateGroup {
	byQuick := make(map[string][]*Candidate)
	var quickOrder []string
	for _, c := range members {
		h, err := d.quickHash(c.Path, quickHashChunk)
		if err != nil {
			d.logger.Debug().Err(err).Str("path", c.Path).Msg("skipping unreadable file")
			continue
		}
		if _, ok := byQuick[h]; !ok {
			quickOrder = append(quickOrder, h)
		}
		byQuick[h] = append(byQuick[h], c)
	}

	var groups []*DuplicateGroup
	for _, quick := range quickOrder {
		collided := byQuick[quick]
		if len(collided) < 2 {
			continue
		}

		byFull := make(map[string][]*Candidate)
		var fullOrder []string
		for _, c := range collided {
			h, err := d.fullHash(c.Path)
			if err != nil {
				d.logger.Debug().Err(err).Str("path", c.Path).Msg("skipping unreadable file")
				continue
			}
			if _, ok := byFull[h]; !ok {
				fullOrder = append(fullOrder, h)
			}
			byFull[h] = append(byFull[h], c)
		}

		for _, full := range fullOrder {
			if same := byFull[full]; len(same) > 1 {
				groups = append(groups, newDuplicateGroup(Signature{Size: size, Hash: full}, same))
			}
		}
	}

	return groups
}

func newDuplicateGroup(sig Signature, members []*Candidate) *DuplicateGroup {
	ordered := slices.Clone(members)
	slices.SortFunc(ordered, comparePrimary)
	return &DuplicateGroup{
		Signature: sig,
		Primary:   ordered[0],
		Members:   ordered,
	}
}

// comparePrimary orders the most recently relevant candidate first, with
// ties broken by path
func comparePrimary(a, b *Candidate) int {
	at, bt := a.Resource.LastRelevantDate(), b.Resource.LastRelevantDate()
	if c := bt.Compare(at); c != 0 {
		return c
	}
	return cmp.Compare(a.Path, b.Path)
}
