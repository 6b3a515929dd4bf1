// Package catalog holds the storage-independent rules of the video catalog:
// leader and frequency aggregation, presentation trimming, page parsing and
// random offset selection. Store backends implement the same rules with
// atomic storage operations; this package is the reference they are tested
// against.
package catalog

import (
	"sort"

	"github.com/iconidentify/vidshelf/internal/domain"
)

// Tally incrementally aggregates videos into a Statistic.
//
// Leaders are replaced only by a strictly greater counter (strictly earlier
// upload date for the oldest video), so the first video to reach a value
// keeps it. Labels of a video are counted once per video key; recording the
// same video again only re-evaluates the leaders.
type Tally struct {
	accessKey string
	leaders   map[domain.Counter]*domain.Video
	oldest    *domain.Video
	tables    map[domain.LabelKind]*labelTable
	recorded  map[domain.VideoKey]struct{}
}

// labelTable keeps rows in first-seen order with an index by label.
type labelTable struct {
	rows  []domain.LabelCount
	index map[string]int
}

func newLabelTable() *labelTable {
	return &labelTable{index: make(map[string]int)}
}

func (t *labelTable) add(label string) {
	if i, ok := t.index[label]; ok {
		t.rows[i].Count++
		return
	}
	t.index[label] = len(t.rows)
	t.rows = append(t.rows, domain.LabelCount{Name: label, Count: 1})
}

// ranked returns the rows sorted by descending count, ties in first-seen
// order.
func (t *labelTable) ranked() domain.FrequencyTable {
	return Rank(t.rows)
}

func (t *labelTable) names() []string {
	out := make([]string, len(t.rows))
	for i, row := range t.rows {
		out[i] = row.Name
	}
	return out
}

// NewTally creates an empty tally for accessKey.
func NewTally(accessKey string) *Tally {
	t := &Tally{
		accessKey: accessKey,
		leaders:   make(map[domain.Counter]*domain.Video),
		tables:    make(map[domain.LabelKind]*labelTable),
		recorded:  make(map[domain.VideoKey]struct{}),
	}
	for _, kind := range domain.LabelKinds {
		t.tables[kind] = newLabelTable()
	}
	return t
}

// TallyFrom seeds a tally with an existing statistic. The statistic's
// tables are taken as already counted; no recorded video keys are known, so
// callers replaying a collection should start from NewTally instead.
func TallyFrom(stat *domain.Statistic) *Tally {
	t := NewTally(stat.AccessKey)
	for _, c := range domain.Counters {
		if v := stat.Leader(c); v != nil {
			t.leaders[c] = v.Clone()
		}
	}
	t.oldest = stat.OldestVideo.Clone()
	for _, kind := range domain.LabelKinds {
		table := t.tables[kind]
		for _, row := range FirstSeenRows(stat, kind) {
			table.index[row.Name] = len(table.rows)
			table.rows = append(table.rows, row)
		}
	}
	return t
}

// FirstSeenRows returns the rows of one table in first-seen order. Labels
// missing from the statistic's first-seen list follow in ranked order.
func FirstSeenRows(stat *domain.Statistic, kind domain.LabelKind) []domain.LabelCount {
	table := stat.Table(kind)
	counts := make(map[string]int64, len(table))
	for _, row := range table {
		counts[row.Name] = row.Count
	}

	rows := make([]domain.LabelCount, 0, len(table))
	for _, name := range stat.FirstSeen(kind) {
		count, ok := counts[name]
		if !ok {
			continue
		}
		delete(counts, name)
		rows = append(rows, domain.LabelCount{Name: name, Count: count})
	}
	for _, row := range table {
		if _, ok := counts[row.Name]; ok {
			rows = append(rows, row)
		}
	}
	return rows
}

// Record folds v into the tally. It reports whether v's labels were
// counted, which happens only the first time a video key is seen.
func (t *Tally) Record(v *domain.Video) bool {
	for _, c := range domain.Counters {
		if ReplacesLeader(t.leaders[c], v, c) {
			t.leaders[c] = v.Clone()
		}
	}
	if ReplacesOldest(t.oldest, v) {
		t.oldest = v.Clone()
	}

	key := v.Key()
	if _, seen := t.recorded[key]; seen {
		return false
	}
	t.recorded[key] = struct{}{}

	for _, kind := range domain.LabelKinds {
		for _, label := range Distinct(v.Labels(kind)) {
			t.tables[kind].add(label)
		}
	}
	return true
}

// Statistic returns a snapshot of the aggregate.
func (t *Tally) Statistic() *domain.Statistic {
	stat := domain.NewStatistic(t.accessKey)
	for _, c := range domain.Counters {
		stat.SetLeader(c, t.leaders[c].Clone())
	}
	stat.OldestVideo = t.oldest.Clone()
	for _, kind := range domain.LabelKinds {
		table := t.tables[kind]
		stat.SetTable(kind, table.ranked())
		stat.SetFirstSeen(kind, table.names())
	}
	return stat
}

// Fold aggregates videos into a fresh statistic for accessKey.
func Fold(accessKey string, videos []*domain.Video) *domain.Statistic {
	t := NewTally(accessKey)
	for _, v := range videos {
		t.Record(v)
	}
	return t.Statistic()
}

// Update returns a copy of stat with v folded in. v is treated as a video
// not yet counted in stat; use a Tally to deduplicate repeated records.
// Update(Fold(xs), v) equals Fold(append(xs, v)) when stat carries its
// first-seen order, as Fold and the stores report it.
func Update(stat *domain.Statistic, v *domain.Video) *domain.Statistic {
	t := TallyFrom(stat)
	t.Record(v)
	return t.Statistic()
}

// ReplacesLeader reports whether v takes over the leader slot for c.
func ReplacesLeader(current, v *domain.Video, c domain.Counter) bool {
	return current == nil || v.Count(c) > current.Count(c)
}

// ReplacesOldest reports whether v is strictly older than current.
func ReplacesOldest(current, v *domain.Video) bool {
	return current == nil || v.UploadDate.Before(current.UploadDate)
}

// Rank returns rows sorted by descending count. Rows are expected in
// first-seen order; equal counts keep that order.
func Rank(rows []domain.LabelCount) domain.FrequencyTable {
	out := make(domain.FrequencyTable, len(rows))
	copy(out, rows)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count > out[j].Count
	})
	return out
}

// Distinct returns labels with duplicates and empty strings removed,
// keeping the first occurrence order.
func Distinct(labels []string) []string {
	if len(labels) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(labels))
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if l == "" {
			continue
		}
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}
