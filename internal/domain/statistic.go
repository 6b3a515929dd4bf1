package domain

// DefaultAccessKey names the catalog-wide statistic set.
const DefaultAccessKey = "videos"

// LabelKind names one of the three label families tracked per video.
type LabelKind string

const (
	LabelTags       LabelKind = "tags"
	LabelCategories LabelKind = "categories"
	LabelHashtags   LabelKind = "hashtags"
)

// LabelKinds lists every label family.
var LabelKinds = []LabelKind{LabelTags, LabelCategories, LabelHashtags}

// LabelCount is a single frequency table row.
type LabelCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// FrequencyTable is a list of label counts ranked by descending count,
// ties kept in first-seen order.
type FrequencyTable []LabelCount

// Clone returns a copy of the table. A nil table clones to an empty one.
func (t FrequencyTable) Clone() FrequencyTable {
	out := make(FrequencyTable, len(t))
	copy(out, t)
	return out
}

// Statistic is the aggregate record kept per access key.
type Statistic struct {
	AccessKey string `json:"-"`

	RecordViewCountVideo    *Video `json:"recordViewCountVideo"`
	RecordLikeCountVideo    *Video `json:"recordLikeCountVideo"`
	RecordDislikeCountVideo *Video `json:"recordDislikeCountVideo"`
	OldestVideo             *Video `json:"oldestVideo"`

	Tags       FrequencyTable `json:"tags"`
	Categories FrequencyTable `json:"categories"`
	Hashtags   FrequencyTable `json:"hashtags"`

	// firstSeen holds, per label family, the labels in the order they were
	// first counted. Ranked tables lose that order among equal counts.
	firstSeen map[LabelKind][]string
}

// NewStatistic returns an empty statistic for accessKey.
func NewStatistic(accessKey string) *Statistic {
	return &Statistic{
		AccessKey:  accessKey,
		Tags:       FrequencyTable{},
		Categories: FrequencyTable{},
		Hashtags:   FrequencyTable{},
	}
}

// Leader returns the leader reference for the counter.
func (s *Statistic) Leader(c Counter) *Video {
	switch c {
	case CounterViews:
		return s.RecordViewCountVideo
	case CounterLikes:
		return s.RecordLikeCountVideo
	case CounterDislikes:
		return s.RecordDislikeCountVideo
	}
	return nil
}

// SetLeader replaces the leader reference for the counter.
func (s *Statistic) SetLeader(c Counter, v *Video) {
	switch c {
	case CounterViews:
		s.RecordViewCountVideo = v
	case CounterLikes:
		s.RecordLikeCountVideo = v
	case CounterDislikes:
		s.RecordDislikeCountVideo = v
	}
}

// Table returns the frequency table of the given kind.
func (s *Statistic) Table(kind LabelKind) FrequencyTable {
	switch kind {
	case LabelTags:
		return s.Tags
	case LabelCategories:
		return s.Categories
	case LabelHashtags:
		return s.Hashtags
	}
	return nil
}

// SetTable replaces the frequency table of the given kind.
func (s *Statistic) SetTable(kind LabelKind, t FrequencyTable) {
	switch kind {
	case LabelTags:
		s.Tags = t
	case LabelCategories:
		s.Categories = t
	case LabelHashtags:
		s.Hashtags = t
	}
}

// FirstSeen returns the labels of kind in the order they were first
// counted, or nil when the store did not report it.
func (s *Statistic) FirstSeen(kind LabelKind) []string {
	return s.firstSeen[kind]
}

// SetFirstSeen records the first-seen order of the labels of kind.
func (s *Statistic) SetFirstSeen(kind LabelKind, labels []string) {
	if s.firstSeen == nil {
		s.firstSeen = make(map[LabelKind][]string, len(LabelKinds))
	}
	s.firstSeen[kind] = labels
}

// Clone returns a deep copy of the statistic.
func (s *Statistic) Clone() *Statistic {
	c := &Statistic{
		AccessKey:   s.AccessKey,
		OldestVideo: s.OldestVideo.Clone(),
	}
	for _, counter := range Counters {
		c.SetLeader(counter, s.Leader(counter).Clone())
	}
	for _, kind := range LabelKinds {
		c.SetTable(kind, s.Table(kind).Clone())
		if order, ok := s.firstSeen[kind]; ok {
			c.SetFirstSeen(kind, append([]string(nil), order...))
		}
	}
	return c
}
