package domain

import (
	"time"
)

// VideoKey identifies a video by the extractor that produced it and the
// site-native identifier.
type VideoKey struct {
	Extractor string `json:"extractor"`
	ID        string `json:"id"`
}

// String returns the key in extractor/id form.
func (k VideoKey) String() string {
	return k.Extractor + "/" + k.ID
}

// Counter names one of the engagement counters carried by a video.
type Counter int

const (
	CounterViews Counter = iota
	CounterLikes
	CounterDislikes
)

// Counters lists every engagement counter in display order.
var Counters = []Counter{CounterViews, CounterLikes, CounterDislikes}

// String returns the counter name.
func (c Counter) String() string {
	switch c {
	case CounterViews:
		return "views"
	case CounterLikes:
		return "likes"
	case CounterDislikes:
		return "dislikes"
	}
	return "unknown"
}

// Video is a downloaded video in the catalog.
type Video struct {
	// DocumentID is the storage identifier assigned by the catalog store.
	DocumentID   string    `json:"_id,omitempty"`
	Extractor    string    `json:"extractor"`
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Uploader     string    `json:"uploader"`
	UploadDate   time.Time `json:"uploadDate"`
	ViewCount    int64     `json:"viewCount"`
	LikeCount    int64     `json:"likeCount"`
	DislikeCount int64     `json:"dislikeCount"`
	Tags         []string  `json:"tags"`
	Categories   []string  `json:"categories"`
	Hashtags     []string  `json:"hashtags"`

	// UploaderDocumentID references the owning uploader. It is a back
	// reference only; removing a video never touches the uploader.
	UploaderDocumentID string `json:"-"`

	// UploaderDocument is the resolved uploader projection, when loaded.
	UploaderDocument *UploaderRef `json:"uploaderDocument,omitempty"`
}

// Key returns the (extractor, id) identity of the video.
func (v *Video) Key() VideoKey {
	return VideoKey{Extractor: v.Extractor, ID: v.ID}
}

// Count returns the value of the given counter.
func (v *Video) Count(c Counter) int64 {
	switch c {
	case CounterViews:
		return v.ViewCount
	case CounterLikes:
		return v.LikeCount
	case CounterDislikes:
		return v.DislikeCount
	}
	return 0
}

// Labels returns the label set of the given kind.
func (v *Video) Labels(kind LabelKind) []string {
	switch kind {
	case LabelTags:
		return v.Tags
	case LabelCategories:
		return v.Categories
	case LabelHashtags:
		return v.Hashtags
	}
	return nil
}

// Clone returns a deep copy of the video.
func (v *Video) Clone() *Video {
	if v == nil {
		return nil
	}
	c := *v
	c.Tags = cloneStrings(v.Tags)
	c.Categories = cloneStrings(v.Categories)
	c.Hashtags = cloneStrings(v.Hashtags)
	if v.UploaderDocument != nil {
		u := *v.UploaderDocument
		c.UploaderDocument = &u
	}
	return &c
}

// cloneStrings copies s, keeping nil and empty distinct.
func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

// VideoFilter is an exact-match constraint narrowing searches and random
// picks. Empty fields do not constrain.
type VideoFilter struct {
	Extractor string
	Uploader  string
}

// VideoSort selects the ordering of search results.
type VideoSort string

const (
	SortNewest   VideoSort = "newest"
	SortOldest   VideoSort = "oldest"
	SortViews    VideoSort = "views"
	SortLikes    VideoSort = "likes"
	SortDislikes VideoSort = "dislikes"
	SortTitle    VideoSort = "title"
)

// Normalize returns s, or SortNewest when s is not a known ordering.
func (s VideoSort) Normalize() VideoSort {
	switch s {
	case SortNewest, SortOldest, SortViews, SortLikes, SortDislikes, SortTitle:
		return s
	}
	return SortNewest
}

// VideoQuery holds caller-supplied search constraints layered on top of a
// VideoFilter.
type VideoQuery struct {
	// Text matches a case-insensitive substring of the title.
	Text     string
	Tag      string
	Category string
	Hashtag  string
	Sort     VideoSort
}
