package domain

// Uploader is the channel or account a video was published by.
type Uploader struct {
	DocumentID string `json:"_id,omitempty"`
	Extractor  string `json:"extractor"`
	ID         string `json:"id"`
	Name       string `json:"name"`

	Tags       FrequencyTable `json:"tags"`
	Categories FrequencyTable `json:"categories"`
	Hashtags   FrequencyTable `json:"hashtags"`
}

// Ref returns the reduced projection embedded in video responses.
func (u *Uploader) Ref() *UploaderRef {
	return &UploaderRef{
		DocumentID: u.DocumentID,
		Extractor:  u.Extractor,
		ID:         u.ID,
		Name:       u.Name,
	}
}

// Table returns the frequency table of the given kind.
func (u *Uploader) Table(kind LabelKind) FrequencyTable {
	switch kind {
	case LabelTags:
		return u.Tags
	case LabelCategories:
		return u.Categories
	case LabelHashtags:
		return u.Hashtags
	}
	return nil
}

// UploaderRef is the reduced uploader projection (extractor, id, name).
type UploaderRef struct {
	DocumentID string `json:"_id,omitempty"`
	Extractor  string `json:"extractor"`
	ID         string `json:"id"`
	Name       string `json:"name"`
}
