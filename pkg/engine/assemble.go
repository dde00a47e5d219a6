package engine

import "time"

// EmptyResultPolicy decides what a connector does with zero records. This is
// per connector, not a universal rule: some platforms need an empty artifact
// to positively signal "checked, nothing found", others must not create one.
type EmptyResultPolicy string

const (
	// EmptyWriteSignal writes an empty artifact at the computed path.
	EmptyWriteSignal EmptyResultPolicy = "signal"
	// EmptySuppress skips the sink write entirely; the result reports a
	// null path.
	EmptySuppress EmptyResultPolicy = "suppress"
)

// DatasetMetadata is the envelope describing one assembled dataset.
type DatasetMetadata struct {
	Source       string    `json:"source"`
	ItemType     string    `json:"item_type,omitempty"`
	PagesFetched int       `json:"pages_fetched"`
	PageSize     int       `json:"page_size"`
	Truncated    bool      `json:"truncated"`
	FetchedAt    time.Time `json:"fetched_at"`
}

// Dataset is the final ordered record sequence plus its metadata, as handed
// to the sink encoder. Page order and within-page order are preserved.
type Dataset struct {
	Records    []Record        `json:"records"`
	TotalCount int             `json:"total_count"`
	Metadata   DatasetMetadata `json:"metadata"`
}

// ResultAssembler builds the final dataset from a completed drive.
type ResultAssembler struct {
	Source   string
	ItemType string
	PageSize int
	Now      func() time.Time
}

// Assemble wraps the drive outcome in the dataset envelope.
func (a *ResultAssembler) Assemble(drive *DriveResult) *Dataset {
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	return &Dataset{
		Records:    drive.Records,
		TotalCount: len(drive.Records),
		Metadata: DatasetMetadata{
			Source:       a.Source,
			ItemType:     a.ItemType,
			PagesFetched: drive.PagesFetched,
			PageSize:     a.PageSize,
			Truncated:    drive.Truncated,
			FetchedAt:    now().UTC(),
		},
	}
}
