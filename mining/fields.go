package mining

// Strategy names how a field is extracted from its cell.
type Strategy string

const (
	// PlainText scans the cell's interactive and leaf descendants and keeps
	// the first generated locator that resolves to a visible match.
	PlainText Strategy = "plain-text"

	// AnchorText generates the anchor locator, then a nested text-element
	// locator, and joins them with a descendant combinator.
	AnchorText Strategy = "anchor-text"

	// AlternateState distinguishes an action element (access-gated value,
	// request link) from a visible value matching the field's pattern.
	AlternateState Strategy = "alternate-state"

	// WellKnown emits a fixed selector when a profile-style anchor exists.
	WellKnown Strategy = "well-known"
)

// FieldDescriptor is a static description of one semantic field: where it
// sits in a data row and how it is extracted.
type FieldDescriptor struct {
	Field    string   `json:"field"`
	Cell     int      `json:"cell"` // zero-based index among the row's cells
	Strategy Strategy `json:"strategy"`
}

// LinkedInLocator is the well-known attribute-substring selector for
// profile links.
const LinkedInLocator = `a[href*="linkedin.com/in"]`

// Fields is the column layout of a data row. Cell 0 is the selection
// checkbox; unlisted cells carry nothing worth mining.
var Fields = []FieldDescriptor{
	{Field: "name", Cell: 1, Strategy: AnchorText},
	{Field: "jobTitle", Cell: 2, Strategy: PlainText},
	{Field: "companyName", Cell: 3, Strategy: PlainText},
	{Field: "email", Cell: 4, Strategy: AlternateState},
	{Field: "phoneRequestLink", Cell: 5, Strategy: AlternateState},
	{Field: "linkedIn", Cell: 7, Strategy: WellKnown},
	{Field: "location", Cell: 9, Strategy: PlainText},
	{Field: "employeeCount", Cell: 10, Strategy: PlainText},
	{Field: "nicheTags", Cell: 12, Strategy: PlainText},
}

// FieldByName looks up a descriptor in Fields.
func FieldByName(name string) (FieldDescriptor, bool) {
	for _, f := range Fields {
		if f.Field == name {
			return f, true
		}
	}
	return FieldDescriptor{}, false
}
