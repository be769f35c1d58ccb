package model

// SubjectKind identifies which content domain a thread or like attaches to.
// One engine serves every kind; the kind only selects collections.
type SubjectKind string

const (
	KindPost      SubjectKind = "post"
	KindRoutine   SubjectKind = "routine"
	KindGathering SubjectKind = "gathering"
	KindTMI       SubjectKind = "tmi"
	KindProduct   SubjectKind = "product"
)

var subjectKinds = map[SubjectKind]struct {
	targetCollection string
	threadCollection string
}{
	KindPost:      {"posts", "comments"},
	KindRoutine:   {"routines", "routine_questions"},
	KindGathering: {"gatherings", "gathering_questions"},
	KindTMI:       {"tmi_projects", "tmi_questions"},
	KindProduct:   {"products", "product_questions"},
}

// IsValid reports whether k is a known subject kind.
func (k SubjectKind) IsValid() bool {
	_, ok := subjectKinds[k]
	return ok
}

// TargetCollection is the store collection holding the parent content objects.
func (k SubjectKind) TargetCollection() string {
	return subjectKinds[k].targetCollection
}

// ThreadCollection is the store collection holding thread items for the kind.
func (k SubjectKind) ThreadCollection() string {
	return subjectKinds[k].threadCollection
}

// TargetRef points at the content object a thread item hangs off.
type TargetRef struct {
	Kind SubjectKind `json:"kind"`
	ID   string      `json:"id"`
}
