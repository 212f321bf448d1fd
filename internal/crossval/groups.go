package crossval

import (
	"sort"

	"github.com/todmy/fiscal-crossval/pkg/models"
)

// Member is a line item placed in a group, with the document it came from.
type Member struct {
	Doc  models.DocumentRef
	Item models.LineItem
}

// Group holds the line items that share a group key, in input order.
type Group struct {
	Key     string
	Members []Member
}

// DocumentCount returns the number of distinct source documents in the group.
func (g Group) DocumentCount() int {
	seen := make(map[string]struct{}, len(g.Members))
	for _, m := range g.Members {
		seen[m.Doc.Name] = struct{}{}
	}
	return len(seen)
}

// Reference returns the member every other member is compared against:
// the first one after a stable sort by document name.
func (g Group) Reference() (Member, []Member) {
	members := make([]Member, len(g.Members))
	copy(members, g.Members)
	sort.SliceStable(members, func(i, j int) bool {
		return members[i].Doc.Name < members[j].Doc.Name
	})
	return members[0], members[1:]
}

// Exclusion records why a document did not take part in a run.
type Exclusion struct {
	Document string
	Reason   string
}

// ValidDocuments keeps documents that extracted successfully and carry rows.
func ValidDocuments(docs []models.DocumentResult) ([]models.DocumentResult, []Exclusion) {
	valid := make([]models.DocumentResult, 0, len(docs))
	var excluded []Exclusion

	for _, doc := range docs {
		switch {
		case doc.Failed():
			excluded = append(excluded, Exclusion{Document: doc.SourceName(), Reason: "extraction status is error"})
		case len(doc.Data) == 0:
			excluded = append(excluded, Exclusion{Document: doc.SourceName(), Reason: "no line items"})
		default:
			valid = append(valid, doc)
		}
	}

	return valid, excluded
}

// BuildGroups partitions the line items of docs by group key.
// Groups come out in the order their key was first seen.
func BuildGroups(docs []models.DocumentResult) []Group {
	index := make(map[string]int)
	var groups []Group

	for _, doc := range docs {
		ref := doc.Ref()
		for _, item := range doc.Data {
			key := GroupKey(BuildContext(item))
			i, ok := index[key]
			if !ok {
				i = len(groups)
				index[key] = i
				groups = append(groups, Group{Key: key})
			}
			groups[i].Members = append(groups[i].Members, Member{Doc: ref, Item: item})
		}
	}

	return groups
}

// ComparableGroups splits groups into those spanning at least two documents
// and those that do not.
func ComparableGroups(groups []Group) (kept, dropped []Group) {
	for _, g := range groups {
		if g.DocumentCount() < 2 {
			dropped = append(dropped, g)
			continue
		}
		kept = append(kept, g)
	}
	return kept, dropped
}
