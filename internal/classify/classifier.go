package classify

import (
	"slices"

	"github.com/qadhya/drivesync/internal/remote"
)

// Method names the rule that produced a Classification.
type Method string

const (
	MethodUnclassifiedFolder Method = "unclassified-folder"
	MethodCaseFolder         Method = "case-folder"
	MethodClientFolder       Method = "client-folder"
	MethodPathPattern        Method = "path-pattern"
	MethodNone               Method = "none"
)

// Classification is where a remote file belongs. Both ids are empty when
// nothing matched. The folder names are diagnostic.
type Classification struct {
	ClientID             string
	CaseID               string
	IsUnclassifiedFolder bool
	Method               Method
	ClientFolderName     string
	CaseFolderName       string
}

// NeedsClassification reports whether a human has to file the document.
func (c Classification) NeedsClassification() bool {
	return c.CaseID == ""
}

// Classify decides which client and case an entry belongs to, in order:
// the unclassified inbox, a linked case folder among the parents, a
// linked client folder among the parents, then folder naming
// conventions along the path. Within a tier parents are tried in the
// order the provider lists them and the first hit wins. Nil rules means
// DefaultRules.
func Classify(entry remote.Entry, idx *Index, rules *Rules) Classification {
	if rules == nil {
		rules = DefaultRules()
	}
	if idx == nil {
		idx = NewIndex(nil, nil)
	}

	dirs := dirSegments(entry.Path)

	if slices.Contains(dirs, rules.unclassified) {
		return Classification{IsUnclassifiedFolder: true, Method: MethodUnclassifiedFolder}
	}

	for _, parentID := range entry.ParentIDs {
		if c, ok := idx.CasesByFolder[parentID]; ok {
			return Classification{
				ClientID:       c.ClientID,
				CaseID:         c.ID,
				Method:         MethodCaseFolder,
				CaseFolderName: parentFolderName(entry, dirs, parentID),
			}
		}
	}

	for _, parentID := range entry.ParentIDs {
		if c, ok := idx.ClientsByFolder[parentID]; ok {
			return Classification{
				ClientID:         c.ID,
				Method:           MethodClientFolder,
				ClientFolderName: parentFolderName(entry, dirs, parentID),
			}
		}
	}

	return classifyByPath(dirs, idx, rules)
}

// parentFolderName returns the name of parentID when the path runs
// through it, else "". The path only names the folder the entry was
// listed from; other parents are known by id alone.
func parentFolderName(entry remote.Entry, dirs []string, parentID string) string {
	if len(dirs) == 0 {
		return ""
	}
	listedIn := entry.ListedIn
	if listedIn == "" && len(entry.ParentIDs) == 1 {
		listedIn = entry.ParentIDs[0]
	}
	if parentID != listedIn {
		return ""
	}
	return dirs[len(dirs)-1]
}
