package classify

import "strings"

// ClassifyPath applies only the naming-convention fallback to a walker
// path. It never errors and has no side effects.
func ClassifyPath(path string, idx *Index, rules *Rules) Classification {
	if rules == nil {
		rules = DefaultRules()
	}
	if idx == nil {
		idx = NewIndex(nil, nil)
	}
	return classifyByPath(dirSegments(path), idx, rules)
}

// classifyByPath scans directory segments root to leaf. Deeper matches
// replace shallower ones. A resolved case always supplies the client.
func classifyByPath(dirs []string, idx *Index, rules *Rules) Classification {
	var out Classification

	for _, seg := range dirs {
		if rules.isClientFolder(seg) {
			out.ClientFolderName = seg
			if id := rules.identityOf(seg); id != "" {
				if c, ok := idx.ClientsByIdentity[id]; ok {
					out.ClientID = c.ID
				}
			}
		}

		if number := rules.caseNumberOf(seg); number != "" {
			out.CaseFolderName = seg
			if c, ok := idx.CasesByNumber[number]; ok {
				out.CaseID = c.ID
				out.ClientID = c.ClientID
			}
		}
	}

	if out.ClientID != "" || out.CaseID != "" {
		out.Method = MethodPathPattern
	} else {
		out.Method = MethodNone
	}
	return out
}

func (r *Rules) isClientFolder(seg string) bool {
	if !strings.HasPrefix(seg, r.prefix) {
		return false
	}
	for _, m := range r.markers {
		if strings.Contains(seg, m) {
			return true
		}
	}
	return false
}

func (r *Rules) caseNumberOf(seg string) string {
	m := r.caseRe.FindStringSubmatch(seg)
	if m == nil {
		return ""
	}
	return m[1]
}

func (r *Rules) identityOf(seg string) string {
	if r.identityRe == nil {
		return ""
	}
	m := r.identityRe.FindStringSubmatch(seg)
	if m == nil {
		return ""
	}
	return m[1]
}
