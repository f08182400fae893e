package classify

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultUnclassifiedFolderName is the inbox folder provisioned at the
// root of every tenant drive.
const DefaultUnclassifiedFolderName = "Documents non classés"

const (
	defaultClientFolderPrefix = "["
	defaultCaseFolderPattern  = `^Dossier\s+([0-9-]+)`
	defaultIdentityPattern    = `CIN\s*:?\s*([A-Za-z0-9]+)`
)

var defaultIdentityMarkers = []string{"CIN", "Société"}

// Rules holds the folder naming conventions the classifier relies on.
// The zero value is not usable; start from DefaultRules or LoadRules.
type Rules struct {
	// UnclassifiedFolderName marks a directory whose contents always need
	// manual classification.
	UnclassifiedFolderName string `yaml:"unclassified_folder_name"`

	// A client folder segment starts with ClientFolderPrefix and contains
	// at least one of ClientIdentityMarkers.
	ClientFolderPrefix    string   `yaml:"client_folder_prefix"`
	ClientIdentityMarkers []string `yaml:"client_identity_markers"`

	// CaseFolderPattern must have exactly one capture group: the case number.
	CaseFolderPattern string `yaml:"case_folder_pattern"`

	// IdentityPattern extracts an identity number from a client folder
	// name. One capture group. Optional.
	IdentityPattern string `yaml:"identity_pattern"`

	unclassified string
	prefix       string
	markers      []string
	caseRe       *regexp.Regexp
	identityRe   *regexp.Regexp
}

// DefaultRules returns the conventions used when folders are provisioned
// by the application.
func DefaultRules() *Rules {
	r := &Rules{
		UnclassifiedFolderName: DefaultUnclassifiedFolderName,
		ClientFolderPrefix:     defaultClientFolderPrefix,
		ClientIdentityMarkers:  append([]string(nil), defaultIdentityMarkers...),
		CaseFolderPattern:      defaultCaseFolderPattern,
		IdentityPattern:        defaultIdentityPattern,
	}
	if err := r.compile(); err != nil {
		panic(fmt.Sprintf("default classify rules: %v", err))
	}
	return r
}

// LoadRules reads YAML overrides from path on top of DefaultRules. An
// empty path returns the defaults. unclassifiedName, when non-empty,
// overrides both the defaults and the file.
func LoadRules(path, unclassifiedName string) (*Rules, error) {
	r := DefaultRules()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading classify rules: %w", err)
		}
		if err := yaml.Unmarshal(data, r); err != nil {
			return nil, fmt.Errorf("parsing classify rules %s: %w", path, err)
		}
	}

	if unclassifiedName != "" {
		r.UnclassifiedFolderName = unclassifiedName
	}

	if err := r.compile(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Rules) compile() error {
	if strings.TrimSpace(r.UnclassifiedFolderName) == "" {
		return fmt.Errorf("classify rules: unclassified_folder_name must not be empty")
	}
	if len(r.ClientIdentityMarkers) == 0 {
		return fmt.Errorf("classify rules: client_identity_markers must not be empty")
	}

	caseRe, err := regexp.Compile(r.CaseFolderPattern)
	if err != nil {
		return fmt.Errorf("classify rules: case_folder_pattern: %w", err)
	}
	if caseRe.NumSubexp() != 1 {
		return fmt.Errorf("classify rules: case_folder_pattern needs exactly one capture group, has %d", caseRe.NumSubexp())
	}

	var identityRe *regexp.Regexp
	if r.IdentityPattern != "" {
		identityRe, err = regexp.Compile(r.IdentityPattern)
		if err != nil {
			return fmt.Errorf("classify rules: identity_pattern: %w", err)
		}
		if identityRe.NumSubexp() != 1 {
			return fmt.Errorf("classify rules: identity_pattern needs exactly one capture group, has %d", identityRe.NumSubexp())
		}
	}

	r.unclassified = normalize(r.UnclassifiedFolderName)
	r.prefix = normalize(r.ClientFolderPrefix)
	r.markers = make([]string, len(r.ClientIdentityMarkers))
	for i, m := range r.ClientIdentityMarkers {
		r.markers[i] = normalize(m)
	}
	r.caseRe = caseRe
	r.identityRe = identityRe
	return nil
}
