package release

// schemaVersion is bumped whenever State's on-disk shape changes in a way
// that needs a migration step (§4.9).
const schemaVersion = 2

// State is the persisted release state record (§3), written to
// release.json after every non-transient state change. IsRepairing has
// already been migrated to its current shape here: empty string means "not
// repairing," a non-empty string is the repository version active when the
// repair started (§4.9's "isRepairing: true boolean replaced with the
// repository-version string at time of repair start").
type State struct {
	GameUID     string `json:"gameUid"`
	ReleaseName string `json:"releaseName"`

	Location           string   `json:"location"`
	Version            string   `json:"version,omitempty"`
	RepositoryVersion  string   `json:"repositoryVersion,omitempty"`
	InstalledFragments []string `json:"installedFragments"`

	IsInstalling bool   `json:"isInstalling"`
	IsUpdating   bool   `json:"isUpdating"`
	IsRepairing  string `json:"isRepairing,omitempty"`
	IsMoving     bool   `json:"isMoving"`

	UpdateDownloadedSize     int64 `json:"updateDownloadedSize"`
	UpdateDownloadedSizeDate int64 `json:"updateDownloadedSizeDate"`
	UpdatePausedByUser       bool  `json:"updatePausedByUser"`

	IsDirty bool `json:"isDirty"`

	// OpenedByExternalProcess is advisory only (§9 Open Questions): it
	// never gates behavior, it just gets surfaced to the renderer so a
	// user can be told why a delete/move failed.
	OpenedByExternalProcess bool `json:"openedByExternalProcess,omitempty"`

	SchemaVersion int `json:"schemaVersion"`
}

// resetLocationNeutral applies §3's invariant: "If location is unset,
// version, installedFragments, and all is{Installing,Updating,Repairing}
// flags are reset to their neutral values."
func (s *State) resetLocationNeutral() {
	s.Location = ""
	s.Version = ""
	s.InstalledFragments = nil
	s.IsInstalling = false
	s.IsUpdating = false
	s.IsRepairing = ""
}

// LicenseEntry is one record in the secondary licenses.json file (§4.9).
type LicenseEntry struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// RecoveryAction is setup()'s crash-recovery decision (§4.9).
type RecoveryAction int

const (
	RecoveryNone RecoveryAction = iota
	RecoveryRepair
	RecoveryUpdate
	RecoveryMoveResume
)

func (a RecoveryAction) String() string {
	switch a {
	case RecoveryRepair:
		return "repair"
	case RecoveryUpdate:
		return "update"
	case RecoveryMoveResume:
		return "move-resume"
	default:
		return "none"
	}
}
