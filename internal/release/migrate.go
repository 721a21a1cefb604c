package release

import "encoding/json"

// legacyState is the pre-schemaVersion-2 on-disk shape: gameName instead of
// gameUid, and isRepairing as a plain boolean (§4.9 migration hooks).
type legacyState struct {
	GameName    string `json:"gameName"`
	GameUID     string `json:"gameUid"`
	ReleaseName string `json:"releaseName"`

	Location           string   `json:"location"`
	Version            string   `json:"version,omitempty"`
	RepositoryVersion  string   `json:"repositoryVersion,omitempty"`
	InstalledFragments []string `json:"installedFragments"`

	IsInstalling bool `json:"isInstalling"`
	IsUpdating   bool `json:"isUpdating"`
	IsRepairing  bool `json:"isRepairing"`
	IsMoving     bool `json:"isMoving"`

	UpdateDownloadedSize     int64 `json:"updateDownloadedSize"`
	UpdateDownloadedSizeDate int64 `json:"updateDownloadedSizeDate"`
	UpdatePausedByUser       bool  `json:"updatePausedByUser"`

	IsDirty bool `json:"isDirty"`

	SchemaVersion int `json:"schemaVersion"`
}

// decodeState unmarshals raw release.json bytes, migrating forward from any
// earlier schema version it recognizes. gameNameToUID resolves the legacy
// gameName key; a release whose gameName isn't in the table keeps whatever
// gameUid (possibly empty) was already on disk.
func decodeState(raw []byte, gameNameToUID map[string]string) (*State, error) {
	var probe struct {
		SchemaVersion int `json:"schemaVersion"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, err
	}

	if probe.SchemaVersion >= schemaVersion {
		var s State
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return &s, nil
	}

	var legacy legacyState
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return nil, err
	}
	return migrateFromLegacy(&legacy, gameNameToUID), nil
}

func migrateFromLegacy(legacy *legacyState, gameNameToUID map[string]string) *State {
	gameUID := legacy.GameUID
	if gameUID == "" && legacy.GameName != "" {
		if uid, ok := gameNameToUID[legacy.GameName]; ok {
			gameUID = uid
		}
	}

	isRepairing := ""
	if legacy.IsRepairing {
		isRepairing = legacy.RepositoryVersion
	}

	return &State{
		GameUID:                  gameUID,
		ReleaseName:              legacy.ReleaseName,
		Location:                 legacy.Location,
		Version:                  legacy.Version,
		RepositoryVersion:        legacy.RepositoryVersion,
		InstalledFragments:       legacy.InstalledFragments,
		IsInstalling:             legacy.IsInstalling,
		IsUpdating:               legacy.IsUpdating,
		IsRepairing:              isRepairing,
		IsMoving:                 legacy.IsMoving,
		UpdateDownloadedSize:     legacy.UpdateDownloadedSize,
		UpdateDownloadedSizeDate: legacy.UpdateDownloadedSizeDate,
		UpdatePausedByUser:       legacy.UpdatePausedByUser,
		IsDirty:                  legacy.IsDirty,
		SchemaVersion:            schemaVersion,

	}
}
