// Package boundary defines the thin interfaces for every collaborator
// named out of scope in §1 - desktop window management, the renderer IPC
// channel, the system tray, auto-launch/self-update of the host
// application, crash reporting, account APIs, KPI/analytics, the news
// feed, the credentials vault, and shortcut installation - plus minimal
// default implementations so the engine runs standalone without a real
// host application wired in.
//
// Real implementations exist only where a library in the dependency
// stack genuinely has something to do: CrashReporter (sentry-go) and
// RendererChannel (gorilla/websocket via the status server in server.go).
// Everything else is a no-op stub (a few of which log at debug level), grounded on the teacher's treatment
// of optional integrations (e.g. ipfs_proxy) as a reloadable no-op when
// disabled.
package boundary

// WindowManager represents the desktop window the host application owns;
// the engine never creates or manipulates windows itself.
type WindowManager interface {
	Show()
	Hide()
	Focus()
}

// Tray represents the host application's system tray icon/menu.
type Tray interface {
	SetTooltip(text string)
	SetBadge(count int)
}

// SelfUpdater represents the host application's own update mechanism,
// distinct from the release updates this engine drives.
type SelfUpdater interface {
	CheckForUpdate() (available bool, version string, err error)
	ApplyUpdate() error
}

// AccountClient represents the authenticated-user/account API.
type AccountClient interface {
	CurrentUserID() (string, bool)
}

// KPIEmitter represents the analytics/KPI event sink.
type KPIEmitter interface {
	Emit(event string, props map[string]interface{})
}

// NewsFeed represents the news/promotional feed rendered by the host UI.
type NewsFeed interface {
	FetchLatest() ([]byte, error)
}

// CredentialsVault represents the host's secure credential storage.
type CredentialsVault interface {
	Get(key string) (string, bool)
	Set(key, value string) error
}

// ShortcutInstaller represents OS-level shortcut/launcher creation.
type ShortcutInstaller interface {
	Install(gameUID, location string) error
	Remove(gameUID string) error
}

// CrashReporter reports internal invariant breaches (§7 "Internal" error
// taxonomy entry) and unexpected terminal errors to a crash-reporting
// backend.
type CrashReporter interface {
	Report(err error, tags map[string]string)
}

// RendererChannel pushes progress/lifecycle events out to whatever
// renderer UI the host application owns, mirroring the Sequencer's
// internal emitter.Emitter bus but addressed to an external consumer.
type RendererChannel interface {
	Broadcast(event string, payload interface{})
}
