package boundary

import "github.com/sirupsen/logrus"

// NoopWindowManager, NoopTray, NoopSelfUpdater, NoopAccountClient,
// NoopKPIEmitter, NoopNewsFeed, NoopCredentialsVault, and
// NoopShortcutInstaller satisfy their respective interfaces by doing
// nothing, for running the engine without a host application attached;
// NoopWindowManager and NoopKPIEmitter also log each call at debug level.

type NoopWindowManager struct{}

func (NoopWindowManager) Show()  { logrus.Debug("boundary: WindowManager.Show (noop)") }
func (NoopWindowManager) Hide()  { logrus.Debug("boundary: WindowManager.Hide (noop)") }
func (NoopWindowManager) Focus() { logrus.Debug("boundary: WindowManager.Focus (noop)") }

type NoopTray struct{}

func (NoopTray) SetTooltip(text string) {}
func (NoopTray) SetBadge(count int)     {}

type NoopSelfUpdater struct{}

func (NoopSelfUpdater) CheckForUpdate() (bool, string, error) { return false, "", nil }
func (NoopSelfUpdater) ApplyUpdate() error                    { return nil }

type NoopAccountClient struct{}

func (NoopAccountClient) CurrentUserID() (string, bool) { return "", false }

type NoopKPIEmitter struct{}

func (NoopKPIEmitter) Emit(event string, props map[string]interface{}) {
	logrus.WithFields(props).Debug("boundary: kpi event (noop): ", event)
}

type NoopNewsFeed struct{}

func (NoopNewsFeed) FetchLatest() ([]byte, error) { return nil, nil }

type NoopCredentialsVault struct{}

func (NoopCredentialsVault) Get(key string) (string, bool)  { return "", false }
func (NoopCredentialsVault) Set(key, value string) error    { return nil }

type NoopShortcutInstaller struct{}

func (NoopShortcutInstaller) Install(gameUID, location string) error { return nil }
func (NoopShortcutInstaller) Remove(gameUID string) error            { return nil }
