package pool

// Concurrency budgets named in §4.6 for the ActionLibrary's bounded-
// concurrency operations.
const (
	RepairConcurrency           = 10
	CreateDirectoriesConcurrency = 10
	DownloadFragmentConcurrency  = 6
	DeleteFilesConcurrency       = 10
	ArchiveInnerConcurrency      = 2
)

// Registry holds the named queues the ActionLibrary schedules work onto.
type Registry struct {
	Repair           *Queue
	CreateDirectories *Queue
	DownloadFragment  *Queue
	DeleteFiles       *Queue
	ArchiveInner      *Queue
}

// NewRegistry builds a Registry with each queue sized per its §4.6 budget.
func NewRegistry() (*Registry, error) {
	var err error
	r := &Registry{}

	if r.Repair, err = NewQueue(RepairConcurrency, "repair"); err != nil {
		return nil, err
	}
	if r.CreateDirectories, err = NewQueue(CreateDirectoriesConcurrency, "create-directories"); err != nil {
		return nil, err
	}
	if r.DownloadFragment, err = NewQueue(DownloadFragmentConcurrency, "download-fragment"); err != nil {
		return nil, err
	}
	if r.DeleteFiles, err = NewQueue(DeleteFilesConcurrency, "delete-files"); err != nil {
		return nil, err
	}
	if r.ArchiveInner, err = NewQueue(ArchiveInnerConcurrency, "archive-inner"); err != nil {
		return nil, err
	}
	return r, nil
}

// Release shuts down every queue in the registry.
func (r *Registry) Release() {
	r.Repair.Release()
	r.CreateDirectories.Release()
	r.DownloadFragment.Release()
	r.DeleteFiles.Release()
	r.ArchiveInner.Release()
}
