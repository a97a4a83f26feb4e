package filezilla

// FileTransferCommand describes one upload or download, as handed to
// FileTransfer. The internal chunking/buffering policy behind it is out
// of scope (spec.md 1); this layer only drives the io_* interaction
// contract against it.
type FileTransferCommand struct {
	LocalFile  string
	RemotePath string
	RemoteFile string
	Download   bool
	Resume     bool
}

// ChmodCommand describes a permission change, as handed to Chmod.
type ChmodCommand struct {
	Path        string
	File        string
	Permissions string
}

// RenameCommand describes a rename/move, as handed to Rename.
type RenameCommand struct {
	Path        string
	FromFile    string
	ToFile      string
}
